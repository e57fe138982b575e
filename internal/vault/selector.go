package vault

import (
	"context"

	"github.com/R3E-Network/fund_layer/internal/errors"
	"github.com/R3E-Network/fund_layer/pkg/logger"
)

// Protocol is one redundant integration registered under a single adapter.
// Health and APY probes must tolerate the remote end reverting; a probe
// error is treated as unhealthy / zero yield, never as fatal.
type Protocol interface {
	Name() string
	Address() string
	Healthy(ctx context.Context) (bool, error)
	APY(ctx context.Context) (int64, error)
}

// ProtocolEntry is the selector's registration record for one protocol.
type ProtocolEntry struct {
	Protocol Protocol
	Weight   int64
	Default  bool
}

// Selector picks one live protocol among several registered under one
// adapter: default first when healthy, otherwise the first healthy protocol
// in registration order. When nothing is healthy it deterministically
// returns the (unhealthy) default so the caller's next operation fails
// loudly instead of silently doing nothing.
type Selector struct {
	entries     []*ProtocolEntry
	byName      map[string]*ProtocolEntry
	defaultName string
	log         *logger.Logger
}

// NewSelector creates an empty protocol selector.
func NewSelector(log *logger.Logger) *Selector {
	if log == nil {
		log = logger.NewDefault("selector")
	}
	return &Selector{byName: make(map[string]*ProtocolEntry), log: log}
}

// Register adds a protocol. The first registration becomes the default
// unless a later one is registered with makeDefault.
func (s *Selector) Register(p Protocol, weight int64, makeDefault bool) error {
	if p == nil {
		return errors.Validation("protocol must not be nil")
	}
	name := p.Name()
	if name == "" {
		return errors.Validation("protocol name must not be empty")
	}
	if _, exists := s.byName[name]; exists {
		return errors.State("protocol already registered: %s", name)
	}

	entry := &ProtocolEntry{Protocol: p, Weight: weight}
	s.entries = append(s.entries, entry)
	s.byName[name] = entry

	if makeDefault || s.defaultName == "" {
		s.setDefault(name)
	}
	return nil
}

// SetDefault marks the named protocol as the default.
func (s *Selector) SetDefault(name string) error {
	if _, ok := s.byName[name]; !ok {
		return errors.NotFound("protocol", name)
	}
	s.setDefault(name)
	return nil
}

func (s *Selector) setDefault(name string) {
	for _, e := range s.entries {
		e.Default = e.Protocol.Name() == name
	}
	s.defaultName = name
}

// Default returns the current default protocol, or nil if none is set.
func (s *Selector) Default() Protocol {
	if e, ok := s.byName[s.defaultName]; ok {
		return e.Protocol
	}
	return nil
}

// Entries returns the registered entries in registration order.
func (s *Selector) Entries() []*ProtocolEntry {
	out := make([]*ProtocolEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Select returns the protocol to use for the next operation.
func (s *Selector) Select(ctx context.Context) (Protocol, error) {
	if len(s.entries) == 0 {
		return nil, errors.State("no protocols registered")
	}

	if def := s.Default(); def != nil {
		if s.healthy(ctx, def) {
			return def, nil
		}
	}

	for _, e := range s.entries {
		if e.Protocol.Name() == s.defaultName {
			continue // already probed
		}
		if s.healthy(ctx, e.Protocol) {
			s.log.WithField("protocol", e.Protocol.Name()).
				Info("default unhealthy, falling back")
			return e.Protocol, nil
		}
	}

	// Nothing healthy: hand back the default so the caller fails loudly.
	if def := s.Default(); def != nil {
		s.log.WithField("protocol", def.Name()).
			Warn("no healthy protocol, returning unhealthy default")
		return def, nil
	}
	return s.entries[0].Protocol, nil
}

func (s *Selector) healthy(ctx context.Context, p Protocol) bool {
	ok, err := p.Healthy(ctx)
	if err != nil {
		s.log.WithError(err).WithField("protocol", p.Name()).
			Debug("health probe failed, treating as unhealthy")
		return false
	}
	return ok
}

// BestAPY returns the highest APY among healthy protocols, zero when none
// respond. Probe failures count as zero yield.
func (s *Selector) BestAPY(ctx context.Context) int64 {
	var best int64
	for _, e := range s.entries {
		if !s.healthy(ctx, e.Protocol) {
			continue
		}
		apy, err := e.Protocol.APY(ctx)
		if err != nil {
			continue
		}
		if apy > best {
			best = apy
		}
	}
	return best
}
