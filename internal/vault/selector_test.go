package vault

import (
	"context"
	"errors"
	"testing"
)

type fakeProtocol struct {
	name     string
	healthy  bool
	probeErr error
	apy      int64
	apyErr   error
}

func (p *fakeProtocol) Name() string    { return p.name }
func (p *fakeProtocol) Address() string { return "0x" + p.name }

func (p *fakeProtocol) Healthy(_ context.Context) (bool, error) {
	return p.healthy, p.probeErr
}

func (p *fakeProtocol) APY(_ context.Context) (int64, error) {
	return p.apy, p.apyErr
}

func TestSelectorPrefersHealthyDefault(t *testing.T) {
	s := NewSelector(nil)
	def := &fakeProtocol{name: "flamingo", healthy: true}
	alt := &fakeProtocol{name: "burger", healthy: true}
	if err := s.Register(def, 5000, true); err != nil {
		t.Fatalf("register default: %v", err)
	}
	if err := s.Register(alt, 5000, false); err != nil {
		t.Fatalf("register alt: %v", err)
	}

	p, err := s.Select(context.Background())
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if p.Name() != "flamingo" {
		t.Errorf("selected %s, want default flamingo", p.Name())
	}
}

func TestSelectorFallsBackToFirstHealthy(t *testing.T) {
	s := NewSelector(nil)
	def := &fakeProtocol{name: "flamingo", healthy: false}
	mid := &fakeProtocol{name: "burger", healthy: false}
	ok := &fakeProtocol{name: "ghost", healthy: true}
	for i, p := range []*fakeProtocol{def, mid, ok} {
		if err := s.Register(p, 1000, i == 0); err != nil {
			t.Fatalf("register %s: %v", p.name, err)
		}
	}

	p, err := s.Select(context.Background())
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if p.Name() != "ghost" {
		t.Errorf("selected %s, want first healthy ghost", p.Name())
	}
}

func TestSelectorReturnsUnhealthyDefaultWhenNoneLive(t *testing.T) {
	s := NewSelector(nil)
	def := &fakeProtocol{name: "flamingo", healthy: false}
	alt := &fakeProtocol{name: "burger", healthy: false}
	if err := s.Register(def, 5000, true); err != nil {
		t.Fatalf("register default: %v", err)
	}
	if err := s.Register(alt, 5000, false); err != nil {
		t.Fatalf("register alt: %v", err)
	}

	// Deterministic unhealthy default so the caller fails loudly instead
	// of silently doing nothing.
	p, err := s.Select(context.Background())
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if p.Name() != "flamingo" {
		t.Errorf("selected %s, want unhealthy default flamingo", p.Name())
	}
}

func TestSelectorTreatsProbeErrorAsUnhealthy(t *testing.T) {
	s := NewSelector(nil)
	def := &fakeProtocol{name: "flamingo", probeErr: errors.New("rpc timeout")}
	ok := &fakeProtocol{name: "burger", healthy: true}
	if err := s.Register(def, 5000, true); err != nil {
		t.Fatalf("register default: %v", err)
	}
	if err := s.Register(ok, 5000, false); err != nil {
		t.Fatalf("register alt: %v", err)
	}

	p, err := s.Select(context.Background())
	if err != nil {
		t.Fatalf("probe error must not abort selection: %v", err)
	}
	if p.Name() != "burger" {
		t.Errorf("selected %s, want burger", p.Name())
	}
}

func TestSelectorEmpty(t *testing.T) {
	s := NewSelector(nil)
	if _, err := s.Select(context.Background()); err == nil {
		t.Error("selecting with no protocols should fail")
	}
}

func TestSelectorFirstRegistrationBecomesDefault(t *testing.T) {
	s := NewSelector(nil)
	if err := s.Register(&fakeProtocol{name: "a", healthy: true}, 100, false); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := s.Default().Name(); got != "a" {
		t.Errorf("default = %s, want a", got)
	}
	if err := s.Register(&fakeProtocol{name: "b", healthy: true}, 100, true); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := s.Default().Name(); got != "b" {
		t.Errorf("default = %s, want b after explicit makeDefault", got)
	}
}

func TestSelectorBestAPY(t *testing.T) {
	s := NewSelector(nil)
	_ = s.Register(&fakeProtocol{name: "a", healthy: true, apy: 450}, 100, false)
	_ = s.Register(&fakeProtocol{name: "b", healthy: true, apy: 820}, 100, false)
	_ = s.Register(&fakeProtocol{name: "c", healthy: false, apy: 9999}, 100, false)
	_ = s.Register(&fakeProtocol{name: "d", healthy: true, apyErr: errors.New("revert")}, 100, false)

	if got := s.BestAPY(context.Background()); got != 820 {
		t.Errorf("best APY = %d, want 820 (unhealthy and failing excluded)", got)
	}
}
