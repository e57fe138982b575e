package vault

import (
	"time"

	"github.com/R3E-Network/fund_layer/internal/errors"
)

// Registration is the registry record for one adapter.
type Registration struct {
	Adapter  Adapter
	Weight   int64 // basis points, 0-10000
	Active   bool
	Invested int64 // principal pushed into the adapter, locally tracked

	AddedAt   time.Time
	RemovedAt time.Time
}

// Registry is the ordered collection of registered adapters.
//
// The registry carries no lock of its own: all access goes through the
// owning Vault, which serializes mutating operations.
type Registry struct {
	order []*Registration
	byID  map[string]*Registration
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Registration)}
}

// Add registers an adapter with the given weight in basis points.
//
// Cumulative active weight is capped at 10000 bps. The cap is a documented
// policy of this implementation, not a protocol invariant.
func (r *Registry) Add(adapter Adapter, weight int64) (*Registration, error) {
	if adapter == nil {
		return nil, errors.Validation("adapter must not be nil")
	}
	id := adapter.ID()
	if id == "" {
		return nil, errors.Validation("adapter id must not be empty")
	}
	if weight <= 0 || weight > BpsDenominator {
		return nil, errors.Validation("adapter weight must be in (0, %d] bps: %d", BpsDenominator, weight)
	}
	if _, exists := r.byID[id]; exists {
		return nil, errors.State("adapter already registered: %s", id)
	}
	if r.TotalActiveWeight()+weight > BpsDenominator {
		return nil, errors.State("cumulative active weight exceeds %d bps", BpsDenominator)
	}

	reg := &Registration{
		Adapter: adapter,
		Weight:  weight,
		Active:  true,
		AddedAt: time.Now().UTC(),
	}
	r.order = append(r.order, reg)
	r.byID[id] = reg
	return reg, nil
}

// Remove soft-deletes an adapter: marks it inactive, zeroes its weight and
// invested counter, and stamps the removal time. The registration stays in
// the ordered list for audit purposes.
func (r *Registry) Remove(id string) (*Registration, error) {
	reg, ok := r.byID[id]
	if !ok {
		return nil, errors.NotFound("adapter", id)
	}
	reg.Active = false
	reg.Weight = 0
	reg.Invested = 0
	reg.RemovedAt = time.Now().UTC()
	delete(r.byID, id)
	return reg, nil
}

// Get returns the registration for id.
func (r *Registry) Get(id string) (*Registration, error) {
	reg, ok := r.byID[id]
	if !ok {
		return nil, errors.NotFound("adapter", id)
	}
	return reg, nil
}

// SetWeight updates an adapter's weight, keeping the cumulative cap.
func (r *Registry) SetWeight(id string, weight int64) error {
	reg, ok := r.byID[id]
	if !ok {
		return errors.NotFound("adapter", id)
	}
	if weight <= 0 || weight > BpsDenominator {
		return errors.Validation("adapter weight must be in (0, %d] bps: %d", BpsDenominator, weight)
	}
	if r.TotalActiveWeight()-activeWeight(reg)+weight > BpsDenominator {
		return errors.State("cumulative active weight exceeds %d bps", BpsDenominator)
	}
	reg.Weight = weight
	return nil
}

// SetActive toggles an adapter's active flag.
func (r *Registry) SetActive(id string, active bool) error {
	reg, ok := r.byID[id]
	if !ok {
		return errors.NotFound("adapter", id)
	}
	if active && r.TotalActiveWeight()+reg.Weight > BpsDenominator && !reg.Active {
		return errors.State("cumulative active weight exceeds %d bps", BpsDenominator)
	}
	reg.Active = active
	return nil
}

// Active returns the active registrations in registration order.
func (r *Registry) Active() []*Registration {
	active := make([]*Registration, 0, len(r.order))
	for _, reg := range r.order {
		if reg.Active && reg.RemovedAt.IsZero() {
			active = append(active, reg)
		}
	}
	return active
}

// All returns every registration, including removed ones, in order.
func (r *Registry) All() []*Registration {
	out := make([]*Registration, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of currently registered (non-removed) adapters.
func (r *Registry) Len() int {
	return len(r.byID)
}

// TotalActiveWeight sums the weights of active adapters.
func (r *Registry) TotalActiveWeight() int64 {
	var total int64
	for _, reg := range r.byID {
		total += activeWeight(reg)
	}
	return total
}

// TotalInvested sums the locally tracked invested principal across
// registered adapters.
func (r *Registry) TotalInvested() int64 {
	var total int64
	for _, reg := range r.byID {
		total += reg.Invested
	}
	return total
}

func activeWeight(reg *Registration) int64 {
	if reg.Active {
		return reg.Weight
	}
	return 0
}

// creditInvested bumps the invested counter after a successful push.
func (reg *Registration) creditInvested(amount int64) {
	reg.Invested += amount
}

// debitInvested lowers the invested counter, flooring at zero since yield
// can make withdrawals exceed recorded principal.
func (reg *Registration) debitInvested(amount int64) {
	reg.Invested -= amount
	if reg.Invested < 0 {
		reg.Invested = 0
	}
}
