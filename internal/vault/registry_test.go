package vault

import "testing"

func TestRegistryAddValidation(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Add(nil, 5000); err == nil {
		t.Error("nil adapter should be rejected")
	}
	if _, err := r.Add(newFakeAdapter("", 0), 5000); err == nil {
		t.Error("empty id should be rejected")
	}
	if _, err := r.Add(newFakeAdapter("a", 0), 0); err == nil {
		t.Error("zero weight should be rejected")
	}
	if _, err := r.Add(newFakeAdapter("a", 0), 10001); err == nil {
		t.Error("weight above 10000 bps should be rejected")
	}

	if _, err := r.Add(newFakeAdapter("a", 0), 5000); err != nil {
		t.Fatalf("valid add: %v", err)
	}
	if _, err := r.Add(newFakeAdapter("a", 0), 1000); err == nil {
		t.Error("duplicate id should be rejected")
	}
}

func TestRegistryWeightCap(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Add(newFakeAdapter("a", 0), 6000); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if _, err := r.Add(newFakeAdapter("b", 0), 5000); err == nil {
		t.Error("cumulative weight above 10000 bps should be rejected")
	}
	if _, err := r.Add(newFakeAdapter("b", 0), 4000); err != nil {
		t.Fatalf("add b within cap: %v", err)
	}

	// Raising a weight past the cap must also be rejected.
	if err := r.SetWeight("a", 6001); err == nil {
		t.Error("reweight past cap should be rejected")
	}
	if err := r.SetWeight("a", 6000); err != nil {
		t.Errorf("reweight at cap: %v", err)
	}

	// Deactivating frees headroom.
	if err := r.SetActive("a", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if got := r.TotalActiveWeight(); got != 4000 {
		t.Errorf("active weight = %d, want 4000", got)
	}
}

func TestRegistryRemoveIsSoft(t *testing.T) {
	r := NewRegistry()
	reg, err := r.Add(newFakeAdapter("a", 0), 5000)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	reg.creditInvested(500)

	removed, err := r.Remove("a")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Active || removed.Weight != 0 || removed.Invested != 0 {
		t.Errorf("removal must deactivate and zero the record: %+v", removed)
	}
	if removed.RemovedAt.IsZero() {
		t.Error("removal timestamp not set")
	}
	if _, err := r.Get("a"); err == nil {
		t.Error("removed adapter should not resolve")
	}
	// The record stays in the ordered list for audit.
	if len(r.All()) != 1 {
		t.Errorf("audit list length = %d, want 1", len(r.All()))
	}
	if r.Len() != 0 {
		t.Errorf("registered count = %d, want 0", r.Len())
	}
}

func TestInvestedCounterFloorsAtZero(t *testing.T) {
	reg := &Registration{}
	reg.creditInvested(100)
	reg.debitInvested(150) // yield made the withdrawal exceed principal
	if reg.Invested != 0 {
		t.Errorf("invested = %d, want 0", reg.Invested)
	}
}
