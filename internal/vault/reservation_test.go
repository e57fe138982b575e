package vault

import "testing"

func staticBalances(m map[string]int64) BalanceView {
	return func(user, asset string) int64 { return m[user+"/"+asset] }
}

func TestReservationLedgerBasics(t *testing.T) {
	balances := map[string]int64{"alice/GAS": 1000}
	l := NewReservationLedger(staticBalances(balances))

	if err := l.Reserve("alice", "GAS", 400, "rental deposit"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got := l.Reserved("alice", "GAS"); got != 400 {
		t.Errorf("reserved = %d, want 400", got)
	}
	if got := l.Available("alice", "GAS"); got != 600 {
		t.Errorf("available = %d, want 600", got)
	}

	// Second reserve accumulates.
	if err := l.Reserve("alice", "GAS", 600, "second rental"); err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if got := l.Available("alice", "GAS"); got != 0 {
		t.Errorf("available = %d, want 0", got)
	}
	if err := l.Reserve("alice", "GAS", 1, "over"); err == nil {
		t.Error("reserve beyond balance must fail")
	}

	if err := l.Release("alice", "GAS", 1001, "over"); err == nil {
		t.Error("release beyond reserved must fail")
	}
	if err := l.Release("alice", "GAS", 1000, "done"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := l.Release("alice", "GAS", 1, "again"); err == nil {
		t.Error("release with nothing reserved must fail")
	}
}

func TestReservationValidation(t *testing.T) {
	l := NewReservationLedger(staticBalances(map[string]int64{"alice/GAS": 100}))

	tests := []struct {
		name        string
		user, asset string
		amount      int64
	}{
		{"empty user", "", "GAS", 10},
		{"empty asset", "alice", "", 10},
		{"zero amount", "alice", "GAS", 0},
		{"negative amount", "alice", "GAS", -1},
	}
	for _, tt := range tests {
		if err := l.Reserve(tt.user, tt.asset, tt.amount, "r"); err == nil {
			t.Errorf("%s: reserve should fail", tt.name)
		}
	}
}

func TestReservationPerAssetIsolation(t *testing.T) {
	balances := map[string]int64{"alice/GAS": 500, "alice/NEO": 50}
	l := NewReservationLedger(staticBalances(balances))

	if err := l.Reserve("alice", "GAS", 500, "rental"); err != nil {
		t.Fatalf("reserve GAS: %v", err)
	}
	if got := l.Available("alice", "NEO"); got != 50 {
		t.Errorf("NEO available = %d, want 50 (unaffected by GAS reservation)", got)
	}
	if err := l.Reserve("alice", "NEO", 50, "rental"); err != nil {
		t.Fatalf("reserve NEO: %v", err)
	}
}

func TestReservationClamp(t *testing.T) {
	balances := map[string]int64{"alice/GAS": 1000}
	l := NewReservationLedger(staticBalances(balances))

	if err := l.Reserve("alice", "GAS", 800, "rental"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Balance drops out from under the reservation (a deduct happened).
	balances["alice/GAS"] = 300
	l.Clamp("alice", "GAS")
	if got := l.Reserved("alice", "GAS"); got != 300 {
		t.Errorf("clamped reserved = %d, want 300", got)
	}

	balances["alice/GAS"] = 0
	l.Clamp("alice", "GAS")
	if got := l.Reserved("alice", "GAS"); got != 0 {
		t.Errorf("clamped reserved = %d, want 0", got)
	}
}

func TestReservationSnapshotRestore(t *testing.T) {
	balances := map[string]int64{"alice/GAS": 1000, "bob/GAS": 500}
	l := NewReservationLedger(staticBalances(balances))
	if err := l.Reserve("alice", "GAS", 100, "a"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := l.Reserve("bob", "GAS", 200, "b"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	snap := l.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snap))
	}

	restored := NewReservationLedger(staticBalances(balances))
	restored.Restore(snap)
	if got := restored.Reserved("alice", "GAS"); got != 100 {
		t.Errorf("restored alice = %d, want 100", got)
	}
	if got := restored.Reserved("bob", "GAS"); got != 200 {
		t.Errorf("restored bob = %d, want 200", got)
	}
}
