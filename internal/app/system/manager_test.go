package system

import (
	"context"
	"fmt"
	"testing"
)

type recordedService struct {
	name  string
	fail  bool
	trace *[]string
}

func (s *recordedService) Name() string { return s.name }

func (s *recordedService) Start(ctx context.Context) error {
	if s.fail {
		return fmt.Errorf("%s refused to start", s.name)
	}
	*s.trace = append(*s.trace, "start:"+s.name)
	return nil
}

func (s *recordedService) Stop(ctx context.Context) error {
	*s.trace = append(*s.trace, "stop:"+s.name)
	return nil
}

func TestManagerStartStopOrder(t *testing.T) {
	var trace []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&recordedService{name: name, trace: &trace}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("trace[%d] = %s, want %s", i, trace[i], want[i])
		}
	}
}

func TestManagerRejectsDuplicates(t *testing.T) {
	var trace []string
	m := NewManager()
	if err := m.Register(&recordedService{name: "a", trace: &trace}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(&recordedService{name: "a", trace: &trace}); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestManagerUnwindsOnStartFailure(t *testing.T) {
	var trace []string
	m := NewManager()
	_ = m.Register(&recordedService{name: "a", trace: &trace})
	_ = m.Register(&recordedService{name: "bad", fail: true, trace: &trace})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("start should fail")
	}
	want := []string{"start:a", "stop:a"}
	if len(trace) != 2 || trace[0] != want[0] || trace[1] != want[1] {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}
