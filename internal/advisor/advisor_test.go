package advisor

import (
	"context"
	"testing"

	"moextrader/internal/domain"
)

// fakeAdvisor is a minimal Advisor for registry tests.
type fakeAdvisor struct {
	name string
}

func (f *fakeAdvisor) Name() string { return f.name }

func (f *fakeAdvisor) Advise(_ context.Context, _ string, _ []domain.Candle, _ *domain.Position, _ float64) (*Intent, error) {
	return nil, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdvisor{name: "alpha"})
	r.Register(&fakeAdvisor{name: "beta"})

	a, ok := r.Get("alpha")
	if !ok {
		t.Fatal("alpha not found")
	}
	if a.Name() != "alpha" {
		t.Errorf("name = %q, want alpha", a.Name())
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("Get returned ok for an unregistered advisor")
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdvisor{name: "zeta"})
	r.Register(&fakeAdvisor{name: "alpha"})
	r.Register(&fakeAdvisor{name: "mid"})

	names := r.List()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("List = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List = %v, want %v", names, want)
			break
		}
	}
}

func TestRegistryReRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	first := &fakeAdvisor{name: "dup"}
	second := &fakeAdvisor{name: "dup"}
	r.Register(first)
	r.Register(second)

	got, _ := r.Get("dup")
	if got != Advisor(second) {
		t.Error("re-registration did not replace the advisor")
	}
	if len(r.List()) != 1 {
		t.Errorf("List = %v, want single entry", r.List())
	}
}
