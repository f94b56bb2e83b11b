package credpool

import (
	"fmt"
	"sync"
	"testing"
)

func TestRoundRobinCyclesAllCredentials(t *testing.T) {
	for _, size := range []int{1, 2, 3, 7} {
		t.Run(fmt.Sprintf("size-%d", size), func(t *testing.T) {
			values := make([]string, size)
			for i := range values {
				values[i] = fmt.Sprintf("token-%d", i)
			}
			p := New(values)

			seen := make(map[string]int)
			for i := 0; i < size*2; i++ {
				cred, ok := p.Acquire(RoundRobin)
				if !ok {
					t.Fatal("Acquire returned no credential from non-empty pool")
				}
				seen[cred.Value]++
			}

			if len(seen) != size {
				t.Errorf("round_robin touched %d distinct credentials, want %d", len(seen), size)
			}
			for v, n := range seen {
				if n != 2 {
					t.Errorf("credential %q acquired %d times over two full cycles, want 2", v, n)
				}
			}
		})
	}
}

func TestFailOpenWhenAllFailed(t *testing.T) {
	p := New([]string{"a", "b", "c"})

	for _, v := range []string{"a", "b", "c"} {
		p.MarkFailed(Credential{Value: v})
	}
	if got := p.EligibleCount(); got != 0 {
		t.Fatalf("EligibleCount() = %d after failing all, want 0", got)
	}

	cred, ok := p.Acquire(RoundRobin)
	if !ok {
		t.Fatal("Acquire returned no credential after full exhaustion; fail-open reset expected")
	}
	if cred.Value == "" {
		t.Error("Acquire returned empty credential value")
	}
	if got := p.EligibleCount(); got != 3 {
		t.Errorf("EligibleCount() = %d after fail-open reset, want 3", got)
	}
}

func TestAcquireSkipsFailedCredentials(t *testing.T) {
	p := New([]string{"a", "b", "c"})
	p.MarkFailed(Credential{Value: "b"})

	for i := 0; i < 10; i++ {
		cred, ok := p.Acquire(RoundRobin)
		if !ok {
			t.Fatal("Acquire returned no credential")
		}
		if cred.Value == "b" {
			t.Fatal("Acquire returned a failed credential")
		}
	}
}

func TestMarkFailedIdempotentAndByValue(t *testing.T) {
	p := New([]string{"a", "b"})

	p.MarkFailed(Credential{Value: "a"})
	p.MarkFailed(Credential{Value: "a"})
	if got := p.EligibleCount(); got != 1 {
		t.Errorf("EligibleCount() = %d after double MarkFailed, want 1", got)
	}

	// Non-member credentials are ignored.
	p.MarkFailed(Credential{Value: "stranger"})
	if got := p.EligibleCount(); got != 1 {
		t.Errorf("EligibleCount() = %d after marking non-member, want 1", got)
	}

	p.MarkWorking(Credential{Value: "a"})
	p.MarkWorking(Credential{Value: "a"})
	if got := p.EligibleCount(); got != 2 {
		t.Errorf("EligibleCount() = %d after MarkWorking, want 2", got)
	}
}

func TestStrategies(t *testing.T) {
	p := New([]string{"a", "b", "c"})

	cred, ok := p.Acquire(First)
	if !ok || cred.Value != "a" {
		t.Errorf("Acquire(First) = %q, want %q", cred.Value, "a")
	}

	p.MarkFailed(Credential{Value: "a"})
	cred, ok = p.Acquire(First)
	if !ok || cred.Value != "b" {
		t.Errorf("Acquire(First) with a failed = %q, want %q", cred.Value, "b")
	}

	for i := 0; i < 20; i++ {
		cred, ok = p.Acquire(Random)
		if !ok {
			t.Fatal("Acquire(Random) returned no credential")
		}
		if cred.Value == "a" {
			t.Fatal("Acquire(Random) returned failed credential")
		}
	}
}

func TestEmptyPool(t *testing.T) {
	p := New(nil)
	if _, ok := p.Acquire(RoundRobin); ok {
		t.Error("Acquire on empty pool should return no credential")
	}
	if got := p.EligibleCount(); got != 0 {
		t.Errorf("EligibleCount() = %d for empty pool, want 0", got)
	}
}

func TestConcurrentAcquireAndMark(t *testing.T) {
	p := New([]string{"a", "b", "c", "d"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				cred, ok := p.Acquire(RoundRobin)
				if !ok {
					t.Error("Acquire returned no credential")
					return
				}
				if j%3 == 0 {
					p.MarkFailed(cred)
				} else {
					p.MarkWorking(cred)
				}
			}
		}()
	}
	wg.Wait()

	if got := p.Size(); got != 4 {
		t.Errorf("Size() = %d after concurrent churn, want 4", got)
	}
}

func TestParseValues(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"comma", "t1,t2,t3", []string{"t1", "t2", "t3"}},
		{"semicolon", "t1;t2;t3", []string{"t1", "t2", "t3"}},
		{"newline", "t1\nt2\nt3", []string{"t1", "t2", "t3"}},
		{"mixed with whitespace", " t1 ,\n t2 ;t3 ", []string{"t1", "t2", "t3"}},
		{"empty entries dropped", "t1,,;\n,t2", []string{"t1", "t2"}},
		{"empty input", "", nil},
		{"only separators", ",;\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseValues(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseValues(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseValues(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}
