package integrator

import "testing"

func TestBreakpointsOrderingAndCoalescing(t *testing.T) {
	b := NewBreakpoints(0, 1e-3)

	b.Set(5e-4)
	b.Set(2e-4)
	b.Set(5e-4) // duplicate
	b.Set(5e-4 + 1e-20)
	b.Set(2e-3) // past final, dropped

	want := []float64{0, 2e-4, 5e-4, 1e-3}
	if b.Len() != len(want) {
		t.Fatalf("Len = %d, want %d", b.Len(), len(want))
	}
	for i, w := range want {
		if got := b.First(); got != w {
			t.Errorf("breakpoint %d = %g, want %g", i, got, w)
		}
		b.PopFirst()
	}
}

func TestBreakpointsFinalSurvives(t *testing.T) {
	b := NewBreakpoints(0, 1e-3)

	for i := 0; i < 5; i++ {
		b.PopFirst()
	}
	if got := b.First(); got != 1e-3 {
		t.Errorf("First after draining = %g, want final 1e-3", got)
	}

	b.ClearBelow(2e-3)
	if got := b.First(); got != 1e-3 {
		t.Errorf("First after ClearBelow past final = %g, want 1e-3", got)
	}
}

func TestBreakpointsClearBelowKeepsEqual(t *testing.T) {
	b := NewBreakpoints(0, 1e-3)
	b.Set(4e-4)

	// A landing at 4e-4 clears everything behind it but not itself.
	b.ClearBelow(4e-4)
	if got := b.First(); got != 4e-4 {
		t.Errorf("First = %g, want 4e-4", got)
	}
}

func TestBreakpointsAfter(t *testing.T) {
	b := NewBreakpoints(0, 1e-3)
	b.Set(4e-4)
	b.Set(6e-4)

	if got := b.After(4e-4); got != 6e-4 {
		t.Errorf("After(4e-4) = %g, want 6e-4", got)
	}
	if got := b.After(6e-4); got != 1e-3 {
		t.Errorf("After(6e-4) = %g, want final", got)
	}
	if got := b.After(1e-3); got != 1e-3 {
		t.Errorf("After(final) = %g, want final", got)
	}
}
