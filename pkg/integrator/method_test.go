package integrator

import (
	"errors"
	"math"
	"testing"
)

func newTestMethod(t *testing.T, kind Kind, maxOrder int, cfg Config) *Method {
	t.Helper()
	m, err := New(kind, maxOrder)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Setup(1, cfg); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return m
}

func TestSetupRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"final before init", Config{InitTime: 1, FinalTime: 0.5}},
		{"zero window", Config{FinalTime: 0}},
		{"negative reltol", Config{FinalTime: 1, RelTol: -1}},
		{"min above max", Config{FinalTime: 1, MinStep: 1, MaxStep: 0.01}},
		{"expansion below one", Config{FinalTime: 1, Expansion: 0.5}},
	}

	for _, tc := range cases {
		m, err := New(Gear, 2)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := m.Setup(1, tc.cfg); !errors.Is(err, ErrMisconfigured) {
			t.Errorf("%s: Setup error = %v, want ErrMisconfigured", tc.name, err)
		}
	}
}

func TestNewRejectsBadOrder(t *testing.T) {
	if _, err := New(Gear, 7); !errors.Is(err, ErrMisconfigured) {
		t.Errorf("order 7: err = %v, want ErrMisconfigured", err)
	}
	if _, err := New(Gear, -1); !errors.Is(err, ErrMisconfigured) {
		t.Errorf("order -1: err = %v, want ErrMisconfigured", err)
	}

	m, err := New(Trapezoidal, 6)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.MaxOrder() != 2 {
		t.Errorf("trapezoidal max order = %d, want cap at 2", m.MaxOrder())
	}
}

func TestInitializeSeedsHistory(t *testing.T) {
	m := newTestMethod(t, Gear, 2, Config{FinalTime: 1e-3})
	m.Initialize([]float64{0, 0.75})

	if m.Order() != 1 {
		t.Errorf("order = %d, want 1", m.Order())
	}
	for i, st := range m.states {
		if st.Delta != m.cfg.MaxStep {
			t.Errorf("state[%d].Delta = %g, want MaxStep %g", i, st.Delta, m.cfg.MaxStep)
		}
		if st.Solution[1] != 0.75 {
			t.Errorf("state[%d].Solution = %g, want 0.75", i, st.Solution[1])
		}
	}
	for i := 1; i < len(m.states)-1; i++ {
		if m.states[i].Time <= m.states[i+1].Time {
			t.Errorf("history times not strictly decreasing at %d", i)
		}
	}
}

// drive runs accepted steps against a smooth scripted signal.
func drive(t *testing.T, m *Method, ds *DerivativeState, signal func(float64) float64, steps int) float64 {
	t.Helper()
	delta := m.cfg.Step
	for n := 0; n < steps; n++ {
		for {
			delta = m.Continue(delta)
			m.Probe(delta)
			m.State(0).Solution[1] = signal(m.Time())
			ds.SetValue(signal(m.Time()))
			ds.Integrate()
			ok, next := m.Evaluate()
			if ok {
				m.Accept()
				delta = next
				break
			}
			delta = next
			if delta < m.MinStep() {
				t.Fatalf("step collapsed below MinStep at t=%g", m.Time())
			}
		}
	}
	return delta
}

func TestAcceptShiftsHistoryRing(t *testing.T) {
	m := newTestMethod(t, Gear, 2, Config{FinalTime: 1, Step: 1e-3})
	ds := m.CreateDerivative(true)
	m.Initialize([]float64{0, 0})

	drive(t, m, ds, func(x float64) float64 { return math.Sin(100 * x) }, 8)

	// History invariants after several shifts.
	for i := 1; i < len(m.states)-1; i++ {
		dt := m.states[i].Time - m.states[i+1].Time
		if dt <= 0 {
			t.Fatalf("state[%d].Time not decreasing", i)
		}
		if math.Abs(dt-m.states[i].Delta) > 1e-15 {
			t.Errorf("state[%d]: delta %g != time difference %g", i, m.states[i].Delta, dt)
		}
	}
}

func TestEvaluateFirstPointUnconditional(t *testing.T) {
	m := newTestMethod(t, Gear, 2, Config{FinalTime: 1, Step: 1e-3})
	ds := m.CreateDerivative(true)
	m.Initialize([]float64{0, 0})

	delta := m.Continue(1e-3)
	m.Probe(delta)
	// Wild value: the first point is accepted regardless.
	m.State(0).Solution[1] = 1e6
	ds.SetValue(1e6)
	ds.Integrate()

	ok, next := m.Evaluate()
	if !ok {
		t.Fatal("first point rejected")
	}
	if next != delta {
		t.Errorf("first point next = %g, want probed delta %g", next, delta)
	}
}

func TestEvaluateGrowthCappedByExpansion(t *testing.T) {
	m := newTestMethod(t, Gear, 1, Config{FinalTime: 10, Step: 1e-3, MaxStep: 1, Expansion: 2})
	ds := m.CreateDerivative(true)
	m.Initialize([]float64{0, 0})
	ds.Init(1)

	// Flat signal: truncation never binds, growth rides Expansion.
	delta := m.cfg.Step
	for n := 0; n < 6; n++ {
		delta = m.Continue(delta)
		m.Probe(delta)
		m.State(0).Solution[1] = 1
		ds.SetValue(1)
		ds.Integrate()
		ok, next := m.Evaluate()
		if !ok {
			t.Fatalf("flat signal rejected at step %d", n)
		}
		if n > 0 && next > 2*m.State(0).Delta*(1+1e-12) {
			t.Errorf("step %d: next %g exceeds Expansion*delta %g", n, next, 2*m.State(0).Delta)
		}
		m.Accept()
		delta = next
	}
}

func TestNonConvergenceDropsOrderAndStep(t *testing.T) {
	m := newTestMethod(t, Gear, 2, Config{FinalTime: 1, Step: 1e-3})
	ds := m.CreateDerivative(true)
	m.Initialize([]float64{0, 0})
	drive(t, m, ds, func(x float64) float64 { return math.Sin(10 * x) }, 5)

	probed := m.State(0).Delta
	next := m.NonConvergence()
	if next != probed/8 {
		t.Errorf("NonConvergence step = %g, want %g", next, probed/8)
	}
	if m.Order() != 1 {
		t.Errorf("order after NonConvergence = %d, want 1", m.Order())
	}
}

func TestBreakpointLandedExactly(t *testing.T) {
	m := newTestMethod(t, Gear, 2, Config{FinalTime: 1e-2, Step: 1e-4})
	ds := m.CreateDerivative(true)
	m.Initialize([]float64{0, 0})
	const edge = 3.3e-4
	m.SetBreakpoint(edge)

	hit := false
	delta := m.cfg.Step
	for m.LastTime() < 1e-2 {
		delta = m.Continue(delta)
		m.Probe(delta)
		m.State(0).Solution[1] = 1
		ds.SetValue(1)
		ds.Integrate()
		ok, next := m.Evaluate()
		if !ok {
			delta = next
			continue
		}
		if m.Time() == edge {
			hit = true
		}
		m.Accept()
		delta = next

		if hit {
			// Next sizing pass resets the order for the restart.
			delta = m.Continue(delta)
			if m.Order() != 1 {
				t.Errorf("order after breakpoint = %d, want 1", m.Order())
			}
			m.Probe(delta)
			m.State(0).Solution[1] = 1
			ds.SetValue(1)
			ds.Integrate()
			if ok, _ := m.Evaluate(); ok {
				m.Accept()
			}
			break
		}
	}
	if !hit {
		t.Fatal("breakpoint never landed exactly")
	}
}

func TestObserversFireInOrder(t *testing.T) {
	m := newTestMethod(t, Gear, 2, Config{FinalTime: 1, Step: 1e-3})
	ds := m.CreateDerivative(true)
	m.Initialize([]float64{0, 0})

	var order []string
	m.OnBeforeAccept(func(*Method) { order = append(order, "before1") })
	m.OnBeforeAccept(func(*Method) { order = append(order, "before2") })
	m.OnAfterAccept(func(*Method) { order = append(order, "after") })

	drive(t, m, ds, func(float64) float64 { return 0 }, 1)

	want := []string{"before1", "before2", "after"}
	if len(order) != len(want) {
		t.Fatalf("observer calls = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("observer calls = %v, want %v", order, want)
		}
	}
}

func TestOnTruncateHookBindsStep(t *testing.T) {
	m := newTestMethod(t, Gear, 2, Config{FinalTime: 1, Step: 1e-3})
	ds := m.CreateDerivative(true)
	m.Initialize([]float64{0, 0})
	drive(t, m, ds, func(float64) float64 { return 0 }, 2)

	const cap = 1.5e-3
	m.OnTruncate(func(_ *Method, d float64) float64 {
		if d > cap {
			return cap
		}
		return d
	})

	delta := m.Continue(1e-3)
	m.Probe(delta)
	m.State(0).Solution[1] = 0
	ds.SetValue(0)
	ds.Integrate()
	ok, next := m.Evaluate()
	if !ok {
		t.Fatal("flat signal rejected")
	}
	if next > cap {
		t.Errorf("next = %g, want hook cap %g", next, cap)
	}
}

func TestUnsetupReleasesState(t *testing.T) {
	m := newTestMethod(t, Gear, 2, Config{FinalTime: 1, Step: 1e-3})
	m.CreateDerivative(true)
	m.Initialize([]float64{0, 0})

	m.Unsetup()
	if m.states != nil || m.prediction != nil || m.derivs != nil || m.tracked != nil || m.breaks != nil {
		t.Error("Unsetup left allocations behind")
	}
}
