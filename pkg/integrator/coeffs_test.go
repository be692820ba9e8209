package integrator

import (
	"math"
	"testing"
)

// buildHistory sets the ring times from a trailing delta sequence:
// deltas[0] is the current candidate step, deltas[1] the previous one.
func buildHistory(t *testing.T, kind Kind, maxOrder int, order int, deltas []float64) *Method {
	t.Helper()

	m, err := New(kind, maxOrder)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Setup(2, Config{FinalTime: 1, Step: deltas[0]}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	m.order = order

	time := 1.0
	for i, st := range m.states {
		st.Time = time
		if i < len(deltas) {
			st.Delta = deltas[i]
			time -= deltas[i]
		} else {
			st.Delta = deltas[len(deltas)-1]
			time -= st.Delta
		}
	}
	return m
}

func TestBDFCoefficientsUniformGrid(t *testing.T) {
	cases := []struct {
		order int
		want  []float64 // a[i] * h
	}{
		{1, []float64{1, -1}},
		{2, []float64{1.5, -2, 0.5}},
	}

	const h = 1e-3
	for _, tc := range cases {
		m := buildHistory(t, Gear, 6, tc.order, []float64{h, h, h, h, h, h, h})
		m.computeCoeffs()

		for i, want := range tc.want {
			got := m.coeffs[i] * h
			if math.Abs(got-want) > 1e-9 {
				t.Errorf("order %d: a[%d]*h = %g, want %g", tc.order, i, got, want)
			}
		}
	}
}

// The coefficients must differentiate polynomials of the formula's
// degree exactly, whatever the step ratios.
func TestBDFCoefficientsVariableStepExactness(t *testing.T) {
	deltas := []float64{1e-3, 2.5e-4, 7e-4, 1.1e-3, 5e-4, 9e-4, 3e-4}

	for order := 1; order <= 6; order++ {
		m := buildHistory(t, Gear, 6, order, deltas)
		m.computeCoeffs()

		// p(t) = t^order, p'(t0) = order * t0^(order-1)
		t0 := m.states[0].Time
		got := 0.0
		for i := 0; i <= order; i++ {
			ti := m.states[i].Time
			got += m.coeffs[i] * math.Pow(ti, float64(order))
		}
		want := float64(order) * math.Pow(t0, float64(order-1))

		if math.Abs(got-want) > 1e-6*math.Abs(want) {
			t.Errorf("order %d: d/dt t^%d = %g, want %g", order, order, got, want)
		}
	}
}

func TestPredictionExtrapolatesPolynomial(t *testing.T) {
	deltas := []float64{4e-4, 6e-4, 1e-3}
	m := buildHistory(t, Gear, 2, 2, deltas)

	// Solution follows y = 3t^2 - 2t + 1 at the history points; a
	// degree-2 extrapolation through states[1..3] must land exactly.
	poly := func(x float64) float64 { return 3*x*x - 2*x + 1 }
	for i := 1; i < len(m.states); i++ {
		m.states[i].Solution[1] = poly(m.states[i].Time)
	}

	m.computePrediction()

	want := poly(m.states[0].Time)
	if math.Abs(m.prediction[1]-want) > 1e-9 {
		t.Errorf("prediction = %g, want %g", m.prediction[1], want)
	}
	if m.states[0].Solution[1] != m.prediction[1] {
		t.Error("prediction not copied into the current solution slot")
	}
}

func TestTrapezoidalCoefficients(t *testing.T) {
	const h = 2e-4
	m := buildHistory(t, Trapezoidal, 2, 2, []float64{h, h, h})
	m.computeCoeffs()

	if got := m.coeffs[0] * h; math.Abs(got-2) > 1e-12 {
		t.Errorf("a[0]*h = %g, want 2", got)
	}
	if got := m.coeffs[1] * h; math.Abs(got+2) > 1e-12 {
		t.Errorf("a[1]*h = %g, want -2", got)
	}
}
