package integrator

// Integration coefficients a[0..k] satisfy
//
//	ydot(t0) ~= a[0]*y(t0) + a[1]*y(t1) + ... + a[k]*y(tk)
//
// for the trailing history times t0 > t1 > ... > tk. They are the
// derivatives of the Lagrange basis polynomials at t0, so they remain
// exact for polynomials of degree <= k under arbitrary step ratios.
// The fixed-step BDF table (beta-scaled) is the uniform-grid special
// case of this computation.
//
// The trapezoidal rule is not a pure multistep formula: its order-2
// form uses the previous derivative, ydot0 = (2/d)(y0-y1) - ydot1.
// Integrate handles that branch; here order 2 only sets a[0], a[1].
func (m *Method) computeCoeffs() {
	k := m.order
	a := m.coeffs[:k+1]

	if m.kind == Trapezoidal && k == 2 {
		d := m.states[0].Time - m.states[1].Time
		a[0] = 2.0 / d
		a[1] = -2.0 / d
		a[2] = 0
		return
	}

	t0 := m.states[0].Time
	a[0] = 0
	for j := 1; j <= k; j++ {
		a[0] += 1.0 / (t0 - m.states[j].Time)
	}
	for i := 1; i <= k; i++ {
		ti := m.states[i].Time
		c := 1.0 / (ti - t0)
		for j := 1; j <= k; j++ {
			if j == i {
				continue
			}
			tj := m.states[j].Time
			c *= (t0 - tj) / (ti - tj)
		}
		a[i] = c
	}
}

// Prediction coefficients p[1..k+1] extrapolate the polynomial through
// states[1..k+1] to the candidate time t0. They seed the Newton
// iteration; correctness does not depend on them.
func (m *Method) computePrediction() {
	k := m.order
	t0 := m.states[0].Time
	p := m.predCoeffs[:k+2]
	p[0] = 0

	for i := 1; i <= k+1; i++ {
		ti := m.states[i].Time
		c := 1.0
		for j := 1; j <= k+1; j++ {
			if j == i {
				continue
			}
			tj := m.states[j].Time
			c *= (t0 - tj) / (ti - tj)
		}
		p[i] = c
	}

	for n := 1; n < len(m.prediction); n++ {
		v := 0.0
		for i := 1; i <= k+1; i++ {
			v += p[i] * m.states[i].Solution[n]
		}
		m.prediction[n] = v
	}
	copy(m.states[0].Solution, m.prediction)
}

// errConstant is the leading local-truncation-error constant of the
// active formula at the given order.
func (m *Method) errConstant(order int) float64 {
	if m.kind == Trapezoidal && order == 2 {
		return 1.0 / 12.0
	}
	// Gear/BDF: approximately 1/(k+1) for the variable-step formulas.
	return 1.0 / float64(order+1)
}
