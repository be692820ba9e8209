package integrator

import "math"

// DerivativeState is a dynamic quantity (capacitor charge, inductor
// flux, junction charge) whose value and time derivative are tracked
// across the history ring. The owning device writes the value at the
// current point during stamping; Integrate turns the history into a
// resistive companion model; Truncate answers how large the next step
// may be before this quantity's local truncation error exceeds the
// configured tolerance.
type DerivativeState struct {
	m       *Method
	value   []float64
	deriv   []float64
	tracked bool
}

// SetValue writes the quantity's value at the point being computed.
// Call once per Newton iteration, before Integrate.
func (s *DerivativeState) SetValue(v float64) { s.value[0] = v }

// Value returns the value at history slot i (0 = current).
func (s *DerivativeState) Value(i int) float64 { return s.value[i] }

// Derivative returns the time derivative at history slot i.
func (s *DerivativeState) Derivative(i int) float64 { return s.deriv[i] }

// Init seeds every history slot with v and zero derivative. Used when
// entering transient analysis so the first step sees no artificial
// transient.
func (s *DerivativeState) Init(v float64) {
	for i := range s.value {
		s.value[i] = v
		s.deriv[i] = 0
	}
}

// Integrate computes the derivative at the current point from stored
// history using the active integration coefficients and returns the
// companion pair (geq, ieq) with ydot ~= geq*y + ieq. geq is the
// coefficient a[0]; the device scales it by dValue/dUnknown for its
// conductance stamp.
func (s *DerivativeState) Integrate() (geq, ieq float64) {
	m := s.m
	a := m.coeffs

	var dot float64
	if m.kind == Trapezoidal && m.order == 2 {
		dot = a[0]*s.value[0] + a[1]*s.value[1] - s.deriv[1]
	} else {
		dot = 0
		for i := 0; i <= m.order; i++ {
			dot += a[i] * s.value[i]
		}
	}
	s.deriv[0] = dot

	geq = a[0]
	ieq = dot - a[0]*s.value[0]
	return geq, ieq
}

// Truncate estimates the largest next step that keeps this state's
// local truncation error within TrTol times the solution tolerance.
// The result is clamped to at least MinStep; a state with no curvature
// places no constraint.
func (s *DerivativeState) Truncate() float64 {
	return s.truncate(s.m.order)
}

func (s *DerivativeState) truncate(order int) float64 {
	m := s.m

	// Mirror the reference clamp: the exponent never exceeds the one
	// belonging to the method's maximum order.
	k := order
	if k > m.maxOrder {
		k = m.maxOrder
	}
	if k+1 >= len(s.value) {
		k = len(s.value) - 2
	}

	d0 := m.states[0].Time - m.states[1].Time
	tol := m.cfg.RelTol*math.Max(math.Abs(s.value[0]), math.Abs(s.deriv[0])) + m.cfg.AbsTol

	dd := s.dividedDifference(k + 1)
	lte := math.Abs(m.errConstant(k) * math.Pow(d0, float64(k+1)) * factorial(k+1) * dd)
	if lte == 0 {
		return math.MaxFloat64
	}

	dmax := d0 * math.Pow(m.cfg.TrTol*tol/lte, 1.0/float64(k+1))
	if dmax < m.cfg.MinStep {
		dmax = m.cfg.MinStep
	}
	return dmax
}

// dividedDifference computes the n-th divided difference of the stored
// values over the trailing history times; n!*DD approximates the n-th
// time derivative of the quantity.
func (s *DerivativeState) dividedDifference(n int) float64 {
	var col, ts [maxOrderLimit + 2]float64
	for i := 0; i <= n; i++ {
		col[i] = s.value[i]
		ts[i] = s.m.states[i].Time
	}
	for lvl := 1; lvl <= n; lvl++ {
		for i := 0; i <= n-lvl; i++ {
			col[i] = (col[i] - col[i+1]) / (ts[i] - ts[i+lvl])
		}
	}
	return col[0]
}

func (s *DerivativeState) rotate() {
	n := len(s.value)
	copy(s.value[1:], s.value[:n-1])
	copy(s.deriv[1:], s.deriv[:n-1])
	s.value[0] = s.value[1]
	s.deriv[0] = s.deriv[1]
}

func factorial(n int) float64 {
	f := 1.0
	for i := 2; i <= n; i++ {
		f *= float64(i)
	}
	return f
}
