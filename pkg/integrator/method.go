package integrator

import (
	"fmt"
	"math"
)

// Kind selects the integration formula family.
type Kind int

const (
	Gear Kind = iota
	Trapezoidal
)

const (
	maxOrderLimit   = 6
	defaultMaxOrder = 2
)

// Config carries the time window and tolerance set the engine runs
// under. Zero-valued fields take SPICE defaults in Setup.
type Config struct {
	InitTime  float64
	FinalTime float64
	Step      float64 // initial step hint
	MaxStep   float64 // default (FinalTime-InitTime)/50
	MinStep   float64 // default 1e-9 * MaxStep

	TrTol     float64 // default 7.0
	RelTol    float64 // default 1e-3
	AbsTol    float64 // default 1e-6
	Expansion float64 // default 2.0
}

func (c *Config) applyDefaults() {
	if c.MaxStep == 0 {
		c.MaxStep = (c.FinalTime - c.InitTime) / 50.0
	}
	if c.MinStep == 0 {
		c.MinStep = 1e-9 * c.MaxStep
	}
	if c.Step == 0 {
		c.Step = c.MaxStep
	}
	if c.TrTol == 0 {
		c.TrTol = 7.0
	}
	if c.RelTol == 0 {
		c.RelTol = 1e-3
	}
	if c.AbsTol == 0 {
		c.AbsTol = 1e-6
	}
	if c.Expansion == 0 {
		c.Expansion = 2.0
	}
}

func (c *Config) validate() error {
	if c.FinalTime <= c.InitTime {
		return fmt.Errorf("%w: finalTime %g <= initTime %g", ErrMisconfigured, c.FinalTime, c.InitTime)
	}
	if c.RelTol < 0 || c.AbsTol < 0 || c.TrTol < 0 {
		return fmt.Errorf("%w: negative tolerance", ErrMisconfigured)
	}
	if c.MinStep <= 0 || c.MaxStep <= 0 || c.MinStep > c.MaxStep {
		return fmt.Errorf("%w: step bounds min=%g max=%g", ErrMisconfigured, c.MinStep, c.MaxStep)
	}
	if c.Expansion < 1 {
		return fmt.Errorf("%w: expansion %g < 1", ErrMisconfigured, c.Expansion)
	}
	return nil
}

// Method drives simulated time across [InitTime, FinalTime]: it probes
// candidate steps, hands integration coefficients and predictions to
// the devices, judges converged points by local truncation error, and
// adapts order and step size. One Method instance serves one
// simulation run.
type Method struct {
	kind     Kind
	maxOrder int
	order    int
	cfg      Config

	states     []*State
	prediction []float64
	coeffs     []float64
	predCoeffs []float64

	derivs  []*DerivativeState
	tracked []*DerivativeState

	breaks     *Breakpoints
	atBreak    bool
	savedDelta float64

	beforeAccept []func(*Method)
	afterAccept  []func(*Method)
	onTruncate   []func(*Method, float64) float64
}

// New creates a method of the given kind. maxOrder 0 selects the
// method default (2); the trapezoidal family never exceeds order 2.
func New(kind Kind, maxOrder int) (*Method, error) {
	if maxOrder == 0 {
		maxOrder = defaultMaxOrder
	}
	if maxOrder < 1 || maxOrder > maxOrderLimit {
		return nil, fmt.Errorf("%w: max order %d out of [1,%d]", ErrMisconfigured, maxOrder, maxOrderLimit)
	}
	if kind == Trapezoidal && maxOrder > 2 {
		maxOrder = 2
	}
	return &Method{kind: kind, maxOrder: maxOrder, order: 1}, nil
}

// Setup validates the configuration and allocates the history ring,
// prediction vector and coefficient buffers for a solution of the
// given size. Breakpoints are seeded at the initial and final times.
func (m *Method) Setup(size int, cfg Config) error {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return err
	}
	m.cfg = cfg

	slots := m.maxOrder + 2
	m.states = make([]*State, slots)
	for i := range m.states {
		m.states[i] = newState(size)
	}
	m.prediction = make([]float64, size+1)
	m.coeffs = make([]float64, m.maxOrder+1)
	m.predCoeffs = make([]float64, m.maxOrder+2)
	m.breaks = NewBreakpoints(cfg.InitTime, cfg.FinalTime)
	m.savedDelta = cfg.Step
	return nil
}

// Unsetup releases every run-lifetime allocation. Derivative states
// handed to devices become inert.
func (m *Method) Unsetup() {
	m.states = nil
	m.prediction = nil
	m.coeffs = nil
	m.predCoeffs = nil
	m.derivs = nil
	m.tracked = nil
	m.breaks = nil
	m.beforeAccept = nil
	m.afterAccept = nil
	m.onTruncate = nil
}

// Initialize arms the engine at the initial time with the given
// solution (operating point or initial conditions). Order drops to 1,
// the first probe is flagged as a breakpoint step, and the history is
// spaced backwards by MaxStep so divided differences stay defined.
func (m *Method) Initialize(initial []float64) {
	m.order = 1
	m.atBreak = true
	for i, st := range m.states {
		st.Delta = m.cfg.MaxStep
		st.Time = m.cfg.InitTime - float64(i-1)*m.cfg.MaxStep
		if initial != nil {
			copy(st.Solution, initial)
		} else {
			for n := range st.Solution {
				st.Solution[n] = 0
			}
		}
	}
	m.states[0].Time = m.cfg.InitTime
}

// CreateDerivative returns a fresh derivative state spanning the
// history ring. Tracked states participate in truncation-error
// polling; untracked ones only ride the ring shift.
func (m *Method) CreateDerivative(track bool) *DerivativeState {
	s := &DerivativeState{
		m:       m,
		value:   make([]float64, m.maxOrder+2),
		deriv:   make([]float64, m.maxOrder+2),
		tracked: track,
	}
	m.derivs = append(m.derivs, s)
	if track {
		m.tracked = append(m.tracked, s)
	}
	return s
}

// SetBreakpoint schedules a future time the integrator must land on
// exactly. Times already behind the run are ignored.
func (m *Method) SetBreakpoint(t float64) {
	if t <= m.states[1].Time {
		return
	}
	m.breaks.Set(t)
}

// Continue sizes the next candidate step: clamps to MaxStep, snaps to
// an upcoming breakpoint, and applies the careful-restart rule when
// the run sits on one.
func (m *Method) Continue(delta float64) float64 {
	if delta > m.cfg.MaxStep {
		delta = m.cfg.MaxStep
	}
	m.atBreak = false

	t := m.states[1].Time
	b := m.breaks.First()

	switch {
	case t >= b || b-t <= m.cfg.MinStep:
		// Sitting on a breakpoint (or within MinStep of one): restart
		// the formula at order 1 with a conservative step.
		m.order = 1
		next := m.breaks.After(b)
		m.breaks.PopFirst()

		limit := 0.1 * math.Min(m.savedDelta, next-b)
		if limit < delta {
			delta = limit
		}
		if t == 0 {
			delta /= 10
		}
		if delta < 2*m.cfg.MinStep {
			delta = 2 * m.cfg.MinStep
		}

	case t+delta >= b:
		m.savedDelta = delta
		delta = b - t
		m.atBreak = true
	}

	return delta
}

// Probe advances the candidate point to state[1].time + delta,
// recomputes the integration coefficients for the current order and
// trailing delta sequence, and writes the polynomial prediction into
// the current solution slot.
func (m *Method) Probe(delta float64) {
	s0, s1 := m.states[0], m.states[1]
	if m.atBreak {
		// Land exactly; the subtraction keeps time - delta == s1.Time.
		s0.Time = m.breaks.First()
		s0.Delta = s0.Time - s1.Time
	} else {
		s0.Time = s1.Time + delta
		s0.Delta = delta
	}
	m.computeCoeffs()
	m.computePrediction()
}

// Evaluate judges the converged solution at the current point by local
// truncation error. It returns (true, next) to accept with a suggested
// next step, or (false, retry) to reject; the retry step is always
// smaller than the probed one. An accepted step may raise the order
// when the higher-order estimate wins by more than 5%.
func (m *Method) Evaluate() (bool, float64) {
	d0 := m.states[0].Delta

	// First point: no usable history to difference against.
	if m.states[1].Time == m.cfg.InitTime {
		return true, d0
	}

	dt := m.truncation(m.order)
	if dt <= 0.9*d0 {
		return false, dt
	}

	// Raise the order when the higher-order estimate beats the step
	// just taken by more than 5%.
	if m.order < m.maxOrder {
		raised := m.truncation(m.order + 1)
		if raised > 1.05*d0 {
			m.order++
			dt = raised
		}
	}

	if dt > m.cfg.Expansion*d0 {
		dt = m.cfg.Expansion * d0
	}
	if dt > m.cfg.MaxStep {
		dt = m.cfg.MaxStep
	}
	return true, dt
}

// truncation polls every tracked derivative state and the registered
// truncation observers for the binding step limit at the given order.
func (m *Method) truncation(order int) float64 {
	dt := math.MaxFloat64
	for _, s := range m.tracked {
		if d := s.truncate(order); d < dt {
			dt = d
		}
	}
	for _, fn := range m.onTruncate {
		if d := fn(m, dt); d < dt {
			dt = d
		}
	}
	return dt
}

// Accept commits the current point: observers fire, breakpoints behind
// the run are cleared, and the history ring shifts. A breakpoint equal
// to the accepted time survives until the next Continue, which resets
// the order before consuming it.
func (m *Method) Accept() {
	for _, fn := range m.beforeAccept {
		fn(m)
	}
	m.breaks.ClearBelow(m.states[0].Time)
	m.rotate()
	m.atBreak = false
	for _, fn := range m.afterAccept {
		fn(m)
	}
}

// NonConvergence reacts to a failed Newton loop: the order drops to 1
// and the step shrinks by 8. The caller gives up when the result
// undercuts MinStep.
func (m *Method) NonConvergence() float64 {
	m.order = 1
	return m.states[0].Delta / 8
}

// OnBeforeAccept registers an observer invoked just before the history
// shift of every accepted point. Observers run in registration order.
func (m *Method) OnBeforeAccept(fn func(*Method)) {
	m.beforeAccept = append(m.beforeAccept, fn)
}

// OnAfterAccept registers an observer invoked after the history shift.
func (m *Method) OnAfterAccept(fn func(*Method)) {
	m.afterAccept = append(m.afterAccept, fn)
}

// OnTruncate registers a hook folded into truncation-error polling; it
// receives the current step limit and may return a smaller one
// (node-voltage truncation, external step caps).
func (m *Method) OnTruncate(fn func(*Method, float64) float64) {
	m.onTruncate = append(m.onTruncate, fn)
}

// Time returns the simulated time of the point being computed.
func (m *Method) Time() float64 { return m.states[0].Time }

// LastTime returns the time of the most recently accepted point.
func (m *Method) LastTime() float64 { return m.states[1].Time }

// Delta returns the candidate step of the point being computed.
func (m *Method) Delta() float64 { return m.states[0].Delta }

// Order returns the active integration order.
func (m *Method) Order() int { return m.order }

// MaxOrder returns the configured order ceiling.
func (m *Method) MaxOrder() int { return m.maxOrder }

// MinStep returns the configured minimum step.
func (m *Method) MinStep() float64 { return m.cfg.MinStep }

// Coeff returns integration coefficient a[i] for the current point.
func (m *Method) Coeff(i int) float64 { return m.coeffs[i] }

// Prediction returns the extrapolated solution seeding the Newton
// iteration at the current point.
func (m *Method) Prediction() []float64 { return m.prediction }

// State returns history slot i; 0 is the point being computed.
func (m *Method) State(i int) *State { return m.states[i] }

// Breakpoints exposes the breakpoint set for device registration.
func (m *Method) Breakpoints() *Breakpoints { return m.breaks }

// FinalTime returns the configured end of the run.
func (m *Method) FinalTime() float64 { return m.cfg.FinalTime }
