package analysis

import (
	"context"
	"fmt"

	"github.com/edaforge/gospice/pkg/circuit"
	"github.com/edaforge/gospice/pkg/device"
	"github.com/edaforge/gospice/pkg/integrator"
)

// Transient drives the circuit through simulated time: a bias point
// (or UIC seed) enters the integration engine, then every accepted
// point is the product of probe, Newton iteration, and truncation
// error judgment. Breakpoints from sources and users are landed on
// exactly.
type Transient struct {
	BaseAnalysis
	op        *OperatingPoint
	startTime float64 // recording starts here
	stopTime  float64
	timeStep  float64
	maxStep   float64
	useUIC    bool

	kind     integrator.Kind
	maxOrder int
	method   *integrator.Method
	status   *device.CircuitStatus
	ctx      context.Context

	userBreaks []float64
	accepted   int
	rejected   int
	maxNewton  int
}

// NewTransient configures a run recording [tStart, tStop] with an
// initial step hint tStep and maximum step tMax (0 picks the SPICE
// default (tStop)/50).
func NewTransient(tStart, tStop, tStep, tMax float64, uic bool) *Transient {
	return &Transient{
		BaseAnalysis: *NewBaseAnalysis(),
		op:           NewOP(),
		startTime:    tStart,
		stopTime:     tStop,
		timeStep:     tStep,
		maxStep:      tMax,
		useUIC:       uic,
		kind:         integrator.Trapezoidal,
		maxOrder:     2,
		ctx:          context.Background(),
	}
}

// SetMethod selects the integration formula; maxOrder 0 keeps the
// method default.
func (tr *Transient) SetMethod(kind integrator.Kind, maxOrder int) {
	tr.kind = kind
	if maxOrder != 0 {
		tr.maxOrder = maxOrder
	}
}

// SetContext installs a cancellation context checked between accepted
// points and between Newton iterations.
func (tr *Transient) SetContext(ctx context.Context) { tr.ctx = ctx }

// SetBreakpoint requests an exact landing at t.
func (tr *Transient) SetBreakpoint(t float64) {
	tr.userBreaks = append(tr.userBreaks, t)
}

// Method exposes the integration engine; nil before Setup.
func (tr *Transient) Method() *integrator.Method { return tr.method }

// AcceptedSteps reports the number of accepted time points.
func (tr *Transient) AcceptedSteps() int { return tr.accepted }

// RejectedSteps reports the number of LTE rejections.
func (tr *Transient) RejectedSteps() int { return tr.rejected }

// MaxNewtonIterations reports the worst Newton iteration count over
// all attempted points.
func (tr *Transient) MaxNewtonIterations() int { return tr.maxNewton }

func (tr *Transient) Setup(ckt *circuit.Circuit) error {
	tr.Circuit = ckt

	if !tr.useUIC {
		if err := tr.op.Setup(ckt); err != nil {
			return fmt.Errorf("operating point setup error: %v", err)
		}
		if err := tr.op.Execute(); err != nil {
			return fmt.Errorf("operating point analysis error: %v", err)
		}
	}

	method, err := integrator.New(tr.kind, tr.maxOrder)
	if err != nil {
		return err
	}
	if err := method.Setup(ckt.MatrixSize(), integrator.Config{
		FinalTime: tr.stopTime,
		Step:      tr.timeStep,
		MaxStep:   tr.maxStep,
		TrTol:     tr.Config.TrTol,
		RelTol:    tr.Config.RelTol,
		AbsTol:    tr.Config.AbsTol,
		Expansion: tr.Config.Expansion,
	}); err != nil {
		return err
	}
	tr.method = method

	ckt.BindIntegrator(method)
	for _, t := range tr.userBreaks {
		method.SetBreakpoint(t)
	}

	initial := make([]float64, ckt.MatrixSize()+1)
	if tr.useUIC {
		ckt.ApplyInitialConditions(initial)
	} else {
		copy(initial, ckt.GetMatrix().Solution()[:len(initial)])
	}
	method.Initialize(initial)

	tr.status = &device.CircuitStatus{
		Mode:     device.TransientAnalysis,
		Temp:     tr.Config.Temp,
		Gmin:     tr.Config.Gmin,
		Integ:    method,
		Solution: initial,
	}
	ckt.InitDynamicStates(initial, tr.status)

	if tr.startTime <= 0 {
		tr.StoreTimeResult(0, ckt.LabelSolution(initial))
	}

	return nil
}

func (tr *Transient) Execute() error {
	if tr.Circuit == nil {
		return fmt.Errorf("circuit not set")
	}

	method := tr.method
	newton := tr.newton()
	delta := tr.timeStep
	singularRetry := false

	for method.LastTime() < tr.stopTime {
		if err := tr.ctx.Err(); err != nil {
			return fmt.Errorf("transient canceled at t=%g: %w", method.LastTime(), err)
		}

		delta = method.Continue(delta)
		if delta < method.MinStep() {
			return &integrator.TimestepError{Time: method.LastTime(), Delta: delta, Min: method.MinStep()}
		}

		method.Probe(delta)
		tr.status.Time = method.Time()
		tr.status.TimeStep = method.Delta()
		tr.status.Order = method.Order()
		tr.status.Solution = method.State(0).Solution

		outcome, iters, residual, err := newton.Solve(tr.ctx, tr.Circuit, tr.status)
		if err != nil && outcome != Singular {
			return err
		}
		if iters > tr.maxNewton {
			tr.maxNewton = iters
		}

		switch outcome {
		case Singular:
			// One retry at a reduced step, then give up.
			if singularRetry {
				return fmt.Errorf("at t=%g: %w", method.Time(), err)
			}
			singularRetry = true
			delta = method.NonConvergence()
			continue

		case NonConverged:
			next := method.NonConvergence()
			if next < method.MinStep() {
				return &integrator.NonConvergenceError{Time: method.Time(), Residual: residual}
			}
			delta = next
			continue
		}

		copy(method.State(0).Solution, tr.Circuit.GetMatrix().Solution()[:len(method.State(0).Solution)])

		ok, next := method.Evaluate()
		if !ok {
			tr.rejected++
			if next < method.MinStep() {
				return &integrator.TimestepError{Time: method.Time(), Delta: next, Min: method.MinStep()}
			}
			delta = next
			continue
		}

		acceptedTime := method.Time()
		labeled := tr.Circuit.GetSolution()
		method.Accept()
		tr.accepted++
		singularRetry = false

		if acceptedTime >= tr.startTime {
			tr.StoreTimeResult(acceptedTime, labeled)
		}
		delta = next
	}

	return nil
}
