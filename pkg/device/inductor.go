package device

import (
	"math"

	"github.com/edaforge/gospice/pkg/integrator"
	"github.com/edaforge/gospice/pkg/matrix"
)

// Inductor is a flux-based inductor with an MNA branch current
// unknown. v = dPhi/dt with Phi = L*i; the engine's companion model
// turns the branch equation into v1 - v2 - a0*L*i = ieq.
type Inductor struct {
	BaseDevice
	flux      *integrator.DerivativeState
	branchIdx int
	ic        float64
	hasIC     bool
}

var (
	_ Dynamic              = (*Inductor)(nil)
	_ ACElement            = (*Inductor)(nil)
	_ WithInitialCondition = (*Inductor)(nil)
)

func NewInductor(name string, nodeNames []string, value float64) *Inductor {
	return &Inductor{
		BaseDevice: BaseDevice{
			Name:      name,
			Value:     value,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
		},
	}
}

func (l *Inductor) GetType() string { return "L" }

// SetInitialCondition records a UIC starting current.
func (l *Inductor) SetInitialCondition(i float64) {
	l.ic = i
	l.hasIC = true
}

// ApplyInitialCondition seeds the branch current with the UIC value.
func (l *Inductor) ApplyInitialCondition(solution []float64) {
	if !l.hasIC {
		return
	}
	if l.branchIdx > 0 && l.branchIdx < len(solution) {
		solution[l.branchIdx] = l.ic
	}
}

func (l *Inductor) BindState(m *integrator.Method) {
	l.flux = m.CreateDerivative(true)
}

func (l *Inductor) InitState(solution []float64, status *CircuitStatus) {
	i := 0.0
	if l.branchIdx > 0 && l.branchIdx < len(solution) {
		i = solution[l.branchIdx]
	}
	l.flux.Init(l.Value * i)
}

func (l *Inductor) Stamp(mat matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := l.Nodes[0], l.Nodes[1]
	bIdx := l.branchIdx

	switch status.Mode {
	case ACAnalysis:
		return l.StampAC(mat, status)

	case OperatingPointAnalysis, DCSweep:
		// Short circuit at DC: v1 - v2 = 0 on the branch row.
		stampBranch(mat, n1, n2, bIdx)

	case TransientAnalysis:
		stampBranch(mat, n1, n2, bIdx)

		iBranch := status.VoltageAt(bIdx)
		l.flux.SetValue(l.Value * iBranch)
		a0, ieq := l.flux.Integrate()

		mat.AddElement(bIdx, bIdx, -a0*l.Value)
		mat.AddRHS(bIdx, ieq)
	}

	return nil
}

func (l *Inductor) StampAC(mat matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := l.Nodes[0], l.Nodes[1]
	bIdx := l.branchIdx
	omega := 2 * math.Pi * status.Frequency

	if n1 != 0 {
		mat.AddComplexElement(bIdx, n1, 1, 0)
		mat.AddComplexElement(n1, bIdx, 1, 0)
	}
	if n2 != 0 {
		mat.AddComplexElement(bIdx, n2, -1, 0)
		mat.AddComplexElement(n2, bIdx, -1, 0)
	}
	mat.AddComplexElement(bIdx, bIdx, 0, -omega*l.Value)
	return nil
}

// Flux returns the tracked flux at history slot i.
func (l *Inductor) Flux(i int) float64 { return l.flux.Value(i) }

func (l *Inductor) BranchIndex() int {
	return l.branchIdx
}

func (l *Inductor) SetBranchIndex(idx int) {
	l.branchIdx = idx
}

// stampBranch wires a voltage-defined branch: the branch row reads
// v1 - v2 and the node rows pick up the branch current.
func stampBranch(mat matrix.DeviceMatrix, n1, n2, bIdx int) {
	if n1 != 0 {
		mat.AddElement(bIdx, n1, 1)
		mat.AddElement(n1, bIdx, 1)
	}
	if n2 != 0 {
		mat.AddElement(bIdx, n2, -1)
		mat.AddElement(n2, bIdx, -1)
	}
}
