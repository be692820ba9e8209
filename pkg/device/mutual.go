package device

import (
	"fmt"
	"math"

	"github.com/edaforge/gospice/pkg/integrator"
	"github.com/edaforge/gospice/pkg/matrix"
)

// Mutual couples inductor branches: each branch voltage picks up
// M*di/dt of every partner, M = k*sqrt(Li*Lj). The cross fluxes M*i
// are tracked derivative states so coupling obeys the same LTE control
// as the self terms.
type Mutual struct {
	BaseDevice
	inductors   []*Inductor
	names       []string
	coefficient float64

	// cross[p][0] is M*i_j seen from branch i of pair p, [1] the mirror.
	cross [][2]*integrator.DerivativeState
}

var _ Dynamic = (*Mutual)(nil)

func NewMutual(name string, indNames []string, k float64) *Mutual {
	return &Mutual{
		BaseDevice:  BaseDevice{Name: name},
		names:       indNames,
		coefficient: k,
		inductors:   make([]*Inductor, len(indNames)),
	}
}

func (m *Mutual) GetType() string { return "K" }

func (m *Mutual) GetInductorNames() []string { return m.names }

func (m *Mutual) GetCoefficient() float64 { return m.coefficient }

// SetInductor resolves the named inductor at the given position; the
// netlist builder calls it once wiring is known.
func (m *Mutual) SetInductor(index int, ind *Inductor) error {
	if index < 0 || index >= len(m.inductors) {
		return fmt.Errorf("mutual %s: invalid inductor index %d", m.Name, index)
	}
	m.inductors[index] = ind
	return nil
}

func (m *Mutual) pairs() int {
	n := len(m.inductors)
	return n * (n - 1) / 2
}

func (m *Mutual) BindState(eng *integrator.Method) {
	m.cross = make([][2]*integrator.DerivativeState, m.pairs())
	for p := range m.cross {
		m.cross[p][0] = eng.CreateDerivative(true)
		m.cross[p][1] = eng.CreateDerivative(true)
	}
}

func (m *Mutual) InitState(solution []float64, status *CircuitStatus) {
	p := 0
	for i := range m.inductors {
		for j := i + 1; j < len(m.inductors); j++ {
			mij := m.inductance(i, j)
			m.cross[p][0].Init(mij * branchCurrent(solution, m.inductors[j]))
			m.cross[p][1].Init(mij * branchCurrent(solution, m.inductors[i]))
			p++
		}
	}
}

func (m *Mutual) inductance(i, j int) float64 {
	return m.coefficient * math.Sqrt(m.inductors[i].Value*m.inductors[j].Value)
}

func branchCurrent(solution []float64, l *Inductor) float64 {
	b := l.BranchIndex()
	if b <= 0 || b >= len(solution) {
		return 0
	}
	return solution[b]
}

func (m *Mutual) Stamp(mat matrix.DeviceMatrix, status *CircuitStatus) error {
	if len(m.inductors) < 2 {
		return fmt.Errorf("mutual coupling %s requires at least two inductors", m.Name)
	}
	for _, ind := range m.inductors {
		if ind == nil {
			return fmt.Errorf("mutual coupling %s: unresolved inductor", m.Name)
		}
	}

	switch status.Mode {
	case ACAnalysis:
		return m.StampAC(mat, status)
	case TransientAnalysis:
	default:
		// DC: coupling carries no steady-state term.
		return nil
	}

	p := 0
	for i := range m.inductors {
		for j := i + 1; j < len(m.inductors); j++ {
			mij := m.inductance(i, j)
			bi := m.inductors[i].BranchIndex()
			bj := m.inductors[j].BranchIndex()

			m.cross[p][0].SetValue(mij * status.VoltageAt(bj))
			a0, ieq := m.cross[p][0].Integrate()
			mat.AddElement(bi, bj, -a0*mij)
			mat.AddRHS(bi, ieq)

			m.cross[p][1].SetValue(mij * status.VoltageAt(bi))
			a0, ieq = m.cross[p][1].Integrate()
			mat.AddElement(bj, bi, -a0*mij)
			mat.AddRHS(bj, ieq)

			p++
		}
	}
	return nil
}

func (m *Mutual) StampAC(mat matrix.DeviceMatrix, status *CircuitStatus) error {
	omega := 2 * math.Pi * status.Frequency

	for i := range m.inductors {
		for j := i + 1; j < len(m.inductors); j++ {
			mij := m.inductance(i, j)
			if mij == 0 {
				continue
			}
			bi := m.inductors[i].BranchIndex()
			bj := m.inductors[j].BranchIndex()
			mat.AddComplexElement(bi, bj, 0, -omega*mij)
			mat.AddComplexElement(bj, bi, 0, -omega*mij)
		}
	}
	return nil
}
