package device

import (
	"math"

	"github.com/edaforge/gospice/pkg/integrator"
	"github.com/edaforge/gospice/pkg/matrix"
)

// Capacitor is a charge-based linear capacitor. Its charge rides the
// integration history ring; the transient stamp is the companion model
// the engine's Integrate supplies.
type Capacitor struct {
	BaseDevice
	charge *integrator.DerivativeState
	ic     float64
	hasIC  bool
}

var (
	_ Dynamic              = (*Capacitor)(nil)
	_ ACElement            = (*Capacitor)(nil)
	_ WithInitialCondition = (*Capacitor)(nil)
)

func NewCapacitor(name string, nodeNames []string, value float64) *Capacitor {
	return &Capacitor{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     value,
		},
	}
}

func (c *Capacitor) GetType() string { return "C" }

// SetInitialCondition records a UIC starting voltage.
func (c *Capacitor) SetInitialCondition(v float64) {
	c.ic = v
	c.hasIC = true
}

// ApplyInitialCondition seeds the node voltages so the first transient
// point starts from the UIC value.
func (c *Capacitor) ApplyInitialCondition(solution []float64) {
	if !c.hasIC {
		return
	}
	n1, n2 := c.Nodes[0], c.Nodes[1]
	v2 := 0.0
	if n2 > 0 && n2 < len(solution) {
		v2 = solution[n2]
	}
	if n1 > 0 && n1 < len(solution) {
		solution[n1] = v2 + c.ic
	} else if n2 > 0 && n2 < len(solution) {
		solution[n2] = -c.ic
	}
}

func (c *Capacitor) BindState(m *integrator.Method) {
	c.charge = m.CreateDerivative(true)
}

func (c *Capacitor) InitState(solution []float64, status *CircuitStatus) {
	v1, v2 := 0.0, 0.0
	if c.Nodes[0] > 0 {
		v1 = solution[c.Nodes[0]]
	}
	if c.Nodes[1] > 0 {
		v2 = solution[c.Nodes[1]]
	}
	c.charge.Init(c.Value * (v1 - v2))
}

func (c *Capacitor) Stamp(mat matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := c.Nodes[0], c.Nodes[1]

	switch status.Mode {
	case ACAnalysis:
		return c.StampAC(mat, status)

	case OperatingPointAnalysis, DCSweep:
		// Open circuit at DC; gmin keeps otherwise floating nodes pinned.
		gmin := status.Gmin
		if gmin < 1e-12 {
			gmin = 1e-12
		}
		stampConductance(mat, n1, n2, gmin)

	case TransientAnalysis:
		vd := status.VoltageAt(n1) - status.VoltageAt(n2)
		c.charge.SetValue(c.Value * vd)
		a0, ieq := c.charge.Integrate()

		geq := a0 * c.Value
		stampConductance(mat, n1, n2, geq)
		if n1 != 0 {
			mat.AddRHS(n1, -ieq)
		}
		if n2 != 0 {
			mat.AddRHS(n2, ieq)
		}
	}

	return nil
}

func (c *Capacitor) StampAC(mat matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := c.Nodes[0], c.Nodes[1]
	omega := 2 * math.Pi * status.Frequency
	b := omega * c.Value

	if n1 != 0 {
		mat.AddComplexElement(n1, n1, 0, b)
		if n2 != 0 {
			mat.AddComplexElement(n1, n2, 0, -b)
		}
	}
	if n2 != 0 {
		mat.AddComplexElement(n2, n2, 0, b)
		if n1 != 0 {
			mat.AddComplexElement(n2, n1, 0, -b)
		}
	}
	return nil
}

// Charge returns the capacitor's tracked charge at history slot i.
func (c *Capacitor) Charge(i int) float64 { return c.charge.Value(i) }

// stampConductance adds a two-terminal conductance between n1 and n2.
func stampConductance(mat matrix.DeviceMatrix, n1, n2 int, g float64) {
	if n1 != 0 {
		mat.AddElement(n1, n1, g)
		if n2 != 0 {
			mat.AddElement(n1, n2, -g)
		}
	}
	if n2 != 0 {
		mat.AddElement(n2, n2, g)
		if n1 != 0 {
			mat.AddElement(n2, n1, -g)
		}
	}
}
