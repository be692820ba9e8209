package device

import (
	"fmt"

	"github.com/edaforge/gospice/pkg/matrix"
)

type Resistor struct {
	BaseDevice
	Tc1  float64
	Tc2  float64
	Tnom float64
}

var _ ACElement = (*Resistor)(nil)

func NewResistor(name string, nodeNames []string, value float64) *Resistor {
	return &Resistor{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     value,
		},
		Tnom: 300.15,
	}
}

func (r *Resistor) GetType() string { return "R" }

func (r *Resistor) Stamp(mat matrix.DeviceMatrix, status *CircuitStatus) error {
	if len(r.Nodes) != 2 {
		return fmt.Errorf("resistor %s: requires exactly 2 nodes", r.Name)
	}
	if status.Mode == ACAnalysis {
		return r.StampAC(mat, status)
	}

	stampConductance(mat, r.Nodes[0], r.Nodes[1], r.conductance(status.Temp))
	return nil
}

func (r *Resistor) StampAC(mat matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := r.Nodes[0], r.Nodes[1]
	g := r.conductance(status.Temp)

	if n1 != 0 {
		mat.AddComplexElement(n1, n1, g, 0)
		if n2 != 0 {
			mat.AddComplexElement(n1, n2, -g, 0)
		}
	}
	if n2 != 0 {
		mat.AddComplexElement(n2, n2, g, 0)
		if n1 != 0 {
			mat.AddComplexElement(n2, n1, -g, 0)
		}
	}
	return nil
}

func (r *Resistor) conductance(temp float64) float64 {
	dt := temp - r.Tnom
	return 1.0 / (r.Value * (1.0 + r.Tc1*dt + r.Tc2*dt*dt))
}
