package device

import (
	"fmt"
	"math"

	"github.com/edaforge/gospice/internal/consts"
	"github.com/edaforge/gospice/pkg/integrator"
	"github.com/edaforge/gospice/pkg/matrix"
)

// Diode is a Shockley junction diode with temperature-adjusted
// saturation current, junction and diffusion charge. The junction
// charge is a tracked derivative state so the diode participates in
// step-size control like any other dynamic element.
type Diode struct {
	BaseDevice
	// Model parameters
	Is   float64 // Saturation current
	N    float64 // Emission coefficient
	Rs   float64 // Series resistance
	Cj0  float64 // Zero-bias junction capacitance
	M    float64 // Grading coefficient
	Vj   float64 // Built-in potential
	Bv   float64 // Breakdown voltage
	Gmin float64 // Minimum conductance

	// Temperature parameters
	Eg  float64 // Energy gap (eV)
	Xti float64 // Saturation current temperature exponent
	Tt  float64 // Transit time
	Fc  float64 // Forward-bias depletion capacitance coefficient

	// Linearization point
	vd float64
	id float64
	gd float64

	charge *integrator.DerivativeState
}

var (
	_ NonLinear = (*Diode)(nil)
	_ Dynamic   = (*Diode)(nil)
	_ ACElement = (*Diode)(nil)
)

func NewDiode(name string, nodeNames []string) *Diode {
	if len(nodeNames) != 2 {
		panic(fmt.Sprintf("diode %s: requires exactly 2 nodes", name))
	}

	d := &Diode{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
		},
	}
	d.setDefaultParameters()
	return d
}

func (d *Diode) GetType() string { return "D" }

func (d *Diode) setDefaultParameters() {
	d.Is = 1e-14
	d.N = 1.0
	d.Rs = 0.0
	d.Cj0 = 0.0
	d.M = 0.5
	d.Vj = 1.0
	d.Bv = 100.0
	d.Gmin = 1e-12

	d.Eg = 1.11 // Silicon bandgap
	d.Xti = 3.0
	d.Tt = 0.0
	d.Fc = 0.5
}

func (d *Diode) SetModelParameters(params map[string]float64) {
	set := func(dst *float64, key string) {
		if v, ok := params[key]; ok {
			*dst = v
		}
	}
	set(&d.Is, "is")
	set(&d.N, "n")
	set(&d.Rs, "rs")
	set(&d.Cj0, "cj0")
	set(&d.M, "m")
	set(&d.Vj, "vj")
	set(&d.Bv, "bv")
	set(&d.Eg, "eg")
	set(&d.Xti, "xti")
	set(&d.Tt, "tt")
	set(&d.Fc, "fc")
}

func thermalVoltage(temp float64) float64 {
	if temp <= 0 {
		temp = consts.REFTEMP
	}
	return consts.BOLTZMANN * temp / consts.CHARGE
}

func (d *Diode) temperatureAdjustedIs(temp float64) float64 {
	vt := thermalVoltage(temp)

	// is(T2) = is(T1) * (T2/T1)^(XTI/N) * exp(-(Eg/(2*k))*(1/T2 - 1/T1))
	ratio := temp / consts.REFTEMP
	egfact := d.Eg / (2 * vt) * (temp/consts.REFTEMP - 1.0)

	return d.Is * math.Pow(ratio, d.Xti/d.N) * math.Exp(egfact)
}

func (d *Diode) calculateCurrent(vd, temp float64) float64 {
	nvt := d.N * thermalVoltage(temp)

	// Forward bias and weak reverse bias
	if vd > -3.0*nvt {
		arg := vd / nvt
		if arg > 40.0 {
			arg = 40.0
		}
		return d.temperatureAdjustedIs(temp) * (math.Exp(arg) - 1.0)
	}

	return -d.temperatureAdjustedIs(temp)
}

func (d *Diode) calculateConductance(vd, id, temp float64) float64 {
	nvt := d.N * thermalVoltage(temp)

	if vd > -3.0*nvt {
		return (math.Abs(id)+d.temperatureAdjustedIs(temp))/nvt + d.Gmin
	}

	return d.Gmin
}

func (d *Diode) junctionCap(vd float64) float64 {
	if d.Cj0 == 0 {
		return 0
	}

	if vd < 0 {
		arg := 1 - vd/d.Vj
		if arg < 0.1 {
			arg = 0.1
		}
		return d.Cj0 / math.Pow(arg, d.M)
	}

	return d.Cj0 * (1 + d.M*vd/d.Vj)
}

// junctionCharge approximates the stored charge at bias vd: diffusion
// charge Tt*id plus depletion charge cj*vd.
func (d *Diode) junctionCharge(vd, temp float64) float64 {
	return d.Tt*d.calculateCurrent(vd, temp) + d.junctionCap(vd)*vd
}

func (d *Diode) BindState(m *integrator.Method) {
	d.charge = m.CreateDerivative(true)
}

func (d *Diode) InitState(solution []float64, status *CircuitStatus) {
	v1, v2 := 0.0, 0.0
	if d.Nodes[0] > 0 {
		v1 = solution[d.Nodes[0]]
	}
	if d.Nodes[1] > 0 {
		v2 = solution[d.Nodes[1]]
	}
	d.vd = v1 - v2
	d.charge.Init(d.junctionCharge(d.vd, status.Temp))
}

func (d *Diode) Stamp(mat matrix.DeviceMatrix, status *CircuitStatus) error {
	if status.Mode == ACAnalysis {
		return d.StampAC(mat, status)
	}

	if len(d.Nodes) != 2 {
		return fmt.Errorf("diode %s: requires exactly 2 nodes", d.Name)
	}

	n1, n2 := d.Nodes[0], d.Nodes[1]

	d.id = d.calculateCurrent(d.vd, status.Temp)
	d.gd = d.calculateConductance(d.vd, d.id, status.Temp)

	geq := d.gd
	ieq := d.id

	if status.Mode == TransientAnalysis && status.Integ != nil {
		d.charge.SetValue(d.junctionCharge(d.vd, status.Temp))
		a0, hist := d.charge.Integrate()

		cap := d.Tt*d.gd + d.junctionCap(d.vd)
		geq += a0 * cap
		ieq += a0*d.charge.Value(0) + hist
	}

	stampConductance(mat, n1, n2, geq)
	if n1 != 0 {
		mat.AddRHS(n1, -(ieq - geq*d.vd))
	}
	if n2 != 0 {
		mat.AddRHS(n2, ieq-geq*d.vd)
	}

	return nil
}

func (d *Diode) StampAC(mat matrix.DeviceMatrix, status *CircuitStatus) error {
	if len(d.Nodes) != 2 {
		return fmt.Errorf("diode %s: requires exactly 2 nodes", d.Name)
	}

	n1, n2 := d.Nodes[0], d.Nodes[1]
	omega := 2 * math.Pi * status.Frequency

	// Small-signal admittance around the bias point: G + jwC
	g := d.gd
	b := omega * d.junctionCap(d.vd)

	if n1 != 0 {
		mat.AddComplexElement(n1, n1, g, b)
		if n2 != 0 {
			mat.AddComplexElement(n1, n2, -g, -b)
		}
	}
	if n2 != 0 {
		if n1 != 0 {
			mat.AddComplexElement(n2, n1, -g, -b)
		}
		mat.AddComplexElement(n2, n2, g, b)
	}

	return nil
}

func (d *Diode) UpdateVoltages(voltages []float64) error {
	if len(d.Nodes) != 2 {
		return fmt.Errorf("diode %s: requires exactly 2 nodes", d.Name)
	}

	n1, n2 := d.Nodes[0], d.Nodes[1]
	var v1, v2 float64

	if n1 != 0 && n1 < len(voltages) {
		v1 = voltages[n1]
	}
	if n2 != 0 && n2 < len(voltages) {
		v2 = voltages[n2]
	}

	d.vd = v1 - v2
	return nil
}

// Voltage returns the junction voltage at the linearization point.
func (d *Diode) Voltage() float64 { return d.vd }

// Current returns the junction current at the linearization point.
func (d *Diode) Current() float64 { return d.id }
