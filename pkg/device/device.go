package device

import (
	"github.com/edaforge/gospice/pkg/integrator"
	"github.com/edaforge/gospice/pkg/matrix"
)

// Device is the capability every circuit entity implements. The engine
// never sees concrete device types; the netlist builder constructs the
// device list and threads it into the circuit explicitly.
type Device interface {
	GetName() string
	GetType() string
	GetNodeNames() []string
	GetNodes() []int
	SetNodes(nodes []int)
	GetValue() float64
	Stamp(m matrix.DeviceMatrix, status *CircuitStatus) error
}

// Dynamic devices own derivative states inside the engine's history
// ring: they bind them during setup and seed them when transient
// analysis starts from a solved bias point.
type Dynamic interface {
	BindState(m *integrator.Method)
	InitState(solution []float64, status *CircuitStatus)
}

// NonLinear devices relinearize around the latest Newton guess.
type NonLinear interface {
	UpdateVoltages(voltages []float64) error
}

// ACElement devices stamp the complex small-signal matrix.
type ACElement interface {
	StampAC(m matrix.DeviceMatrix, status *CircuitStatus) error
}

// BreakpointSetter devices register the times the integrator must land
// on exactly (pulse corners, PWL knees).
type BreakpointSetter interface {
	RegisterBreakpoints(m *integrator.Method)
}

// WithInitialCondition devices carry a UIC starting value and know
// which solution entries it seeds.
type WithInitialCondition interface {
	ApplyInitialCondition(solution []float64)
}

type BaseDevice struct {
	Name      string
	Nodes     []int
	Value     float64
	NodeNames []string
}

type ModelParam struct {
	Type   string
	Name   string
	Params map[string]float64
}

type SourceType int

const (
	DC SourceType = iota
	SIN
	PULSE
	PWL
)

type AnalysisMode int

const (
	OperatingPointAnalysis AnalysisMode = iota
	TransientAnalysis
	ACAnalysis
	DCSweep
)

// CircuitStatus is the view a Load callback gets of the simulation:
// the candidate time and step, the Newton guess, and during transient
// the integration engine for coefficient and prediction access.
type CircuitStatus struct {
	Time      float64
	TimeStep  float64
	Gmin      float64
	Mode      AnalysisMode
	Temp      float64
	Frequency float64 // AC frequency
	Order     int

	// Solution is the current Newton guess, 1-based; on the first
	// iteration of a time point it is the prediction.
	Solution []float64

	// Integ is non-nil during transient analysis.
	Integ *integrator.Method
}

// VoltageAt reads a node voltage from the current guess; ground reads
// as zero.
func (st *CircuitStatus) VoltageAt(node int) float64 {
	if node <= 0 || node >= len(st.Solution) {
		return 0
	}
	return st.Solution[node]
}

func (d *BaseDevice) GetName() string {
	return d.Name
}

func (d *BaseDevice) GetNodes() []int {
	return d.Nodes
}

func (d *BaseDevice) GetNodeNames() []string {
	return d.NodeNames
}

func (d *BaseDevice) GetValue() float64 {
	return d.Value
}

func (d *BaseDevice) SetNodes(nodes []int) {
	d.Nodes = nodes
}
