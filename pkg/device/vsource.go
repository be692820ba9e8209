package device

import (
	"github.com/edaforge/gospice/pkg/integrator"
	"github.com/edaforge/gospice/pkg/matrix"
)

// VoltageSource is an independent voltage source with an MNA branch
// current unknown.
type VoltageSource struct {
	BaseDevice
	wave      waveform
	branchIdx int
}

var (
	_ ACElement        = (*VoltageSource)(nil)
	_ BreakpointSetter = (*VoltageSource)(nil)
)

func newVoltageSource(name string, nodeNames []string, wave waveform, value float64) *VoltageSource {
	return &VoltageSource{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     value,
		},
		wave: wave,
	}
}

func NewDCVoltageSource(name string, nodeNames []string, value float64) *VoltageSource {
	return newVoltageSource(name, nodeNames, waveform{kind: DC, dc: value}, value)
}

func NewSinVoltageSource(name string, nodeNames []string, offset, amplitude, freq, phase float64) *VoltageSource {
	return newVoltageSource(name, nodeNames, waveform{
		kind: SIN, dc: offset, amplitude: amplitude, freq: freq, phase: phase,
	}, offset)
}

func NewPulseVoltageSource(name string, nodeNames []string, v1, v2, delay, rise, fall, width, period float64) *VoltageSource {
	return newVoltageSource(name, nodeNames, waveform{
		kind: PULSE, low: v1, high: v2, delay: delay,
		rise: rise, fall: fall, width: width, period: period,
	}, v1)
}

func NewPWLVoltageSource(name string, nodeNames []string, times, values []float64) *VoltageSource {
	return newVoltageSource(name, nodeNames, waveform{
		kind: PWL, times: times, values: values,
	}, values[0])
}

func NewACVoltageSource(name string, nodeNames []string, dcValue, acMag, acPhase float64) *VoltageSource {
	return newVoltageSource(name, nodeNames, waveform{
		kind: DC, dc: dcValue, acMag: acMag, acPhase: acPhase,
	}, dcValue)
}

func (v *VoltageSource) GetType() string { return "V" }

// GetVoltage evaluates the source waveform at time t.
func (v *VoltageSource) GetVoltage(t float64) float64 {
	return v.wave.value(t)
}

func (v *VoltageSource) RegisterBreakpoints(m *integrator.Method) {
	v.wave.registerBreakpoints(m)
}

func (v *VoltageSource) Stamp(mat matrix.DeviceMatrix, status *CircuitStatus) error {
	if status.Mode == ACAnalysis {
		return v.StampAC(mat, status)
	}

	stampBranch(mat, v.Nodes[0], v.Nodes[1], v.branchIdx)
	mat.AddRHS(v.branchIdx, v.wave.value(status.Time))
	return nil
}

func (v *VoltageSource) StampAC(mat matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := v.Nodes[0], v.Nodes[1]
	bIdx := v.branchIdx

	if n1 != 0 {
		mat.AddComplexElement(bIdx, n1, 1, 0)
		mat.AddComplexElement(n1, bIdx, 1, 0)
	}
	if n2 != 0 {
		mat.AddComplexElement(bIdx, n2, -1, 0)
		mat.AddComplexElement(n2, bIdx, -1, 0)
	}

	re, im := v.wave.acValue()
	mat.AddComplexRHS(bIdx, re, im)
	return nil
}

func (v *VoltageSource) BranchIndex() int {
	return v.branchIdx
}

func (v *VoltageSource) SetBranchIndex(idx int) {
	v.branchIdx = idx
}

// SetValue overrides the DC level; DC sweeps drive sources through it.
func (v *VoltageSource) SetValue(value float64) {
	v.Value = value
	v.wave.dc = value
}
