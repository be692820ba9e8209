package device

import (
	"github.com/edaforge/gospice/pkg/integrator"
	"github.com/edaforge/gospice/pkg/matrix"
)

// CurrentSource is an independent current source; a positive value
// drives current out of the source into the first node and draws it
// back from the second.
type CurrentSource struct {
	BaseDevice
	wave waveform
}

var (
	_ ACElement        = (*CurrentSource)(nil)
	_ BreakpointSetter = (*CurrentSource)(nil)
)

func newCurrentSource(name string, nodeNames []string, wave waveform, value float64) *CurrentSource {
	return &CurrentSource{
		BaseDevice: BaseDevice{
			Name:      name,
			Nodes:     make([]int, len(nodeNames)),
			NodeNames: nodeNames,
			Value:     value,
		},
		wave: wave,
	}
}

func NewDCCurrentSource(name string, nodeNames []string, value float64) *CurrentSource {
	return newCurrentSource(name, nodeNames, waveform{kind: DC, dc: value}, value)
}

func NewSinCurrentSource(name string, nodeNames []string, offset, amplitude, freq, phase float64) *CurrentSource {
	return newCurrentSource(name, nodeNames, waveform{
		kind: SIN, dc: offset, amplitude: amplitude, freq: freq, phase: phase,
	}, offset)
}

func NewPulseCurrentSource(name string, nodeNames []string, i1, i2, delay, rise, fall, width, period float64) *CurrentSource {
	return newCurrentSource(name, nodeNames, waveform{
		kind: PULSE, low: i1, high: i2, delay: delay,
		rise: rise, fall: fall, width: width, period: period,
	}, i1)
}

func NewPWLCurrentSource(name string, nodeNames []string, times, values []float64) *CurrentSource {
	return newCurrentSource(name, nodeNames, waveform{
		kind: PWL, times: times, values: values,
	}, values[0])
}

func NewACCurrentSource(name string, nodeNames []string, dcValue, acMag, acPhase float64) *CurrentSource {
	return newCurrentSource(name, nodeNames, waveform{
		kind: DC, dc: dcValue, acMag: acMag, acPhase: acPhase,
	}, dcValue)
}

func (i *CurrentSource) GetType() string { return "I" }

// GetCurrent evaluates the source waveform at time t.
func (i *CurrentSource) GetCurrent(t float64) float64 {
	return i.wave.value(t)
}

func (i *CurrentSource) RegisterBreakpoints(m *integrator.Method) {
	i.wave.registerBreakpoints(m)
}

func (i *CurrentSource) Stamp(mat matrix.DeviceMatrix, status *CircuitStatus) error {
	if status.Mode == ACAnalysis {
		return i.StampAC(mat, status)
	}

	n1, n2 := i.Nodes[0], i.Nodes[1]
	current := i.wave.value(status.Time)

	if n1 != 0 {
		mat.AddRHS(n1, current)
	}
	if n2 != 0 {
		mat.AddRHS(n2, -current)
	}
	return nil
}

func (i *CurrentSource) StampAC(mat matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := i.Nodes[0], i.Nodes[1]
	re, im := i.wave.acValue()

	if n1 != 0 {
		mat.AddComplexRHS(n1, re, im)
	}
	if n2 != 0 {
		mat.AddComplexRHS(n2, -re, -im)
	}
	return nil
}

func (i *CurrentSource) SetValue(value float64) {
	i.Value = value
	i.wave.dc = value
}
