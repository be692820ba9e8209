package analysis

import (
	"fmt"
	"math"

	"github.com/edaforge/gospice/pkg/circuit"
	"github.com/edaforge/gospice/pkg/device"
)

// ACAnalysis sweeps the small-signal complex system around the bias
// point found by a preceding operating-point run.
type ACAnalysis struct {
	BaseAnalysis
	op          *OperatingPoint
	startFreq   float64
	stopFreq    float64
	numPoints   int
	pointsType  string // "DEC", "OCT", "LIN"
	frequencies []float64
}

func NewAC(fStart, fStop float64, nPoints int, pType string) *ACAnalysis {
	return &ACAnalysis{
		BaseAnalysis: *NewBaseAnalysis(),
		op:           NewOP(),
		startFreq:    fStart,
		stopFreq:     fStop,
		numPoints:    nPoints,
		pointsType:   pType,
	}
}

func (ac *ACAnalysis) Setup(ckt *circuit.Circuit) error {
	ac.Circuit = ckt

	if err := ac.op.Setup(ckt); err != nil {
		return fmt.Errorf("operating point setup error: %v", err)
	}
	if err := ac.op.Execute(); err != nil {
		return fmt.Errorf("operating point analysis error: %v", err)
	}

	ac.generateFrequencyPoints()
	return nil
}

func (ac *ACAnalysis) Execute() error {
	if ac.Circuit == nil {
		return fmt.Errorf("circuit not set")
	}

	mat := ac.Circuit.GetMatrix()

	for _, freq := range ac.frequencies {
		status := &device.CircuitStatus{
			Frequency: freq,
			Mode:      device.ACAnalysis,
			Temp:      ac.Config.Temp,
		}
		ac.Circuit.Status = status

		mat.Clear()
		if err := ac.Circuit.Stamp(status); err != nil {
			return fmt.Errorf("stamping error at f=%g: %v", freq, err)
		}

		if err := mat.Solve(); err != nil {
			return fmt.Errorf("matrix solve error at f=%g: %v", freq, err)
		}

		solution := make(map[string]complex128)

		for name, nodeIdx := range ac.Circuit.GetNodeMap() {
			if nodeIdx > 0 {
				re, im := mat.GetComplexSolution(nodeIdx)
				solution[fmt.Sprintf("V(%s)", name)] = complex(re, im)
			}
		}

		for _, dev := range ac.Circuit.GetDevices() {
			if v, ok := dev.(*device.VoltageSource); ok {
				re, im := mat.GetComplexSolution(v.BranchIndex())
				solution[fmt.Sprintf("I(%s)", dev.GetName())] = complex(re, im)
			}
		}

		ac.StoreACResult(freq, solution)
	}

	return nil
}

func (ac *ACAnalysis) generateFrequencyPoints() {
	ac.frequencies = make([]float64, ac.numPoints)

	switch ac.pointsType {
	case "DEC":
		logStart := math.Log10(ac.startFreq)
		step := (math.Log10(ac.stopFreq) - logStart) / float64(ac.numPoints-1)
		for i := range ac.numPoints {
			ac.frequencies[i] = math.Pow(10, logStart+float64(i)*step)
		}

	case "OCT":
		logStart := math.Log2(ac.startFreq)
		step := (math.Log2(ac.stopFreq) - logStart) / float64(ac.numPoints-1)
		for i := range ac.numPoints {
			ac.frequencies[i] = math.Pow(2, logStart+float64(i)*step)
		}

	case "LIN":
		step := (ac.stopFreq - ac.startFreq) / float64(ac.numPoints-1)
		for i := range ac.numPoints {
			ac.frequencies[i] = ac.startFreq + float64(i)*step
		}
	}
}
