package analysis

import (
	"context"
	"fmt"

	"github.com/edaforge/gospice/pkg/circuit"
	"github.com/edaforge/gospice/pkg/device"
)

// sweepSource is a source whose DC level a sweep can drive.
type sweepSource interface {
	device.Device
	SetValue(v float64)
}

// DCSweep steps one or two sources through value ranges, solving the
// bias point at each combination.
type DCSweep struct {
	BaseAnalysis
	sourceNames []string
	startVals   []float64
	stopVals    []float64
	increments  []float64
	sweepVals   [][]float64
	sources     []sweepSource
	origVals    []float64
}

func NewDCSweep(sources []string, starts, stops, increments []float64) *DCSweep {
	if len(sources) != len(starts) || len(sources) != len(stops) || len(sources) != len(increments) {
		panic("inconsistent parameter lengths")
	}

	dc := &DCSweep{
		BaseAnalysis: *NewBaseAnalysis(),
		sourceNames:  sources,
		startVals:    starts,
		stopVals:     stops,
		increments:   increments,
		sweepVals:    make([][]float64, len(sources)),
		sources:      make([]sweepSource, len(sources)),
		origVals:     make([]float64, len(sources)),
	}

	for i := range sources {
		var sweep []float64
		for v := dc.startVals[i]; v <= dc.stopVals[i]; v += dc.increments[i] {
			sweep = append(sweep, v)
		}
		dc.sweepVals[i] = sweep
	}

	return dc
}

func (dc *DCSweep) Setup(ckt *circuit.Circuit) error {
	dc.Circuit = ckt

	for i, name := range dc.sourceNames {
		found := false
		for _, dev := range ckt.GetDevices() {
			if dev.GetName() != name {
				continue
			}
			src, ok := dev.(sweepSource)
			if !ok {
				return fmt.Errorf("device %s is not a sweepable source", name)
			}
			dc.sources[i] = src
			dc.origVals[i] = src.GetValue()
			found = true
			break
		}
		if !found {
			return fmt.Errorf("source %s not found", name)
		}
	}

	return nil
}

func (dc *DCSweep) Execute() error {
	if dc.Circuit == nil {
		return fmt.Errorf("circuit not set")
	}

	defer func() {
		for i, src := range dc.sources {
			src.SetValue(dc.origVals[i])
		}
	}()

	switch len(dc.sources) {
	case 1:
		return dc.sweep(nil)
	case 2:
		for _, val1 := range dc.sweepVals[0] {
			dc.sources[0].SetValue(val1)
			if err := dc.sweep([]float64{val1}); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported number of sweep sources: %d", len(dc.sources))
	}
}

// sweep drives the innermost source; outer holds the values already
// pinned by enclosing loops.
func (dc *DCSweep) sweep(outer []float64) error {
	inner := len(outer)

	for _, val := range dc.sweepVals[inner] {
		dc.sources[inner].SetValue(val)

		if err := dc.solvePoint(); err != nil {
			return fmt.Errorf("convergence error at %s=%g: %v", dc.sourceNames[inner], val, err)
		}

		vals := append(append([]float64{}, outer...), val)
		dc.storePoint(vals, dc.Circuit.GetSolution())
	}

	return nil
}

func (dc *DCSweep) solvePoint() error {
	status := &device.CircuitStatus{
		Mode: device.DCSweep,
		Temp: dc.Config.Temp,
		Gmin: dc.Config.Gmin,
	}

	outcome, iters, _, err := dc.newton().Solve(context.Background(), dc.Circuit, status)
	if err != nil {
		return err
	}
	if outcome != Converged {
		return fmt.Errorf("failed to converge in %d iterations", iters)
	}
	return nil
}

func (dc *DCSweep) storePoint(sweepVals []float64, solution map[string]float64) {
	for i, v := range sweepVals {
		key := fmt.Sprintf("SWEEP%d", i+1)
		dc.results[key] = append(dc.results[key], v)
	}
	for name, value := range solution {
		dc.results[name] = append(dc.results[name], value)
	}
}
