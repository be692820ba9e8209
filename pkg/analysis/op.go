package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/edaforge/gospice/pkg/circuit"
	"github.com/edaforge/gospice/pkg/device"
)

type OperatingPoint struct{ BaseAnalysis }

func NewOP() *OperatingPoint {
	return &OperatingPoint{
		BaseAnalysis: *NewBaseAnalysis(),
	}
}

func (op *OperatingPoint) Setup(ckt *circuit.Circuit) error {
	op.Circuit = ckt
	return nil
}

func (op *OperatingPoint) solve(gmin float64) error {
	status := &device.CircuitStatus{
		Mode: device.OperatingPointAnalysis,
		Temp: op.Config.Temp,
		Gmin: gmin,
	}

	outcome, iters, _, err := op.newton().Solve(context.Background(), op.Circuit, status)
	if err != nil {
		return err
	}
	switch outcome {
	case Converged:
		return nil
	case Singular:
		return fmt.Errorf("singular matrix at gmin=%g", gmin)
	default:
		return fmt.Errorf("failed to converge in %d iterations", iters)
	}
}

// Execute finds the bias point: a plain Newton run first, then gmin
// stepping when the circuit refuses to converge cold.
func (op *OperatingPoint) Execute() error {
	if err := op.solve(0); err == nil {
		op.storeResults(op.Circuit.GetMatrix().Solution())
		return nil
	}

	numGminSteps := 10
	startGmin := float64(op.Circuit.GetMatrix().Size) * 0.001
	gmin := startGmin * math.Pow(10, float64(numGminSteps))

	for i := 0; i <= numGminSteps; i++ {
		if err := op.solve(gmin); err != nil {
			return fmt.Errorf("gmin stepping failed at %g: %v", gmin, err)
		}
		gmin /= 10
	}

	if err := op.solve(0); err != nil {
		return fmt.Errorf("final solution failed with zero gmin: %v", err)
	}

	op.storeResults(op.Circuit.GetMatrix().Solution())
	return nil
}

func (op *OperatingPoint) storeResults(solution []float64) {
	for nodeName, nodeIdx := range op.Circuit.GetNodeMap() {
		if nodeIdx > 0 {
			op.results[fmt.Sprintf("V(%s)", nodeName)] = []float64{solution[nodeIdx]}
		}
	}
	for devName, branchIdx := range op.Circuit.GetBranchMap() {
		op.results[fmt.Sprintf("I(%s)", devName)] = []float64{solution[branchIdx]}
	}
}
