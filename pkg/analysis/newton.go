package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/edaforge/gospice/pkg/circuit"
	"github.com/edaforge/gospice/pkg/device"
	"github.com/edaforge/gospice/pkg/matrix"
)

// NewtonOutcome tags the result of one iteration run. No error values
// travel through the inner loop; the caller decides the retry policy.
type NewtonOutcome int

const (
	Converged NewtonOutcome = iota
	NonConverged
	Singular
)

// Newton is the iteration controller for a single solution point:
// stamp the linearized system around the latest guess, solve, test
// per-unknown deltas against RelTol/AbsTol, repeat up to MaxIter.
type Newton struct {
	MaxIter int
	RelTol  float64
	AbsTol  float64
}

// Solve iterates the circuit at the operating conditions in status.
// status.Solution must hold the starting guess (the prediction during
// transient); on a Converged outcome the matrix solution holds the
// result. residual is the largest per-unknown delta of the last
// iteration.
func (nr *Newton) Solve(ctx context.Context, ckt *circuit.Circuit, status *device.CircuitStatus) (outcome NewtonOutcome, iters int, residual float64, err error) {
	mat := ckt.GetMatrix()
	size := mat.Size

	old := make([]float64, size+1)
	if status.Solution != nil {
		copy(old, status.Solution[:min(len(status.Solution), size+1)])
	}

	for iter := 0; iter < nr.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return NonConverged, iter, residual, err
		}

		if err := ckt.UpdateNonlinearVoltages(old); err != nil {
			return NonConverged, iter, residual, err
		}

		status.Solution = old
		mat.Clear()
		if err := ckt.Stamp(status); err != nil {
			return NonConverged, iter, residual, err
		}
		mat.LoadGmin(status.Gmin)

		if err := mat.Factor(); err != nil {
			if errors.Is(err, matrix.ErrSingular) {
				return Singular, iter, residual, err
			}
			return NonConverged, iter, residual, err
		}
		if err := mat.SolveFactored(); err != nil {
			return NonConverged, iter, residual, fmt.Errorf("solving: %v", err)
		}

		solution := mat.Solution()

		converged := true
		residual = 0
		for i := 1; i <= size; i++ {
			diff := math.Abs(solution[i] - old[i])
			if diff > residual {
				residual = diff
			}
			tol := nr.RelTol*math.Max(math.Abs(solution[i]), math.Abs(old[i])) + nr.AbsTol
			if diff > tol {
				converged = false
			}
		}

		if iter > 0 && converged {
			status.Solution = solution
			return Converged, iter + 1, residual, nil
		}

		copy(old, solution[:size+1])
	}

	return NonConverged, nr.MaxIter, residual, nil
}
