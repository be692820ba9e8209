package analysis

import (
	"context"
	"math"
	"testing"

	"github.com/edaforge/gospice/pkg/device"
)

func TestNewtonLinearCircuitConverges(t *testing.T) {
	src := `Divider
V1 1 0 10
R1 1 2 1k
R2 2 0 1k
.op
.end
`
	ckt, _ := buildCircuit(t, src)

	status := &device.CircuitStatus{
		Mode: device.OperatingPointAnalysis,
		Temp: 300.15,
	}
	nr := &Newton{MaxIter: 100, RelTol: 1e-3, AbsTol: 1e-6}

	outcome, iters, _, err := nr.Solve(context.Background(), ckt, status)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if outcome != Converged {
		t.Fatalf("outcome = %v, want Converged", outcome)
	}
	if iters > 3 {
		t.Errorf("linear circuit took %d iterations", iters)
	}

	if v2 := ckt.GetNodeVoltage(ckt.GetNodeMap()["2"]); math.Abs(v2-5) > 1e-9 {
		t.Errorf("V(2) = %g, want 5", v2)
	}
}

func TestNewtonDiodeCircuitConverges(t *testing.T) {
	src := `Forward diode
V1 1 0 1
R1 1 2 1k
D1 2 0
.op
.end
`
	ckt, _ := buildCircuit(t, src)

	status := &device.CircuitStatus{
		Mode: device.OperatingPointAnalysis,
		Temp: 300.15,
	}
	nr := &Newton{MaxIter: 100, RelTol: 1e-3, AbsTol: 1e-6}

	outcome, iters, _, err := nr.Solve(context.Background(), ckt, status)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if outcome != Converged {
		t.Fatalf("outcome = %v after %d iterations", outcome, iters)
	}

	vd := ckt.GetNodeVoltage(ckt.GetNodeMap()["2"])
	if vd < 0.3 || vd > 0.8 {
		t.Errorf("diode drop = %g, want a silicon-ish forward drop", vd)
	}
}

func TestNewtonSingularMatrix(t *testing.T) {
	// Two voltage sources forcing the same node disagree: the branch
	// rows are linearly dependent.
	src := `Conflicting sources
V1 1 0 1
V2 1 0 2
.op
.end
`
	ckt, _ := buildCircuit(t, src)

	status := &device.CircuitStatus{
		Mode: device.OperatingPointAnalysis,
		Temp: 300.15,
	}
	nr := &Newton{MaxIter: 100, RelTol: 1e-3, AbsTol: 1e-6}

	outcome, _, _, _ := nr.Solve(context.Background(), ckt, status)
	if outcome != Singular {
		t.Fatalf("outcome = %v, want Singular", outcome)
	}
}

func TestNewtonCancellation(t *testing.T) {
	src := `Divider
V1 1 0 10
R1 1 2 1k
R2 2 0 1k
.op
.end
`
	ckt, _ := buildCircuit(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status := &device.CircuitStatus{Mode: device.OperatingPointAnalysis, Temp: 300.15}
	nr := &Newton{MaxIter: 100, RelTol: 1e-3, AbsTol: 1e-6}

	if _, _, _, err := nr.Solve(ctx, ckt, status); err == nil {
		t.Fatal("canceled context not surfaced")
	}
}

func TestOperatingPointDivider(t *testing.T) {
	src := `Divider
V1 1 0 10
R1 1 2 2k
R2 2 0 3k
.op
.end
`
	ckt, _ := buildCircuit(t, src)

	op := NewOP()
	if err := op.Setup(ckt); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := op.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	results := op.GetResults()
	if got := results["V(2)"][0]; math.Abs(got-6) > 1e-9 {
		t.Errorf("V(2) = %g, want 6", got)
	}
	if got := results["I(V1)"][0]; math.Abs(got-(-2e-3)) > 1e-9 {
		t.Errorf("I(V1) branch = %g, want -2e-3", got)
	}
}
