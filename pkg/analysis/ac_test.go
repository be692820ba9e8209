package analysis

import (
	"math"
	"testing"

	"github.com/edaforge/gospice/pkg/circuit"
	"github.com/edaforge/gospice/pkg/netlist"
)

func TestACLowpassCorner(t *testing.T) {
	// RC lowpass, corner at 1/(2*pi*RC) ~ 1.59 kHz.
	src := `AC lowpass
V1 in 0 AC 1 0
R1 in out 1k
C1 out 0 100n
.ac DEC 21 10 1meg
.end
`
	data, err := netlist.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	ckt := circuit.NewWithComplex(data.Title, true)
	ckt.SetModels(data.Models)
	if err := ckt.AssignNodeBranchMaps(data.Elements); err != nil {
		t.Fatalf("nodes: %v", err)
	}
	if err := ckt.CreateMatrix(); err != nil {
		t.Fatalf("matrix: %v", err)
	}
	if err := ckt.SetupDevices(data.Elements); err != nil {
		t.Fatalf("devices: %v", err)
	}
	t.Cleanup(ckt.Destroy)

	p := data.ACParam
	ac := NewAC(p.FStart, p.FStop, p.Points, p.Sweep)
	if err := ac.Setup(ckt); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := ac.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	results := ac.GetResults()
	freqs := results["FREQ"]
	mags := results["V(out)_MAG"]
	if len(freqs) != 21 || len(mags) != 21 {
		t.Fatalf("points = %d/%d, want 21", len(freqs), len(mags))
	}

	fc := 1.0 / (2 * math.Pi * 1e3 * 100e-9)
	for i, f := range freqs {
		want := 1.0 / math.Sqrt(1+(f/fc)*(f/fc))
		if math.Abs(mags[i]-want) > 1e-3*want+1e-6 {
			t.Errorf("f=%g: |H|=%g, want %g", f, mags[i], want)
		}
	}

	// Phase approaches -90 degrees well above the corner.
	phases := results["V(out)_PHASE"]
	if got := phases[len(phases)-1]; got > -85 {
		t.Errorf("phase at top frequency = %g, want near -90", got)
	}
}
