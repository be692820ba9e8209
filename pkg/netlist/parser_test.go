package netlist

import (
	"errors"
	"math"
	"testing"
)

func TestParseValueSuffixes(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"100", 100},
		{"4.7k", 4.7e3},
		{"4.7K", 4.7e3},
		{"1meg", 1e6},
		{"2.2u", 2.2e-6},
		{"100n", 1e-7},
		{"10p", 1e-11},
		{"1.5m", 1.5e-3},
		{"-3.3", -3.3},
		{"1e-9", 1e-9},
		{"2.5E3", 2.5e3},
		{"10us", 1e-5},
		{"5mV", 5e-3},
	}

	for _, tc := range cases {
		got, err := ParseValue(tc.in)
		if err != nil {
			t.Errorf("ParseValue(%q): %v", tc.in, err)
			continue
		}
		if math.Abs(got-tc.want) > 1e-12*math.Abs(tc.want) {
			t.Errorf("ParseValue(%q) = %g, want %g", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "k", "1..2", "volts"} {
		if _, err := ParseValue(bad); err == nil {
			t.Errorf("ParseValue(%q) accepted", bad)
		}
	}
}

func TestParseBasicNetlist(t *testing.T) {
	src := `Lowpass filter
* input stage
V1 in 0 SIN(0 1 1k)
R1 in out 1k
C1 out 0 100n IC=0.5
.tran 10u 2m uic
.end
`
	data, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if data.Title != "Lowpass filter" {
		t.Errorf("title = %q", data.Title)
	}
	if len(data.Elements) != 3 {
		t.Fatalf("element count = %d, want 3", len(data.Elements))
	}
	if data.Analysis != AnalysisTRAN {
		t.Errorf("analysis = %v, want TRAN", data.Analysis)
	}
	if !data.TranParam.UIC {
		t.Error("uic flag lost")
	}
	if math.Abs(data.TranParam.TStep-1e-5) > 1e-12*1e-5 || math.Abs(data.TranParam.TStop-2e-3) > 1e-12*2e-3 {
		t.Errorf("tran params = %g/%g", data.TranParam.TStep, data.TranParam.TStop)
	}

	c := data.Elements[2]
	if c.Type != "C" || c.Params["ic"] != "0.5" {
		t.Errorf("capacitor element = %+v", c)
	}

	if _, ok := data.Nodes["in"]; !ok {
		t.Error("node 'in' not collected")
	}
}

func TestParseContinuationAndComments(t *testing.T) {
	src := `Continued pulse
V1 in 0 PULSE(0 5
+ 1m 1u 1u
+ 0.5m 2m)
* trailing comment
R1 in 0 1k
.tran 1u 4m
.end
`
	data, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(data.Elements) != 2 {
		t.Fatalf("element count = %d, want 2", len(data.Elements))
	}

	v := data.Elements[0]
	if v.Params["type"] != "pulse" {
		t.Fatalf("source type = %q, want pulse", v.Params["type"])
	}
	if _, _, delay, _, _, width, _, err := parsePulseParams(v.Params["args"]); err != nil || delay != 1e-3 || width != 0.5e-3 {
		t.Errorf("pulse args mangled: delay=%g width=%g err=%v", delay, width, err)
	}
}

func TestParseModelAndDiode(t *testing.T) {
	src := `Diode with model
V1 1 0 1
R1 1 2 1k
D1 2 0 DMOD
.model DMOD D (is=1e-15 n=1.2 cj0=2p)
.op
.end
`
	data, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	model, ok := data.Models["DMOD"]
	if !ok {
		t.Fatal("model DMOD missing")
	}
	if model.Params["is"] != 1e-15 || model.Params["n"] != 1.2 || model.Params["cj0"] != 2e-12 {
		t.Errorf("model params = %v", model.Params)
	}

	dev, err := CreateDevice(data.Elements[2], data.Models)
	if err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	if dev.GetType() != "D" {
		t.Errorf("device type = %s", dev.GetType())
	}
}

func TestParseOptions(t *testing.T) {
	src := `Options
R1 1 0 1k
.options reltol=1e-4 abstol=1u trtol=5 method=gear maxord=3 itl1=50
.op
.end
`
	data, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	o := data.Options
	if o.RelTol == nil || *o.RelTol != 1e-4 {
		t.Error("reltol lost")
	}
	if o.AbsTol == nil || *o.AbsTol != 1e-6 {
		t.Error("abstol lost")
	}
	if o.TrTol == nil || *o.TrTol != 5 {
		t.Error("trtol lost")
	}
	if o.Method != "gear" || o.MaxOrder != 3 {
		t.Errorf("method/maxord = %q/%d", o.Method, o.MaxOrder)
	}
	if o.MaxIter == nil || *o.MaxIter != 50 {
		t.Error("itl1 lost")
	}
}

func TestParseDCSweepTwoSources(t *testing.T) {
	src := `Two source sweep
V1 1 0 0
V2 2 0 0
R1 1 2 1k
.dc V1 0 5 0.5 V2 0 1 0.25
.end
`
	data, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if data.Analysis != AnalysisDC {
		t.Fatalf("analysis = %v, want DC", data.Analysis)
	}
	if len(data.DCParam.Sources) != 2 || data.DCParam.Sources[1] != "V2" {
		t.Errorf("sweep sources = %v", data.DCParam.Sources)
	}
	if data.DCParam.Increments[0] != 0.5 || data.DCParam.Stops[1] != 1 {
		t.Errorf("sweep bounds = %v / %v", data.DCParam.Increments, data.DCParam.Stops)
	}
}

func TestParseNodeMismatch(t *testing.T) {
	src := `Broken
C1 1 1u
.op
.end
`
	_, err := Parse(src)
	if !errors.Is(err, ErrNodeMismatch) {
		t.Fatalf("err = %v, want ErrNodeMismatch", err)
	}
}

func TestParseMutualCoupling(t *testing.T) {
	src := `Transformer
V1 1 0 SIN(0 1 1k)
L1 1 0 1m
L2 2 0 1m
R1 2 0 1k
K1 L1 L2 0.95
.tran 1u 1m
.end
`
	data, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var k *Element
	for i := range data.Elements {
		if data.Elements[i].Type == "K" {
			k = &data.Elements[i]
		}
	}
	if k == nil {
		t.Fatal("K element missing")
	}
	if k.Value != 0.95 || k.Params["ind1"] != "L1" || k.Params["ind2"] != "L2" {
		t.Errorf("mutual element = %+v", k)
	}

	if _, err := Parse("T\nK1 L1 L2 1.5\n.end\n"); err == nil {
		t.Error("coupling coefficient above 1 accepted")
	}
}
