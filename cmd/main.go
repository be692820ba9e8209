package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/edaforge/gospice/pkg/analysis"
	"github.com/edaforge/gospice/pkg/circuit"
	"github.com/edaforge/gospice/pkg/integrator"
	"github.com/edaforge/gospice/pkg/netlist"
	"github.com/edaforge/gospice/pkg/util"
	"github.com/edaforge/gospice/pkg/waveform"
)

func main() {
	inputFile := flag.String("i", "", "netlist file")
	plotFile := flag.String("plot", "", "render waveforms to an image file (.png, .svg, .pdf)")
	flag.Parse()

	if *inputFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	content, err := os.ReadFile(*inputFile)
	if err != nil {
		log.Fatalf("reading netlist: %v", err)
	}

	data, err := netlist.Parse(string(content))
	if err != nil {
		log.Fatalf("parsing netlist: %v", err)
	}

	ckt := circuit.NewWithComplex(data.Title, data.Analysis == netlist.AnalysisAC)
	ckt.SetModels(data.Models)
	if err := ckt.AssignNodeBranchMaps(data.Elements); err != nil {
		log.Fatalf("assigning nodes: %v", err)
	}
	if err := ckt.CreateMatrix(); err != nil {
		log.Fatalf("creating matrix: %v", err)
	}
	if err := ckt.SetupDevices(data.Elements); err != nil {
		log.Fatalf("setting up devices: %v", err)
	}
	defer ckt.Destroy()

	an := buildAnalysis(data)
	applyOptions(an, data.Options)

	if err := an.Setup(ckt); err != nil {
		log.Fatalf("analysis setup: %v", err)
	}
	if err := an.Execute(); err != nil {
		log.Fatalf("analysis: %v", err)
	}

	results := an.GetResults()
	printResults(data.Title, results)

	if *plotFile != "" {
		var err error
		if _, isAC := results["FREQ"]; isAC {
			err = waveform.RenderAC(results, nil, data.Title, *plotFile)
		} else {
			err = waveform.RenderTransient(results, nil, data.Title, *plotFile)
		}
		if err != nil {
			log.Fatalf("plotting: %v", err)
		}
		fmt.Printf("\nWaveforms written to %s\n", *plotFile)
	}
}

func buildAnalysis(data *netlist.NetlistData) analysis.Analysis {
	switch data.Analysis {
	case netlist.AnalysisTRAN:
		p := data.TranParam
		tr := analysis.NewTransient(p.TStart, p.TStop, p.TStep, p.TMax, p.UIC)
		switch data.Options.Method {
		case "gear":
			tr.SetMethod(integrator.Gear, data.Options.MaxOrder)
		case "trap", "trapezoidal", "":
			tr.SetMethod(integrator.Trapezoidal, data.Options.MaxOrder)
		default:
			log.Fatalf("unknown integration method: %s", data.Options.Method)
		}
		return tr

	case netlist.AnalysisAC:
		p := data.ACParam
		return analysis.NewAC(p.FStart, p.FStop, p.Points, p.Sweep)

	case netlist.AnalysisDC:
		p := data.DCParam
		return analysis.NewDCSweep(p.Sources, p.Starts, p.Stops, p.Increments)

	default:
		return analysis.NewOP()
	}
}

func applyOptions(an analysis.Analysis, opts netlist.Options) {
	c, ok := an.(interface{ ConfigPtr() *analysis.SpiceConfig })
	if !ok {
		return
	}
	cfg := c.ConfigPtr()

	if opts.RelTol != nil {
		cfg.RelTol = *opts.RelTol
	}
	if opts.AbsTol != nil {
		cfg.AbsTol = *opts.AbsTol
	}
	if opts.TrTol != nil {
		cfg.TrTol = *opts.TrTol
	}
	if opts.Gmin != nil {
		cfg.Gmin = *opts.Gmin
	}
	if opts.Temp != nil {
		cfg.Temp = *opts.Temp
	}
	if opts.MaxIter != nil {
		cfg.MaxIter = *opts.MaxIter
	}
}

func sortedKeys(m map[string][]float64, skip ...string) []string {
	keys := make([]string, 0, len(m))
outer:
	for k := range m {
		for _, s := range skip {
			if k == s {
				continue outer
			}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printResults(title string, results map[string][]float64) {
	fmt.Printf("\n%s\n", title)
	fmt.Println(strings.Repeat("=", len(title)))

	switch {
	case results["FREQ"] != nil:
		printACResults(results)
	case results["TIME"] != nil:
		printSweepTable(results, "TIME", func(v float64) string {
			return fmt.Sprintf("%-14s", util.FormatValueFactor(v, "s"))
		})
	case results["SWEEP1"] != nil:
		printSweepTable(results, "SWEEP1", func(v float64) string {
			return fmt.Sprintf("%-14g", v)
		})
	default:
		for _, name := range sortedKeys(results) {
			if vals := results[name]; len(vals) > 0 {
				fmt.Printf("%-12s = %s\n", name, util.FormatMagnitude(vals[0]))
			}
		}
	}
}

func printSweepTable(results map[string][]float64, axis string, formatAxis func(float64) string) {
	names := sortedKeys(results, axis, "SWEEP2")
	axisVals := results[axis]

	fmt.Printf("%-14s", axis)
	for _, name := range names {
		fmt.Printf("%-16s", name)
	}
	fmt.Println()

	for i, av := range axisVals {
		fmt.Print(formatAxis(av))
		for _, name := range names {
			vals := results[name]
			if i < len(vals) {
				fmt.Printf("%-16.6g", vals[i])
			} else {
				fmt.Printf("%-16s", "-")
			}
		}
		fmt.Println()
	}
}

func printACResults(results map[string][]float64) {
	freqs := results["FREQ"]

	var names []string
	for name := range results {
		if strings.HasSuffix(name, "_MAG") {
			names = append(names, strings.TrimSuffix(name, "_MAG"))
		}
	}
	sort.Strings(names)

	for i, freq := range freqs {
		fmt.Printf("%-13s", util.FormatFrequency(freq))
		for _, name := range names {
			mag := results[name+"_MAG"]
			phase := results[name+"_PHASE"]
			if i < len(mag) && i < len(phase) {
				fmt.Printf("%s=%s<%sdeg  ", name,
					util.FormatMagnitude(mag[i]), util.FormatPhase(phase[i]))
			}
		}
		fmt.Println()
	}
}
