package analysis

import (
	"math"
	"math/cmplx"

	"github.com/edaforge/gospice/pkg/circuit"
	"github.com/edaforge/gospice/pkg/util"
)

const (
	OP int = iota
	TRAN
	AC
	DCSWEEP
)

type Analysis interface {
	Setup(ckt *circuit.Circuit) error
	Execute() error
	GetResults() map[string][]float64
}

// SpiceConfig carries the solver tolerances shared by every analysis.
type SpiceConfig struct {
	TrTol     float64
	RelTol    float64
	AbsTol    float64
	Expansion float64
	MaxIter   int
	Gmin      float64
	Temp      float64
}

func DefaultSpiceConfig() SpiceConfig {
	return SpiceConfig{
		TrTol:     7.0,
		RelTol:    1e-3,
		AbsTol:    1e-6,
		Expansion: 2.0,
		MaxIter:   100,
		Gmin:      1e-12,
		Temp:      300.15, // 27degC
	}
}

type BaseAnalysis struct {
	Circuit *circuit.Circuit
	Config  SpiceConfig
	results map[string][]float64
}

func NewBaseAnalysis() *BaseAnalysis {
	return &BaseAnalysis{
		Config:  DefaultSpiceConfig(),
		results: make(map[string][]float64),
	}
}

// ConfigPtr exposes the tolerance set for callers applying .options
// overrides.
func (a *BaseAnalysis) ConfigPtr() *SpiceConfig { return &a.Config }

// newton builds the iteration controller for the configured
// tolerances.
func (a *BaseAnalysis) newton() *Newton {
	return &Newton{
		MaxIter: a.Config.MaxIter,
		RelTol:  a.Config.RelTol,
		AbsTol:  a.Config.AbsTol,
	}
}

func (a *BaseAnalysis) StoreTimeResult(time float64, solution map[string]float64) {
	// Ignore same time
	if len(a.results["TIME"]) > 0 {
		lastTime := a.results["TIME"][len(a.results["TIME"])-1]
		if time == lastTime {
			return
		}
		// Compare rounded string. 1.999999e-05 == 2.000000e-05
		if util.FormatValueFactor(time, "s") == util.FormatValueFactor(lastTime, "s") {
			return
		}
	}

	a.results["TIME"] = append(a.results["TIME"], time)
	for name, value := range solution {
		a.results[name] = append(a.results[name], value)
	}
}

func (a *BaseAnalysis) StoreACResult(freq float64, solution map[string]complex128) {
	a.results["FREQ"] = append(a.results["FREQ"], freq)

	for name, value := range solution {
		a.results[name+"_MAG"] = append(a.results[name+"_MAG"], cmplx.Abs(value))
		a.results[name+"_PHASE"] = append(a.results[name+"_PHASE"], cmplx.Phase(value)*180.0/math.Pi)
	}
}

func (a *BaseAnalysis) GetResults() map[string][]float64 {
	return a.results
}
