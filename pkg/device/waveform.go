package device

import (
	"math"

	"github.com/edaforge/gospice/pkg/integrator"
)

// waveform is the time shape shared by independent voltage and current
// sources: DC, SIN, PULSE and PWL, plus the small-signal magnitude and
// phase for AC sweeps.
type waveform struct {
	kind SourceType

	dc float64

	// SIN
	amplitude float64
	freq      float64
	phase     float64

	// PULSE
	low    float64
	high   float64
	delay  float64
	rise   float64
	fall   float64
	width  float64
	period float64

	// PWL
	times  []float64
	values []float64

	// AC
	acMag   float64
	acPhase float64
}

func (w *waveform) value(t float64) float64 {
	switch w.kind {
	case DC:
		return w.dc
	case SIN:
		phaseRad := w.phase * math.Pi / 180.0
		return w.dc + w.amplitude*math.Sin(2.0*math.Pi*w.freq*t+phaseRad)
	case PULSE:
		return w.pulseValue(t)
	case PWL:
		return w.pwlValue(t)
	default:
		return 0
	}
}

func (w *waveform) pulseValue(t float64) float64 {
	if t < w.delay {
		return w.low
	}

	t -= w.delay
	if w.period > 0 {
		t = math.Mod(t, w.period)
	}

	if t < w.rise {
		if w.rise == 0 {
			return w.high
		}
		return w.low + (w.high-w.low)*t/w.rise
	}

	if t < w.rise+w.width {
		return w.high
	}

	fallStart := w.rise + w.width
	if t < fallStart+w.fall {
		if w.fall == 0 {
			return w.low
		}
		return w.high - (w.high-w.low)*(t-fallStart)/w.fall
	}

	return w.low
}

func (w *waveform) pwlValue(t float64) float64 {
	if t <= w.times[0] {
		return w.values[0]
	}

	lastIdx := len(w.times) - 1
	if t >= w.times[lastIdx] {
		return w.values[lastIdx]
	}

	for i := 1; i < len(w.times); i++ {
		if t <= w.times[i] {
			t1, t2 := w.times[i-1], w.times[i]
			v1, v2 := w.values[i-1], w.values[i]
			return v1 + (v2-v1)*(t-t1)/(t2-t1)
		}
	}

	return w.values[lastIdx] // Must not reach
}

// registerBreakpoints schedules every corner of the waveform so the
// integrator lands on slope discontinuities exactly.
func (w *waveform) registerBreakpoints(m *integrator.Method) {
	final := m.FinalTime()

	switch w.kind {
	case PULSE:
		corners := []float64{0, w.rise, w.rise + w.width, w.rise + w.width + w.fall}
		start := w.delay
		for {
			scheduled := false
			for _, c := range corners {
				t := start + c
				if t <= final {
					m.SetBreakpoint(t)
					scheduled = true
				}
			}
			if w.period <= 0 || !scheduled {
				return
			}
			start += w.period
		}
	case PWL:
		for _, t := range w.times {
			if t <= final {
				m.SetBreakpoint(t)
			}
		}
	}
}

func (w *waveform) acValue() (real, imag float64) {
	phaseRad := w.acPhase * math.Pi / 180.0
	return w.acMag * math.Cos(phaseRad), w.acMag * math.Sin(phaseRad)
}
