package engine

import (
	"math"
	"time"

	"phase-gap-alerts/internal/history"
)

const secondsPerDay = 86400.0

// Window is the selected, unwrapped fit window: per-sample time offsets in
// days from the window start and the continuous phase in radians.
type Window struct {
	Times   []time.Time
	Days    []float64
	Phase   []float64
	Start   time.Time
	End     time.Time
	Spanned float64 // days between first and last retained sample
}

// TrendEstimate is the immutable output of one robust fit.
type TrendEstimate struct {
	SlopePerDay float64 // radians per day
	Intercept   float64 // radians at the window start
	PhiNow      float64 // last retained unwrapped phase, radians
	WindowStart time.Time
	WindowEnd   time.Time
	NUsed       int

	// Uncertainties for the ETA bands. Valid only when StdErrValid is set;
	// a two-point fit has no residual spread to estimate from.
	SlopeStdErr     float64
	InterceptStdErr float64
	ResidualStd     float64
	StdErrValid     bool
}

// SelectWindow picks the fit window from a time-sorted sample series: the
// samples within the trailing WindowMaxDays, falling back to the last
// FallbackSamples when that window is too sparse. A gap wider than MaxGapDays
// truncates the window to the segment after the gap, since bridging a
// multi-day hole would force the unwrapper to guess a phase-jump count.
// Returns ErrInsufficientData when fewer than WindowMinSamples survive.
func SelectWindow(samples []history.Sample, p Params) (Window, error) {
	if len(samples) < p.WindowMinSamples {
		return Window{}, ErrInsufficientData
	}

	tEnd := samples[len(samples)-1].AsOfUTC
	cutoff := tEnd.Add(-time.Duration(p.WindowMaxDays) * 24 * time.Hour)

	start := 0
	for i, s := range samples {
		if !s.AsOfUTC.Before(cutoff) {
			start = i
			break
		}
	}
	sel := samples[start:]
	if len(sel) < p.WindowMinSamples {
		if len(samples) > p.FallbackSamples {
			sel = samples[len(samples)-p.FallbackSamples:]
		} else {
			sel = samples
		}
	}
	if len(sel) < p.WindowMinSamples {
		return Window{}, ErrInsufficientData
	}

	if p.MaxGapDays > 0 {
		maxGap := time.Duration(p.MaxGapDays) * 24 * time.Hour
		for i := len(sel) - 1; i > 0; i-- {
			if sel[i].AsOfUTC.Sub(sel[i-1].AsOfUTC) > maxGap {
				sel = sel[i:]
				break
			}
		}
		if len(sel) < p.WindowMinSamples {
			return Window{}, ErrInsufficientData
		}
	}

	span := sel[len(sel)-1].AsOfUTC.Sub(sel[0].AsOfUTC).Seconds() / secondsPerDay
	if p.MinSpanDays > 0 && span < float64(p.MinSpanDays) {
		return Window{}, ErrInsufficientData
	}

	w := Window{
		Times:   make([]time.Time, len(sel)),
		Days:    make([]float64, len(sel)),
		Start:   sel[0].AsOfUTC,
		End:     sel[len(sel)-1].AsOfUTC,
		Spanned: span,
	}
	deg := make([]float64, len(sel))
	for i, s := range sel {
		w.Times[i] = s.AsOfUTC
		w.Days[i] = s.AsOfUTC.Sub(w.Start).Seconds() / secondsPerDay
		deg[i] = s.PhaseDeg
	}
	w.Phase = UnwrapDegrees(deg)
	return w, nil
}

// FitTrend fits a line to the window by ordinary least squares, then runs
// TrimIterations passes discarding points whose residuals fall outside the
// [TrimLowPct, TrimHighPct] percentile band and refitting. Trimming stops
// early once fewer than FitMinSamples points would remain, keeping the last
// successful fit. The phase-near-zero decision downstream is slope-sensitive,
// so a handful of bad upstream readings must not be allowed to swing it.
func FitTrend(w Window, p Params) (TrendEstimate, error) {
	x := append([]float64(nil), w.Days...)
	y := append([]float64(nil), w.Phase...)
	if len(x) < 2 {
		return TrendEstimate{}, ErrInsufficientData
	}

	m, b := polyfit(x, y)
	for iter := 0; iter < p.TrimIterations; iter++ {
		resid := make([]float64, len(x))
		for i := range x {
			resid[i] = y[i] - (m*x[i] + b)
		}
		lo := percentile(resid, p.TrimLowPct)
		hi := percentile(resid, p.TrimHighPct)

		keptX := x[:0]
		keptY := y[:0]
		for i := range x {
			if resid[i] >= lo && resid[i] <= hi {
				keptX = append(keptX, x[i])
				keptY = append(keptY, y[i])
			}
		}
		if len(keptX) < p.FitMinSamples {
			break
		}
		x, y = keptX, keptY
		m, b = polyfit(x, y)
	}

	est := TrendEstimate{
		SlopePerDay: m,
		Intercept:   b,
		PhiNow:      y[len(y)-1],
		WindowStart: w.Start,
		WindowEnd:   w.End,
		NUsed:       len(x),
	}

	if n := len(x); n > 2 {
		var xBar float64
		for _, v := range x {
			xBar += v
		}
		xBar /= float64(n)

		var sxx, ssr float64
		for i := range x {
			dx := x[i] - xBar
			sxx += dx * dx
			r := y[i] - (m*x[i] + b)
			ssr += r * r
		}
		if sxx > 0 {
			s2 := ssr / float64(n-2)
			est.ResidualStd = math.Sqrt(s2)
			est.SlopeStdErr = math.Sqrt(s2 / sxx)
			est.InterceptStdErr = math.Sqrt(s2 * (1/float64(n) + xBar*xBar/sxx))
			est.StdErrValid = true
		}
	}

	return est, nil
}

// polyfit returns the least-squares slope and intercept of y over x.
func polyfit(x, y []float64) (m, b float64) {
	n := float64(len(x))
	var sumX, sumY, sumXY, sumXX float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumXX += x[i] * x[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	m = (n*sumXY - sumX*sumY) / denom
	b = (sumY - m*sumX) / n
	return m, b
}
