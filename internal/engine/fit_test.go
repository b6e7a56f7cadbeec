package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"phase-gap-alerts/internal/history"
)

func dailySeries(start time.Time, days int, phaseDegAt func(day int) float64) []history.Sample {
	out := make([]history.Sample, days)
	for i := 0; i < days; i++ {
		out[i] = history.Sample{
			AsOfUTC:  start.AddDate(0, 0, i),
			PhaseDeg: phaseDegAt(i),
		}
	}
	return out
}

func TestFitRecoversLinearSlope(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	slopeRad := -0.02 // rad/day
	samples := dailySeries(start, 40, func(day int) float64 {
		return (1.0 + slopeRad*float64(day)) * 180 / math.Pi
	})

	w, err := SelectWindow(samples, DefaultParams())
	if err != nil {
		t.Fatalf("select window: %v", err)
	}
	est, err := FitTrend(w, DefaultParams())
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	if math.Abs(est.SlopePerDay-slopeRad) > 1e-9 {
		t.Fatalf("slope %.12f, want %.12f", est.SlopePerDay, slopeRad)
	}
	// Percentile trimming may shave boundary points off a perfect line, so
	// phi_now is allowed to land on a neighbouring sample.
	wantPhi := 1.0 + slopeRad*39
	if math.Abs(est.PhiNow-wantPhi) > 3*math.Abs(slopeRad) {
		t.Fatalf("phi_now %.12f, want about %.12f", est.PhiNow, wantPhi)
	}
}

func TestFitDiscardsOutliers(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	slopeRad := -0.02
	samples := dailySeries(start, 40, func(day int) float64 {
		phase := 1.0 + slopeRad*float64(day)
		// Two corrupted upstream readings mid-window.
		if day == 15 || day == 25 {
			phase += 0.5
		}
		return phase * 180 / math.Pi
	})

	w, err := SelectWindow(samples, DefaultParams())
	if err != nil {
		t.Fatalf("select window: %v", err)
	}
	est, err := FitTrend(w, DefaultParams())
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	if math.Abs(est.SlopePerDay-slopeRad) > 1e-3 {
		t.Fatalf("outliers swung slope to %.6f, want %.6f", est.SlopePerDay, slopeRad)
	}
	if est.NUsed >= 40 {
		t.Fatalf("expected trimmed points, n_used=%d", est.NUsed)
	}
}

func TestSelectWindowInsufficientData(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := dailySeries(start, 10, func(day int) float64 { return float64(day) })

	_, err := SelectWindow(samples, DefaultParams())
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestSelectWindowTruncatesAtOversizedGap(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var samples []history.Sample
	// 30 daily samples, a 40-day hole, then 25 more.
	samples = append(samples, dailySeries(start, 30, func(day int) float64 { return 5 })...)
	postGap := start.AddDate(0, 0, 70)
	samples = append(samples, dailySeries(postGap, 25, func(day int) float64 { return 4 })...)

	w, err := SelectWindow(samples, DefaultParams())
	if err != nil {
		t.Fatalf("select window: %v", err)
	}
	if !w.Start.Equal(postGap) {
		t.Fatalf("window should start after the gap at %v, got %v", postGap, w.Start)
	}
	if len(w.Phase) != 25 {
		t.Fatalf("window should hold only the post-gap segment, got %d samples", len(w.Phase))
	}
}

func TestSelectWindowGapLeavesTooFew(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var samples []history.Sample
	samples = append(samples, dailySeries(start, 30, func(day int) float64 { return 5 })...)
	samples = append(samples, dailySeries(start.AddDate(0, 0, 70), 10, func(day int) float64 { return 4 })...)

	_, err := SelectWindow(samples, DefaultParams())
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("post-gap segment below minimum should be insufficient, got %v", err)
	}
}

func TestSelectWindowFallsBackToRecentSamples(t *testing.T) {
	// Dense ancient history, nothing inside the trailing window: the
	// selection must fall back to the most recent FallbackSamples.
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := dailySeries(start, 30, func(day int) float64 { return 1 })

	p := DefaultParams()
	p.WindowMaxDays = 1
	p.MaxGapDays = 0 // plain fallback behaviour under test

	w, err := SelectWindow(samples, p)
	if err != nil {
		t.Fatalf("select window: %v", err)
	}
	if len(w.Phase) != 30 {
		t.Fatalf("fallback should use all 30 samples, got %d", len(w.Phase))
	}
}

func TestFitStandardErrorsOnNoisySeries(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := dailySeries(start, 40, func(day int) float64 {
		phase := 1.0 - 0.01*float64(day)
		if day%2 == 0 {
			phase += 0.002
		} else {
			phase -= 0.002
		}
		return phase * 180 / math.Pi
	})

	w, err := SelectWindow(samples, DefaultParams())
	if err != nil {
		t.Fatalf("select window: %v", err)
	}
	est, err := FitTrend(w, DefaultParams())
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if !est.StdErrValid {
		t.Fatal("standard errors should be computable on a noisy series")
	}
	if est.SlopeStdErr <= 0 || est.ResidualStd <= 0 {
		t.Fatalf("non-positive uncertainties: slope_se=%g resid_std=%g", est.SlopeStdErr, est.ResidualStd)
	}
}
