package engine

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestProjectETABasicDivision(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	est := TrendEstimate{PhiNow: 0.18, SlopePerDay: -0.02}

	res := ProjectETA(est, now, 36500)
	if !res.Closing {
		t.Fatal("negative slope should project a closing ETA")
	}
	if math.Abs(res.ETADays-9.0) > 1e-9 {
		t.Fatalf("eta %.6f days, want 9.0", res.ETADays)
	}
	if res.Status != StatusConverging {
		t.Fatalf("status %q, want %q", res.Status, StatusConverging)
	}
	wantDate := now.Add(9 * 24 * time.Hour)
	if d := res.ETADate.Sub(wantDate); d < -time.Second || d > time.Second {
		t.Fatalf("eta date %v, want about %v", res.ETADate, wantDate)
	}
}

func TestProjectETAMonotonicInPhiNow(t *testing.T) {
	now := time.Now().UTC()
	phis := []float64{0.02, 0.05, 0.1, 0.18, 0.3, 0.6, 1.2}

	prev := -1.0
	for _, phi := range phis {
		res := ProjectETA(TrendEstimate{PhiNow: phi, SlopePerDay: -0.02}, now, 36500)
		if !res.Closing {
			t.Fatalf("phi %.2f: expected closing projection", phi)
		}
		if res.ETADays <= prev {
			t.Fatalf("phi %.2f: eta %.4f days not greater than %.4f for a smaller gap", phi, res.ETADays, prev)
		}
		prev = res.ETADays
	}

	// The sign of the gap must not matter; only its magnitude does.
	neg := ProjectETA(TrendEstimate{PhiNow: -0.18, SlopePerDay: -0.02}, now, 36500)
	pos := ProjectETA(TrendEstimate{PhiNow: 0.18, SlopePerDay: -0.02}, now, 36500)
	if math.Abs(neg.ETADays-pos.ETADays) > 1e-12 {
		t.Fatalf("eta for -phi %.6f differs from +phi %.6f", neg.ETADays, pos.ETADays)
	}
}

func TestProjectETADivergingSlope(t *testing.T) {
	now := time.Now().UTC()
	res := ProjectETA(TrendEstimate{PhiNow: 0.18, SlopePerDay: 0.01}, now, 36500)
	if res.Closing {
		t.Fatal("non-negative slope must not project an ETA")
	}
	if res.Status != StatusDiverging {
		t.Fatalf("status %q, want %q", res.Status, StatusDiverging)
	}
	if res.ETADays != 0 {
		t.Fatalf("diverging result should carry no ETA, got %.3f", res.ETADays)
	}
}

func TestProjectETAZeroSlopeIsDiverging(t *testing.T) {
	res := ProjectETA(TrendEstimate{PhiNow: 0.18, SlopePerDay: 0}, time.Now().UTC(), 36500)
	if res.Status != StatusDiverging {
		t.Fatalf("flat slope: status %q, want %q", res.Status, StatusDiverging)
	}
}

func TestProjectETABeyondCapIsStable(t *testing.T) {
	now := time.Now().UTC()
	res := ProjectETA(TrendEstimate{PhiNow: 0.18, SlopePerDay: -1e-9}, now, 36500)
	if res.Closing {
		t.Fatal("ETA beyond the cap must not count as closing")
	}
	if res.Status != StatusStable {
		t.Fatalf("status %q, want %q", res.Status, StatusStable)
	}
	if !strings.Contains(res.Note, "100 years") {
		t.Fatalf("note %q should mention the cap", res.Note)
	}
}

func TestProjectETAImminentNote(t *testing.T) {
	res := ProjectETA(TrendEstimate{PhiNow: 0.01, SlopePerDay: -0.02}, time.Now().UTC(), 36500)
	if !res.Closing {
		t.Fatal("expected closing projection")
	}
	if !strings.Contains(res.Note, "imminent") {
		t.Fatalf("sub-day ETA should be flagged imminent, note %q", res.Note)
	}
}

func TestProjectETABands(t *testing.T) {
	est := TrendEstimate{
		PhiNow:      0.18,
		SlopePerDay: -0.02,
		ResidualStd: 0.01,
		SlopeStdErr: 0.001,
		StdErrValid: true,
	}
	res := ProjectETA(est, time.Now().UTC(), 36500)
	if !res.HasBands {
		t.Fatal("valid standard errors should produce bands")
	}

	sigma := math.Hypot(0.01/0.02, 0.18*0.001/(0.02*0.02))
	if math.Abs((res.CI68.High-res.CI68.Low)/2-sigma) > 1e-9 {
		t.Fatalf("68%% half-width %.6f, want %.6f", (res.CI68.High-res.CI68.Low)/2, sigma)
	}
	if res.CI95.Low > res.CI68.Low || res.CI95.High < res.CI68.High {
		t.Fatal("95% band must contain the 68% band")
	}
	if res.CI68.Low < 0 || res.CI95.Low < 0 {
		t.Fatal("band lows must never go negative")
	}
}

func TestProjectETABandsAbsentWithoutStdErr(t *testing.T) {
	res := ProjectETA(TrendEstimate{PhiNow: 0.18, SlopePerDay: -0.02}, time.Now().UTC(), 36500)
	if res.HasBands {
		t.Fatal("no usable uncertainty, bands must be absent")
	}
}

func TestProjectETAClampsBandLow(t *testing.T) {
	// Wide uncertainty relative to a short ETA drives the raw lower bound
	// negative; it must be clamped at zero.
	est := TrendEstimate{
		PhiNow:      0.02,
		SlopePerDay: -0.02,
		ResidualStd: 0.2,
		SlopeStdErr: 0.01,
		StdErrValid: true,
	}
	res := ProjectETA(est, time.Now().UTC(), 36500)
	if !res.HasBands {
		t.Fatal("expected bands")
	}
	if res.CI95.Low != 0 {
		t.Fatalf("95%% low should clamp to 0, got %.6f", res.CI95.Low)
	}
}
