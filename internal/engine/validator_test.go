package engine

import (
	"strings"
	"testing"
)

func TestValidateClosingStreak(t *testing.T) {
	p := DefaultParams()
	phase := []float64{1.0, 0.9, 0.95, 0.9, 0.85, 0.8}

	v := ValidateClosing(phase, p)
	if v.SamplesConfirmed != 3 {
		t.Fatalf("streak %d, want 3", v.SamplesConfirmed)
	}
	if !v.Confirmed {
		t.Fatal("streak of 3 meets the minimum of 3")
	}
}

func TestValidateClosingStreakResetOnWidening(t *testing.T) {
	p := DefaultParams()
	phase := []float64{1.0, 0.9, 0.8, 0.7, 0.75}

	v := ValidateClosing(phase, p)
	if v.SamplesConfirmed != 0 {
		t.Fatalf("widening latest sample must zero the streak, got %d", v.SamplesConfirmed)
	}
	if v.Confirmed {
		t.Fatal("must not confirm after a widening sample")
	}
}

func TestValidateClosingFlatDiffBreaksStreak(t *testing.T) {
	p := DefaultParams()
	phase := []float64{1.0, 0.9, 0.9, 0.8, 0.7}

	v := ValidateClosing(phase, p)
	if v.SamplesConfirmed != 2 {
		t.Fatalf("flat difference is not closing, streak %d, want 2", v.SamplesConfirmed)
	}
}

func TestValidateClosingTauOnMonotoneSeries(t *testing.T) {
	p := DefaultParams()
	phase := make([]float64, 12)
	for i := range phase {
		phase[i] = 1.0 - 0.05*float64(i)
	}

	v := ValidateClosing(phase, p)
	if !v.TauValid {
		t.Fatal("12 points should be enough for the rank statistic")
	}
	if v.Tau > -0.99 {
		t.Fatalf("strictly decreasing series: tau %.3f, want -1", v.Tau)
	}
	if !v.TauSignificant {
		t.Fatalf("tau %.3f p=%.6f should be significant", v.Tau, v.TauPValue)
	}
}

func TestValidateClosingTauSkippedOnShortSeries(t *testing.T) {
	p := DefaultParams()
	v := ValidateClosing([]float64{3, 2, 1}, p)
	if v.TauValid {
		t.Fatal("too few points for the rank statistic")
	}
}

func TestValidateClosingRequireTauGatesConfirmation(t *testing.T) {
	p := DefaultParams()
	p.RequireTau = true

	// A long rise followed by three closing samples: the streak alone would
	// confirm, the overall rank trend must veto it.
	phase := make([]float64, 20)
	for i := range phase {
		phase[i] = 0.5 + 0.05*float64(i)
	}
	phase = append(phase, 1.40, 1.35, 1.30)

	v := ValidateClosing(phase, p)
	if v.SamplesConfirmed < p.ConfirmSamples {
		t.Fatalf("setup broken: streak %d", v.SamplesConfirmed)
	}
	if v.Confirmed {
		t.Fatal("rising rank trend must block confirmation when gated on tau")
	}

	p.RequireTau = false
	v = ValidateClosing(phase, p)
	if !v.Confirmed {
		t.Fatal("without the tau gate the streak confirms")
	}
}

func TestAssessStabilityBands(t *testing.T) {
	if s := AssessStability(120, 0, false); !strings.HasPrefix(s, "UNSTABLE") {
		t.Fatalf("iqr 120: %q", s)
	}
	if s := AssessStability(60, 0, false); !strings.HasPrefix(s, "MODERATE") {
		t.Fatalf("iqr 60: %q", s)
	}
	if s := AssessStability(10, 0, false); !strings.HasPrefix(s, "STABLE") {
		t.Fatalf("iqr 10: %q", s)
	}
	if s := AssessStability(10, -0.5, true); !strings.Contains(s, "accelerating") {
		t.Fatalf("strong negative tau: %q", s)
	}
	if s := AssessStability(10, 0.5, true); !strings.Contains(s, "diverging") {
		t.Fatalf("strong positive tau: %q", s)
	}
}
