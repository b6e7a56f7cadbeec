package engine

import (
	"math"
	"testing"
)

// wrapDeg maps an angle onto [-180, 180).
func wrapDeg(deg float64) float64 {
	w := math.Mod(deg+180, 360)
	if w < 0 {
		w += 360
	}
	return w - 180
}

func TestUnwrapRoundTrip(t *testing.T) {
	// True continuous series with per-step changes below 180 degrees,
	// crossing the wrap boundary several times in both directions.
	truth := []float64{0}
	steps := []float64{170, 170, -120, 179, -179, 90, 90, 90, -170, -170}
	for _, s := range steps {
		truth = append(truth, truth[len(truth)-1]+s)
	}

	wrapped := make([]float64, len(truth))
	for i, v := range truth {
		wrapped[i] = wrapDeg(v)
	}

	unwrapped := UnwrapDegrees(wrapped)

	for i := 1; i < len(truth); i++ {
		want := (truth[i] - truth[i-1]) * math.Pi / 180
		got := unwrapped[i] - unwrapped[i-1]
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("step %d: relative change %.12f, want %.12f", i, got, want)
		}
	}
}

func TestUnwrapSmallChangesUntouched(t *testing.T) {
	deg := []float64{10, 12, 9, 11, 10.5}
	unwrapped := UnwrapDegrees(deg)
	for i, d := range deg {
		want := d * math.Pi / 180
		if math.Abs(unwrapped[i]-want) > 1e-12 {
			t.Fatalf("index %d: %.12f, want %.12f", i, unwrapped[i], want)
		}
	}
}

func TestUnwrapEmptyAndSingle(t *testing.T) {
	if got := UnwrapDegrees(nil); len(got) != 0 {
		t.Fatalf("empty input should produce empty output, got %v", got)
	}
	got := UnwrapDegrees([]float64{90})
	if len(got) != 1 || math.Abs(got[0]-math.Pi/2) > 1e-12 {
		t.Fatalf("single sample mangled: %v", got)
	}
}
