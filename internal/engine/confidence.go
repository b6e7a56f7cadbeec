package engine

import "math"

// ConfidenceScore folds the clarity metric, the dispersion of recent ETA
// estimates, and the closing streak into a single [0,1] score.
//
// The score is monotonic in each input: non-decreasing in clarity,
// non-increasing in dispersion, non-decreasing in the confirmed count.
// Dispersion discounts up to 30% of the clarity base as the ETA IQR
// approaches scaleDays; each confirmation at or beyond the minimum streak k
// adds 0.075, saturating at +0.2.
func ConfidenceScore(clarity, etaIQRDays float64, samplesConfirmed, k int, scaleDays float64) float64 {
	clarity = clamp01(clarity)

	dispersion := 0.0
	if scaleDays > 0 && etaIQRDays > 0 {
		dispersion = math.Min(1, etaIQRDays/scaleDays)
	}
	score := clarity * (1 - 0.3*dispersion)

	if samplesConfirmed >= k {
		score += math.Min(0.2, 0.075*float64(samplesConfirmed-k+1))
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
