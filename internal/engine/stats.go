package engine

import (
	"math"
	"sort"
)

// percentile computes the p-th percentile (0..100) with linear interpolation
// between closest ranks, matching the numpy default.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// iqr returns the interquartile range of values.
func iqr(values []float64) float64 {
	return percentile(values, 75) - percentile(values, 25)
}

func median(values []float64) float64 {
	return percentile(values, 50)
}

// kendallTau computes Kendall's rank correlation of values against their
// index order, with a two-sided p-value from the normal approximation.
// Ties in values are handled with the tau-b denominator.
func kendallTau(values []float64) (tau, pValue float64, ok bool) {
	n := len(values)
	if n < 2 {
		return 0, 1, false
	}

	var concordant, discordant, tiesY int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			switch {
			case values[j] > values[i]:
				concordant++
			case values[j] < values[i]:
				discordant++
			default:
				tiesY++
			}
		}
	}

	s := float64(concordant - discordant)
	n0 := float64(n*(n-1)) / 2
	denom := math.Sqrt(n0 * (n0 - float64(tiesY)))
	if denom == 0 {
		return 0, 1, false
	}
	tau = s / denom

	// Normal approximation for the null distribution of S.
	varS := float64(n*(n-1)*(2*n+5)) / 18
	if varS <= 0 {
		return tau, 1, false
	}
	z := s / math.Sqrt(varS)
	pValue = math.Erfc(math.Abs(z) / math.Sqrt2)
	return tau, pValue, true
}
