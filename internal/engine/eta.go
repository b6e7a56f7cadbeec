package engine

import (
	"math"
	"time"
)

// Convergence status values carried on ETAResult and audit records.
const (
	StatusConverging       = "CONVERGING"
	StatusDiverging        = "DIVERGING"
	StatusStable           = "STABLE"
	StatusInsufficientData = "INSUFFICIENT_DATA"
)

// Band is a symmetric confidence interval on the ETA, in days.
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// ETAResult is the projected time-to-zero. ETADays/ETADate are meaningful
// only when Closing is true; bands only when HasBands is true. Absence is a
// normal outcome, not an error.
type ETAResult struct {
	Closing  bool
	ETADays  float64
	ETADate  time.Time
	CI68     Band
	CI95     Band
	HasBands bool
	Status   string
	Note     string
}

// ProjectETA converts the fitted trend into a time-to-zero estimate.
//
// A non-negative slope means the gap is not closing: the ETA is absent with
// an explicit DIVERGING status. An ETA beyond maxETADays (100 years by
// default) is reported but classified STABLE: numerically closing, not
// meaningfully converging. The 68/95% bands propagate the fit's residual and
// slope standard errors through eta = |phi| / |slope|; when the fit carried
// no usable uncertainty the bands are absent rather than fabricated.
func ProjectETA(est TrendEstimate, now time.Time, maxETADays float64) ETAResult {
	if est.SlopePerDay >= 0 {
		return ETAResult{Status: StatusDiverging, Note: "phase gap not closing (slope >= 0)"}
	}

	etaDays := math.Abs(est.PhiNow) / -est.SlopePerDay
	res := ETAResult{
		Closing: true,
		ETADays: etaDays,
		ETADate: now.UTC().Add(time.Duration(etaDays * secondsPerDay * float64(time.Second))),
		Status:  StatusConverging,
	}

	if maxETADays > 0 && etaDays > maxETADays {
		res.Closing = false
		res.Status = StatusStable
		res.Note = "ETA exceeds 100 years - likely not converging"
	} else if etaDays < 1 {
		res.Note = "convergence imminent (<1 day)"
	}

	if est.StdErrValid {
		m := est.SlopePerDay
		dPhi := est.ResidualStd / math.Abs(m)
		dSlope := math.Abs(est.PhiNow) * est.SlopeStdErr / (m * m)
		sigma := math.Hypot(dPhi, dSlope)

		res.CI68 = Band{Low: math.Max(0, etaDays-sigma), High: etaDays + sigma}
		res.CI95 = Band{Low: math.Max(0, etaDays-1.96*sigma), High: etaDays + 1.96*sigma}
		res.HasBands = true
	}

	return res
}
