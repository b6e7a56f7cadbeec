package engine

// Validation reports whether the closing trend persists beyond single-sample
// noise. SamplesConfirmed is the length of the current unbroken streak of
// negative phase differences ending at the latest sample.
type Validation struct {
	SamplesConfirmed int
	Confirmed        bool

	// Kendall tau of the recent unwrapped series against time order.
	// TauValid is false when the series is too short for the statistic.
	Tau            float64
	TauPValue      float64
	TauValid       bool
	TauSignificant bool
}

// ValidateClosing confirms sustained closing behaviour over the unwrapped
// window series. A single non-negative difference resets the streak to zero.
// The rank-correlation check is computed alongside; whether it gates entry
// is controlled by Params.RequireTau.
func ValidateClosing(phase []float64, p Params) Validation {
	var v Validation

	for i := len(phase) - 1; i > 0; i-- {
		if phase[i]-phase[i-1] >= 0 {
			break
		}
		v.SamplesConfirmed++
	}

	if len(phase) >= p.TauMinPoints {
		tail := phase
		// Bound the tau window so ancient behaviour cannot outvote the
		// recent trend; 50 points mirrors the fallback history depth.
		if len(tail) > 50 {
			tail = tail[len(tail)-50:]
		}
		v.Tau, v.TauPValue, v.TauValid = kendallTau(tail)
		if v.TauValid {
			v.TauSignificant = v.Tau < 0 && v.TauPValue < p.TauAlpha
		}
	}

	v.Confirmed = v.SamplesConfirmed >= p.ConfirmSamples
	if p.RequireTau {
		v.Confirmed = v.Confirmed && v.TauSignificant
	}
	return v
}

// AssessStability classifies the spread of recent ETA estimates, with the
// tau trend as a qualifier. Mirrors the reporting bands used upstream.
func AssessStability(iqrDays float64, tau float64, tauValid bool) string {
	switch {
	case iqrDays > 90:
		return "UNSTABLE - prediction varies widely (>90 days IQR)"
	case iqrDays > 45:
		return "MODERATE - some variability in prediction"
	default:
		assessment := "STABLE - consistent prediction band"
		if tauValid && tau < -0.3 {
			assessment += " with accelerating convergence"
		} else if tauValid && tau > 0.3 {
			assessment += " but slope increasing (diverging trend)"
		}
		return assessment
	}
}
