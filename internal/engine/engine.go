// Package engine implements the phase-gap convergence and event-detection
// pipeline: angular unwrapping, robust trend fitting, ETA projection,
// closing-trend validation, the hysteretic trigger state machine, and
// confidence scoring. The pipeline is pure computation; all I/O stays at
// the caller's boundary.
package engine

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"phase-gap-alerts/internal/history"
)

// maxRecentETAs bounds the dispersion window used by the confidence scorer.
const maxRecentETAs = 50

// Inputs are the per-evaluation facts supplied from outside the history
// series: the evaluation clock and the externally computed clarity metric.
// ClarityOK is false when the clarity fetch failed or timed out; the engine
// then fails safe by treating clarity as zero, which can never trigger.
type Inputs struct {
	Now       time.Time
	Clarity   float64
	ClarityOK bool
}

// Result is the immutable outcome of one evaluation.
type Result struct {
	AsOf       time.Time
	Fresh      bool
	FreshHours float64
	Clarity    float64
	ClarityOK  bool

	// PhaseGapDeg is the fitted current gap (unwrapped, in degrees) when a
	// fit exists, otherwise the latest raw sample. HasPhase is false only
	// when the history is empty.
	PhaseGapDeg float64
	HasPhase    bool

	Estimate   *TrendEstimate
	ETA        ETAResult
	Validation Validation

	State        State
	Transitioned bool
	AlertEmitted bool

	Confidence float64
	Stability  string

	// FitErr carries ErrInsufficientData when no trend could be fitted.
	// Never fatal: the evaluation still produced a state decision.
	FitErr error
}

// Evaluator runs the synchronous evaluation pipeline and owns the trigger
// state. Evaluate holds an internal mutex for its full duration, so two
// near-simultaneous evaluations can never both observe OPEN and double-fire
// the one-shot alert.
type Evaluator struct {
	mu         sync.Mutex
	params     Params
	machine    *Machine
	recentETAs []float64
	logger     zerolog.Logger
}

// NewEvaluator constructs an Evaluator with the trigger in the given initial
// state (OPEN at first startup, or the last persisted state on restart).
func NewEvaluator(p Params, initial State, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		params:  p,
		machine: NewMachine(p, initial),
		logger:  logger.With().Str("component", "engine").Logger(),
	}
}

// ReadState returns the current trigger state without evaluating.
func (e *Evaluator) ReadState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.State()
}

// SeedETAHistory preloads recent ETA estimates (days) into the dispersion
// window, so confidence scoring survives process restarts.
func (e *Evaluator) SeedETAHistory(etaDays []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range etaDays {
		e.pushETA(d)
	}
}

// Evaluate runs one pass of the pipeline over a history snapshot:
// unwrap -> fit -> project -> validate -> transition -> score.
// Missing, sparse, or stale data are normal outcomes carried on the Result,
// never panics or hard failures.
func (e *Evaluator) Evaluate(samples []history.Sample, in Inputs) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.params
	res := Result{
		AsOf:      in.Now,
		Clarity:   in.Clarity,
		ClarityOK: in.ClarityOK,
	}
	if !in.ClarityOK {
		res.Clarity = 0
	}

	if len(samples) > 0 {
		latest := samples[len(samples)-1]
		age := in.Now.Sub(latest.AsOfUTC)
		res.FreshHours = age.Hours()
		res.Fresh = age <= p.FreshnessMax
		res.PhaseGapDeg = latest.PhaseDeg
		res.HasPhase = true
	}

	w, err := SelectWindow(samples, p)
	if err != nil {
		res.FitErr = err
		res.ETA = ETAResult{Status: StatusInsufficientData, Note: "too few samples for a trend fit"}
	} else {
		est, fitErr := FitTrend(w, p)
		if fitErr != nil {
			res.FitErr = fitErr
			res.ETA = ETAResult{Status: StatusInsufficientData, Note: "too few samples for a trend fit"}
		} else {
			res.Estimate = &est
			res.PhaseGapDeg = est.PhiNow * 180 / math.Pi
			res.Validation = ValidateClosing(w.Phase, p)
			res.ETA = ProjectETA(est, in.Now, p.MaxETADays)
			if res.ETA.Closing {
				e.pushETA(res.ETA.ETADays)
			}
		}
	}

	dispersion := 0.0
	if len(e.recentETAs) >= 4 {
		dispersion = iqr(e.recentETAs)
	}

	prev := e.machine.State()
	state, alerted := e.machine.Evaluate(TriggerInputs{
		Now:              in.Now,
		PhaseGapDeg:      res.PhaseGapDeg,
		Clarity:          res.Clarity,
		Confirmed:        res.Validation.Confirmed,
		SamplesConfirmed: res.Validation.SamplesConfirmed,
		Fresh:            res.Fresh && res.HasPhase,
	})
	res.State = state
	res.AlertEmitted = alerted
	res.Transitioned = prev.IsTriggered != state.IsTriggered

	if res.Estimate != nil {
		res.Confidence = ConfidenceScore(res.Clarity, dispersion,
			res.Validation.SamplesConfirmed, p.ConfirmSamples, p.DispersionScaleDays)
		res.Stability = AssessStability(dispersion, res.Validation.Tau, res.Validation.TauValid)
	}

	e.logger.Debug().
		Time("as_of", in.Now).
		Bool("fresh", res.Fresh).
		Bool("is_triggered", state.IsTriggered).
		Float64("phase_gap_deg", res.PhaseGapDeg).
		Float64("confidence", res.Confidence).
		Str("eta_status", res.ETA.Status).
		Msg("evaluation complete")

	return res
}

func (e *Evaluator) pushETA(etaDays float64) {
	e.recentETAs = append(e.recentETAs, etaDays)
	if len(e.recentETAs) > maxRecentETAs {
		e.recentETAs = e.recentETAs[len(e.recentETAs)-maxRecentETAs:]
	}
}

// Evidence is the audit payload on a status record: enough to reconstruct
// the trigger decision later.
type Evidence struct {
	ClosingRateDegPerDay float64 `json:"closing_rate_deg_per_day"`
	SamplesConfirmed     int     `json:"samples_confirmed"`
	DataFreshHours       float64 `json:"data_fresh_hours"`
}

// StatusRecord is the canonical event-status record exposed to reporting.
// The clarity metric keeps its upstream wire name "gti".
type StatusRecord struct {
	AsOfUTC     time.Time `json:"as_of_utc"`
	IsTriggered bool      `json:"is_triggered"`
	PhaseGapDeg *float64  `json:"phase_gap_deg"`
	GTI         *float64  `json:"gti"`
	Confidence  float64   `json:"confidence"`
	Evidence    Evidence  `json:"evidence"`
	Status      string    `json:"status"`
}

// StatusRecord renders the evaluation as the canonical status record.
func (r Result) StatusRecord() StatusRecord {
	rec := StatusRecord{
		AsOfUTC:     r.AsOf,
		IsTriggered: r.State.IsTriggered,
		Confidence:  r.Confidence,
		Status:      r.ETA.Status,
		Evidence: Evidence{
			SamplesConfirmed: r.Validation.SamplesConfirmed,
			DataFreshHours:   r.FreshHours,
		},
	}
	if r.HasPhase {
		gap := r.PhaseGapDeg
		rec.PhaseGapDeg = &gap
	}
	if r.ClarityOK {
		gti := r.Clarity
		rec.GTI = &gti
	}
	if r.Estimate != nil {
		// Positive when the gap is closing.
		rec.Evidence.ClosingRateDegPerDay = -r.Estimate.SlopePerDay * 180 / math.Pi
	}
	return rec
}

// Projection is the latest ETA projection exposed to reporting.
type Projection struct {
	AsOfUTC        time.Time `json:"as_of_utc"`
	Closing        bool      `json:"closing"`
	ETADays        *float64  `json:"eta_days,omitempty"`
	ETADate        *string   `json:"eta_date,omitempty"`
	CI68           *Band     `json:"ci68,omitempty"`
	CI95           *Band     `json:"ci95,omitempty"`
	SlopeRadPerDay *float64  `json:"slope_rad_per_day,omitempty"`
	PhiNowRad      *float64  `json:"phi_now_rad,omitempty"`
	NUsed          int       `json:"n_used,omitempty"`
	Status         string    `json:"status"`
	Note           string    `json:"note,omitempty"`
	Stability      string    `json:"stability,omitempty"`
}

// Projection renders the evaluation's ETA side.
func (r Result) Projection() Projection {
	proj := Projection{
		AsOfUTC:   r.AsOf,
		Closing:   r.ETA.Closing,
		Status:    r.ETA.Status,
		Note:      r.ETA.Note,
		Stability: r.Stability,
	}
	if r.Estimate != nil {
		slope := r.Estimate.SlopePerDay
		phi := r.Estimate.PhiNow
		proj.SlopeRadPerDay = &slope
		proj.PhiNowRad = &phi
		proj.NUsed = r.Estimate.NUsed
	}
	if r.ETA.Closing {
		days := r.ETA.ETADays
		date := r.ETA.ETADate.Format("2006-01-02")
		proj.ETADays = &days
		proj.ETADate = &date
		if r.ETA.HasBands {
			ci68 := r.ETA.CI68
			ci95 := r.ETA.CI95
			proj.CI68 = &ci68
			proj.CI95 = &ci95
		}
	}
	return proj
}
