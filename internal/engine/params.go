package engine

import (
	"time"

	"phase-gap-alerts/internal/config"
)

// Params carries every threshold the evaluation pipeline reads. Built once
// from validated configuration; the engine itself never consults config.
type Params struct {
	EnterThresholdDeg float64
	ExitThresholdDeg  float64
	ClarityThreshold  float64
	ConfirmSamples    int
	FreshnessMax      time.Duration

	WindowMaxDays    int
	WindowMinSamples int
	FallbackSamples  int
	MinSpanDays      int
	MaxGapDays       int

	TrimIterations int
	TrimLowPct     float64
	TrimHighPct    float64
	FitMinSamples  int

	MaxETADays   float64
	RequireTau   bool
	TauAlpha     float64
	TauMinPoints int

	DispersionScaleDays float64
}

// ParamsFromConfig maps validated engine configuration into Params.
func ParamsFromConfig(cfg config.EngineConfig) Params {
	return Params{
		EnterThresholdDeg:   cfg.EnterThresholdDeg,
		ExitThresholdDeg:    cfg.ExitThresholdDeg,
		ClarityThreshold:    cfg.ClarityThreshold,
		ConfirmSamples:      cfg.ConfirmSamples,
		FreshnessMax:        cfg.FreshnessMax,
		WindowMaxDays:       cfg.WindowMaxDays,
		WindowMinSamples:    cfg.WindowMinSamples,
		FallbackSamples:     cfg.FallbackSamples,
		MinSpanDays:         cfg.MinSpanDays,
		MaxGapDays:          cfg.MaxGapDays,
		TrimIterations:      cfg.TrimIterations,
		TrimLowPct:          cfg.TrimLowPct,
		TrimHighPct:         cfg.TrimHighPct,
		FitMinSamples:       cfg.FitMinSamples,
		MaxETADays:          cfg.MaxETADays,
		RequireTau:          cfg.RequireTau,
		TauAlpha:            cfg.TauAlpha,
		TauMinPoints:        cfg.TauMinPoints,
		DispersionScaleDays: cfg.DispersionScaleDays,
	}
}

// DefaultParams returns the reference thresholds used when no configuration
// is supplied (tests, simulations).
func DefaultParams() Params {
	return Params{
		EnterThresholdDeg:   1.0,
		ExitThresholdDeg:    1.5,
		ClarityThreshold:    0.65,
		ConfirmSamples:      3,
		FreshnessMax:        24 * time.Hour,
		WindowMaxDays:       300,
		WindowMinSamples:    20,
		FallbackSamples:     200,
		MinSpanDays:         0,
		MaxGapDays:          30,
		TrimIterations:      2,
		TrimLowPct:          5,
		TrimHighPct:         95,
		FitMinSamples:       10,
		MaxETADays:          36500,
		RequireTau:          false,
		TauAlpha:            0.05,
		TauMinPoints:        8,
		DispersionScaleDays: 90,
	}
}
