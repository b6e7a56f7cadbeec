package ingest

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PhaseObservation is one upstream phase-gap reading.
type PhaseObservation struct {
	AsOfUTC  time.Time
	PhaseDeg decimal.Decimal
	Source   string
}

// SampleFetcher retrieves the latest phase-gap observation.
type SampleFetcher interface {
	FetchSample(ctx context.Context) (PhaseObservation, error)
}

// ClarityFetcher retrieves the externally computed clarity metric in [0,1].
type ClarityFetcher interface {
	FetchClarity(ctx context.Context) (float64, error)
}
