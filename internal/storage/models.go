package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PhaseSampleRecord represents a persisted phase-gap observation.
type PhaseSampleRecord struct {
	AsOfUTC   time.Time
	PhaseDeg  decimal.Decimal
	Source    string
	Status    string
	Error     *string
	CreatedAt time.Time
}

// ETAEstimateRecord captures one projection for trend-dispersion auditing.
type ETAEstimateRecord struct {
	ID             int64
	AsOfUTC        time.Time
	SlopeRadPerDay float64
	PhiNowRad      float64
	ETADays        *float64
	ETADate        *time.Time
	NUsed          int
	Status         string
	Stability      string
	CreatedAt      time.Time
}

// EventRecord captures a trigger transition for auditing.
type EventRecord struct {
	ID          int64
	OccurredAt  time.Time
	EventType   string
	PhaseGapDeg decimal.Decimal
	GTI         *decimal.Decimal
	Confidence  decimal.Decimal
	Evidence    json.RawMessage
	CreatedAt   time.Time
}

// Event types recorded in convergence_events.
const (
	EventTypeTrigger = "TRIGGER"
	EventTypeReset   = "RESET"
)

// EventStateRecord is the persisted singleton trigger state, restored at
// startup so a restart cannot re-fire an already-emitted alert.
type EventStateRecord struct {
	IsTriggered      bool
	Since            time.Time
	SamplesConfirmed int
	UpdatedAt        time.Time
}
