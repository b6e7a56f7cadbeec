package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertPhaseSampleSQL = `INSERT INTO phase_samples (
        as_of_utc,
        phase_deg,
        source,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (as_of_utc) DO UPDATE
    SET
        phase_deg = EXCLUDED.phase_deg,
        source    = EXCLUDED.source,
        status    = EXCLUDED.status,
        error     = EXCLUDED.error;`

	listSamplesBetweenSQL = `SELECT
        as_of_utc,
        phase_deg,
        source,
        status,
        error,
        created_at
    FROM phase_samples
    WHERE as_of_utc >= $1
      AND as_of_utc < $2
    ORDER BY as_of_utc;`

	listRecentSamplesSQL = `SELECT
        as_of_utc,
        phase_deg,
        source,
        status,
        error,
        created_at
    FROM phase_samples
    ORDER BY as_of_utc DESC
    LIMIT $1;`

	markSampleErroredSQL = `UPDATE phase_samples
    SET status = 'errored', error = $2
    WHERE as_of_utc = $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM phase_samples;`

	insertEstimateSQL = `INSERT INTO eta_estimates (
        as_of_utc,
        slope_rad_per_day,
        phi_now_rad,
        eta_days,
        eta_date,
        n_used,
        status,
        stability
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id, created_at;`

	listRecentEstimatesSQL = `SELECT
        id,
        as_of_utc,
        slope_rad_per_day,
        phi_now_rad,
        eta_days,
        eta_date,
        n_used,
        status,
        stability,
        created_at
    FROM eta_estimates
    ORDER BY as_of_utc DESC
    LIMIT $1;`

	deleteEstimatesBeforeSQL = `DELETE FROM eta_estimates WHERE as_of_utc < $1;`

	insertEventSQL = `INSERT INTO convergence_events (
        occurred_at,
        event_type,
        phase_gap_deg,
        gti,
        confidence,
        evidence
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, created_at;`

	listRecentEventsSQL = `SELECT
        id,
        occurred_at,
        event_type,
        phase_gap_deg,
        gti,
        confidence,
        evidence,
        created_at
    FROM convergence_events
    ORDER BY occurred_at DESC
    LIMIT $1;`

	loadEventStateSQL = `SELECT
        is_triggered,
        since,
        samples_confirmed,
        updated_at
    FROM event_state
    WHERE id = 1;`

	saveEventStateSQL = `INSERT INTO event_state (
        id,
        is_triggered,
        since,
        samples_confirmed,
        updated_at
    ) VALUES (
        1,$1,$2,$3,NOW()
    )
    ON CONFLICT (id) DO UPDATE
    SET is_triggered      = EXCLUDED.is_triggered,
        since             = EXCLUDED.since,
        samples_confirmed = EXCLUDED.samples_confirmed,
        updated_at        = NOW();`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SampleStore defines operations for phase sample persistence.
type SampleStore interface {
	UpsertPhaseSample(ctx context.Context, sample PhaseSampleRecord) error
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PhaseSampleRecord, error)
	ListRecentSamples(ctx context.Context, limit int) ([]PhaseSampleRecord, error)
	MarkSampleErrored(ctx context.Context, asOf time.Time, errMsg string) error
	CountSamples(ctx context.Context) (int64, error)
}

// EstimateStore defines operations for the projection audit trail.
type EstimateStore interface {
	InsertEstimate(ctx context.Context, est ETAEstimateRecord) (ETAEstimateRecord, error)
	ListRecentEstimates(ctx context.Context, limit int) ([]ETAEstimateRecord, error)
	DeleteEstimatesBefore(ctx context.Context, olderThan time.Time) error
}

// EventStore defines operations for trigger-transition auditing.
type EventStore interface {
	InsertEvent(ctx context.Context, event EventRecord) (EventRecord, error)
	ListRecentEvents(ctx context.Context, limit int) ([]EventRecord, error)
}

// StateStore persists and restores the singleton trigger state.
type StateStore interface {
	LoadEventState(ctx context.Context) (EventStateRecord, bool, error)
	SaveEventState(ctx context.Context, state EventStateRecord) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to samples, estimates, events, and trigger state.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertPhaseSample persists or updates a phase sample. Conflicting
// timestamps overwrite, so corrected upstream readings replace the stale row.
func (s *Store) UpsertPhaseSample(ctx context.Context, sample PhaseSampleRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if sample.Error != nil {
		errMsg = *sample.Error
	}

	_, execErr := pool.Exec(ctx, upsertPhaseSampleSQL,
		sample.AsOfUTC,
		sample.PhaseDeg.String(),
		sample.Source,
		sample.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("upsert phase sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples within a half-open time window.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PhaseSampleRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]PhaseSampleRecord, 0)
	for rows.Next() {
		sample, scanErr := scanPhaseSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// ListRecentSamples lists the most recent samples ordered by descending timestamp.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]PhaseSampleRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]PhaseSampleRecord, 0, limit)
	for rows.Next() {
		sample, scanErr := scanPhaseSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// MarkSampleErrored marks a sample as errored.
func (s *Store) MarkSampleErrored(ctx context.Context, asOf time.Time, errMsg string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markSampleErroredSQL, asOf, errMsg)
	if execErr != nil {
		return fmt.Errorf("mark sample errored: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// InsertEstimate appends a projection to the audit trail.
func (s *Store) InsertEstimate(ctx context.Context, est ETAEstimateRecord) (ETAEstimateRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return ETAEstimateRecord{}, err
	}

	var etaDays, etaDate interface{}
	if est.ETADays != nil {
		etaDays = *est.ETADays
	}
	if est.ETADate != nil {
		etaDate = *est.ETADate
	}

	row := pool.QueryRow(ctx, insertEstimateSQL,
		est.AsOfUTC,
		est.SlopeRadPerDay,
		est.PhiNowRad,
		etaDays,
		etaDate,
		est.NUsed,
		est.Status,
		est.Stability,
	)
	if scanErr := row.Scan(&est.ID, &est.CreatedAt); scanErr != nil {
		return ETAEstimateRecord{}, fmt.Errorf("insert estimate: %w", scanErr)
	}
	return est, nil
}

// ListRecentEstimates lists the most recent projections, newest first.
func (s *Store) ListRecentEstimates(ctx context.Context, limit int) ([]ETAEstimateRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentEstimatesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent estimates: %w", queryErr)
	}
	defer rows.Close()

	estimates := make([]ETAEstimateRecord, 0, limit)
	for rows.Next() {
		var (
			rec     ETAEstimateRecord
			etaDays sql.NullFloat64
			etaDate sql.NullTime
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.AsOfUTC,
			&rec.SlopeRadPerDay,
			&rec.PhiNowRad,
			&etaDays,
			&etaDate,
			&rec.NUsed,
			&rec.Status,
			&rec.Stability,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if etaDays.Valid {
			value := etaDays.Float64
			rec.ETADays = &value
		}
		if etaDate.Valid {
			value := etaDate.Time
			rec.ETADate = &value
		}
		estimates = append(estimates, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return estimates, nil
}

// DeleteEstimatesBefore prunes the projection audit trail.
func (s *Store) DeleteEstimatesBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteEstimatesBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete estimates before: %w", execErr)
	}
	return nil
}

// InsertEvent persists a trigger transition.
func (s *Store) InsertEvent(ctx context.Context, event EventRecord) (EventRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return EventRecord{}, err
	}

	var gti interface{}
	if event.GTI != nil {
		gti = event.GTI.String()
	}

	row := pool.QueryRow(ctx, insertEventSQL,
		event.OccurredAt,
		event.EventType,
		event.PhaseGapDeg.String(),
		gti,
		event.Confidence.String(),
		[]byte(event.Evidence),
	)
	if scanErr := row.Scan(&event.ID, &event.CreatedAt); scanErr != nil {
		return EventRecord{}, fmt.Errorf("insert event: %w", scanErr)
	}
	return event, nil
}

// ListRecentEvents lists most recent trigger transitions.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentEventsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent events: %w", queryErr)
	}
	defer rows.Close()

	events := make([]EventRecord, 0, limit)
	for rows.Next() {
		var (
			rec           EventRecord
			phaseGapStr   string
			gtiStr        sql.NullString
			confidenceStr string
			evidence      json.RawMessage
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.OccurredAt,
			&rec.EventType,
			&phaseGapStr,
			&gtiStr,
			&confidenceStr,
			&evidence,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		rec.PhaseGapDeg, convErr = decimal.NewFromString(phaseGapStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse phase gap: %w", convErr)
		}
		rec.Confidence, convErr = decimal.NewFromString(confidenceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse confidence: %w", convErr)
		}
		if gtiStr.Valid {
			value, parseErr := decimal.NewFromString(gtiStr.String)
			if parseErr != nil {
				return nil, fmt.Errorf("parse gti: %w", parseErr)
			}
			rec.GTI = &value
		}
		rec.Evidence = evidence

		events = append(events, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// LoadEventState restores the singleton trigger state. The second return is
// false when no state has been persisted yet.
func (s *Store) LoadEventState(ctx context.Context) (EventStateRecord, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return EventStateRecord{}, false, err
	}

	var rec EventStateRecord
	scanErr := pool.QueryRow(ctx, loadEventStateSQL).Scan(
		&rec.IsTriggered,
		&rec.Since,
		&rec.SamplesConfirmed,
		&rec.UpdatedAt,
	)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return EventStateRecord{}, false, nil
	}
	if scanErr != nil {
		return EventStateRecord{}, false, fmt.Errorf("load event state: %w", scanErr)
	}
	return rec, true, nil
}

// SaveEventState upserts the singleton trigger state.
func (s *Store) SaveEventState(ctx context.Context, state EventStateRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, saveEventStateSQL,
		state.IsTriggered,
		state.Since,
		state.SamplesConfirmed,
	); execErr != nil {
		return fmt.Errorf("save event state: %w", execErr)
	}
	return nil
}

func scanPhaseSample(rows pgx.Rows) (PhaseSampleRecord, error) {
	var (
		asOf      time.Time
		phaseStr  string
		source    string
		status    string
		errMsg    sql.NullString
		createdAt time.Time
	)

	if err := rows.Scan(
		&asOf,
		&phaseStr,
		&source,
		&status,
		&errMsg,
		&createdAt,
	); err != nil {
		return PhaseSampleRecord{}, err
	}

	phase, err := decimal.NewFromString(phaseStr)
	if err != nil {
		return PhaseSampleRecord{}, fmt.Errorf("parse phase deg: %w", err)
	}

	sample := PhaseSampleRecord{
		AsOfUTC:   asOf,
		PhaseDeg:  phase,
		Source:    source,
		Status:    status,
		CreatedAt: createdAt,
	}
	if errMsg.Valid {
		msg := errMsg.String
		sample.Error = &msg
	}
	return sample, nil
}
