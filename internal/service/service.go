package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"phase-gap-alerts/internal/alerting"
	"phase-gap-alerts/internal/config"
	"phase-gap-alerts/internal/engine"
	"phase-gap-alerts/internal/history"
	"phase-gap-alerts/internal/ingest"
	"phase-gap-alerts/internal/scheduler"
	"phase-gap-alerts/internal/storage"
)

// sampleStatusComplete marks a successfully ingested sample row.
const sampleStatusComplete = "complete"

// sampleStatusErrored marks a row whose observation could not enter the
// evaluation history. Restore skips these.
const sampleStatusErrored = "errored"

// estimateRetention bounds the projection audit trail. Estimates this old no
// longer feed the dispersion window and only bloat the table.
const estimateRetention = 365 * 24 * time.Hour

// Service orchestrates ingestion, evaluation, persistence, and alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	samples   ingest.SampleFetcher
	clarity   ingest.ClarityFetcher
	store     storage.SampleStore
	estimates storage.EstimateStore
	events    storage.EventStore
	states    storage.StateStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	history   *history.Store
	params    engine.Params
	evaluator *engine.Evaluator

	channels       []string
	alertsOn       bool
	locker         storage.AdvisoryLocker
	lockKey        int64
	clarityTimeout time.Duration
	historyCap     int
}

// Stores bundles the persistence interfaces the service writes through.
// Any member may be nil; the service then runs memory-only for that concern.
type Stores struct {
	Samples   storage.SampleStore
	Estimates storage.EstimateStore
	Events    storage.EventStore
	States    storage.StateStore
}

// New constructs the convergence watch service.
func New(cfg *config.Config, sched *scheduler.Scheduler, samples ingest.SampleFetcher, clarity ingest.ClarityFetcher, stores Stores, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := stores.Samples.(storage.AdvisoryLocker); ok {
		locker = l
	}

	clarityTimeout := cfg.Ingest.RequestTimeout
	if clarityTimeout <= 0 {
		clarityTimeout = 10 * time.Second
	}

	return &Service{
		scheduler:      sched,
		samples:        samples,
		clarity:        clarity,
		store:          stores.Samples,
		estimates:      stores.Estimates,
		events:         stores.Events,
		states:         stores.States,
		notifier:       notifier,
		logger:         logger.With().Str("component", "service").Logger(),
		history:        history.NewStore(cfg.Engine.HistoryCap),
		params:         engine.ParamsFromConfig(cfg.Engine),
		channels:       cfg.Alerting.Channels,
		alertsOn:       cfg.Alerting.Enabled,
		locker:         locker,
		lockKey:        cfg.Scheduler.AdvisoryLockKey,
		clarityTimeout: clarityTimeout,
		historyCap:     cfg.Engine.HistoryCap,
	}
}

// Restore rebuilds in-memory state from persistence: the sample history, the
// trigger state, and the recent ETA estimates feeding the dispersion window.
// Must run before the first evaluation; restoring the trigger state is what
// keeps a restart from re-firing an already-delivered alert.
func (s *Service) Restore(ctx context.Context) error {
	initial := engine.State{}

	if s.store != nil {
		limit := s.historyCap
		if limit <= 0 {
			limit = 5000
		}
		records, err := s.store.ListRecentSamples(ctx, limit)
		if err != nil {
			return fmt.Errorf("restore samples: %w", err)
		}
		loaded := make([]history.Sample, 0, len(records))
		for _, rec := range records {
			if rec.Status != sampleStatusComplete {
				continue
			}
			phase, _ := rec.PhaseDeg.Float64()
			loaded = append(loaded, history.Sample{AsOfUTC: rec.AsOfUTC, PhaseDeg: phase})
		}
		if err := s.history.Load(loaded); err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		total, err := s.store.CountSamples(ctx)
		if err != nil {
			total = int64(len(loaded))
		}
		s.logger.Info().Int("samples", len(loaded)).Int64("persisted_total", total).Msg("history restored")
	}

	if s.states != nil {
		rec, found, err := s.states.LoadEventState(ctx)
		if err != nil {
			return fmt.Errorf("restore event state: %w", err)
		}
		if found {
			initial = engine.State{
				IsTriggered:      rec.IsTriggered,
				Since:            rec.Since,
				SamplesConfirmed: rec.SamplesConfirmed,
			}
			s.logger.Info().Bool("is_triggered", rec.IsTriggered).Msg("trigger state restored")
		}
	}

	s.evaluator = engine.NewEvaluator(s.params, initial, s.logger)

	if s.estimates != nil {
		records, err := s.estimates.ListRecentEstimates(ctx, 50)
		if err != nil {
			return fmt.Errorf("restore estimates: %w", err)
		}
		etaDays := make([]float64, 0, len(records))
		// Newest first from the store; seed oldest first.
		for i := len(records) - 1; i >= 0; i-- {
			if records[i].ETADays != nil {
				etaDays = append(etaDays, *records[i].ETADays)
			}
		}
		s.evaluator.SeedETAHistory(etaDays)
	}

	return nil
}

// Run begins the aligned evaluation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if s.evaluator == nil {
		if err := s.Restore(ctx); err != nil {
			return err
		}
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick executes one ingestion and evaluation round.
func (s *Service) ProcessTick(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeTick(ctx, bucket)
}

func (s *Service) executeTick(ctx context.Context, bucket time.Time) error {
	if s.evaluator == nil {
		if err := s.Restore(ctx); err != nil {
			return err
		}
	}

	obs, fetchErr := s.samples.FetchSample(ctx)
	if fetchErr != nil {
		// A missed sample is not fatal: the evaluation still runs on the
		// retained history and freshness decay does the rest.
		s.logger.Error().Err(fetchErr).Time("bucket", bucket).Msg("sample fetch failed")
	} else {
		phase, _ := obs.PhaseDeg.Float64()
		if err := s.history.Append(history.Sample{AsOfUTC: obs.AsOfUTC, PhaseDeg: phase}); err != nil {
			s.logger.Error().Err(err).Time("as_of", obs.AsOfUTC).Msg("sample rejected")
			if s.store != nil && !obs.AsOfUTC.IsZero() {
				msg := err.Error()
				rec := storage.PhaseSampleRecord{
					AsOfUTC:  obs.AsOfUTC,
					PhaseDeg: obs.PhaseDeg,
					Source:   obs.Source,
					Status:   sampleStatusErrored,
					Error:    &msg,
				}
				if upsertErr := s.store.UpsertPhaseSample(ctx, rec); upsertErr != nil {
					s.logger.Error().Err(upsertErr).Time("as_of", obs.AsOfUTC).Msg("failed to record rejected sample")
				}
			}
		} else if s.store != nil {
			rec := storage.PhaseSampleRecord{
				AsOfUTC:  obs.AsOfUTC,
				PhaseDeg: obs.PhaseDeg,
				Source:   obs.Source,
				Status:   sampleStatusComplete,
			}
			if err := s.store.UpsertPhaseSample(ctx, rec); err != nil {
				s.logger.Error().Err(err).Time("as_of", obs.AsOfUTC).Msg("failed to upsert sample")
			}
		}
	}

	clarity, clarityOK := s.fetchClarity(ctx)

	res := s.evaluator.Evaluate(s.history.Snapshot(), engine.Inputs{
		Now:       time.Now().UTC(),
		Clarity:   clarity,
		ClarityOK: clarityOK,
	})

	s.persistOutcome(ctx, res)

	s.logger.Info().Time("bucket", bucket).
		Bool("is_triggered", res.State.IsTriggered).
		Float64("phase_gap_deg", res.PhaseGapDeg).
		Float64("confidence", res.Confidence).
		Str("status", res.ETA.Status).
		Msg("evaluation recorded")

	if res.AlertEmitted {
		s.dispatchAlert(ctx, res)
	}

	return nil
}

// fetchClarity reads the clarity metric with its own bounded timeout. Any
// failure reads as unknown; the engine treats unknown clarity as zero.
func (s *Service) fetchClarity(ctx context.Context) (float64, bool) {
	if s.clarity == nil {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(ctx, s.clarityTimeout)
	defer cancel()

	value, err := s.clarity.FetchClarity(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("clarity fetch failed, treating as unknown")
		return 0, false
	}
	return value, true
}

func (s *Service) persistOutcome(ctx context.Context, res engine.Result) {
	if s.estimates != nil && res.Estimate != nil {
		rec := storage.ETAEstimateRecord{
			AsOfUTC:        res.AsOf,
			SlopeRadPerDay: res.Estimate.SlopePerDay,
			PhiNowRad:      res.Estimate.PhiNow,
			NUsed:          res.Estimate.NUsed,
			Status:         res.ETA.Status,
			Stability:      res.Stability,
		}
		if res.ETA.Closing {
			days := res.ETA.ETADays
			date := res.ETA.ETADate
			rec.ETADays = &days
			rec.ETADate = &date
		}
		if _, err := s.estimates.InsertEstimate(ctx, rec); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist estimate")
		}
		if err := s.estimates.DeleteEstimatesBefore(ctx, res.AsOf.Add(-estimateRetention)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to prune old estimates")
		}
	}

	if s.states != nil {
		state := storage.EventStateRecord{
			IsTriggered:      res.State.IsTriggered,
			Since:            res.State.Since,
			SamplesConfirmed: res.State.SamplesConfirmed,
		}
		if err := s.states.SaveEventState(ctx, state); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist trigger state")
		}
	}

	if s.events != nil && res.Transitioned {
		eventType := storage.EventTypeReset
		if res.State.IsTriggered {
			eventType = storage.EventTypeTrigger
		}

		rec := storage.EventRecord{
			OccurredAt:  res.AsOf,
			EventType:   eventType,
			PhaseGapDeg: decimal.NewFromFloat(res.PhaseGapDeg),
			Confidence:  decimal.NewFromFloat(res.Confidence),
		}
		if res.ClarityOK {
			gti := decimal.NewFromFloat(res.Clarity)
			rec.GTI = &gti
		}
		if evidence, err := json.Marshal(res.StatusRecord().Evidence); err == nil {
			rec.Evidence = evidence
		}
		if _, err := s.events.InsertEvent(ctx, rec); err != nil {
			s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to persist event")
		}
	}
}

func (s *Service) dispatchAlert(ctx context.Context, res engine.Result) {
	if !s.alertsOn || s.notifier == nil {
		return
	}

	note := alerting.Notification{
		AsOfUTC:     res.AsOf,
		EventType:   storage.EventTypeTrigger,
		PhaseGapDeg: res.PhaseGapDeg,
		Confidence:  res.Confidence,
		Confirmed:   res.Validation.SamplesConfirmed,
		Channels:    s.channels,
	}
	if res.ClarityOK {
		gti := res.Clarity
		note.GTI = &gti
	}
	if res.Estimate != nil {
		note.ClosingRate = -res.Estimate.SlopePerDay * 180 / math.Pi
	}
	if res.ETA.Closing {
		days := res.ETA.ETADays
		date := res.ETA.ETADate
		note.ETADays = &days
		note.ETADate = &date
	}

	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Msg("failed to dispatch alert")
	}
}

// EvaluateNow runs one evaluation over the restored history without
// persisting or alerting. Reporting commands use it for a read-only view;
// the trigger state still advances in memory, which is the behaviour a
// status probe against stale data should show.
func (s *Service) EvaluateNow(ctx context.Context) (engine.Result, error) {
	if s.evaluator == nil {
		if err := s.Restore(ctx); err != nil {
			return engine.Result{}, err
		}
	}
	clarity, clarityOK := s.fetchClarity(ctx)
	return s.evaluator.Evaluate(s.history.Snapshot(), engine.Inputs{
		Now:       time.Now().UTC(),
		Clarity:   clarity,
		ClarityOK: clarityOK,
	}), nil
}

// History exposes the in-memory sample store for reporting commands.
func (s *Service) History() *history.Store {
	return s.history
}

// Evaluator exposes the engine for reporting commands. Nil until Restore.
func (s *Service) Evaluator() *engine.Evaluator {
	return s.evaluator
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
