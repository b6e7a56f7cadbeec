package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"phase-gap-alerts/internal/engine"
	"phase-gap-alerts/internal/history"
	"phase-gap-alerts/internal/storage"
)

// replayStore is the slice of the repository the replay loop writes through.
type replayStore interface {
	InsertEstimate(ctx context.Context, est storage.ETAEstimateRecord) (storage.ETAEstimateRecord, error)
	InsertEvent(ctx context.Context, event storage.EventRecord) (storage.EventRecord, error)
	MarkSampleErrored(ctx context.Context, asOf time.Time, errMsg string) error
}

// Replay re-runs the evaluation pipeline over stored samples in time order,
// rebuilding the estimate and event audit trails. Useful after threshold
// changes: it shows where the trigger would have fired under the current
// configuration.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	from := opts.From.UTC()
	to := opts.To.UTC()
	if !from.Before(to) {
		return errors.New("replay range is empty, check --from/--to")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot replay")
	}
	if closeStore != nil {
		defer closeStore()
	}

	samples, err := store.ListSamplesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Msg("no samples in replay range")
		return nil
	}

	if opts.DryRun {
		a.Logger.Warn().Msg("replay dry-run: nothing will be written")
	}

	processed, transitions, err := a.replaySamples(ctx, samples, store, opts.DryRun)
	if err != nil {
		return err
	}

	a.Logger.Info().Int("processed", processed).Int("transitions", transitions).Msg("replay complete")
	return nil
}

func (a *App) replaySamples(ctx context.Context, samples []storage.PhaseSampleRecord, store replayStore, dryRun bool) (processed, transitions int, err error) {
	params := engine.ParamsFromConfig(a.Config.Engine)
	evaluator := engine.NewEvaluator(params, engine.State{}, a.Logger)
	series := history.NewStore(a.Config.Engine.HistoryCap)

	for _, rec := range samples {
		select {
		case <-ctx.Done():
			return processed, transitions, ctx.Err()
		default:
		}
		if rec.Status != "complete" {
			continue
		}

		phase, _ := rec.PhaseDeg.Float64()
		if appendErr := series.Append(history.Sample{AsOfUTC: rec.AsOfUTC, PhaseDeg: phase}); appendErr != nil {
			a.Logger.Warn().Err(appendErr).Time("as_of", rec.AsOfUTC).Msg("replay sample rejected")
			if !dryRun {
				if markErr := store.MarkSampleErrored(ctx, rec.AsOfUTC, appendErr.Error()); markErr != nil {
					a.Logger.Warn().Err(markErr).Time("as_of", rec.AsOfUTC).Msg("failed to mark sample errored")
				}
			}
			continue
		}

		// Clarity is not retained historically; replay assumes the entry
		// threshold was met so the phase-side behaviour is fully exercised.
		res := evaluator.Evaluate(series.Snapshot(), engine.Inputs{
			Now:       rec.AsOfUTC,
			Clarity:   1,
			ClarityOK: true,
		})
		processed++

		if !dryRun && res.Estimate != nil {
			est := storage.ETAEstimateRecord{
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
				est.ETADays = &days
				est.ETADate = &date
			}
			if _, insErr := store.InsertEstimate(ctx, est); insErr != nil {
				a.Logger.Error().Err(insErr).Time("as_of", res.AsOf).Msg("failed to persist replayed estimate")
			}
		}

		if !res.Transitioned {
			continue
		}
		transitions++

		eventType := storage.EventTypeReset
		if res.State.IsTriggered {
			eventType = storage.EventTypeTrigger
		}
		a.Logger.Info().Time("as_of", rec.AsOfUTC).
			Str("event_type", eventType).
			Float64("phase_gap_deg", res.PhaseGapDeg).
			Msg("replay transition")

		if dryRun {
			continue
		}

		event := storage.EventRecord{
			OccurredAt:  res.AsOf,
			EventType:   eventType,
			PhaseGapDeg: decimal.NewFromFloat(res.PhaseGapDeg),
			Confidence:  decimal.NewFromFloat(res.Confidence),
		}
		if evidence, marshalErr := json.Marshal(res.StatusRecord().Evidence); marshalErr == nil {
			event.Evidence = evidence
		}
		if _, insErr := store.InsertEvent(ctx, event); insErr != nil {
			a.Logger.Error().Err(insErr).Time("as_of", res.AsOf).Msg("failed to persist replayed event")
		}
	}

	return processed, transitions, nil
}
