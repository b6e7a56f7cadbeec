package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"phase-gap-alerts/internal/alerting"
	"phase-gap-alerts/internal/engine"
	"phase-gap-alerts/internal/history"
	"phase-gap-alerts/internal/storage"
)

// Simulate drives a synthetic closing series through the full evaluation
// pipeline and reports where the trigger fires. With alerting enabled it
// also exercises the configured notifier end to end.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.Days < a.Config.Engine.WindowMinSamples {
		return fmt.Errorf("--days must be at least %d", a.Config.Engine.WindowMinSamples)
	}
	if opts.RatePerDay <= 0 {
		return errors.New("--rate must be a positive closing rate in deg/day")
	}

	params := engine.ParamsFromConfig(a.Config.Engine)
	evaluator := engine.NewEvaluator(params, engine.State{}, a.Logger)
	series := history.NewStore(a.Config.Engine.HistoryCap)

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -(opts.Days - 1))

	var triggered *engine.Result
	for day := 0; day < opts.Days; day++ {
		asOf := start.AddDate(0, 0, day)
		phase := opts.StartDeg - opts.RatePerDay*float64(day)
		if err := series.Append(history.Sample{AsOfUTC: asOf, PhaseDeg: phase}); err != nil {
			return err
		}

		res := evaluator.Evaluate(series.Snapshot(), engine.Inputs{
			Now:       asOf,
			Clarity:   opts.Clarity,
			ClarityOK: true,
		})
		if res.AlertEmitted && triggered == nil {
			copied := res
			triggered = &copied
		}
	}

	if triggered == nil {
		fmt.Fprintln(os.Stdout, "simulation completed without a trigger")
		final := evaluator.ReadState()
		fmt.Fprintf(os.Stdout, "final state: is_triggered=%v\n", final.IsTriggered)
		return nil
	}

	fmt.Fprintf(os.Stdout, "trigger fired at %s (phase gap %.3f deg, confidence %.2f)\n",
		triggered.AsOf.Format(time.RFC3339), triggered.PhaseGapDeg, triggered.Confidence)
	if triggered.ETA.Closing {
		fmt.Fprintf(os.Stdout, "projected zero crossing: %.1f days (%s)\n",
			triggered.ETA.ETADays, triggered.ETA.ETADate.Format("2006-01-02"))
	}

	if a.Config.Alerting.Enabled {
		notifier := a.newNotifier()
		if notifier == nil {
			return errors.New("alerting enabled but no channel configured")
		}
		note := buildNotification(*triggered, a.Config.Alerting.Channels)
		note.AdditionalMsg = "simulated run"
		if err := notifier.Notify(ctx, note); err != nil {
			return fmt.Errorf("dispatch simulated alert: %w", err)
		}
		fmt.Fprintln(os.Stdout, "simulated alert delivered")
	}

	return nil
}

func buildNotification(res engine.Result, channels []string) alerting.Notification {
	note := alerting.Notification{
		AsOfUTC:     res.AsOf,
		EventType:   storage.EventTypeTrigger,
		PhaseGapDeg: res.PhaseGapDeg,
		Confidence:  res.Confidence,
		Confirmed:   res.Validation.SamplesConfirmed,
		Channels:    channels,
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
	return note
}
