package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"phase-gap-alerts/internal/engine"
)

// Status evaluates the stored history and prints the canonical event-status
// record as JSON.
func (a *App) Status(ctx context.Context) error {
	res, closeStore, err := a.evaluateOffline(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	return printJSON(res.StatusRecord())
}

// ETA evaluates the stored history and prints the latest projection as JSON.
func (a *App) ETA(ctx context.Context) error {
	res, closeStore, err := a.evaluateOffline(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	return printJSON(res.Projection())
}

func (a *App) evaluateOffline(ctx context.Context) (engine.Result, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return engine.Result{}, nil, err
	}
	if store == nil {
		return engine.Result{}, nil, errors.New("database not configured; cannot evaluate")
	}

	svc := a.newService(store, nil, nil)
	res, err := svc.EvaluateNow(ctx)
	if err != nil {
		closeStore()
		return engine.Result{}, nil, err
	}
	return res, closeStore, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
