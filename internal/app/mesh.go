package app

import (
	"context"
)

// Mesh probes the configured time references and prints the drift report as
// JSON. A skewed local clock makes freshness checks lie; this is the
// operator's cross-check.
func (a *App) Mesh(ctx context.Context) error {
	monitor := a.newMeshMonitor()
	report := monitor.Probe(ctx)

	if !report.Healthy {
		a.Logger.Warn().
			Dur("median_offset", report.MedianOffset).
			Int("responding", report.Responding).
			Msg("clock drift beyond tolerance or no peers responding")
	}

	return printJSON(report)
}
