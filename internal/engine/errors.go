package engine

import "errors"

// ErrInsufficientData indicates the fit window held fewer samples than the
// configured minimum. Trend and ETA are absent, not zero. Stale data and a
// non-closing slope are not errors: they are normal evaluation outcomes
// carried as result states (Result.Fresh, ETAResult.Status).
var ErrInsufficientData = errors.New("engine: insufficient data in fit window")
