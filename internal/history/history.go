// Package history holds the bounded in-memory phase-gap sample series that
// every evaluation reads from. Samples arrive from the ingestion side and are
// kept sorted by timestamp; readers always work on snapshots so concurrent
// appends and evictions can never mutate an in-flight evaluation window.
package history

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"
)

var (
	// ErrMalformedSample indicates a sample with a zero timestamp or a
	// non-finite phase value.
	ErrMalformedSample = errors.New("history: malformed sample")
)

// Sample is a single timestamped phase-gap observation in degrees.
// Immutable once appended.
type Sample struct {
	AsOfUTC  time.Time
	PhaseDeg float64
}

// Store is an append-only, time-sorted sample buffer with FIFO eviction.
//
// Duplicate-timestamp policy: a sample at an already-present timestamp
// overwrites the existing one, mirroring the upsert semantics of the
// Postgres mirror so memory and database never disagree. Late-arriving
// out-of-order samples are accepted and inserted in order.
type Store struct {
	mu      sync.RWMutex
	samples []Sample
	cap     int
}

// NewStore constructs a Store retaining at most cap samples (oldest evicted
// first). A cap of zero or less disables eviction.
func NewStore(cap int) *Store {
	return &Store{cap: cap}
}

// Append inserts a sample, keeping the series sorted and bounded.
func (s *Store) Append(sample Sample) error {
	if sample.AsOfUTC.IsZero() || math.IsNaN(sample.PhaseDeg) || math.IsInf(sample.PhaseDeg, 0) {
		return ErrMalformedSample
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := sort.Search(len(s.samples), func(i int) bool {
		return !s.samples[i].AsOfUTC.Before(sample.AsOfUTC)
	})

	if idx < len(s.samples) && s.samples[idx].AsOfUTC.Equal(sample.AsOfUTC) {
		s.samples[idx] = sample
		return nil
	}

	s.samples = append(s.samples, Sample{})
	copy(s.samples[idx+1:], s.samples[idx:])
	s.samples[idx] = sample

	if s.cap > 0 && len(s.samples) > s.cap {
		drop := len(s.samples) - s.cap
		s.samples = append(s.samples[:0:0], s.samples[drop:]...)
	}
	return nil
}

// Load replaces the store contents with the given samples, deduplicating by
// timestamp (later entries win) and applying the retention cap. Used when
// restoring history from persistence at startup.
func (s *Store) Load(samples []Sample) error {
	byTS := make(map[int64]Sample, len(samples))
	for _, sample := range samples {
		if sample.AsOfUTC.IsZero() || math.IsNaN(sample.PhaseDeg) || math.IsInf(sample.PhaseDeg, 0) {
			return ErrMalformedSample
		}
		byTS[sample.AsOfUTC.UnixNano()] = sample
	}

	sorted := make([]Sample, 0, len(byTS))
	for _, sample := range byTS {
		sorted = append(sorted, sample)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AsOfUTC.Before(sorted[j].AsOfUTC)
	})
	if s.cap > 0 && len(sorted) > s.cap {
		sorted = sorted[len(sorted)-s.cap:]
	}

	s.mu.Lock()
	s.samples = sorted
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the full series. The copy is safe to read while
// appends and evictions continue on the store.
func (s *Store) Snapshot() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Query returns a copy of the samples within the half-open interval
// [from, to).
func (s *Store) Query(from, to time.Time) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := sort.Search(len(s.samples), func(i int) bool {
		return !s.samples[i].AsOfUTC.Before(from)
	})
	hi := sort.Search(len(s.samples), func(i int) bool {
		return !s.samples[i].AsOfUTC.Before(to)
	})

	out := make([]Sample, hi-lo)
	copy(out, s.samples[lo:hi])
	return out
}

// Latest returns the most recent sample, if any.
func (s *Store) Latest() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// Len reports the number of retained samples.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}
