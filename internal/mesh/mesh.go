// Package mesh probes independent time references and compares them against
// the local clock. A drifting local clock silently skews freshness checks and
// ETA dates, so the mesh gives operators a cheap cross-check: several HTTP
// Date headers plus the latest Ethereum block timestamp, summarised as a
// median offset.
package mesh

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// PeerOffset is one peer's measured clock offset. Offset is peer time minus
// local time; a positive value means the local clock runs behind.
type PeerOffset struct {
	Peer    string        `json:"peer"`
	Offset  time.Duration `json:"offset"`
	RTT     time.Duration `json:"rtt"`
	Err     string        `json:"error,omitempty"`
	Healthy bool          `json:"healthy"`
}

// Report summarises one probe round.
type Report struct {
	ProbedAt     time.Time     `json:"probed_at"`
	Peers        []PeerOffset  `json:"peers"`
	MedianOffset time.Duration `json:"median_offset"`
	Responding   int           `json:"responding"`
	Healthy      bool          `json:"healthy"`
}

// Peer measures the clock offset against one external time reference.
type Peer interface {
	Name() string
	Offset(ctx context.Context) (offset, rtt time.Duration, err error)
}

// driftTolerance is the offset beyond which the report is flagged unhealthy.
const driftTolerance = 30 * time.Second

// Monitor probes a set of peers.
type Monitor struct {
	peers  []Peer
	logger zerolog.Logger
}

// NewMonitor constructs a Monitor over the given peers.
func NewMonitor(peers []Peer, logger zerolog.Logger) *Monitor {
	return &Monitor{
		peers:  peers,
		logger: logger.With().Str("component", "mesh").Logger(),
	}
}

// Probe queries every peer and reports the median offset of the responders.
// Peer failures degrade the report, they never fail it.
func (m *Monitor) Probe(ctx context.Context) Report {
	rep := Report{ProbedAt: time.Now().UTC()}

	var offsets []time.Duration
	for _, p := range m.peers {
		po := PeerOffset{Peer: p.Name()}
		offset, rtt, err := p.Offset(ctx)
		if err != nil {
			po.Err = err.Error()
			m.logger.Warn().Str("peer", p.Name()).Err(err).Msg("peer probe failed")
		} else {
			po.Offset = offset
			po.RTT = rtt
			po.Healthy = true
			offsets = append(offsets, offset)
		}
		rep.Peers = append(rep.Peers, po)
	}

	rep.Responding = len(offsets)
	if len(offsets) > 0 {
		rep.MedianOffset = medianDuration(offsets)
		rep.Healthy = absDuration(rep.MedianOffset) <= driftTolerance
	}
	return rep
}

func medianDuration(ds []time.Duration) time.Duration {
	sorted := append([]time.Duration(nil), ds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
