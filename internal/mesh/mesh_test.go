package mesh

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakePeer struct {
	name   string
	offset time.Duration
	err    error
}

func (f fakePeer) Name() string { return f.name }

func (f fakePeer) Offset(ctx context.Context) (time.Duration, time.Duration, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.offset, 10 * time.Millisecond, nil
}

func TestMonitorMedianOffset(t *testing.T) {
	m := NewMonitor([]Peer{
		fakePeer{name: "a", offset: 1 * time.Second},
		fakePeer{name: "b", offset: 2 * time.Second},
		fakePeer{name: "c", offset: 40 * time.Second},
	}, zerolog.Nop())

	rep := m.Probe(context.Background())
	if rep.Responding != 3 {
		t.Fatalf("responding %d, want 3", rep.Responding)
	}
	if rep.MedianOffset != 2*time.Second {
		t.Fatalf("median %v, want 2s", rep.MedianOffset)
	}
	if !rep.Healthy {
		t.Fatal("2s median offset is within tolerance")
	}
}

func TestMonitorUnhealthyOnLargeDrift(t *testing.T) {
	m := NewMonitor([]Peer{
		fakePeer{name: "a", offset: 45 * time.Second},
		fakePeer{name: "b", offset: 50 * time.Second},
	}, zerolog.Nop())

	rep := m.Probe(context.Background())
	if rep.Healthy {
		t.Fatal("median beyond tolerance must flag unhealthy")
	}
}

func TestMonitorSurvivesPeerFailures(t *testing.T) {
	m := NewMonitor([]Peer{
		fakePeer{name: "dead", err: errors.New("connection refused")},
		fakePeer{name: "alive", offset: time.Second},
	}, zerolog.Nop())

	rep := m.Probe(context.Background())
	if rep.Responding != 1 {
		t.Fatalf("responding %d, want 1", rep.Responding)
	}
	if rep.MedianOffset != time.Second {
		t.Fatalf("median %v, want 1s", rep.MedianOffset)
	}
	var dead *PeerOffset
	for i := range rep.Peers {
		if rep.Peers[i].Peer == "dead" {
			dead = &rep.Peers[i]
		}
	}
	if dead == nil || dead.Healthy || dead.Err == "" {
		t.Fatal("failed peer must be reported with its error")
	}
}

func TestMonitorAllPeersDown(t *testing.T) {
	m := NewMonitor([]Peer{
		fakePeer{name: "x", err: errors.New("timeout")},
	}, zerolog.Nop())

	rep := m.Probe(context.Background())
	if rep.Responding != 0 || rep.Healthy {
		t.Fatal("no responders must not read healthy")
	}
}

func TestHTTPPeerOffsetFromDateHeader(t *testing.T) {
	fixed := time.Now().Add(10 * time.Second).UTC()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Date", fixed.Format(http.TimeFormat))
	}))
	defer srv.Close()

	p := NewHTTPPeer(srv.URL, time.Second)
	offset, rtt, err := p.Offset(context.Background())
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	// Date has one-second granularity; allow generous slack around 10s.
	if offset < 8*time.Second || offset > 12*time.Second {
		t.Fatalf("offset %v, want about 10s", offset)
	}
	if rtt <= 0 {
		t.Fatalf("rtt %v must be positive", rtt)
	}
}

func TestHTTPPeerMissingDateHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Date"] = nil
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPPeer(srv.URL, time.Second)
	if _, _, err := p.Offset(context.Background()); err == nil {
		t.Fatal("missing Date header should return an error")
	}
}

func TestHTTPPeerName(t *testing.T) {
	p := NewHTTPPeer("https://example.com/health", time.Second)
	if p.Name() != "example.com" {
		t.Fatalf("name %q, want host", p.Name())
	}
}
