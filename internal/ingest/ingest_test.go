package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestSampleFetchMissingURL(t *testing.T) {
	s := NewSample(SampleOptions{}, noopLogger())
	if _, err := s.FetchSample(context.Background()); err == nil {
		t.Fatal("missing url should return an error")
	}
}

func TestSampleFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "solver offline"})
	}))
	defer srv.Close()

	s := NewSample(SampleOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := s.FetchSample(context.Background()); err == nil {
		t.Fatal("HTTP 503 should return an error")
	}
}

func TestSampleFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"as_of_utc":     "2025-06-01T12:00:00Z",
			"phase_gap_deg": 1.83,
			"source":        "observatory",
		})
	}))
	defer srv.Close()

	s := NewSample(SampleOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
	obs, err := s.FetchSample(context.Background())
	if err != nil {
		t.Fatalf("successful response should not error: %v", err)
	}
	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !obs.AsOfUTC.Equal(want) {
		t.Fatalf("as_of %v, want %v", obs.AsOfUTC, want)
	}
	if got, _ := obs.PhaseDeg.Float64(); got != 1.83 {
		t.Fatalf("phase %.4f, want 1.83", got)
	}
	if obs.Source != "observatory" {
		t.Fatalf("source %q", obs.Source)
	}
}

func TestSampleFetchNullPhase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"as_of_utc":     "2025-06-01T12:00:00Z",
			"phase_gap_deg": nil,
		})
	}))
	defer srv.Close()

	s := NewSample(SampleOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := s.FetchSample(context.Background()); err == nil {
		t.Fatal("null phase should return an error")
	}
}

func TestClarityFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]float64{"gti": 0.72})
	}))
	defer srv.Close()

	c := NewClarity(ClarityOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
	got, err := c.FetchClarity(context.Background())
	if err != nil {
		t.Fatalf("successful response should not error: %v", err)
	}
	if got != 0.72 {
		t.Fatalf("gti %.4f, want 0.72", got)
	}
}

func TestClarityFetchOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]float64{"gti": 1.7})
	}))
	defer srv.Close()

	c := NewClarity(ClarityOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := c.FetchClarity(context.Background()); err == nil {
		t.Fatal("out-of-range gti should return an error")
	}
}

func TestClarityFetchMissingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "warming up"})
	}))
	defer srv.Close()

	c := NewClarity(ClarityOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := c.FetchClarity(context.Background()); err == nil {
		t.Fatal("missing gti should return an error")
	}
}
