package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SampleOptions parameterise the phase sample fetcher.
type SampleOptions struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// Sample fetches phase-gap observations from the upstream JSON endpoint.
type Sample struct {
	opts   SampleOptions
	logger zerolog.Logger
	client *http.Client
}

// NewSample constructs a phase sample fetcher.
func NewSample(opts SampleOptions, logger zerolog.Logger) *Sample {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Sample{
		opts:   opts,
		logger: logger.With().Str("component", "sample_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

type sampleResponse struct {
	AsOfUTC     string          `json:"as_of_utc"`
	PhaseGapDeg json.RawMessage `json:"phase_gap_deg"`
	Source      string          `json:"source"`
}

// FetchSample retrieves the latest phase-gap observation.
func (s *Sample) FetchSample(ctx context.Context) (PhaseObservation, error) {
	if s.opts.URL == "" {
		return PhaseObservation{}, errors.New("sample url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.URL, nil)
	if err != nil {
		return PhaseObservation{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "phasewatcher/1.0")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return PhaseObservation{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return PhaseObservation{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return PhaseObservation{}, parseHTTPError(resp.StatusCode, payload)
	}

	var body sampleResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return PhaseObservation{}, err
	}
	if len(body.PhaseGapDeg) == 0 || string(body.PhaseGapDeg) == "null" {
		return PhaseObservation{}, errors.New("phase_gap_deg missing from response")
	}

	phase, err := decimal.NewFromString(strings.Trim(string(body.PhaseGapDeg), `"`))
	if err != nil {
		return PhaseObservation{}, fmt.Errorf("parse phase_gap_deg: %w", err)
	}

	asOf := time.Now().UTC()
	if body.AsOfUTC != "" {
		parsed, parseErr := time.Parse(time.RFC3339, body.AsOfUTC)
		if parseErr != nil {
			return PhaseObservation{}, fmt.Errorf("parse as_of_utc: %w", parseErr)
		}
		asOf = parsed.UTC()
	}

	source := body.Source
	if source == "" {
		source = "upstream"
	}

	return PhaseObservation{AsOfUTC: asOf, PhaseDeg: phase, Source: source}, nil
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
	Detail      string `json:"detail"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Detail != "" {
			return fmt.Errorf("upstream api error (%d): %s", status, apiErr.Detail)
		}
		if apiErr.Description != "" {
			return fmt.Errorf("upstream api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("upstream api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("upstream api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("upstream api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("upstream api error (%d)", status)
}

var _ SampleFetcher = (*Sample)(nil)
