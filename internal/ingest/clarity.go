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
)

// ClarityOptions parameterise the clarity fetcher.
type ClarityOptions struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// Clarity fetches the clarity metric from its JSON endpoint. The metric is
// computed by an external service; this client only validates its range.
type Clarity struct {
	opts   ClarityOptions
	logger zerolog.Logger
	client *http.Client
}

// NewClarity constructs a clarity fetcher.
func NewClarity(opts ClarityOptions, logger zerolog.Logger) *Clarity {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Clarity{
		opts:   opts,
		logger: logger.With().Str("component", "clarity_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

type clarityResponse struct {
	GTI *float64 `json:"gti"`
}

// FetchClarity retrieves the current clarity reading.
func (c *Clarity) FetchClarity(ctx context.Context) (float64, error) {
	if c.opts.URL == "" {
		return 0, errors.New("clarity url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "phasewatcher/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, parseHTTPError(resp.StatusCode, payload)
	}

	var body clarityResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return 0, err
	}
	if body.GTI == nil {
		return 0, errors.New("gti missing from response")
	}
	if *body.GTI < 0 || *body.GTI > 1 {
		return 0, fmt.Errorf("gti %.4f outside [0,1]", *body.GTI)
	}

	return *body.GTI, nil
}

var _ ClarityFetcher = (*Clarity)(nil)
