package mesh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPPeer reads a server's clock from the Date header of a HEAD response.
// Date has one-second granularity, which is plenty for drift detection.
type HTTPPeer struct {
	url    string
	client *http.Client
}

// NewHTTPPeer constructs an HTTP time peer.
func NewHTTPPeer(rawURL string, timeout time.Duration) *HTTPPeer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPPeer{
		url:    rawURL,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the peer host.
func (p *HTTPPeer) Name() string {
	if u, err := url.Parse(p.url); err == nil && u.Host != "" {
		return u.Host
	}
	return p.url
}

// Offset measures the clock offset against the peer's Date header, sampling
// the local clock at the request midpoint to split the round trip.
func (p *HTTPPeer) Offset(ctx context.Context) (time.Duration, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return 0, 0, err
	}

	before := time.Now()
	resp, err := p.client.Do(req)
	after := time.Now()
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	dateHeader := resp.Header.Get("Date")
	if dateHeader == "" {
		return 0, 0, errors.New("response carries no Date header")
	}
	peerTime, err := http.ParseTime(dateHeader)
	if err != nil {
		return 0, 0, fmt.Errorf("parse Date header: %w", err)
	}

	rtt := after.Sub(before)
	midpoint := before.Add(rtt / 2)
	return peerTime.Sub(midpoint), rtt, nil
}

var _ Peer = (*HTTPPeer)(nil)
