package services

import (
	"context"
	"net/http"
	"time"
)

// ConnectivityChecker gates a sync pass: no network means zero attempts.
type ConnectivityChecker interface {
	Online(ctx context.Context) bool
}

// HTTPConnectivityChecker probes the remote API health endpoint. Any HTTP
// response at all counts as online; only a transport failure counts as
// offline, since a 5xx from the server still means the network path works.
type HTTPConnectivityChecker struct {
	url    string
	client *http.Client
}

// NewHTTPConnectivityChecker creates a probe against the given URL.
func NewHTTPConnectivityChecker(url string) *HTTPConnectivityChecker {
	return &HTTPConnectivityChecker{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPConnectivityChecker) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
