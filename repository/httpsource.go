package repository

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/TimurManjosov/growthkit/payload"
	"github.com/cenkalti/backoff/v5"
)

// HTTPSource polls a definitions endpoint. It revalidates with ETags so an
// unchanged payload costs a 304, and retries transient failures with
// exponential backoff before reporting an error to the repository.
type HTTPSource struct {
	// URL is the full payload endpoint, e.g.
	// "https://cdn.example.com/api/features/sdk-abc123".
	URL string
	// Client is optional; defaults to a client with a 10s timeout.
	Client *http.Client
	// MaxTries bounds retry attempts per fetch. Defaults to 3.
	MaxTries uint
}

// NewHTTPSource builds a source for baseURL + "/api/features/" + clientKey.
func NewHTTPSource(baseURL, clientKey string) *HTTPSource {
	return &HTTPSource{URL: baseURL + "/api/features/" + clientKey}
}

func (h *HTTPSource) Fetch(ctx context.Context, etag string) (*Fetched, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	maxTries := h.MaxTries
	if maxTries == 0 {
		maxTries = 3
	}

	operation := func() (*Fetched, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotModified:
			return &Fetched{}, nil
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("repository: server error %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, backoff.Permanent(fmt.Errorf("repository: HTTP %d: %s", resp.StatusCode, body))
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		p, err := payload.Parse(raw)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return &Fetched{Payload: p, ETag: resp.Header.Get("ETag")}, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries))
}
