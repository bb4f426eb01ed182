package repository

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/TimurManjosov/growthkit/payload"
	"github.com/cenkalti/backoff/v5"
)

// SSEStream subscribes to a server-sent-events endpoint that pushes payload
// updates, and ingests each one into the repository. Connection drops are
// retried with exponential backoff until ctx is cancelled.
type SSEStream struct {
	// URL is the SSE endpoint, e.g. "https://cdn.example.com/sub/sdk-abc123".
	URL string
	// Client is optional; it must not set a timeout that would cut the
	// long-lived stream short.
	Client *http.Client
}

// Run streams updates into repo until ctx is done. It returns ctx.Err()
// on cancellation.
func (s *SSEStream) Run(ctx context.Context, repo *Repository) error {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			return struct{}{}, s.connect(ctx, client, repo)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}
		// Stream ended cleanly; reconnect after a short pause.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (s *SSEStream) connect(ctx context.Context, client *http.Client, repo *Repository) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("repository: stream connect: HTTP %d", resp.StatusCode)
	}

	s.consume(ctx, bufio.NewReaderSize(resp.Body, 1<<20), repo)
	return nil
}

// consume reads SSE lines until the stream ends. It implements the subset
// of the SSE format the definitions server emits: event, data fields,
// blank-line flush, multi-line data concatenation.
func (s *SSEStream) consume(ctx context.Context, r *bufio.Reader, repo *Repository) {
	var (
		eventType string
		dataLines []string
	)
	for {
		if ctx.Err() != nil {
			return
		}
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(dataLines) > 0 && (eventType == "" || eventType == "features") {
				data := strings.Join(dataLines, "\n")
				if p, parseErr := payload.Parse([]byte(data)); parseErr == nil {
					repo.Ingest(p, "")
				}
			}
			eventType = ""
			dataLines = nil
		} else if strings.HasPrefix(line, "event:") {
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}

		if err != nil {
			return
		}
	}
}
