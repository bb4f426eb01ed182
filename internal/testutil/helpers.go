package testutil

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/TimurManjosov/growthkit/internal/api"
	"github.com/TimurManjosov/growthkit/payload"
	"github.com/TimurManjosov/growthkit/repository"
)

// NewTestServer creates an API server backed by a static payload.
func NewTestServer(t *testing.T, p *payload.Payload) (*api.Server, *repository.Repository) {
	t.Helper()
	repo := repository.New(repository.Options{
		Source: &repository.StaticSource{Payload: p},
	})
	if _, err := repo.Refresh(context.Background(), true); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	server := api.NewServer(api.Options{
		Repository:           repo,
		DefaultHashAttribute: "id",
	})
	return server, repo
}

// HTTPRequest is a helper for making test HTTP requests.
type HTTPRequest struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string
}

// Do executes the HTTP request and returns the response recorder.
func (r *HTTPRequest) Do(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.Body != "" {
		body = bytes.NewBufferString(r.Body)
	}
	req := httptest.NewRequest(r.Method, r.Path, body)
	if r.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// Features builds a payload from a feature map.
func Features(features map[string]*payload.Feature) *payload.Payload {
	return &payload.Payload{Features: features}
}
