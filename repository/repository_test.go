package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TimurManjosov/growthkit/payload"
)

// countingSource counts fetches and can be made slow or failing.
type countingSource struct {
	mu      sync.Mutex
	fetches int
	delay   time.Duration
	err     error
	payload *payload.Payload
	etag    string
}

func (s *countingSource) Fetch(ctx context.Context, etag string) (*Fetched, error) {
	s.mu.Lock()
	s.fetches++
	delay, err, p, tag := s.delay, s.err, s.payload, s.etag
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if etag != "" && etag == tag {
		return &Fetched{}, nil // not modified
	}
	return &Fetched{Payload: p, ETag: tag}, nil
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func testPayload(keys ...string) *payload.Payload {
	features := map[string]*payload.Feature{}
	for _, k := range keys {
		features[k] = &payload.Feature{DefaultValue: true}
	}
	return &payload.Payload{Features: features}
}

func TestPayloadColdFetch(t *testing.T) {
	src := &countingSource{payload: testPayload("a"), etag: `"v1"`}
	repo := New(Options{Source: src})

	p, err := repo.Payload(context.Background())
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if _, ok := p.Features["a"]; !ok {
		t.Error("missing feature a")
	}
	if got := repo.ETag(); got != `"v1"` {
		t.Errorf("etag = %q", got)
	}
	if src.count() != 1 {
		t.Errorf("fetches = %d, want 1", src.count())
	}

	// Fresh cache: no second fetch.
	if _, err := repo.Payload(context.Background()); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if src.count() != 1 {
		t.Errorf("fetches = %d, want 1", src.count())
	}
}

func TestCurrentPayloadNeverBlocks(t *testing.T) {
	repo := New(Options{Source: &countingSource{delay: time.Minute}})
	p := repo.CurrentPayload()
	if p == nil || p.Features == nil {
		t.Fatal("expected empty payload from cold cache")
	}
	if len(p.Features) != 0 {
		t.Errorf("features = %d", len(p.Features))
	}
}

func TestConcurrentRefreshSharesOneFetch(t *testing.T) {
	src := &countingSource{payload: testPayload("a"), delay: 50 * time.Millisecond}
	repo := New(Options{Source: src})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.Refresh(context.Background(), false)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("refresh %d: %v", i, err)
		}
	}
	if got := src.count(); got != 1 {
		t.Errorf("fetches = %d, want 1 shared fetch", got)
	}
}

func TestRefreshNotModifiedKeepsPayload(t *testing.T) {
	src := &countingSource{payload: testPayload("a"), etag: `"v1"`}
	repo := New(Options{Source: src})
	ctx := context.Background()

	first, err := repo.Refresh(ctx, true)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	second, err := repo.Refresh(ctx, true)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if first != second {
		t.Error("not-modified refresh should keep the same payload pointer")
	}
	if src.count() != 2 {
		t.Errorf("fetches = %d, want 2", src.count())
	}
}

func TestRefreshErrorServesStale(t *testing.T) {
	src := &countingSource{payload: testPayload("a")}
	repo := New(Options{Source: src})
	ctx := context.Background()

	if _, err := repo.Refresh(ctx, true); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	src.mu.Lock()
	src.err = errors.New("upstream down")
	src.mu.Unlock()

	p, err := repo.Refresh(ctx, true)
	if err != nil {
		t.Fatalf("expected stale payload, got error: %v", err)
	}
	if _, ok := p.Features["a"]; !ok {
		t.Error("stale payload lost feature a")
	}

	// With an empty cache the error must surface.
	repo.ClearCache()
	if _, err := repo.Refresh(ctx, true); err == nil {
		t.Error("expected error with empty cache and failing source")
	}
}

func TestRefreshWithoutSource(t *testing.T) {
	repo := New(Options{})
	if _, err := repo.Refresh(context.Background(), true); !errors.Is(err, ErrNoSource) {
		t.Errorf("err = %v, want ErrNoSource", err)
	}

	// Ingest makes the repository usable without a source.
	repo.Ingest(testPayload("x"), "")
	p, err := repo.Refresh(context.Background(), true)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, ok := p.Features["x"]; !ok {
		t.Error("missing ingested feature")
	}
	if repo.ETag() == "" {
		t.Error("ingest should fingerprint an empty etag")
	}
}

func TestSubscribersNotifiedInOrder(t *testing.T) {
	repo := New(Options{})

	var mu sync.Mutex
	var order []int
	unsub1 := repo.Subscribe(func(*payload.Payload) {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
	})
	repo.Subscribe(func(*payload.Payload) {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	})

	repo.Ingest(testPayload("a"), `"v1"`)
	mu.Lock()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v", order)
	}
	order = nil
	mu.Unlock()

	unsub1()
	repo.Ingest(testPayload("b"), `"v2"`)
	mu.Lock()
	if len(order) != 1 || order[0] != 2 {
		t.Errorf("after unsubscribe, order = %v", order)
	}
	mu.Unlock()
}

func TestStaleServedWhileRevalidating(t *testing.T) {
	src := &countingSource{payload: testPayload("a")}
	repo := New(Options{Source: src, TTL: 10 * time.Millisecond})
	ctx := context.Background()

	if _, err := repo.Payload(ctx); err != nil {
		t.Fatalf("payload: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	// Stale: served immediately, background refresh kicked.
	start := time.Now()
	if _, err := repo.Payload(ctx); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Millisecond {
		t.Errorf("stale read blocked for %v", elapsed)
	}

	deadline := time.Now().Add(time.Second)
	for src.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if src.count() < 2 {
		t.Error("background refresh never ran")
	}
}

func TestClearCacheForcesRefetch(t *testing.T) {
	src := &countingSource{payload: testPayload("a")}
	repo := New(Options{Source: src})
	ctx := context.Background()

	if _, err := repo.Payload(ctx); err != nil {
		t.Fatalf("payload: %v", err)
	}
	repo.ClearCache()
	if repo.ETag() != "" {
		t.Error("etag should reset on ClearCache")
	}
	if _, err := repo.Payload(ctx); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if src.count() != 2 {
		t.Errorf("fetches = %d, want 2", src.count())
	}
}

func TestIngestAtomicSwap(t *testing.T) {
	repo := New(Options{})
	repo.Ingest(testPayload("a"), `"v1"`)

	var done atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !done.Load() {
			p := repo.CurrentPayload()
			if p == nil || p.Features == nil {
				t.Error("observed torn payload")
				return
			}
		}
	}()
	for i := 0; i < 100; i++ {
		repo.Ingest(testPayload("a", "b"), "")
	}
	done.Store(true)
	wg.Wait()
}
