// Package repository owns the current definitions payload: it fetches
// through an injected source, caches with a TTL stale-while-revalidate
// policy, de-duplicates concurrent refreshes, and fans out payload-change
// notifications to subscribers.
//
// Payload swaps are atomic: an evaluation in progress sees either the old
// or the new payload in full. Subscribers are notified strictly after the
// swap is visible, in registration order.
package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TimurManjosov/growthkit/internal/telemetry"
	"github.com/TimurManjosov/growthkit/payload"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrNoSource is returned when a refresh is requested but no source was
// configured (payload-injection-only repositories).
var ErrNoSource = errors.New("repository: no source configured")

const defaultTTL = 60 * time.Second

// Options configures a Repository.
type Options struct {
	// Source supplies the payload. Optional: a repository without a source
	// only serves payloads handed to it via Ingest.
	Source Source
	// TTL marks the cached payload stale. Defaults to 60s.
	TTL time.Duration
	// Logger receives diagnostics. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

type state struct {
	payload   *payload.Payload
	etag      string
	fetchedAt time.Time
}

type subscriber struct {
	id string
	fn func(*payload.Payload)
}

// Repository caches the latest payload and keeps it fresh.
type Repository struct {
	source Source
	ttl    time.Duration
	log    zerolog.Logger

	current atomic.Pointer[state]
	group   singleflight.Group

	// notifyMu serializes subscriber fan-out so updates are delivered one
	// at a time, in registration order. subs is guarded by mu.
	mu       sync.Mutex
	notifyMu sync.Mutex
	subs     []subscriber

	// lastKick throttles background revalidation to once per TTL window.
	kickMu   sync.Mutex
	lastKick time.Time
}

// New creates a repository. The cache starts empty; the first Payload or
// Refresh call performs the initial fetch.
func New(opts Options) *Repository {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Repository{source: opts.Source, ttl: ttl, log: log}
}

// Payload returns the cached payload, fetching synchronously only on the
// first call (or after ClearCache). A stale payload is served immediately
// while a background refresh is kicked off at most once per TTL window.
func (r *Repository) Payload(ctx context.Context) (*payload.Payload, error) {
	st := r.current.Load()
	if st == nil {
		return r.Refresh(ctx, false)
	}
	if time.Since(st.fetchedAt) > r.ttl {
		r.kickBackgroundRefresh()
	}
	return st.payload, nil
}

// CurrentPayload returns the cached payload without triggering any fetch,
// or an empty payload when the cache is cold. It never blocks.
func (r *Repository) CurrentPayload() *payload.Payload {
	if st := r.current.Load(); st != nil {
		return st.payload
	}
	return &payload.Payload{Features: map[string]*payload.Feature{}}
}

// ETag returns the version token of the cached payload, if any.
func (r *Repository) ETag() string {
	if st := r.current.Load(); st != nil {
		return st.etag
	}
	return ""
}

// Refresh fetches the latest payload through the source. Concurrent calls
// share a single in-flight fetch; callers issued during that fetch receive
// its result. With force=false a still-fresh payload short-circuits the
// fetch entirely.
func (r *Repository) Refresh(ctx context.Context, force bool) (*payload.Payload, error) {
	if !force {
		if st := r.current.Load(); st != nil && time.Since(st.fetchedAt) <= r.ttl {
			return st.payload, nil
		}
	}
	if r.source == nil {
		if st := r.current.Load(); st != nil {
			return st.payload, nil
		}
		return nil, ErrNoSource
	}

	result, err, _ := r.group.Do("refresh", func() (any, error) {
		return r.fetch(ctx)
	})
	if err != nil {
		// Collaborator failure: keep serving the last-known payload.
		if st := r.current.Load(); st != nil {
			r.log.Warn().Err(err).Msg("refresh failed, serving stale payload")
			return st.payload, nil
		}
		return nil, err
	}
	return result.(*payload.Payload), nil
}

func (r *Repository) fetch(ctx context.Context) (*payload.Payload, error) {
	etag := ""
	if st := r.current.Load(); st != nil {
		etag = st.etag
	}
	fetched, err := r.source.Fetch(ctx, etag)
	if err != nil {
		telemetry.PayloadRefreshes.WithLabelValues("error").Inc()
		return nil, err
	}
	if fetched.Payload == nil {
		// Not modified: the cached payload is current again.
		telemetry.PayloadRefreshes.WithLabelValues("not_modified").Inc()
		r.mu.Lock()
		if st := r.current.Load(); st != nil {
			r.current.Store(&state{payload: st.payload, etag: st.etag, fetchedAt: time.Now()})
			r.mu.Unlock()
			return st.payload, nil
		}
		r.mu.Unlock()
		return nil, errors.New("repository: not-modified response with empty cache")
	}
	telemetry.PayloadRefreshes.WithLabelValues("ok").Inc()
	r.Ingest(fetched.Payload, fetched.ETag)
	return fetched.Payload, nil
}

// Ingest applies a new payload, swapping it in atomically and notifying
// subscribers. It is also the entry point for push-based sources. An empty
// etag is replaced with a fingerprint of the payload content.
func (r *Repository) Ingest(p *payload.Payload, etag string) {
	if p == nil {
		return
	}
	if p.Features == nil {
		p.Features = map[string]*payload.Feature{}
	}
	if etag == "" {
		etag = Fingerprint(p)
	}

	r.mu.Lock()
	r.current.Store(&state{payload: p, etag: etag, fetchedAt: time.Now()})
	subs := make([]subscriber, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	r.log.Debug().Str("etag", etag).Int("features", len(p.Features)).Msg("payload applied")
	telemetry.PayloadFeatures.Set(float64(len(p.Features)))

	// Deliver after the swap is visible, serialized and in registration
	// order. A slow subscriber delays later ones but never the swap.
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	for _, s := range subs {
		s.fn(p)
	}
}

// Subscribe registers a listener called once per applied update with the
// new payload. The returned function unsubscribes.
func (r *Repository) Subscribe(fn func(*payload.Payload)) func() {
	id := uuid.NewString()
	r.mu.Lock()
	r.subs = append(r.subs, subscriber{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, s := range r.subs {
			if s.id == id {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

// ClearCache resets the repository to its empty state. The next Payload
// call fetches synchronously.
func (r *Repository) ClearCache() {
	r.mu.Lock()
	r.current.Store(nil)
	r.mu.Unlock()
	r.kickMu.Lock()
	r.lastKick = time.Time{}
	r.kickMu.Unlock()
}

// kickBackgroundRefresh starts one revalidation goroutine per TTL window.
func (r *Repository) kickBackgroundRefresh() {
	if r.source == nil {
		return
	}
	r.kickMu.Lock()
	if time.Since(r.lastKick) < r.ttl {
		r.kickMu.Unlock()
		return
	}
	r.lastKick = time.Now()
	r.kickMu.Unlock()

	go func() {
		if _, err := r.Refresh(context.Background(), true); err != nil {
			r.log.Warn().Err(err).Msg("background refresh failed")
		}
	}()
}
