// Package growthkit is a client-side feature-flag and experiment engine:
// given remotely authored definitions and the current user's attributes, it
// deterministically resolves feature values and experiment assignments
// without a server round trip per evaluation.
//
// A Client combines the condition evaluator, the deterministic bucketer,
// the sticky-bucket layer and the definitions repository. Resolution is
// synchronous and side-effect-free apart from tracking-callback invocation
// and sticky-bucket writes, both of which are non-fatal on failure.
package growthkit

import (
	"net/url"
	"strconv"
	"sync"

	"github.com/TimurManjosov/growthkit/payload"
	"github.com/TimurManjosov/growthkit/repository"
	"github.com/TimurManjosov/growthkit/stickybucket"
	"github.com/rs/zerolog"
)

// Attributes describe the current user/session: attribute name to a
// JSON-like value. Treated as immutable during one evaluation.
type Attributes map[string]any

// TrackingCallback receives each unique experiment assignment, at most once
// per (experiment, user, variation) tuple per Client instance.
type TrackingCallback func(exp *payload.Experiment, result *Result)

// FeatureUsageCallback is invoked on every feature resolution.
type FeatureUsageCallback func(key string, result *FeatureResult)

// Options configures a Client. Either Payload or Repository supplies the
// definitions; Repository keeps them fresh.
type Options struct {
	Payload    *payload.Payload
	Repository *repository.Repository

	Attributes Attributes
	// URL of the current page, used for auto-experiment targeting and
	// query-string variation overrides.
	URL string

	// DefaultHashAttribute is used when a rule or experiment names none.
	// Defaults to "id".
	DefaultHashAttribute string

	// ForcedVariations pins experiments to fixed variation indexes,
	// bypassing hashing. Developer overrides, never persisted.
	ForcedVariations map[string]int

	// QAMode suppresses all experiment assignment (every run reports
	// InExperiment=false).
	QAMode bool

	TrackingCallback TrackingCallback
	OnFeatureUsage   FeatureUsageCallback

	// StickyBucketService persists assignments across sessions. Nil
	// disables sticky bucketing.
	StickyBucketService stickybucket.Service
	// StickyBucketIdentifierAttributes lists additional identifying
	// attributes whose stored assignments are merged at read time
	// (e.g. deviceId alongside the logged-in id).
	StickyBucketIdentifierAttributes []string

	Logger *zerolog.Logger
}

// Client is the evaluation engine. Safe for concurrent use; attribute and
// payload updates swap whole maps so in-flight evaluations see a coherent
// snapshot.
type Client struct {
	mu               sync.RWMutex
	attributes       Attributes
	payload          *payload.Payload
	forcedVariations map[string]int
	forcedFeatures   map[string]payload.FeatureValue
	url              *url.URL

	defaultHashAttr string
	qaMode          bool

	trackingCB     TrackingCallback
	onFeatureUsage FeatureUsageCallback
	trackedMu      sync.Mutex
	tracked        map[string]struct{}

	sticky      stickybucket.Service
	stickyAttrs []string

	repo        *repository.Repository
	unsubscribe func()

	log zerolog.Logger
}

// New creates a Client. When a Repository is supplied the client adopts its
// current payload and follows subsequent updates until Close.
func New(opts Options) *Client {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	defaultAttr := opts.DefaultHashAttribute
	if defaultAttr == "" {
		defaultAttr = "id"
	}
	forced := make(map[string]int, len(opts.ForcedVariations))
	for k, v := range opts.ForcedVariations {
		forced[k] = v
	}

	c := &Client{
		attributes:       opts.Attributes,
		payload:          opts.Payload,
		forcedVariations: forced,
		forcedFeatures:   map[string]payload.FeatureValue{},
		defaultHashAttr:  defaultAttr,
		qaMode:           opts.QAMode,
		trackingCB:       opts.TrackingCallback,
		onFeatureUsage:   opts.OnFeatureUsage,
		tracked:          map[string]struct{}{},
		sticky:           opts.StickyBucketService,
		stickyAttrs:      opts.StickyBucketIdentifierAttributes,
		repo:             opts.Repository,
		log:              log,
	}
	if c.attributes == nil {
		c.attributes = Attributes{}
	}
	if opts.URL != "" {
		if u, err := url.Parse(opts.URL); err == nil {
			c.url = u
		}
	}
	if c.repo != nil {
		c.payload = c.repo.CurrentPayload()
		c.unsubscribe = c.repo.Subscribe(func(p *payload.Payload) {
			c.SetPayload(p)
		})
	}
	if c.payload == nil {
		c.payload = &payload.Payload{Features: map[string]*payload.Feature{}}
	}
	return c
}

// Close detaches the client from its repository. The client remains usable
// with its last payload.
func (c *Client) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// SetPayload replaces the definitions atomically.
func (c *Client) SetPayload(p *payload.Payload) {
	if p == nil {
		return
	}
	c.mu.Lock()
	c.payload = p
	c.mu.Unlock()
}

// SetAttributes replaces the user attributes atomically.
func (c *Client) SetAttributes(attrs Attributes) {
	if attrs == nil {
		attrs = Attributes{}
	}
	c.mu.Lock()
	c.attributes = attrs
	c.mu.Unlock()
}

// Attributes returns a copy of the current attributes.
func (c *Client) Attributes() Attributes {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(Attributes, len(c.attributes))
	for k, v := range c.attributes {
		out[k] = v
	}
	return out
}

// SetURL updates the page URL used for auto-experiment targeting.
func (c *Client) SetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.url = u
	c.mu.Unlock()
	return nil
}

// ForceFeatureValue overrides a feature for this client instance. The next
// resolution returns value with source "override".
func (c *Client) ForceFeatureValue(key string, value payload.FeatureValue) {
	c.mu.Lock()
	next := make(map[string]payload.FeatureValue, len(c.forcedFeatures)+1)
	for k, v := range c.forcedFeatures {
		next[k] = v
	}
	next[key] = value
	c.forcedFeatures = next
	c.mu.Unlock()
}

// UnforceFeatureValue removes a feature override.
func (c *Client) UnforceFeatureValue(key string) {
	c.mu.Lock()
	next := make(map[string]payload.FeatureValue, len(c.forcedFeatures))
	for k, v := range c.forcedFeatures {
		if k != key {
			next[k] = v
		}
	}
	c.forcedFeatures = next
	c.mu.Unlock()
}

// SetForcedVariation pins an experiment to a variation index.
func (c *Client) SetForcedVariation(experimentKey string, variationIndex int) {
	c.mu.Lock()
	next := make(map[string]int, len(c.forcedVariations)+1)
	for k, v := range c.forcedVariations {
		next[k] = v
	}
	next[experimentKey] = variationIndex
	c.forcedVariations = next
	c.mu.Unlock()
}

// ClearForcedVariation removes a pinned variation.
func (c *Client) ClearForcedVariation(experimentKey string) {
	c.mu.Lock()
	next := make(map[string]int, len(c.forcedVariations))
	for k, v := range c.forcedVariations {
		if k != experimentKey {
			next[k] = v
		}
	}
	c.forcedVariations = next
	c.mu.Unlock()
}

// snapshot captures the state one evaluation runs against.
type snapshot struct {
	attributes       Attributes
	payload          *payload.Payload
	forcedVariations map[string]int
	forcedFeatures   map[string]payload.FeatureValue
	url              *url.URL
}

func (c *Client) snapshot() snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return snapshot{
		attributes:       c.attributes,
		payload:          c.payload,
		forcedVariations: c.forcedVariations,
		forcedFeatures:   c.forcedFeatures,
		url:              c.url,
	}
}

// stringifyAttribute renders an attribute value as a hash input. Arrays,
// objects and nil yield "", which excludes the user from hashing.
func stringifyAttribute(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
