// Package api exposes the evaluation engine over HTTP for processes that
// cannot embed it: a payload passthrough with ETag revalidation, and a
// server-side evaluation endpoint for one user's attributes.
package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/growthkit"
	"github.com/TimurManjosov/growthkit/internal/telemetry"
	"github.com/TimurManjosov/growthkit/repository"
	"github.com/TimurManjosov/growthkit/stickybucket"
)

type Server struct {
	repo            *repository.Repository
	sticky          stickybucket.Service
	defaultHashAttr string
	identifierAttrs []string
	log             zerolog.Logger
}

// Options carries the evaluation dependencies shared by all requests.
type Options struct {
	Repository           *repository.Repository
	StickyBucketService  stickybucket.Service
	DefaultHashAttribute string
	IdentifierAttributes []string
	Logger               zerolog.Logger
}

func NewServer(opts Options) *Server {
	return &Server{
		repo:            opts.Repository,
		sticky:          opts.StickyBucketService,
		defaultHashAttr: opts.DefaultHashAttribute,
		identifierAttrs: opts.IdentifierAttributes,
		log:             opts.Logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))
	r.Use(telemetry.Middleware)

	// health
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// public: payload passthrough (ETag)
	r.Get("/v1/payload", s.handlePayload)
	r.Get("/v1/features", s.handleFeatureList)

	// server-side evaluation
	r.Post("/v1/eval", s.handleEval)

	return r
}

// ---- handlers ----

func (s *Server) handlePayload(w http.ResponseWriter, r *http.Request) {
	p, err := s.repo.Payload(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("payload fetch failed")
		InternalError(w, r, "definitions unavailable")
		return
	}
	etag := s.repo.ETag()
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	_ = json.NewEncoder(w).Encode(p)
}

func (s *Server) handleFeatureList(w http.ResponseWriter, r *http.Request) {
	p := s.repo.CurrentPayload()
	keys := make([]string, 0, len(p.Features))
	for k := range p.Features {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeJSON(w, http.StatusOK, FeatureListResponse{Features: keys, ETag: s.repo.ETag()})
}

func (s *Server) handleEval(w http.ResponseWriter, r *http.Request) {
	var req EvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON")
		return
	}
	if req.Attributes == nil {
		BadRequestError(w, r, ErrCodeValidation, "attributes are required")
		return
	}

	// A request-scoped client: the shared repository and sticky store, this
	// request's attributes.
	client := growthkit.New(growthkit.Options{
		Payload:                          s.repo.CurrentPayload(),
		Attributes:                       req.Attributes,
		URL:                              req.URL,
		DefaultHashAttribute:             s.defaultHashAttr,
		ForcedVariations:                 req.ForcedVariations,
		StickyBucketService:              s.sticky,
		StickyBucketIdentifierAttributes: s.identifierAttrs,
		Logger:                           &s.log,
	})

	keys := req.Features
	if len(keys) == 0 {
		for k := range s.repo.CurrentPayload().Features {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	results := make(map[string]*growthkit.FeatureResult, len(keys))
	for _, key := range keys {
		results[key] = client.EvalFeature(key)
	}
	writeJSON(w, http.StatusOK, EvalResponse{Results: results})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
