// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	service "github.com/okian/crowdfund/internal/app"
	"github.com/okian/crowdfund/internal/adapters/http/swagger"
	"github.com/okian/crowdfund/internal/domain/catalog"
	"github.com/okian/crowdfund/internal/domain/funding"
	"github.com/okian/crowdfund/pkg/logger"
	"github.com/okian/crowdfund/pkg/metrics"
)

const maxBodyBytes = 64 << 10

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Participant(ctx context.Context, wallet string) (service.ParticipantView, error)
	SetScore(ctx context.Context, wallet string, index int, value float64) (service.ParticipantView, error)
	SetTier(ctx context.Context, wallet string, tier float64) (service.ParticipantView, error)
	Funding(ctx context.Context, wallet string) ([]funding.Amount, error)

	// Allocate is the pure allocator; a nil multiplier means the catalog's.
	Allocate(scores []float64, tier float64, multiplier *float64) []funding.Amount
	Catalog() *catalog.Catalog
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	participantHandler *ParticipantHandler
	allocateHandler    *AllocateHandler
	catalogHandler     *CatalogHandler

	allowedOrigins []string
	limiter        *RateLimiter
	logger         logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS origins of the browser client.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.allowedOrigins = origins
		}
	}
}

// WithRateLimit bounds mutating requests per client. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.limiter = NewRateLimiter(rps, burst)
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		allowedOrigins: []string{"*"},
		limiter:        NewRateLimiter(0, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.participantHandler = NewParticipantHandler(deps, s.logger)
	s.allocateHandler = NewAllocateHandler(deps)
	s.catalogHandler = NewCatalogHandler(deps)
	return s
}

// Handler builds the router with every route and middleware attached.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}).Handler)
	s.Register(ctx, r)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(ctx context.Context, r chi.Router) {
	ph := s.participantHandler

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Get("/catalog", MetricsMiddleware(s.catalogHandler.HandleGetCatalog, "catalog"))
	r.With(s.limiter.Middleware("allocate")).
		Post("/allocate", MetricsMiddleware(s.allocateHandler.HandleAllocate, "allocate"))

	r.Route("/participants/{wallet}", func(r chi.Router) {
		// Reads insert the default row on first sight, so they are limited too.
		r.With(s.limiter.Middleware("participant")).
			Get("/", MetricsMiddleware(ph.HandleGetParticipant, "participant"))
		r.With(s.limiter.Middleware("funding")).
			Get("/funding", MetricsMiddleware(ph.HandleGetFunding, "funding"))
		r.With(s.limiter.Middleware("set_score")).
			Put("/milestones/{index}", MetricsMiddleware(ph.HandleSetScore, "set_score"))
		r.With(s.limiter.Middleware("set_tier")).
			Put("/tier", MetricsMiddleware(ph.HandleSetTier, "set_tier"))
	})

	swagger.Register(ctx, r)
}

type errorResponse struct {
	Code    string                   `json:"code"`
	Message string                   `json:"message"`
	Stale   *service.ParticipantView `json:"stale,omitempty"`
}

// writeJSON encodes v before writing the header so an encoding failure
// becomes a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		metrics.RecordErrorByType("encode_response", "error")
		buf.Reset()
		_ = json.NewEncoder(&buf).Encode(errorResponse{
			Code:    "internal_error",
			Message: "failed to encode response",
		})
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeKindError derives the status from err's kind.
func writeKindError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// parseNumber accepts a JSON number or a numeric string.
func parseNumber(field string, v any) (float64, error) {
	var s string
	switch x := v.(type) {
	case nil:
		return 0, fmt.Errorf("missing %s", field)
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
	default:
		return 0, fmt.Errorf("%s must be a number", field)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", field, s)
	}
	return f, nil
}
