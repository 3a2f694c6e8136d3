// Package server is the HTTP host for the escrow engine. It authenticates
// signed operation requests, dispatches them to the engine and serves
// read-only views of records, balances and the admin config.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bitfsorg/milestone-escrow/escrow"
	"github.com/bitfsorg/milestone-escrow/identity"
	"github.com/bitfsorg/milestone-escrow/observability"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// DefaultRequestWindow is the accepted clock skew for signed requests.
const DefaultRequestWindow = 5 * time.Minute

// Options configures a Server.
type Options struct {
	// Issuer may call the issue operation. Zero disables issuance.
	Issuer identity.Address

	// RequestWindow bounds |now - request timestamp|.
	RequestWindow time.Duration

	Logger zerolog.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Server serves the escrow HTTP API.
type Server struct {
	engine *escrow.Engine
	issuer identity.Address
	window time.Duration
	now    func() time.Time
	log    zerolog.Logger
	seen   *replayGuard
}

// New creates a Server over engine.
func New(engine *escrow.Engine, opts Options) *Server {
	if opts.RequestWindow <= 0 {
		opts.RequestWindow = DefaultRequestWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		engine: engine,
		issuer: opts.Issuer,
		window: opts.RequestWindow,
		now:    opts.Now,
		log:    opts.Logger,
		seen:   newReplayGuard(opts.RequestWindow),
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.observeMiddleware)
	r.Use(limitRequestBodyMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "escrowd"})
	})
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ops/{op}", s.handleOperation)
		r.Get("/admin", s.getAdmin)
		r.Get("/escrows", s.listEscrows)
		r.Get("/escrows/{seed}", s.getEscrow)
		r.Get("/escrows/{seed}/addresses", s.getAddresses)
		r.Get("/balances/{owner}/{mint}", s.getBalance)
	})
	return r
}

// MetricsHandler serves only the prometheus registry, for a separate listener.
func MetricsHandler() http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", observability.Handler())
	return r
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

const requestIDHeader = "X-Request-ID"

type ctxKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(contextWithRequestID(r.Context(), id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(statusCode int) {
	s.code = statusCode
	s.ResponseWriter.WriteHeader(statusCode)
}

func (s *Server) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.RecordHTTPRequest(r.Method, route, rec.code, elapsed)
		s.log.Info().
			Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.code).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}

func limitRequestBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind, RequestID: requestIDFrom(r.Context())})
}
