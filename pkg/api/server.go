package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Mindburn-Labs/mirrornode/pkg/audit"
	"github.com/Mindburn-Labs/mirrornode/pkg/events"
	"github.com/Mindburn-Labs/mirrornode/pkg/observability"
	"github.com/Mindburn-Labs/mirrornode/pkg/orchestrator"
	"github.com/Mindburn-Labs/mirrornode/pkg/router"
)

const (
	maxBodyBytes       = 1 << 20
	defaultRecentLimit = 50
	defaultHeartbeat   = 15 * time.Second
)

type Option func(*Server)

func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithRateLimiter replaces the default per-IP limiter. Nil disables limiting.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithHeartbeat sets the keep-alive interval of /stream.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithObservability traces and counts every request.
func WithObservability(p *observability.Provider) Option {
	return func(s *Server) { s.obs = p }
}

// WithCORS allows browser calls from origins. Without it no CORS headers are
// sent.
func WithCORS(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// Server is the HTTP bridge over a router and an orchestrator.
type Server struct {
	router    *router.Router
	orch      *orchestrator.Orchestrator
	version   string
	limiter   *RateLimiter
	logger    *slog.Logger
	heartbeat time.Duration
	now       func() time.Time

	obs         *observability.Provider
	corsOrigins []string
}

func NewServer(r *router.Router, o *orchestrator.Orchestrator, opts ...Option) *Server {
	s := &Server{
		router:    r,
		orch:      o,
		version:   "1.0.0",
		limiter:   NewRateLimiter(DefaultRequestsPerMinute, 0),
		logger:    slog.Default().With("component", "api"),
		heartbeat: defaultHeartbeat,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.obs == nil {
		s.obs, _ = observability.New(context.Background(), &observability.Config{Enabled: false})
	}
	return s
}

// Limiter returns the active rate limiter, or nil.
func (s *Server) Limiter() *RateLimiter { return s.limiter }

// Handler mounts every endpoint behind the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/event", s.handleEvent)
	mux.HandleFunc("/events/recent", s.handleRecent)
	mux.HandleFunc("/route", s.handleRoute)
	mux.HandleFunc("/consensus", s.handleConsensus)
	mux.HandleFunc("/audit", s.handleAudit)
	mux.HandleFunc("/stream", s.handleStream)

	var h http.Handler = mux
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	if s.corsOrigins != nil {
		h = CORS(s.corsOrigins)(h)
	}
	return RequestID(Telemetry(s.obs)(Recover(s.logger)(h)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "operational",
		"timestamp":    s.now().UTC().Format(time.RFC3339),
		"version":      s.version,
		"state":        s.orch.State().String(),
		"adapters":     s.orch.Adapters(),
		"availability": s.orch.Availability(),
		"history_size": s.router.HistorySize(),
	})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	e, ok := s.decodeEvent(w, r)
	if !ok {
		return
	}
	responses, err := s.router.Dispatch(r.Context(), e)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "routed",
		"trace_id":  e.TraceID,
		"responses": responses,
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	recent := s.router.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"events":   recent,
		"count":    len(recent),
		"capacity": s.router.HistoryCapacity(),
	})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	e, ok := s.decodeEvent(w, r)
	if !ok {
		return
	}
	result, err := s.orch.RouteEvent(r.Context(), e, r.URL.Query().Get("target"))
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConsensus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	e, ok := s.decodeEvent(w, r)
	if !ok {
		return
	}
	result, err := s.orch.RequestConsensus(r.Context(), e)
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAudit accepts an Osiris audit job and routes it as an ANALYSIS event.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	job, err := events.DecodeAuditJob(body)
	if err != nil {
		WriteErrorR(w, r, http.StatusBadRequest, "Invalid Audit Job", err.Error())
		return
	}
	s.logger.InfoContext(r.Context(), "audit job submitted", "event", job.Event, "trace_id", job.TraceID)

	if _, err := s.router.Dispatch(r.Context(), job.ToEvent(clientIP(r))); err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trace_id":  job.TraceID,
		"status":    "queued",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"message":   "Audit job queued for processing",
	})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteErrorR(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "body exceeds 1 MiB")
		return nil, false
	}
	return body, true
}

func (s *Server) decodeEvent(w http.ResponseWriter, r *http.Request) (*events.Event, bool) {
	body, ok := readBody(w, r)
	if !ok {
		return nil, false
	}
	e, err := events.Decode(body)
	if err != nil {
		WriteErrorR(w, r, http.StatusBadRequest, "Invalid Event", err.Error())
		return nil, false
	}
	return e, true
}

func (s *Server) writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, events.ErrInvalidEvent):
		WriteErrorR(w, r, http.StatusBadRequest, "Invalid Event", err.Error())
	case errors.Is(err, orchestrator.ErrUnknownAdapter):
		WriteErrorR(w, r, http.StatusNotFound, "Unknown Adapter", err.Error())
	case errors.Is(err, orchestrator.ErrNotInitialized):
		WriteErrorR(w, r, http.StatusServiceUnavailable, "Orchestrator Not Ready", err.Error())
	case errors.Is(err, audit.ErrEmissionFailed), errors.Is(err, audit.ErrSinkNotConfigured):
		s.logger.ErrorContext(r.Context(), "audit gate halted request", "path", r.URL.Path, "error", err)
		WriteErrorR(w, r, http.StatusServiceUnavailable, "Audit Unavailable", "the request was halted because its audit record could not be written")
	case errors.Is(err, router.ErrSubscriberFailed):
		s.logger.ErrorContext(r.Context(), "subscriber failed", "path", r.URL.Path, "error", err)
		WriteErrorR(w, r, http.StatusBadGateway, "Subscriber Failed", "an event subscriber rejected the event")
	default:
		WriteInternal(w, fmt.Errorf("%s: %w", r.URL.Path, err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
