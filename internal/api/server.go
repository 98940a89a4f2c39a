package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/vyuha/topoview/internal/metrics"
	"github.com/vyuha/topoview/internal/storage"
	"github.com/vyuha/topoview/internal/viewsync"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

var validate = validator.New()

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Config holds the knobs of the HTTP layer that do not belong to the view
// service itself.
type Config struct {
	// RateLimit and RateBurst shape the limiter in front of the mutating
	// view endpoints. A non-positive RateLimit disables limiting.
	RateLimit float64
	RateBurst int
	// GraphSeed is stored with every snapshot.
	GraphSeed int64
}

// Server is the HTTP API layer over one view service.
type Server struct {
	svc         *viewsync.Service
	store       *storage.Storage
	sse         *EventStream
	metrics     *metrics.Registry
	mux         *http.ServeMux
	server      *http.Server
	viewLimiter *rate.Limiter
	graphSeed   int64
}

// NewServer creates a Server. store and reg may be nil: snapshot
// endpoints then answer 503 and no metrics are recorded.
func NewServer(svc *viewsync.Service, store *storage.Storage, sse *EventStream, reg *metrics.Registry, cfg Config) *Server {
	if sse == nil {
		sse = NewEventStream()
	}
	s := &Server{
		svc:       svc,
		store:     store,
		sse:       sse,
		metrics:   reg,
		mux:       http.NewServeMux(),
		graphSeed: cfg.GraphSeed,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.viewLimiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if reg != nil {
		sse.onClients = func(n int) { reg.SSEClients.Set(float64(n)) }
	}
	return s
}

// RegisterRoutes wires up every API endpoint.
func (s *Server) RegisterRoutes() {
	// -- Graph lookups ----------------------------------------------------
	s.mux.HandleFunc("GET /api/graph/node/{id}", s.handleGraphNode)
	s.mux.HandleFunc("GET /api/graph/node/{id}/context", s.handleGraphNodeContext)
	s.mux.HandleFunc("GET /api/graph/children", s.handleGraphChildren)
	s.mux.HandleFunc("GET /api/graph/ancestors/{id}", s.handleGraphAncestors)
	s.mux.HandleFunc("GET /api/graph/impact/{id}", s.handleGraphImpact)
	s.mux.HandleFunc("GET /api/graph/stats", s.handleGraphStats)

	// -- View commands (rate-limited) -------------------------------------
	s.mux.HandleFunc("POST /api/view/region", s.withRateLimit(s.handleViewRegion))
	s.mux.HandleFunc("POST /api/view/expand", s.withRateLimit(s.handleViewExpand))
	s.mux.HandleFunc("POST /api/view/collapse", s.withRateLimit(s.handleViewCollapse))
	s.mux.HandleFunc("POST /api/view/toggle", s.withRateLimit(s.handleViewToggle))
	s.mux.HandleFunc("POST /api/view/zoom", s.withRateLimit(s.handleViewZoom))
	s.mux.HandleFunc("POST /api/view/select", s.withRateLimit(s.handleViewSelect))
	s.mux.HandleFunc("POST /api/view/filters", s.withRateLimit(s.handleViewFilters))
	s.mux.HandleFunc("PUT /api/view/state", s.withRateLimit(s.handleViewRestore))

	// -- View reads -------------------------------------------------------
	s.mux.HandleFunc("GET /api/view/visible", s.handleViewVisible)
	s.mux.HandleFunc("GET /api/view/aggregates", s.handleViewAggregates)
	s.mux.HandleFunc("GET /api/view/stats", s.handleViewStats)
	s.mux.HandleFunc("GET /api/view/state", s.handleViewState)
	s.mux.HandleFunc("GET /api/view/performance", s.handleViewPerformance)

	// -- Snapshots --------------------------------------------------------
	s.mux.HandleFunc("POST /api/view/snapshots", s.withRateLimit(s.handleSnapshotSave))
	s.mux.HandleFunc("GET /api/view/snapshots", s.handleSnapshotList)
	s.mux.HandleFunc("GET /api/view/snapshots/{id}", s.handleSnapshotGet)
	s.mux.HandleFunc("POST /api/view/snapshots/{id}/restore", s.withRateLimit(s.handleSnapshotRestore))
	s.mux.HandleFunc("DELETE /api/view/snapshots/{id}", s.withRateLimit(s.handleSnapshotDelete))

	// -- SSE event stream -------------------------------------------------
	s.mux.HandleFunc("GET /api/events", s.handleSSE)

	// -- Health and metrics -----------------------------------------------
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Handler returns the fully-wrapped http.Handler (middleware chain + mux).
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = recoveryMiddleware(h)
	h = s.loggingMiddleware(h)
	h = corsMiddleware(h)
	return h
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: /api/events streams for as long as the client stays.
		IdleTimeout: 60 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"service": "topoview",
		"nodes":   s.svc.Graph().NodeCount(),
	}
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			body["status"] = "degraded"
			body["storage"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

// writeJSON writes an arbitrary value as JSON with the given HTTP status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeData wraps v in the {"data": ...} envelope.
func writeData(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, map[string]any{"data": v})
}

// writeError writes a standardised JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON reads a bounded JSON body into dst and runs struct validation.
// It writes the 400 itself and reports whether the handler may go on.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "invalid JSON body: " + err.Error()
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", msg)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_FAILED",
				fmt.Sprintf("%s failed %q", verrs[0].Namespace(), verrs[0].Tag()))
			return false
		}
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return false
	}
	return true
}

// clampInt restricts val to the inclusive range [lo, hi].
func clampInt(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

// intParam parses an integer query parameter, returning def when it is
// absent or malformed.
func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// corsMiddleware allows requests from any localhost origin (map dev
// servers run on their own port).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "http://localhost:5173"
		}

		if strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseRecorder captures the status code written by downstream handlers.
// It also implements http.Flusher so SSE streaming works through the
// logging middleware.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher by delegating to the underlying writer.
func (rr *responseRecorder) Flush() {
	if f, ok := rr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// loggingMiddleware logs method, path, duration and status code, and
// records the request metric labelled by route pattern.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.statusCode,
			"duration_ms", elapsed.Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
		if s.metrics != nil {
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			s.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(rec.statusCode), elapsed)
		}
	})
}

// recoveryMiddleware catches panics and returns a 500 response.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withRateLimit wraps a handler with the view limiter. Returns 429 when
// the limiter is exhausted.
// NOTE: this is a per-server limiter (not per-IP).
func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	if s.viewLimiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.viewLimiter.Allow() {
			w.Header().Set("Retry-After", "1")
			w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(float64(s.viewLimiter.Limit()), 'f', -1, 64))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(s.viewLimiter.Tokens())))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			slog.Warn("rate limit exceeded",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			return
		}
		next(w, r)
	}
}
