package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"smartshuffle/internal/core"
)

const shutdownTimeout = 10 * time.Second

// Shuffler starts shuffle sessions.
type Shuffler interface {
	Shuffle(ctx context.Context, playlistID, deviceID string) (*core.ShuffleResult, error)
}

// Memory exposes per-playlist shuffle memory.
type Memory interface {
	GetProgress(ctx context.Context, playlistID string, totalTracks int) (*core.Stats, bool)
	Reset(ctx context.Context, playlistID string) error
	ResetAll(ctx context.Context) error
}

// Delivery exposes the queue delivery slot.
type Delivery interface {
	Status(ctx context.Context) (*core.QueueDeliveryState, error)
	Stop(ctx context.Context) error
	IsActive(ctx context.Context) bool
}

// Stats aggregates progress across playlists.
type Stats interface {
	Aggregate(ctx context.Context) (*core.AggregateStats, error)
}

// Auth drives the Spotify OAuth redirect flow.
type Auth interface {
	AuthURL() string
	CompleteAuth(ctx context.Context, r *http.Request) error
	Authenticated() bool
}

// Dependencies are the services behind the control API.
type Dependencies struct {
	Shuffler Shuffler
	Memory   Memory
	Delivery Delivery
	Stats    Stats
	Auth     Auth
}

type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	server  *http.Server
	metrics *Metrics
}

func NewServer(config *core.ServerConfig, deps Dependencies, metrics *Metrics, logger *zap.Logger) *Server {
	logger = logger.Named("http")
	router := setupRoutes(deps, metrics, logger)

	return &Server{
		config:  config,
		logger:  logger,
		server:  createHTTPServer(config, router),
		metrics: metrics,
	}
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func setupRoutes(deps Dependencies, metrics *Metrics, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(middleware.RequestID)
	router.Use(requestLoggerMiddleware(logger))
	router.Use(middleware.Recoverer)

	api := &handlers{deps: deps, logger: logger}

	router.Get("/", homeHandler)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "smartshuffle"})
	})
	router.Get("/readyz", api.readyz)
	router.Handle("/metrics", metrics.Handler())

	router.Get("/login", api.login)
	router.Get("/callback", api.callback)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", handle(logger, api.stats))
		r.Delete("/memory", handle(logger, api.resetAll))
		r.Route("/playlists/{playlistID}", func(r chi.Router) {
			r.Get("/progress", handle(logger, api.progress))
			r.Delete("/memory", handle(logger, api.reset))
			r.Post("/shuffle", handle(logger, api.shuffle))
		})
		r.Get("/delivery", handle(logger, api.deliveryStatus))
		r.Post("/delivery/stop", handle(logger, api.stopDelivery))
	})

	return router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// responseWriter captures the status code for the request log.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func requestLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			logger.Debug("Handled request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", middleware.GetReqID(r.Context())))
		})
	}
}

// apiHandler is a handler that reports failures as errors.
type apiHandler func(w http.ResponseWriter, r *http.Request) error

func handle(logger *zap.Logger, h apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Error("Request failed",
				zap.String("path", r.URL.Path),
				zap.String("requestID", middleware.GetReqID(r.Context())),
				zap.Error(err))
		}
		writeJSON(w, status, errorBody{Error: err.Error()})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrMemoryMissing):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDeliveryActive), errors.Is(err, core.ErrNoDevice):
		return http.StatusConflict
	case errors.Is(err, core.ErrDeliveryFatal):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrStorage):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type handlers struct {
	deps   Dependencies
	logger *zap.Logger
}

func (h *handlers) readyz(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Auth != nil && !h.deps.Auth.Authenticated() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unauthenticated", "service": "smartshuffle"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": "smartshuffle"})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	if h.deps.Auth == nil {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, h.deps.Auth.AuthURL(), http.StatusFound)
}

func (h *handlers) callback(w http.ResponseWriter, r *http.Request) {
	if h.deps.Auth == nil {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.Auth.CompleteAuth(r.Context(), r); err != nil {
		h.logger.Warn("Spotify authorization failed", zap.Error(err))
		http.Error(w, "authorization failed", http.StatusForbidden)
		return
	}

	h.logger.Info("Spotify authorization completed")
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(`<!DOCTYPE html><html><body><p>Spotify connected. You can close this window.</p></body></html>`))
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) error {
	stats, err := h.deps.Stats.Aggregate(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, stats)
	return nil
}

func (h *handlers) progress(w http.ResponseWriter, r *http.Request) error {
	playlistID := chi.URLParam(r, "playlistID")

	total := 0
	if raw := r.URL.Query().Get("total"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return fmt.Errorf("%w: total must be a non-negative integer", core.ErrValidation)
		}
		total = parsed
	}

	stats, ok := h.deps.Memory.GetProgress(r.Context(), playlistID, total)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrMemoryMissing, playlistID)
	}
	writeJSON(w, http.StatusOK, stats)
	return nil
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) error {
	if err := h.deps.Memory.Reset(r.Context(), chi.URLParam(r, "playlistID")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *handlers) resetAll(w http.ResponseWriter, r *http.Request) error {
	if err := h.deps.Memory.ResetAll(r.Context()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *handlers) shuffle(w http.ResponseWriter, r *http.Request) error {
	result, err := h.deps.Shuffler.Shuffle(r.Context(), chi.URLParam(r, "playlistID"), r.URL.Query().Get("device"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusAccepted, result)
	return nil
}

func (h *handlers) deliveryStatus(w http.ResponseWriter, r *http.Request) error {
	state, err := h.deps.Delivery.Status(r.Context())
	if err != nil {
		return err
	}
	if state == nil || !h.deps.Delivery.IsActive(r.Context()) {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return nil
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": true, "delivery": state})
	return nil
}

func (h *handlers) stopDelivery(w http.ResponseWriter, r *http.Request) error {
	if err := h.deps.Delivery.Stop(r.Context()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func homeHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Smart Shuffle</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { color: #333; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
        .endpoint a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <h1 class="header">🔀 Smart Shuffle</h1>
    <p>Shuffle without repeats until every track has played</p>

    <h2>Endpoints</h2>
    <div class="endpoint">🔑 <a href="/login">Login</a> - Connect Spotify</div>
    <div class="endpoint">📈 <a href="/api/v1/stats">Stats</a> - Shuffle progress per playlist</div>
    <div class="endpoint">📬 <a href="/api/v1/delivery">Delivery</a> - Current queue delivery</div>
    <div class="endpoint">📊 <a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint">💚 <a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint">✅ <a href="/readyz">Ready</a> - Readiness check</div>
</body>
</html>`))
}
