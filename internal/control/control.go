// Package control exposes the session controller over HTTP.
//
// Routes:
//
//	POST /v1/session/connect     start a session and wait for the outcome
//	POST /v1/session/disconnect  end the session (idempotent)
//	POST /v1/camera              {"on": bool}
//	GET  /v1/status              current status snapshot
//	GET  /v1/status/stream       WebSocket pushing the status at a fixed rate
//
// Health probes and the Prometheus endpoint are mounted alongside when
// configured.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/quilang-hardware/hardy/internal/health"
	"github.com/quilang-hardware/hardy/internal/session"
	"github.com/quilang-hardware/hardy/pkg/device"
)

// DefaultStreamInterval is the status push period of the stream endpoint.
const DefaultStreamInterval = 100 * time.Millisecond

// maxBodyBytes bounds request bodies; the only body is the camera toggle.
const maxBodyBytes = 1 << 10

// Sessions is the controller surface the API drives.
type Sessions interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SetCamera(ctx context.Context, on bool) error
	Status() session.Status
}

// Compile-time assertion that the session controller satisfies Sessions.
var _ Sessions = (*session.Controller)(nil)

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithMiddleware wraps the whole mux, e.g. with [observe.Middleware].
func WithMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(s *Server) { s.middleware = append(s.middleware, mw) }
}

// WithStreamInterval overrides [DefaultStreamInterval].
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// Server serves the control API.
type Server struct {
	sessions   Sessions
	health     *health.Handler
	metrics    http.Handler
	middleware []func(http.Handler) http.Handler
	interval   time.Duration
	log        *slog.Logger
	handler    http.Handler
}

// New builds the API over sessions.
func New(sessions Sessions, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		interval: DefaultStreamInterval,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/session/connect", s.connect)
	mux.HandleFunc("POST /v1/session/disconnect", s.disconnect)
	mux.HandleFunc("POST /v1/camera", s.camera)
	mux.HandleFunc("GET /v1/status", s.status)
	mux.HandleFunc("GET /v1/status/stream", s.stream)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	var h http.Handler = mux
	for i := len(s.middleware) - 1; i >= 0; i-- {
		h = s.middleware[i](h)
	}
	s.handler = h
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ─── Handlers ────────────────────────────────────────────────────────────────

type statusResponse struct {
	Status session.Status `json:"status"`
	Error  string         `json:"error,omitempty"`
}

type cameraRequest struct {
	On *bool `json:"on"`
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Connect(r.Context()); err != nil {
		s.fail(w, r, "connect", err)
		return
	}
	s.ok(w)
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Disconnect(r.Context()); err != nil {
		s.fail(w, r, "disconnect", err)
		return
	}
	s.ok(w)
}

func (s *Server) camera(w http.ResponseWriter, r *http.Request) {
	var req cameraRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil || req.On == nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{
			Status: s.sessions.Status(),
			Error:  `body must be {"on": true|false}`,
		})
		return
	}
	if err := s.sessions.SetCamera(r.Context(), *req.On); err != nil {
		s.fail(w, r, "camera", err)
		return
	}
	s.ok(w)
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	s.ok(w)
}

// stream pushes the status until the client goes away. Incoming messages
// are discarded.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug("control: status stream upgrade failed", "err", err)
		return
	}
	defer c.CloseNow()

	ctx := c.CloseRead(r.Context())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		wctx, cancel := context.WithTimeout(ctx, 5*s.interval+time.Second)
		err := wsjson.Write(wctx, c, s.sessions.Status())
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Debug("control: status stream write failed", "err", err)
			}
			return
		}
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
		}
	}
}

// ─── Responses ───────────────────────────────────────────────────────────────

func (s *Server) ok(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, statusResponse{Status: s.sessions.Status()})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := statusCode(err)
	level := slog.LevelWarn
	if code >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.log.Log(r.Context(), level, "control: "+op+" failed", "err", err, "code", code)
	writeJSON(w, code, statusResponse{Status: s.sessions.Status(), Error: err.Error()})
}

// statusCode maps controller errors onto HTTP statuses.
func statusCode(err error) int {
	switch {
	case errors.Is(err, device.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrNotActive), errors.Is(err, session.ErrAborted):
		return http.StatusConflict
	case errors.Is(err, device.ErrUnavailable), errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads this.
		return 499
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
