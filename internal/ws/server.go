package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/taskhub/realtime/internal/auth"
	"github.com/taskhub/realtime/internal/config"
	"github.com/taskhub/realtime/internal/metrics"
	"github.com/taskhub/realtime/internal/procstat"
	"github.com/taskhub/realtime/internal/registry"
)

type Server struct {
	config         *config.Config
	registry       *registry.Registry
	handler        *Handler
	gateway        *Gateway
	monitor        *Monitor
	metrics        *metrics.Metrics
	sampler        *procstat.Sampler
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	started        time.Time

	mu       sync.Mutex
	baseCtx  context.Context
	sessions map[*Session]struct{}
	closed   bool
	readers  sync.WaitGroup
}

func NewServer(cfg *config.Config, reg *registry.Registry, verifier auth.Verifier, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:         cfg,
		registry:       reg,
		handler:        NewHandler(reg, verifier, m, logger),
		gateway:        NewGateway(reg, m),
		metrics:        m,
		logger:         logger,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		started:        time.Now(),
		baseCtx:        context.Background(),
		sessions:       make(map[*Session]struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.monitor = NewMonitor(cfg.WS.PingInterval, s.probeTargets, m, logger)

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// SetSampler configures process stats for /api/health. Must be called
// before Routes.
func (s *Server) SetSampler(sampler *procstat.Sampler) {
	s.sampler = sampler
}

// Gateway returns the entry point for server-originated project events.
func (s *Server) Gateway() *Gateway {
	return s.gateway
}

// Start launches the liveness monitor. It runs until ctx is cancelled or
// Close is called.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	s.monitor.Start(ctx)
}

// Close stops the liveness monitor, terminates every open session and waits
// for their cleanup to finish. Connections upgraded afterwards are closed
// straight away.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.monitor.Stop()
	for _, sess := range s.Sessions() {
		sess.Close()
	}
	s.readers.Wait()
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(s.config.WS.Path, s.handleWS)

	r.Group(func(r chi.Router) {
		r.Use(securityHeaders)
		r.Get("/api/health", s.handleHealth)
		r.Handle("/metrics", s.metrics.Handler())

		if s.config.Server.NotifyToken != "" {
			r.Post("/api/projects/{projectID}/events", s.handleNotify)
		} else {
			s.logger.Info("notify route disabled: no server.notify_token configured")
		}
	})

	return r
}

// Sessions returns a snapshot of the open sessions.
func (s *Server) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

func (s *Server) probeTargets() []prober {
	sessions := s.Sessions()
	out := make([]prober, len(sessions))
	for i, sess := range sessions {
		out[i] = sess
	}
	return out
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(s.config.WS.MaxMessageBytes)

	sess := newSession(conn, s.config.WS.SendQueue, s.config.WS.WriteTimeout, s.logger)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sess.Close()
		return
	}
	s.readers.Add(1)
	s.sessions[sess] = struct{}{}
	ctx := s.baseCtx
	s.mu.Unlock()
	s.metrics.SessionOpened()

	sess.logger.Info("client connected", "remote", r.RemoteAddr)
	go s.readLoop(ctx, sess)
}

func (s *Server) readLoop(ctx context.Context, sess *Session) {
	defer s.readers.Done()
	defer func() {
		s.handler.Disconnect(sess)
		sess.Close()

		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		s.metrics.SessionClosed()
		sess.logger.Info("client disconnected")
	}()

	for {
		mt, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sess.logger.Debug("read failed", "err", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			s.metrics.Malformed()
			sess.logger.Warn("dropping non-text frame")
			continue
		}
		s.handler.HandleFrame(ctx, sess, data)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status   string             `json:"status"`
		Uptime   string             `json:"uptime"`
		Sessions int                `json:"sessions"`
		Projects int                `json:"projects"`
		Process  *procstat.Snapshot `json:"process,omitempty"`
	}{
		Status:   "ok",
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Sessions: len(s.Sessions()),
		Projects: s.registry.ProjectCount(),
	}

	if s.sampler != nil {
		snap, err := s.sampler.Sample(r.Context())
		if err != nil {
			s.logger.Debug("process sample failed", "err", err)
		} else {
			resp.Process = &snap
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleNotify forwards a JSON event from an out-of-process service to every
// session joined to the project in the path.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeNotify(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	projectID := chi.URLParam(r, "projectID")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.WS.MaxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "event too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}

	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Type == "" {
		http.Error(w, "event must be a JSON object with a type", http.StatusBadRequest)
		return
	}

	n := s.gateway.NotifyProject(projectID, json.RawMessage(body))
	s.logger.Debug("gateway event", "project", projectID, "type", env.Type, "delivered", n)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]int{"delivered": n})
}

func (s *Server) authorizeNotify(r *http.Request) bool {
	want := []byte(s.config.Server.NotifyToken)
	if len(want) == 0 {
		return false
	}

	got := r.Header.Get("X-Taskhub-Token")
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		got = strings.TrimPrefix(header, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(got), want) == 1
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}
	if host == r.Host {
		return true
	}

	hostname := parsed.Hostname()
	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
