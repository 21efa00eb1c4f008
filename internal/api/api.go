// Package api provides HTTP handlers and the main API server logic for KamustaBot.
//
// It exposes RESTful endpoints for driving guided chat sessions and for the
// event records the check-in flow searches. The API integrates with the flow
// engine and the store modules.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kapwa-labs/KamustaBot/internal/flow"
	"github.com/kapwa-labs/KamustaBot/internal/models"
	"github.com/kapwa-labs/KamustaBot/internal/store"
)

const (
	// DefaultAddr is the listen address used when no override is configured.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown on context cancellation.
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	// Addr is the HTTP listen address.
	Addr string
	// Webhooks are extra inbound routes, e.g. a chat provider callback.
	Webhooks map[string]http.HandlerFunc
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithWebhook mounts an additional handler on the given path.
func WithWebhook(path string, h http.HandlerFunc) Option {
	return func(o *Opts) {
		if o.Webhooks == nil {
			o.Webhooks = make(map[string]http.HandlerFunc)
		}
		o.Webhooks[path] = h
	}
}

// Server hosts the HTTP endpoints for sessions and events.
type Server struct {
	engine *flow.Engine
	st     store.Store
	addr   string

	httpServer *http.Server

	webhooks map[string]http.HandlerFunc

	// sessionLocks serializes turn processing per session. Two concurrent
	// requests for the same session must observe each other's writes.
	mu           sync.Mutex
	sessionLocks map[string]*sync.Mutex
}

// NewServer creates an API server over the given engine and store.
func NewServer(engine *flow.Engine, st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	slog.Debug("Server.NewServer: creating API server", "addr", cfg.Addr)
	return &Server{
		engine:       engine,
		st:           st,
		addr:         cfg.Addr,
		webhooks:     cfg.Webhooks,
		sessionLocks: make(map[string]*sync.Mutex),
	}
}

// Handler returns the routed HTTP handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", s.createSessionHandler)
	mux.HandleFunc("/sessions/", s.sessionRouter)
	mux.HandleFunc("/events", s.eventsHandler)
	mux.HandleFunc("/events/", s.eventRouter)
	mux.HandleFunc("/health", s.healthHandler)
	for path, h := range s.webhooks {
		mux.HandleFunc(path, h)
	}
	return mux
}

// Run starts the HTTP server and blocks until the context is canceled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.Handler()}
	slog.Info("Server.Run: KamustaBot API listening", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: shutdown failed", "error", err)
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Server.Run: listener failed", "error", err)
		return err
	}
}

// lockSession acquires the per-session mutex and returns its unlock func.
func (s *Server) lockSession(id string) func() {
	s.mu.Lock()
	lock, ok := s.sessionLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.sessionLocks[id] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// sessionRouter dispatches /sessions/{id} and its sub-resources.
func (s *Server) sessionRouter(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	path = strings.TrimSuffix(path, "/")
	segments := strings.Split(path, "/")

	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Missing session ID"))
		return
	}
	sessionID := segments[0]

	if len(segments) == 1 {
		// /sessions/{id}
		switch r.Method {
		case http.MethodGet:
			s.getSessionHandler(w, r, sessionID)
		default:
			w.Header().Set("Allow", http.MethodGet)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	if len(segments) == 2 {
		switch segments[1] {
		case "turns":
			s.requirePost(w, r, sessionID, s.turnsHandler)
		case "progress":
			if r.Method != http.MethodGet {
				w.Header().Set("Allow", http.MethodGet)
				writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
				return
			}
			s.progressHandler(w, r, sessionID)
		case "reset":
			s.requirePost(w, r, sessionID, s.resetHandler)
		case "back":
			s.requirePost(w, r, sessionID, s.backHandler)
		case "result":
			s.requirePost(w, r, sessionID, s.resultHandler)
		default:
			writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown session endpoint"))
		}
		return
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown session endpoint"))
}

// eventRouter dispatches /events/{id}/checkins.
func (s *Server) eventRouter(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/events/")
	path = strings.TrimSuffix(path, "/")
	segments := strings.Split(path, "/")

	if len(segments) == 2 && segments[1] == "checkins" {
		switch r.Method {
		case http.MethodPost:
			s.createCheckinHandler(w, r, segments[0])
		case http.MethodGet:
			s.listCheckinsHandler(w, r, segments[0])
		default:
			w.Header().Set("Allow", "GET, POST")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	if len(segments) == 1 && segments[0] != "" {
		switch r.Method {
		case http.MethodGet:
			s.getEventHandler(w, r, segments[0])
		default:
			w.Header().Set("Allow", http.MethodGet)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown event endpoint"))
}

// requirePost enforces the POST method before invoking a session sub-handler.
func (s *Server) requirePost(w http.ResponseWriter, r *http.Request, sessionID string, h func(http.ResponseWriter, *http.Request, string)) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	h(w, r, sessionID)
}

// healthHandler provides a health check endpoint for monitoring.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
