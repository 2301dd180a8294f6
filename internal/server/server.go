package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	gosync "sync"
	"time"

	"github.com/wesm/clinicview/internal/config"
	"github.com/wesm/clinicview/internal/dashboard"
	"github.com/wesm/clinicview/internal/db"
	"github.com/wesm/clinicview/internal/metrics"
	"github.com/wesm/clinicview/internal/sync"
)

// VersionInfo holds build-time version metadata.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Server is the HTTP server that serves the analytics API.
type Server struct {
	mu      gosync.RWMutex
	cfg     config.Config
	db      *db.DB
	engine  *sync.Engine
	service *dashboard.Service
	mux     *http.ServeMux
	httpSrv *http.Server
	version VersionInfo
	metrics *serverMetrics
	now     func() time.Time

	// watchInterval is how often watch streams poll the import
	// generation. Tests shorten it.
	watchInterval time.Duration

	// handlerDelay is injected before each timeout-wrapped
	// handler, used only by tests to guarantee handlers
	// exceed a short timeout. Zero in production.
	handlerDelay time.Duration
}

// New creates a new Server reading records from database and
// importing through engine.
func New(
	cfg config.Config, database *db.DB, engine *sync.Engine,
	opts ...Option,
) *Server {
	s := &Server{
		cfg:           cfg,
		db:            database,
		engine:        engine,
		mux:           http.NewServeMux(),
		metrics:       newServerMetrics(),
		now:           time.Now,
		watchInterval: pollInterval,
	}

	loader := dashboard.NewLoader(dashboard.NewDBStore(database))
	if cfg.FetchCap > 0 {
		loader.Cap = cfg.FetchCap
	}
	if cfg.FetchTimeout > 0 {
		loader.Timeout = cfg.FetchTimeout
	}
	loader.Observe = s.metrics.observeFetch
	s.service = dashboard.NewService(loader, metrics.Options{
		MinSessionsForFollowUp: cfg.MinSessionsForFollowUp,
	})

	for _, opt := range opts {
		opt(s)
	}
	s.service.Options.Now = s.now
	s.routes()
	return s
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the build-time version metadata.
func WithVersion(v VersionInfo) Option {
	return func(s *Server) { s.version = v }
}

// WithClock overrides the clock used for default date ranges and
// snapshot timestamps. Nil is ignored.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithWatchInterval overrides how often watch streams check for
// new imports.
func WithWatchInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.watchInterval = d
		}
	}
}

func (s *Server) routes() {
	s.mux.Handle(
		"GET /api/v1/analytics/snapshot", s.withTimeout(s.handleSnapshot),
	)
	// Compare streams phases when asked to; the timeout wrapper
	// would buffer the stream.
	s.mux.HandleFunc("GET /api/v1/analytics/compare", s.handleCompare)
	// SSE: Do not use timeout, as this is a long-lived connection.
	s.mux.HandleFunc("GET /api/v1/analytics/watch", s.handleWatch)

	s.mux.Handle(
		"POST /api/v1/records/upload", s.withTimeout(s.handleUploadRecords),
	)
	s.mux.Handle("GET /api/v1/stats", s.withTimeout(s.handleGetStats))
	s.mux.Handle("GET /api/v1/version", s.withTimeout(s.handleGetVersion))
	s.mux.HandleFunc("POST /api/v1/sync", s.handleTriggerSync)
	s.mux.HandleFunc("POST /api/v1/resync", s.handleTriggerResync)
	s.mux.Handle("GET /api/v1/sync/status", s.withTimeout(s.handleSyncStatus))

	s.mux.Handle("GET /metrics", s.metrics.handler())
}

func (s *Server) handleGetVersion(
	w http.ResponseWriter, _ *http.Request,
) {
	writeJSON(w, http.StatusOK, s.version)
}

// SetPort updates the listen port (for testing).
func (s *Server) SetPort(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Port = port
}

// Handler returns the http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(logMiddleware(s.metrics.instrument(s.mux)))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.mu.RLock()
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	s.mu.RUnlock()
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()
	log.Printf("Starting server at http://%s", addr)
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpSrv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// FindAvailablePort finds an available port starting from the
// given port, binding to the specified host.
func FindAvailablePort(host string, start int) int {
	for port := start; port < start+100; port++ {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			ln.Close()
			return port
		}
	}
	return start
}

// URL returns the base URL the server listens on.
func (s *Server) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf(
		"http://%s", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
	)
}
