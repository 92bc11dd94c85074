package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/cors"

	"github.com/MimeLyc/pipeline-console/internal/config"
	"github.com/MimeLyc/pipeline-console/internal/generation"
	"github.com/MimeLyc/pipeline-console/internal/jobs"
	"github.com/MimeLyc/pipeline-console/internal/monitor"
	"github.com/MimeLyc/pipeline-console/internal/sources"
	"github.com/MimeLyc/pipeline-console/internal/stats"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type Server struct {
	engine  *generation.Engine
	queue   *jobs.Queue
	sources *sources.Service
	stats   *stats.Service
	poller  *monitor.Poller

	settings runtimeSettingsStore
	apply    runtimeSettingsApplier

	uploadDir      string
	uploadLimit    int64
	streamInterval time.Duration
	now            func() time.Time

	uiEnabled   bool
	uiStaticDir string
	corsOrigins []string

	mux *http.ServeMux

	mu       sync.Mutex
	server   *http.Server
	shutdown bool
}

// DefaultUploadLimit caps a multipart import request.
const DefaultUploadLimit int64 = 2 << 30

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

// WithCORS allows browser calls from the given origins, e.g. a dashboard dev
// server. Without origins no CORS headers are sent.
func WithCORS(origins ...string) Option {
	return func(s *Server) {
		s.corsOrigins = append(s.corsOrigins, origins...)
	}
}

func WithSources(svc *sources.Service) Option {
	return func(s *Server) {
		s.sources = svc
	}
}

func WithStats(svc *stats.Service) Option {
	return func(s *Server) {
		s.stats = svc
	}
}

func WithPoller(p *monitor.Poller) Option {
	return func(s *Server) {
		s.poller = p
	}
}

// WithUploadDir sets where uploaded videos wait for their import job.
func WithUploadDir(dir string) Option {
	return func(s *Server) {
		s.uploadDir = dir
	}
}

// WithUploadLimit bounds the size of an upload request body in bytes.
func WithUploadLimit(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.uploadLimit = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamInterval = d
		}
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func NewServer(engine *generation.Engine, queue *jobs.Queue, opts ...Option) *Server {
	s := &Server{
		engine:         engine,
		queue:          queue,
		uploadLimit:    DefaultUploadLimit,
		streamInterval: time.Second,
		now:            time.Now,
		uiEnabled:      false,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	if len(s.corsOrigins) == 0 {
		return s.mux
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler(s.mux)
}

func (s *Server) ListenAndServe(addr string) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.server = srv
	s.mu.Unlock()
	return srv.ListenAndServe()
}

// Shutdown stops a running server; a server shut down before it started
// never listens.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/generations", s.handleGenerations)
	s.mux.HandleFunc("/api/generations/stream", s.handleGenerationStream)
	s.mux.HandleFunc("/api/generations/{id}/{action}", s.handleGenerationAction)
	s.mux.HandleFunc("/api/source-pages", s.handleSourcePages)
	s.mux.HandleFunc("/api/source-pages/{id}", s.handleSourcePage)
	s.mux.HandleFunc("/api/source-pages/{id}/toggle", s.handleToggleSourcePage)
	s.mux.HandleFunc("/api/source-videos", s.handleSourceVideos)
	s.mux.HandleFunc("/api/imports", s.handleImports)
	s.mux.HandleFunc("/api/imports/stream", s.handleImportStream)
	s.mux.HandleFunc("/api/imports/{id}/retry", s.handleImportRetry)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/api/activity", s.handleActivity)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/", s.handleStatic)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
