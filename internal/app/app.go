package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/pipeline-console/internal/config"
	"github.com/MimeLyc/pipeline-console/internal/generation"
	"github.com/MimeLyc/pipeline-console/internal/httpapi"
	"github.com/MimeLyc/pipeline-console/internal/jobs"
	"github.com/MimeLyc/pipeline-console/internal/monitor"
	"github.com/MimeLyc/pipeline-console/internal/persistence"
	"github.com/MimeLyc/pipeline-console/internal/sources"
	"github.com/MimeLyc/pipeline-console/internal/stats"
	"github.com/MimeLyc/pipeline-console/internal/webhook"
	"github.com/MimeLyc/pipeline-console/pkg/file"
	"github.com/MimeLyc/pipeline-console/pkg/log"
)

const (
	shutdownTimeout = 10 * time.Second
	uploadRetention = 24 * time.Hour
)

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

// App is the assembled console: store, trigger client, engine, queue, poller
// and HTTP API.
type App struct {
	cfg       *config.Config
	store     persistence.Store
	client    *webhook.Client
	engine    *generation.Engine
	sources   *sources.Service
	queue     *jobs.Queue
	poller    *monitor.Poller
	settings  *config.RuntimeSettingsStore
	server    *httpapi.Server
	uploadDir string
}

// New opens the store and builds every component from cfg. settingsPath is
// the runtime settings file edited over HTTP.
func New(cfg *config.Config, settingsPath string) (*App, error) {
	store, err := persistence.Open(cfg)
	if err != nil {
		return nil, err
	}
	a, err := newWithStore(cfg, settingsPath, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func newWithStore(cfg *config.Config, settingsPath string, store persistence.Store) (*App, error) {
	settings, err := config.NewRuntimeSettingsStore(settingsPath, cfg.RuntimeSettings())
	if err != nil {
		return nil, err
	}

	client := webhook.NewClient(
		cfg.Webhook.ImportURL,
		cfg.Webhook.PublishURL,
		webhook.WithTimeout(cfg.Webhook.Timeout),
	)
	engine := generation.NewEngine(store,
		generation.WithStaleAfter(cfg.Pipeline.StaleAfter),
		generation.WithRegenerator(client),
		generation.WithPublisher(client),
	)
	sourceSvc := sources.NewService(store)
	statsSvc := stats.NewService(store, store, engine.Classifier())
	queue := jobs.NewQueue(cfg.Pipeline.ImportWorkers, store)
	poller := monitor.NewPoller(
		activityCounter{sources: sourceSvc, engine: engine},
		monitor.WithSchedule(cfg.Pipeline.PollSchedule),
		monitor.WithNoticeTTL(cfg.Pipeline.NoticeTTL),
	)

	a := &App{
		cfg:       cfg,
		store:     store,
		client:    client,
		engine:    engine,
		sources:   sourceSvc,
		queue:     queue,
		poller:    poller,
		settings:  settings,
		uploadDir: filepath.Join(cfg.Store.DataDir, "uploads"),
	}
	a.server = httpapi.NewServer(engine, queue,
		httpapi.WithUI(cfg.HTTP.UIStaticDir, cfg.HTTP.UIEnabled),
		httpapi.WithCORS(cfg.HTTP.CORSOrigins...),
		httpapi.WithSources(sourceSvc),
		httpapi.WithStats(statsSvc),
		httpapi.WithPoller(poller),
		httpapi.WithUploadDir(a.uploadDir),
		httpapi.WithUploadLimit(cfg.HTTP.MaxUploadBytes),
		httpapi.WithRuntimeSettingsStore(settings),
		httpapi.WithRuntimeSettingsApplier(a.applySettings),
	)
	return a, nil
}

func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Run starts the background components and serves HTTP until ctx is done,
// then shuts everything down in reverse order.
func (a *App) Run(ctx context.Context) error {
	return a.run(ctx, a.server)
}

func (a *App) run(ctx context.Context, srv httpServer) error {
	a.sweepUploads(time.Now())
	if err := a.engine.Refresh(ctx); err != nil {
		log.Warn("Initial generations load failed, will retry on next poll: %v", err)
	}
	a.queue.Start(a.executeImport)
	if err := a.poller.Start(ctx); err != nil {
		a.queue.Stop()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening on %s", a.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(a.cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err := g.Wait()

	a.poller.Stop()
	a.queue.Stop()
	log.Info("Console stopped")
	return err
}

func (a *App) Close() error {
	return a.store.Close()
}

// applySettings pushes saved runtime settings into the running components.
func (a *App) applySettings(next config.RuntimeSettings) error {
	a.client.SetEndpoints(next.ImportWebhookURL, next.PublishWebhookURL)
	if err := a.poller.SetSchedule(next.PollSchedule); err != nil {
		return err
	}
	log.Info("Runtime settings applied")
	return nil
}

// executeImport runs one import job against the import webhook. An uploaded
// file is removed once the webhook answered; on shutdown it is kept for the
// job's next attempt.
func (a *App) executeImport(ctx context.Context, job *jobs.ImportJob) (string, error) {
	p := job.Payload
	if !p.IsUpload() {
		return a.client.Import(ctx, webhook.ImportRequest{URL: p.SourceURL, Title: p.Title})
	}

	f, err := os.Open(p.FilePath)
	if err != nil {
		return "", err
	}
	msg, err := a.client.ImportFile(ctx, p.FileName, f, p.Title)
	_ = f.Close()
	if ctx.Err() == nil {
		if rmErr := os.Remove(p.FilePath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn("Failed to remove upload %s: %v", p.FilePath, rmErr)
		}
	}
	return msg, err
}

// sweepUploads removes old uploads that no known import job refers to.
func (a *App) sweepUploads(now time.Time) {
	stale, err := file.FindOlderThan(a.uploadDir, now.Add(-uploadRetention))
	if err != nil {
		log.Warn("Failed to scan uploads in %s: %v", a.uploadDir, err)
		return
	}
	if len(stale) == 0 {
		return
	}
	owned := make(map[string]struct{})
	for _, job := range a.queue.List() {
		if job.Payload.IsUpload() {
			owned[job.Payload.FilePath] = struct{}{}
		}
	}
	removed := 0
	for _, path := range stale {
		if _, ok := owned[path]; ok {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Warn("Failed to remove orphaned upload %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info("Removed %d orphaned uploads", removed)
	}
}

// activityCounter feeds the poller. Counting generations refreshes the
// engine, so polling also keeps the review lists current.
type activityCounter struct {
	sources *sources.Service
	engine  *generation.Engine
}

func (c activityCounter) CountVideos(ctx context.Context) (int, error) {
	return c.sources.CountVideos(ctx)
}

func (c activityCounter) CountGenerations(ctx context.Context) (int, error) {
	if err := c.engine.Refresh(ctx); err != nil {
		return 0, err
	}
	return len(c.engine.List()), nil
}
