// Package daemon wires the pipeline together and enforces single-instance
// execution.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"recast/internal/config"
	"recast/internal/events"
	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/matcher"
	"recast/internal/publisher"
	"recast/internal/scheduler"
	"recast/internal/scorer"
	"recast/internal/services/llm"
	"recast/internal/services/scrapeapi"
	"recast/internal/slides"
	"recast/internal/store"
	"recast/internal/translator"
	"recast/internal/web"
	"recast/internal/workers"
)

// Daemon owns the store, job queue, stage workers, scheduler, and HTTP
// server.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store     *store.Store
	queue     jobs.Queue
	hub       *events.Hub
	scheduler *scheduler.Scheduler
	web       *web.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool
	QueueBackend string
	DatabasePath string
	LockFilePath string
}

// New builds the daemon's dependency graph from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	entityStore, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	queue := jobs.Select(cfg.Queue.Backend, entityStore.DB(), jobs.DurableOptions{
		PollInterval:       time.Duration(cfg.Queue.PollInterval) * time.Second,
		ErrorRetryInterval: time.Duration(cfg.Queue.ErrorRetryInterval) * time.Second,
		MaxAttempts:        cfg.Queue.MaxAttempts,
		InitialBackoff:     time.Duration(cfg.Queue.InitialBackoffSeconds) * time.Second,
	}, logger)

	hub := events.NewHub(entityStore, logger)

	resolveCtx := context.Background()
	scraperToken, err := resolveCredential(resolveCtx, entityStore, store.SettingScraperAPIToken,
		cfg.Scraper.APIToken, "RECAST_SCRAPER_TOKEN")
	if err != nil {
		_ = entityStore.Close()
		return nil, err
	}
	llmKey, err := resolveCredential(resolveCtx, entityStore, store.SettingLLMAPIKey,
		cfg.LLM.APIKey, "RECAST_LLM_API_KEY", "OPENAI_API_KEY")
	if err != nil {
		_ = entityStore.Close()
		return nil, err
	}
	imagesKey, err := resolveCredential(resolveCtx, entityStore, store.SettingImagesAPIKey,
		cfg.Images.APIKey, "RECAST_IMAGES_API_KEY", "GEMINI_API_KEY")
	if err != nil {
		_ = entityStore.Close()
		return nil, err
	}

	scrapeClient := scrapeapi.NewClient(scrapeapi.Config{
		BaseURL:      cfg.Scraper.BaseURL,
		Actor:        cfg.Scraper.Actor,
		APIToken:     scraperToken,
		ResultsLimit: cfg.Scraper.ResultsLimit,
		PollInterval: time.Duration(cfg.Scraper.PollIntervalSeconds) * time.Second,
		MaxWait:      time.Duration(cfg.Scraper.MaxWaitSeconds) * time.Second,
	})
	llmClient := llm.NewClient(llm.Config{
		APIKey:         llmKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	renderer := slides.NewRenderer(slides.Config{
		APIKey:  imagesKey,
		BaseURL: cfg.Images.BaseURL,
		Model:   cfg.Images.Model,
		Timeout: time.Duration(cfg.Images.TimeoutSeconds) * time.Second,
	})
	platform := publisher.NewClient(publisher.Config{
		BaseURL:      cfg.Publish.GraphBaseURL,
		PollInterval: time.Duration(cfg.Publish.PollIntervalSeconds) * time.Second,
		PollTimeout:  time.Duration(cfg.Publish.PollTimeoutSeconds) * time.Second,
	})

	stageWorkers := workers.New(workers.Deps{
		Store:         entityStore,
		Queue:         queue,
		Hub:           hub,
		Scorer:        scorer.New(entityStore),
		Scraper:       scrapeClient,
		Matcher:       matcher.New(llmClient),
		Translator:    translator.New(llmClient),
		Renderer:      renderer,
		Storage:       slides.NewStorage(cfg.Paths.MediaDir),
		Publisher:     platform,
		PublicBaseURL: cfg.PublicBaseURL(),
		Logger:        logger,
	})
	stageWorkers.Register(cfg.StageConcurrency)

	lockPath := filepath.Join(cfg.Paths.LogDir, "recastd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    entityStore,
		queue:    queue,
		hub:      hub,
		web:      web.NewServer(cfg.Paths.Bind, cfg.Paths.MediaDir, entityStore, hub, logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	if cfg.Scheduler.Enabled {
		d.scheduler = scheduler.New(entityStore, queue, logger)
	}
	return d, nil
}

// resolveCredential applies the API credential precedence: environment
// variables (in the order given), then the settings table, then the
// configuration file value.
func resolveCredential(ctx context.Context, s *store.Store, settingKey, configValue string, envVars ...string) (string, error) {
	for _, name := range envVars {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return value, nil
		}
	}
	value, ok, err := s.GetSetting(ctx, settingKey)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", settingKey, err)
	}
	if ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), nil
	}
	return configValue, nil
}

// Start acquires the instance lock and launches queue workers, the
// scheduler, and the HTTP server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another recast daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.queue.Start(runCtx); err != nil {
		d.teardown()
		return fmt.Errorf("start queue: %w", err)
	}
	if d.scheduler != nil {
		if err := d.scheduler.Start(runCtx); err != nil {
			d.queue.Stop()
			d.teardown()
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	if err := d.web.Start(); err != nil {
		if d.scheduler != nil {
			d.scheduler.Stop()
		}
		d.queue.Stop()
		d.teardown()
		return fmt.Errorf("start http server: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("recast daemon started",
		logging.String("backend", d.queue.Backend()),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts everything down in reverse start order and releases the
// lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.web.Stop()
	if d.scheduler != nil {
		d.scheduler.Stop()
	}
	d.queue.Stop()
	d.teardown()
	d.running.Store(false)
	d.logger.Info("recast daemon stopped")
}

func (d *Daemon) teardown() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Store exposes the entity store for command surfaces.
func (d *Daemon) Store() *store.Store {
	return d.store
}

// Queue exposes the job queue for command surfaces.
func (d *Daemon) Queue() jobs.Queue {
	return d.queue
}

// Status reports the daemon's runtime state.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		QueueBackend: d.queue.Backend(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
}
