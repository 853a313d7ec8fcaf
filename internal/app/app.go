package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/palamut62/ai-gant-news/internal/config"
	"github.com/palamut62/ai-gant-news/internal/domain"
	"github.com/palamut62/ai-gant-news/internal/events"
	"github.com/palamut62/ai-gant-news/internal/fetcher"
	"github.com/palamut62/ai-gant-news/internal/httpserver"
	"github.com/palamut62/ai-gant-news/internal/infrastructure/llm"
	"github.com/palamut62/ai-gant-news/internal/infrastructure/scheduler"
	"github.com/palamut62/ai-gant-news/internal/infrastructure/storage"
	"github.com/palamut62/ai-gant-news/internal/infrastructure/telegram"
	"github.com/palamut62/ai-gant-news/internal/logging"
	"github.com/palamut62/ai-gant-news/internal/metrics"
	"github.com/palamut62/ai-gant-news/internal/notify"
	"github.com/palamut62/ai-gant-news/internal/parser"
	"github.com/palamut62/ai-gant-news/internal/ports"
	"github.com/palamut62/ai-gant-news/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Option customises how the application is assembled.
type Option func(*options)

type options struct {
	generator ports.Generator
	notifier  ports.Notifier
}

// WithGenerator replaces the configured generator provider.
func WithGenerator(gen ports.Generator) Option {
	return func(o *options) { o.generator = gen }
}

// WithNotifier replaces the Telegram notifier of the relay.
func WithNotifier(n ports.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     ports.Store
	metrics   *metrics.Recorder
	bus       *events.Bus
	bridge    *notify.Bridge
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	relay     *usecase.Relay

	closeOnce sync.Once
}

// New validates the configuration, opens storage and assembles the pipeline.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts ...Option) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	generator := o.generator
	if generator == nil {
		gen, err := llm.NewDefaultRegistry(cfg.Generator).Resolve(cfg.Generator.Provider)
		if err != nil {
			return nil, err
		}
		generator = gen
	}

	store, err := storage.Open(ctx, cfg.Database, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}

	rec := metrics.New()
	bus := events.NewBus(cfg.Feed.Buffer)
	location := cfg.Scheduler.Location()

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Fetcher: fetcher.New(generator, fetcher.Options{
			MinItems:       cfg.Ingest.MinItems,
			MaxItems:       cfg.Ingest.MaxItems,
			TopicPrimary:   cfg.Ingest.TopicPrimary,
			TopicSecondary: cfg.Ingest.TopicSecondary,
		}, baseLogger.With("component", "fetcher"), rec),
		Parser:     parser.New(baseLogger.With("component", "parser"), rec, nil),
		Persister:  usecase.NewPersister(store, baseLogger.With("component", "persister"), rec, nil),
		Bus:        bus,
		Logger:     baseLogger.With("component", "pipeline"),
		Metrics:    rec,
		WindowDays: cfg.Ingest.WindowDays,
		Location:   location,
	})

	bridge := notify.NewBridge(store, store, notify.Options{
		Window:      cfg.Feed.Window,
		RecentLimit: cfg.Feed.RecentLimit,
	}, baseLogger.With("component", "bridge"), rec)

	application := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    store,
		metrics:  rec,
		bus:      bus,
		bridge:   bridge,
		pipeline: pipeline,
	}

	if !cfg.Scheduler.Disabled {
		driver := scheduler.NewIntervalScheduler(cfg.Scheduler.Interval, cfg.Scheduler.RunOnStart, location)
		application.scheduler = usecase.NewScheduler(driver, pipeline, baseLogger.With("component", "scheduler"))
	}

	notifier := o.notifier
	if notifier == nil && cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram)
	}
	if notifier != nil {
		application.relay = usecase.NewRelay(bridge, notifier, baseLogger.With("component", "relay"))
	}

	return application, nil
}

// RunOnce performs a single ingestion run.
func (a *Application) RunOnce(ctx context.Context) (domain.RunReport, error) {
	return a.pipeline.Run(ctx)
}

// Serve listens on the configured address until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Server.Addr, err)
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener runs the HTTP surface, the scheduler and the relay on ln until ctx is cancelled,
// then shuts them down.
func (a *Application) ServeListener(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	router := httpserver.NewRouter(httpserver.Deps{
		Runner:     a.pipeline,
		Reader:     a.store,
		Store:      a.store,
		Bridge:     a.bridge,
		Bus:        a.bus,
		Metrics:    a.metrics,
		CronSecret: a.cfg.Server.CronSecret,
	})
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			ln.Close()
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	var wg sync.WaitGroup
	if a.relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.relay.Run(ctx); err != nil {
				a.logger.Error("relay stopped", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", ln.Addr().String())
		serveErr <- srv.Serve(ln)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	// a scheduled run in flight must see the cancellation before Stop waits for it
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	// live streams hold their connections open; end them before draining the server
	a.bridge.Close()
	a.bus.Close()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = fmt.Errorf("shutdown http server: %w", shutdownErr)
	}
	if a.scheduler != nil {
		if stopErr := a.scheduler.Stop(shutdownCtx); stopErr != nil {
			a.logger.Warn("scheduler did not stop in time", "error", stopErr)
		}
	}
	wg.Wait()

	a.logger.Info("http server stopped")
	return err
}

// Close releases the storage backend.
func (a *Application) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.bridge.Close()
		a.bus.Close()
		err = a.store.Close()
	})
	return err
}
