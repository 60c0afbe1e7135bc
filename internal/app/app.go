package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"SentimentTracker/internal/config"
	"SentimentTracker/internal/domain"
	"SentimentTracker/internal/httpapi"
	"SentimentTracker/internal/infrastructure/llm"
	"SentimentTracker/internal/infrastructure/newsapi"
	"SentimentTracker/internal/infrastructure/scheduler"
	"SentimentTracker/internal/infrastructure/storage"
	"SentimentTracker/internal/infrastructure/telegram"
	"SentimentTracker/internal/logging"
	"SentimentTracker/internal/metrics"
	"SentimentTracker/internal/ports"
	"SentimentTracker/internal/usecase"
)

// Overrides replaces collaborators built from config, mainly for tests.
type Overrides struct {
	News      ports.NewsSearcher
	Completer ports.Completer
	Store     ports.Store
	Notifier  ports.Notifier
	Scheduler ports.Scheduler
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Collectors

	db       *sqlx.DB
	store    ports.Store
	pipeline *usecase.Pipeline
	answerer *usecase.Answerer
	sched    *usecase.Scheduler
}

// New builds the application from cfg. Collaborators in ov take precedence.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, ov Overrides) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	filter, err := domain.ParseSourceFilter(cfg.Pipeline.SourceFilter)
	if err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}

	a := &Application{cfg: cfg, logger: baseLogger, metrics: metrics.New()}

	store, err := a.buildStore(ctx, ov.Store)
	if err != nil {
		return nil, err
	}
	a.store = store

	news := ov.News
	if news == nil {
		news = newsapi.NewClient(newsapi.Config{
			BaseURL:           cfg.News.BaseURL,
			APIKey:            cfg.News.APIKey,
			Timeout:           cfg.News.Timeout,
			RequestsPerSecond: cfg.News.RequestsPerSecond,
		}, nil)
	}

	completer := ov.Completer
	if completer == nil {
		completer, err = llm.NewRegistry().Resolve(cfg.LLM.Provider, llm.ProviderConfig{
			APIKey:            cfg.LLM.APIKey(),
			Model:             cfg.LLM.Model,
			BaseURL:           cfg.LLM.BaseURL,
			Timeout:           cfg.LLM.Timeout,
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
			MaxRetries:        cfg.LLM.MaxRetries,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("build llm client: %w", err)
		}
	}

	notifier := ov.Notifier
	if notifier == nil && cfg.Notifications.Telegram.Enabled() {
		tg := cfg.Notifications.Telegram
		n, err := telegram.NewNotifier(tg.BotToken, tg.ChatID, nil, tg.Endpoint)
		if err != nil {
			baseLogger.Warn("telegram notifier disabled", "error", err)
		} else {
			notifier = n
		}
	}

	thresholds := cfg.Thresholds()
	trend := cfg.TrendPolicy()

	extractor := usecase.NewExtractor(news, store, usecase.ExtractorConfig{
		Aliases:        cfg.Tickers.Aliases,
		CuratedDomains: cfg.News.CuratedDomains,
		Language:       cfg.News.Language,
		SortBy:         cfg.News.SortBy,
		ArticleBudget:  cfg.Pipeline.ArticleBudget,
		ChunkDays:      cfg.Pipeline.ChunkDays,
		ChunkFloor:     cfg.Pipeline.ChunkFloor,
		ExcerptLimit:   cfg.Pipeline.ExcerptLimit,
	}, baseLogger.With("component", "extraction"), a.metrics)

	scorer := usecase.NewScorer(completer, store, thresholds,
		generation(cfg.LLM.Scoring), baseLogger.With("component", "scoring"), a.metrics)

	aggregator := usecase.NewAggregator(completer, store, store, thresholds, trend,
		generation(cfg.LLM.Brief), baseLogger.With("component", "aggregation"), a.metrics)

	a.answerer = usecase.NewAnswerer(completer, store, store, trend,
		generation(cfg.LLM.Answer), baseLogger.With("component", "answering"), a.metrics)

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Extractor:    extractor,
		Scorer:       scorer,
		Aggregator:   aggregator,
		Notifier:     notifier,
		Logger:       baseLogger.With("component", "pipeline"),
		Metrics:      a.metrics,
		Tickers:      cfg.Tickers.Universe,
		LookbackDays: cfg.Pipeline.LookbackDays,
		SourceFilter: filter,
	})

	driver := ov.Scheduler
	if driver == nil && cfg.Scheduler.Enabled {
		driver = scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(),
			baseLogger.With("component", "scheduler"))
	}
	a.sched = usecase.NewScheduler(driver, a.pipeline, baseLogger.With("component", "refresh"))

	return a, nil
}

func (a *Application) buildStore(ctx context.Context, override ports.Store) (ports.Store, error) {
	if override != nil {
		return override, nil
	}
	if a.cfg.Storage.Driver == config.StorageDriverMemory {
		a.logger.Warn("using in-memory storage; data is lost on exit")
		return storage.NewMemoryStore(), nil
	}

	db, err := storage.Open(ctx, a.cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}
	a.db = db
	return storage.NewPostgresStore(db), nil
}

func generation(g config.GenerationConfig) usecase.CompletionOptions {
	return usecase.CompletionOptions{MaxTokens: g.MaxTokens, Temperature: g.Temperature}
}

// Refresh performs one pipeline run.
func (a *Application) Refresh(ctx context.Context, req usecase.RunRequest) (usecase.RunResult, error) {
	if req.LookbackDays == 0 {
		req.LookbackDays = a.cfg.Pipeline.LookbackDays
	}
	return a.pipeline.Run(ctx, req)
}

// Ask answers a question over the stored data.
func (a *Application) Ask(ctx context.Context, q usecase.Question) (usecase.Answer, error) {
	return a.answerer.Answer(ctx, q)
}

// EnsureSchema applies the relational schema when Postgres is the store.
func (a *Application) EnsureSchema(ctx context.Context) error {
	pg, ok := a.store.(*storage.PostgresStore)
	if !ok {
		a.logger.Info("schema not applied: storage driver is not postgres", "driver", a.cfg.Storage.Driver)
		return nil
	}
	return pg.EnsureSchema(ctx)
}

// Handler returns the HTTP API.
func (a *Application) Handler() http.Handler {
	return a.server().Router()
}

func (a *Application) server() *httpapi.Server {
	return httpapi.NewServer(httpapi.Deps{
		Refresher:  a.pipeline,
		Asker:      a.answerer,
		Aggregates: a.store,
		Tickers:    a.cfg.Tickers.Universe,
		Thresholds: a.cfg.Thresholds(),
		Lookback: httpapi.LookbackPolicy{
			Default: a.cfg.Pipeline.LookbackDays,
			Max:     a.cfg.Pipeline.MaxLookbackDays,
			Strict:  a.cfg.Pipeline.StrictLookback,
		},
		Metrics: a.metrics.Handler(),
		Logger:  a.logger.With("component", "http"),
	})
}

// Serve runs the scheduler and HTTP API until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		if err := a.sched.Stop(stopCtx); err != nil {
			a.logger.Warn("scheduler stop", "error", err)
		}
	}()

	return a.server().ListenAndServe(ctx, a.cfg.HTTP.Addr, a.shutdownTimeout())
}

func (a *Application) shutdownTimeout() time.Duration {
	if a.cfg.HTTP.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return a.cfg.HTTP.ShutdownTimeout
}

// Close releases the database pool, if any.
func (a *Application) Close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
	a.db = nil
}
