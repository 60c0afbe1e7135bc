package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"SentimentTracker/internal/domain"
	"SentimentTracker/internal/infrastructure/parser"
	"SentimentTracker/internal/metrics"
	"SentimentTracker/internal/ports"
)

// ExtractorConfig carries the search policy for extraction.
type ExtractorConfig struct {
	// Aliases maps a ticker to its search query, e.g. "TSLA OR Tesla".
	Aliases        map[string]string
	CuratedDomains []string
	Language       string
	SortBy         string
	// ArticleBudget is divided across sub-windows; ChunkFloor is the per-window minimum.
	ArticleBudget int
	ChunkDays     int
	ChunkFloor    int
	ExcerptLimit  int
}

// DefaultExtractorConfig mirrors the production defaults.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		Aliases:       map[string]string{},
		Language:      "en",
		SortBy:        "relevancy",
		ArticleBudget: 100,
		ChunkDays:     7,
		ChunkFloor:    10,
		ExcerptLimit:  500,
	}
}

// Window is one search sub-window [From, To].
type Window struct {
	From time.Time
	To   time.Time
}

// PlanWindows partitions [to-lookbackDays, to] into chunkDays-wide windows,
// newest first. The oldest window may be shorter.
func PlanWindows(to time.Time, lookbackDays, chunkDays int) []Window {
	if lookbackDays <= 0 || chunkDays <= 0 {
		return nil
	}
	from := to.AddDate(0, 0, -lookbackDays)
	var windows []Window
	end := to
	for end.After(from) {
		start := end.AddDate(0, 0, -chunkDays)
		if start.Before(from) {
			start = from
		}
		windows = append(windows, Window{From: start, To: end})
		end = start
	}
	return windows
}

// PerWindowLimit splits budget across the windows of a lookback, never going below floor.
func PerWindowLimit(budget, lookbackDays, chunkDays, floor int) int {
	if chunkDays <= 0 {
		chunkDays = 1
	}
	limit := budget / (lookbackDays/chunkDays + 1)
	if limit < floor {
		return floor
	}
	return limit
}

// Extractor fetches candidate articles window by window and stores the new ones.
type Extractor struct {
	news     ports.NewsSearcher
	articles ports.ArticleRepository
	cfg      ExtractorConfig
	logger   *slog.Logger
	metrics  *metrics.Collectors
	now      func() time.Time
}

// NewExtractor wires the news collaborator with the article store.
func NewExtractor(news ports.NewsSearcher, articles ports.ArticleRepository, cfg ExtractorConfig, logger *slog.Logger, m *metrics.Collectors) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkDays <= 0 {
		cfg.ChunkDays = 7
	}
	return &Extractor{
		news:     news,
		articles: articles,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Extract returns the articles newly stored by this call. Failed windows are
// logged and skipped; only invalid input is reported as an error.
func (e *Extractor) Extract(ctx context.Context, ticker string, lookbackDays int, filter domain.SourceFilter) ([]domain.Article, error) {
	if lookbackDays <= 0 {
		return nil, fmt.Errorf("lookback days must be positive, got %d", lookbackDays)
	}
	if filter != domain.SourceFilterAll && filter != domain.SourceFilterCurated {
		return nil, fmt.Errorf("unknown source filter %q", filter)
	}

	query := e.searchTerm(ticker)
	pageSize := PerWindowLimit(e.cfg.ArticleBudget, lookbackDays, e.cfg.ChunkDays, e.cfg.ChunkFloor)

	var domains []string
	if filter == domain.SourceFilterCurated {
		domains = e.cfg.CuratedDomains
	}

	var stored []domain.Article
	for _, window := range PlanWindows(e.now(), lookbackDays, e.cfg.ChunkDays) {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("extraction interrupted", "ticker", ticker, "error", err)
			break
		}

		log := e.logger.With(
			"ticker", ticker,
			"window_from", window.From.Format(domain.DateLayout),
			"window_to", window.To.Format(domain.DateLayout),
		)

		items, err := e.news.Search(ctx, domain.NewsQuery{
			Query:    query,
			Language: e.cfg.Language,
			SortBy:   e.cfg.SortBy,
			From:     window.From,
			To:       window.To,
			PageSize: pageSize,
			Domains:  domains,
		})
		if err != nil {
			log.Warn("news window skipped", "error", err)
			e.metrics.WindowFailed(ticker)
			continue
		}
		log.Debug("news window fetched", "candidates", len(items))

		for _, item := range items {
			article, ok := e.storeCandidate(ctx, log, ticker, item)
			if ok {
				stored = append(stored, article)
			}
		}
	}

	e.metrics.Fetched(ticker, len(stored))
	e.logger.Info("extraction finished", "ticker", ticker, "new_articles", len(stored))
	return stored, nil
}

func (e *Extractor) storeCandidate(ctx context.Context, log *slog.Logger, ticker string, item domain.NewsItem) (domain.Article, bool) {
	url := strings.TrimSpace(item.URL)
	title := strings.TrimSpace(item.Title)
	if url == "" || title == "" {
		return domain.Article{}, false
	}

	exists, err := e.articles.ArticleExists(ctx, url)
	if err != nil {
		log.Warn("article lookup failed", "url", url, "error", err)
		return domain.Article{}, false
	}
	if exists {
		return domain.Article{}, false
	}

	now := e.now()
	article := domain.Article{
		Ticker:      ticker,
		Source:      item.Source,
		Title:       title,
		URL:         url,
		PublishedAt: item.PublishedAt,
		Excerpt:     parser.CleanExcerpt(item.Description, item.Content, e.cfg.ExcerptLimit),
		FetchedAt:   now,
	}
	if article.Source == "" {
		article.Source = "Unknown"
	}
	if article.PublishedAt.IsZero() {
		article.PublishedAt = now
	}

	id, err := e.articles.InsertArticle(ctx, article)
	if errors.Is(err, domain.ErrAlreadyExists) {
		return domain.Article{}, false
	}
	if err != nil {
		log.Warn("article insert failed", "url", url, "error", err)
		return domain.Article{}, false
	}

	article.ID = id
	return article, true
}

// Pending returns stored articles for ticker within the lookback that have no
// mention yet, oldest first. These are the leftovers of failed scoring.
func (e *Extractor) Pending(ctx context.Context, ticker string, lookbackDays int) ([]domain.Article, error) {
	since := e.now().AddDate(0, 0, -lookbackDays)
	articles, err := e.articles.UnscoredArticles(ctx, ticker, since)
	if err != nil {
		return nil, fmt.Errorf("load unscored articles: %w", err)
	}
	return articles, nil
}

func (e *Extractor) searchTerm(ticker string) string {
	if alias, ok := e.cfg.Aliases[ticker]; ok && strings.TrimSpace(alias) != "" {
		return alias
	}
	return ticker
}
