package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"SentimentTracker/internal/domain"
	"SentimentTracker/internal/metrics"
	"SentimentTracker/internal/ports"
)

// ErrRunInProgress is returned when a run for the same ticker is already active
// in this process.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// PipelineDeps wires the stages into the orchestration pipeline.
type PipelineDeps struct {
	Extractor  *Extractor
	Scorer     *Scorer
	Aggregator *Aggregator
	Notifier   ports.Notifier
	Logger     *slog.Logger
	Metrics    *metrics.Collectors

	// Tickers, LookbackDays and SourceFilter drive scheduled refreshes.
	Tickers      []string
	LookbackDays int
	SourceFilter domain.SourceFilter
}

// RunRequest describes one on-demand refresh.
type RunRequest struct {
	Ticker       string
	LookbackDays int
	SourceFilter domain.SourceFilter
}

// RunResult reports the partial progress of a run; it is returned even when
// individual articles or windows failed.
type RunResult struct {
	RunID            string        `json:"runId"`
	Ticker           string        `json:"ticker"`
	ArticlesFetched  int           `json:"articlesFetched"`
	ArticlesAnalyzed int           `json:"articlesAnalyzed"`
	ArticlesRetried  int           `json:"articlesRetried"`
	DaysSummarized   int           `json:"daysSummarized"`
	Errors           []string      `json:"errors"`
	Duration         time.Duration `json:"duration"`

	Aggregates []domain.DailyAggregate `json:"-"`
}

// Pipeline runs Extraction -> Scoring -> Aggregation sequentially.
type Pipeline struct {
	extractor  *Extractor
	scorer     *Scorer
	aggregator *Aggregator
	notifier   ports.Notifier
	logger     *slog.Logger
	metrics    *metrics.Collectors

	tickers      []string
	lookbackDays int
	sourceFilter domain.SourceFilter

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lookback := deps.LookbackDays
	if lookback <= 0 {
		lookback = 7
	}
	filter := deps.SourceFilter
	if filter == "" {
		filter = domain.SourceFilterAll
	}
	return &Pipeline{
		extractor:    deps.Extractor,
		scorer:       deps.Scorer,
		aggregator:   deps.Aggregator,
		notifier:     deps.Notifier,
		logger:       logger,
		metrics:      deps.Metrics,
		tickers:      deps.Tickers,
		lookbackDays: lookback,
		sourceFilter: filter,
		inflight:     map[string]struct{}{},
	}
}

// Run executes one refresh for a ticker. The error is non-nil only when the run
// could not start; stage failures are reported in RunResult.Errors.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if strings.TrimSpace(req.Ticker) == "" {
		return RunResult{}, fmt.Errorf("ticker is required")
	}
	if req.LookbackDays <= 0 {
		return RunResult{}, fmt.Errorf("lookback days must be positive, got %d", req.LookbackDays)
	}
	if req.SourceFilter == "" {
		req.SourceFilter = p.sourceFilter
	}
	if !p.acquire(req.Ticker) {
		return RunResult{}, fmt.Errorf("%s: %w", req.Ticker, ErrRunInProgress)
	}
	defer p.release(req.Ticker)

	started := time.Now()
	result := RunResult{RunID: uuid.NewString(), Ticker: req.Ticker, Errors: []string{}}
	log := p.logger.With("run_id", result.RunID, "ticker", req.Ticker)

	log.Info("extracting news", "lookback_days", req.LookbackDays, "source_filter", req.SourceFilter)
	articles, err := p.extractor.Extract(ctx, req.Ticker, req.LookbackDays, req.SourceFilter)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("extract: %v", err))
		return p.finish(log, result, started), nil
	}
	result.ArticlesFetched = len(articles)

	pending, err := p.extractor.Pending(ctx, req.Ticker, req.LookbackDays)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	queue := mergeArticles(articles, pending)
	fresh := make(map[int64]bool, len(articles))
	for _, article := range articles {
		fresh[article.ID] = true
	}
	result.ArticlesRetried = len(queue) - len(articles)

	log.Info("analyzing articles", "count", len(queue), "retried", result.ArticlesRetried)
	touched := make([]domain.Article, 0, len(queue))
	for _, article := range queue {
		scored, err := p.scorer.Score(ctx, article.ID, req.Ticker, article.Title, article.Excerpt)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
		} else if !scored.AlreadyScored {
			result.ArticlesAnalyzed++
		}
		// A retried article only reopens its day once it finally has a mention.
		if fresh[article.ID] || (err == nil && !scored.AlreadyScored) {
			touched = append(touched, article)
		}
	}

	log.Info("creating daily summaries")
	for _, day := range distinctDays(touched) {
		agg, err := p.aggregator.Aggregate(ctx, req.Ticker, day)
		if errors.Is(err, domain.ErrNoData) {
			continue
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("summarize %s: %v", day.Format(domain.DateLayout), err))
			continue
		}
		result.DaysSummarized++
		result.Aggregates = append(result.Aggregates, agg)
	}

	return p.finish(log, result, started), nil
}

func (p *Pipeline) finish(log *slog.Logger, result RunResult, started time.Time) RunResult {
	result.Duration = time.Since(started)
	p.metrics.PipelineRun(result.Ticker, result.Duration)
	log.Info("pipeline complete",
		"articles_fetched", result.ArticlesFetched,
		"articles_analyzed", result.ArticlesAnalyzed,
		"articles_retried", result.ArticlesRetried,
		"days_summarized", result.DaysSummarized,
		"errors", len(result.Errors),
		"duration", result.Duration,
	)
	return result
}

// RefreshUniverse runs every configured ticker in turn and publishes a digest of
// the briefs produced.
func (p *Pipeline) RefreshUniverse(ctx context.Context, trigger time.Time) []RunResult {
	p.logger.Info("scheduled refresh", "trigger", trigger.Format(time.RFC3339), "tickers", len(p.tickers))

	results := make([]RunResult, 0, len(p.tickers))
	for _, ticker := range p.tickers {
		result, err := p.Run(ctx, RunRequest{
			Ticker:       ticker,
			LookbackDays: p.lookbackDays,
			SourceFilter: p.sourceFilter,
		})
		if err != nil {
			p.logger.Warn("scheduled run skipped", "ticker", ticker, "error", err)
			continue
		}
		results = append(results, result)
	}

	if p.notifier == nil {
		return results
	}

	message := buildDigestMessage(results)
	if message == "" {
		return results
	}
	if err := p.notifier.PublishDigest(ctx, message); err != nil {
		p.logger.Warn("publish digest failed", "error", err)
	}
	return results
}

func (p *Pipeline) acquire(ticker string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[ticker]; busy {
		return false
	}
	p.inflight[ticker] = struct{}{}
	return true
}

func (p *Pipeline) release(ticker string) {
	p.mu.Lock()
	delete(p.inflight, ticker)
	p.mu.Unlock()
}

// mergeArticles appends the pending articles not already in fresh, keeping order.
func mergeArticles(fresh, pending []domain.Article) []domain.Article {
	seen := make(map[int64]struct{}, len(fresh))
	out := make([]domain.Article, 0, len(fresh)+len(pending))
	for _, article := range fresh {
		seen[article.ID] = struct{}{}
		out = append(out, article)
	}
	for _, article := range pending {
		if _, ok := seen[article.ID]; ok {
			continue
		}
		out = append(out, article)
	}
	return out
}

// distinctDays returns the publication days of articles in ascending order, so
// earlier days are aggregated before later ones look them up as a baseline.
func distinctDays(articles []domain.Article) []time.Time {
	seen := map[time.Time]struct{}{}
	var days []time.Time
	for _, article := range articles {
		day := article.Day()
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

func buildDigestMessage(results []RunResult) string {
	var b strings.Builder
	for _, result := range results {
		if len(result.Aggregates) == 0 {
			continue
		}
		latest := result.Aggregates[len(result.Aggregates)-1]
		fmt.Fprintf(&b, "- %s %s\nSentiment: %.2f (%s), %d articles\n%s\n\n",
			latest.Ticker,
			latest.Date.Format(domain.DateLayout),
			latest.AvgSentiment,
			latest.Trend,
			latest.ArticleCount,
			latest.Brief)
	}
	return b.String()
}
