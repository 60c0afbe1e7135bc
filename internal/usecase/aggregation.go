package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"SentimentTracker/internal/domain"
	"SentimentTracker/internal/metrics"
	"SentimentTracker/internal/ports"
)

const (
	topTopicsLimit = 5
	headlineLimit  = 5
)

// Aggregator rolls a day's mentions into a DailyAggregate.
type Aggregator struct {
	completer  ports.Completer
	mentions   ports.MentionRepository
	aggregates ports.AggregateRepository
	thresholds domain.Thresholds
	trend      domain.TrendPolicy
	opts       CompletionOptions
	logger     *slog.Logger
	metrics    *metrics.Collectors
	now        func() time.Time
}

// NewAggregator wires the brief generator with mention and aggregate storage.
func NewAggregator(completer ports.Completer, mentions ports.MentionRepository, aggregates ports.AggregateRepository, thresholds domain.Thresholds, trend domain.TrendPolicy, opts CompletionOptions, logger *slog.Logger, m *metrics.Collectors) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		completer:  completer,
		mentions:   mentions,
		aggregates: aggregates,
		thresholds: thresholds,
		trend:      trend,
		opts:       opts,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// Aggregate recomputes and upserts the aggregate for (ticker, day). It returns
// domain.ErrNoData, and writes nothing, when the day has no mentions.
func (a *Aggregator) Aggregate(ctx context.Context, ticker string, day time.Time) (domain.DailyAggregate, error) {
	day = domain.Day(day)

	mentions, err := a.mentions.MentionsFor(ctx, ticker, day)
	if err != nil {
		return domain.DailyAggregate{}, fmt.Errorf("load mentions for %s: %w", day.Format(domain.DateLayout), err)
	}
	if len(mentions) == 0 {
		return domain.DailyAggregate{}, domain.ErrNoData
	}

	avg := meanScore(mentions)

	trend, err := a.dailyTrend(ctx, ticker, day, avg)
	if err != nil {
		return domain.DailyAggregate{}, err
	}

	topics := RankTopics(mentions, topTopicsLimit)

	agg := domain.DailyAggregate{
		Ticker:       ticker,
		Date:         day,
		AvgSentiment: avg,
		ArticleCount: len(mentions),
		Trend:        trend,
		TopTopics:    topics,
		Brief:        a.brief(ctx, ticker, mentions, avg, topics),
		CreatedAt:    a.now(),
	}

	if err := a.aggregates.UpsertDailyAggregate(ctx, agg); err != nil {
		return domain.DailyAggregate{}, fmt.Errorf("upsert aggregate for %s: %w", day.Format(domain.DateLayout), err)
	}

	a.metrics.Summarized(ticker)
	return agg, nil
}

// dailyTrend compares today's mean with the aggregate stored OffsetDays earlier.
func (a *Aggregator) dailyTrend(ctx context.Context, ticker string, day time.Time, avg float64) (domain.Trend, error) {
	prior, err := a.aggregates.DailyAggregate(ctx, ticker, day.AddDate(0, 0, -a.trend.OffsetDays))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.TrendStable, nil
	}
	if err != nil {
		return "", fmt.Errorf("load baseline aggregate: %w", err)
	}
	return ClassifyDailyTrend(avg, prior.AvgSentiment, a.trend), nil
}

// ClassifyDailyTrend applies the inclusive delta thresholds to today - prior.
func ClassifyDailyTrend(today, prior float64, policy domain.TrendPolicy) domain.Trend {
	delta := today - prior
	switch {
	case delta >= policy.Improving:
		return domain.TrendImproving
	case delta <= policy.Declining:
		return domain.TrendDeclining
	default:
		return domain.TrendStable
	}
}

// RankTopics counts topics across mentions and returns up to limit of them by
// descending frequency, ties kept in first-seen order.
func RankTopics(mentions []domain.Mention, limit int) []string {
	counts := map[string]int{}
	var order []string
	for _, m := range mentions {
		for _, topic := range m.Topics {
			if _, ok := counts[topic]; !ok {
				order = append(order, topic)
			}
			counts[topic]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

func (a *Aggregator) brief(ctx context.Context, ticker string, mentions []domain.Mention, avg float64, topics []string) string {
	label := a.thresholds.LabelFor(avg)
	prompt := buildBriefPrompt(ticker, len(mentions), avg, label, topics, extremeHeadlines(mentions, headlineLimit))

	started := time.Now()
	text, err := a.completer.Complete(ctx, domain.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
		Purpose:     "brief",
	})
	a.metrics.Completion("brief", time.Since(started), err)

	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		a.logger.Warn("brief generation failed, using fallback", "ticker", ticker, "error", err)
		return FallbackBrief(len(mentions), label, avg, topics)
	}
	return text
}

// FallbackBrief is the deterministic narrative used when the service is unavailable.
func FallbackBrief(count int, label domain.Label, avg float64, topics []string) string {
	if len(topics) > 3 {
		topics = topics[:3]
	}
	return fmt.Sprintf("Analyzed %d articles with %s sentiment (%.2f). Top topics: %s.",
		count, label, avg, strings.Join(topics, ", "))
}

// extremeHeadlines picks the titles of the mentions with the largest |score|.
func extremeHeadlines(mentions []domain.Mention, limit int) []string {
	ranked := make([]domain.Mention, len(mentions))
	copy(ranked, mentions)
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Score) > math.Abs(ranked[j].Score)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	headlines := make([]string, 0, len(ranked))
	for _, m := range ranked {
		if m.Article != nil && m.Article.Title != "" {
			headlines = append(headlines, m.Article.Title)
		}
	}
	return headlines
}

func meanScore(mentions []domain.Mention) float64 {
	var sum float64
	for _, m := range mentions {
		sum += m.Score
	}
	return sum / float64(len(mentions))
}
