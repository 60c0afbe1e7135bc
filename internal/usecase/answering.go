package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"SentimentTracker/internal/domain"
	"SentimentTracker/internal/metrics"
	"SentimentTracker/internal/ports"
)

// NoDataAnswer is returned when the range has no daily aggregates.
const NoDataAnswer = "No sentiment data available for this date range. Please fetch articles first."

const (
	briefContextDays = 5
	keyArticleCount  = 3
	relatedNegative  = 3
	relatedPositive  = 2
	rangeTrendDays   = 3
)

// RelatedArticle is a supporting article returned alongside an answer.
type RelatedArticle struct {
	ID        int64   `json:"-"`
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Source    string  `json:"source"`
	Date      string  `json:"date"`
	Sentiment float64 `json:"sentiment"`
}

// Answer is the reply to a free-form question.
type Answer struct {
	Text            string           `json:"answer"`
	RelatedArticles []RelatedArticle `json:"relatedArticles"`
}

// Question is a free-form question over [Start, End] for one ticker.
type Question struct {
	Ticker string
	Text   string
	Start  time.Time
	End    time.Time
}

// Answerer assembles stored context into a prompt and asks the text service.
type Answerer struct {
	completer  ports.Completer
	articles   ports.ArticleRepository
	aggregates ports.AggregateRepository
	trend      domain.TrendPolicy
	opts       CompletionOptions
	logger     *slog.Logger
	metrics    *metrics.Collectors
}

// NewAnswerer wires the read path.
func NewAnswerer(completer ports.Completer, articles ports.ArticleRepository, aggregates ports.AggregateRepository, trend domain.TrendPolicy, opts CompletionOptions, logger *slog.Logger, m *metrics.Collectors) *Answerer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{
		completer:  completer,
		articles:   articles,
		aggregates: aggregates,
		trend:      trend,
		opts:       opts,
		logger:     logger,
		metrics:    m,
	}
}

// Answer never fails on collaborator errors: those become a textual answer with
// no related articles. Only a malformed question returns an error.
func (a *Answerer) Answer(ctx context.Context, q Question) (Answer, error) {
	if strings.TrimSpace(q.Text) == "" {
		return Answer{}, fmt.Errorf("question is empty")
	}
	start, end := domain.Day(q.Start), domain.Day(q.End)
	if end.Before(start) {
		return Answer{}, fmt.Errorf("end date %s is before start date %s", end.Format(domain.DateLayout), start.Format(domain.DateLayout))
	}

	daily, err := a.aggregates.DailyAggregatesInRange(ctx, q.Ticker, start, end)
	if err != nil {
		a.logger.Error("load aggregates failed", "ticker", q.Ticker, "error", err)
		return errorAnswer(err), nil
	}
	if len(daily) == 0 {
		return Answer{Text: NoDataAnswer, RelatedArticles: []RelatedArticle{}}, nil
	}

	articles, err := a.articles.ArticlesInRange(ctx, q.Ticker, start, end)
	if err != nil {
		a.logger.Error("load articles failed", "ticker", q.Ticker, "error", err)
		return errorAnswer(err), nil
	}

	scored := scoredArticles(articles, q.Ticker)
	positive, negative := keyArticles(scored)

	prompt := fmt.Sprintf(answerPrompt,
		q.Ticker,
		start.Format(domain.DateLayout), end.Format(domain.DateLayout),
		meanOfMeans(daily),
		totalArticles(daily),
		RangeTrend(daily, a.trend),
		formatBriefs(daily),
		formatKeyArticles(positive, negative),
		q.Text,
	)

	started := time.Now()
	text, err := a.completer.Complete(ctx, domain.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
		Purpose:     "answer",
	})
	a.metrics.Completion("answer", time.Since(started), err)
	if err != nil {
		a.logger.Warn("answer generation failed", "ticker", q.Ticker, "error", err)
		return errorAnswer(err), nil
	}

	return Answer{
		Text:            strings.TrimSpace(text),
		RelatedArticles: SelectRelated(scored),
	}, nil
}

func errorAnswer(err error) Answer {
	return Answer{
		Text:            fmt.Sprintf("Error generating answer: %v", err),
		RelatedArticles: []RelatedArticle{},
	}
}

// RangeTrend compares the mean of the last three daily means with the mean of
// the first three. A single day keeps its stored daily trend.
func RangeTrend(daily []domain.DailyAggregate, policy domain.TrendPolicy) domain.Trend {
	if len(daily) == 0 {
		return domain.TrendStable
	}
	if len(daily) == 1 {
		if daily[0].Trend == "" {
			return domain.TrendStable
		}
		return daily[0].Trend
	}

	n := rangeTrendDays
	if len(daily) < n {
		n = len(daily)
	}
	older := meanOfMeans(daily[:n])
	recent := meanOfMeans(daily[len(daily)-n:])

	switch {
	case recent > older+policy.Improving:
		return domain.TrendImproving
	case recent < older+policy.Declining:
		return domain.TrendDeclining
	default:
		return domain.TrendStable
	}
}

// SelectRelated returns the three most negative and two most positive articles,
// most negative first. Articles qualifying for both sides appear once.
func SelectRelated(scored []RelatedArticle) []RelatedArticle {
	desc := sortedByScoreDesc(scored)

	var picked []RelatedArticle
	seen := map[string]struct{}{}
	add := func(items []RelatedArticle) {
		for _, item := range items {
			if _, ok := seen[item.URL]; ok {
				continue
			}
			seen[item.URL] = struct{}{}
			picked = append(picked, item)
		}
	}
	add(tail(desc, relatedNegative))
	add(head(desc, relatedPositive))

	sort.SliceStable(picked, func(i, j int) bool {
		return picked[i].Sentiment < picked[j].Sentiment
	})
	if picked == nil {
		picked = []RelatedArticle{}
	}
	return picked
}

func keyArticles(scored []RelatedArticle) (positive, negative []RelatedArticle) {
	desc := sortedByScoreDesc(scored)
	return head(desc, keyArticleCount), tail(desc, keyArticleCount)
}

func scoredArticles(articles []domain.ArticleWithMentions, ticker string) []RelatedArticle {
	out := make([]RelatedArticle, 0, len(articles))
	for _, art := range articles {
		for _, m := range art.Mentions {
			if m.Ticker != ticker {
				continue
			}
			out = append(out, RelatedArticle{
				ID:        art.ID,
				Title:     art.Title,
				URL:       art.URL,
				Source:    art.Source,
				Date:      art.PublishedAt.UTC().Format(domain.DateLayout),
				Sentiment: m.Score,
			})
			break
		}
	}
	return out
}

func sortedByScoreDesc(items []RelatedArticle) []RelatedArticle {
	out := make([]RelatedArticle, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Sentiment > out[j].Sentiment
	})
	return out
}

func head(items []RelatedArticle, n int) []RelatedArticle {
	if len(items) < n {
		n = len(items)
	}
	return items[:n]
}

func tail(items []RelatedArticle, n int) []RelatedArticle {
	if len(items) < n {
		n = len(items)
	}
	return items[len(items)-n:]
}

func meanOfMeans(daily []domain.DailyAggregate) float64 {
	if len(daily) == 0 {
		return 0
	}
	var sum float64
	for _, d := range daily {
		sum += d.AvgSentiment
	}
	return sum / float64(len(daily))
}

func totalArticles(daily []domain.DailyAggregate) int {
	total := 0
	for _, d := range daily {
		total += d.ArticleCount
	}
	return total
}

func formatBriefs(daily []domain.DailyAggregate) string {
	recent := daily
	if len(recent) > briefContextDays {
		recent = recent[len(recent)-briefContextDays:]
	}
	lines := make([]string, 0, len(recent))
	for _, d := range recent {
		lines = append(lines, fmt.Sprintf("- %s (sentiment: %.2f): %s", d.Date.Format(domain.DateLayout), d.AvgSentiment, d.Brief))
	}
	return strings.Join(lines, "\n")
}

func formatKeyArticles(positive, negative []RelatedArticle) string {
	var lines []string
	if len(positive) > 0 {
		lines = append(lines, "Most Positive:")
		for _, a := range positive {
			lines = append(lines, fmt.Sprintf("  - [%s] %s (sentiment: %.2f)", a.Source, a.Title, a.Sentiment))
		}
	}
	if len(negative) > 0 {
		lines = append(lines, "Most Negative:")
		for _, a := range negative {
			lines = append(lines, fmt.Sprintf("  - [%s] %s (sentiment: %.2f)", a.Source, a.Title, a.Sentiment))
		}
	}
	if len(lines) == 0 {
		return "No articles available"
	}
	return strings.Join(lines, "\n")
}
