package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentimentTracker/internal/domain"
	"SentimentTracker/internal/infrastructure/storage"
)

func newTestAggregator(c *scriptedCompleter, store *storage.MemoryStore) *Aggregator {
	a := NewAggregator(c, store, store, domain.DefaultThresholds(), domain.DefaultTrendPolicy(),
		CompletionOptions{MaxTokens: 500, Temperature: 0.3}, nil, nil)
	a.now = func() time.Time { return testNow }
	return a
}

type scoredArticle struct {
	title  string
	score  float64
	topics []string
}

func seedDay(t *testing.T, store *storage.MemoryStore, ticker string, d time.Time, items []scoredArticle) {
	t.Helper()
	ctx := context.Background()
	for i, item := range items {
		id, err := store.InsertArticle(ctx, domain.Article{
			Source:      "Reuters",
			Title:       item.title,
			URL:         fmt.Sprintf("https://news/%s/%s/%d", ticker, d.Format(domain.DateLayout), i),
			PublishedAt: d.Add(time.Duration(9+i) * time.Hour),
		})
		require.NoError(t, err)
		_, err = store.InsertMention(ctx, domain.Mention{
			ArticleID: id,
			Ticker:    ticker,
			Score:     item.score,
			Label:     domain.DefaultThresholds().LabelFor(item.score),
			Topics:    item.topics,
		})
		require.NoError(t, err)
	}
}

func TestClassifyDailyTrend(t *testing.T) {
	t.Parallel()

	policy := domain.DefaultTrendPolicy()
	tests := []struct {
		today, prior float64
		want         domain.Trend
	}{
		{0.21, 0.10, domain.TrendImproving},
		{0.10, 0.10, domain.TrendStable},
		{0.15, 0.10, domain.TrendStable},
		{0.0, 0.15, domain.TrendDeclining},
		{-0.5, 0.5, domain.TrendDeclining},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyDailyTrend(tt.today, tt.prior, policy), "today=%v prior=%v", tt.today, tt.prior)
	}
}

func TestRankTopics(t *testing.T) {
	t.Parallel()

	mentions := []domain.Mention{
		{Topics: []string{"earnings", "guidance"}},
		{Topics: []string{"recall", "earnings"}},
		{Topics: []string{"guidance", "china", "margins"}},
		{Topics: []string{"autopilot"}},
	}
	assert.Equal(t, []string{"earnings", "guidance", "recall", "china", "margins"}, RankTopics(mentions, 5))
	assert.Equal(t, []string{"earnings"}, RankTopics(mentions, 1))
	assert.Empty(t, RankTopics(nil, 5))
}

func TestAggregateEndToEndDay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := storage.NewMemoryStore()
	seedDay(t, store, "TSLA", day(15), []scoredArticle{
		{"Deliveries beat", 0.6, []string{"deliveries", "earnings"}},
		{"Recall widens", -0.2, []string{"recall"}},
		{"Robotaxi launch", 0.4, []string{"deliveries", "autonomy"}},
	})

	completer := &scriptedCompleter{respond: fixedText("  Sentiment was lifted by deliveries.  ")}
	a := newTestAggregator(completer, store)

	agg, err := a.Aggregate(ctx, "TSLA", day(15).Add(17*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, day(15), agg.Date)
	assert.Equal(t, 3, agg.ArticleCount)
	assert.InDelta(t, 0.2667, agg.AvgSentiment, 1e-4)
	assert.Equal(t, domain.TrendStable, agg.Trend)
	assert.Equal(t, []string{"deliveries", "earnings", "recall", "autonomy"}, agg.TopTopics)
	assert.Equal(t, "Sentiment was lifted by deliveries.", agg.Brief)

	prompt := completer.lastPrompt()
	assert.Contains(t, prompt, "Deliveries beat")
	assert.Contains(t, prompt, "Recall widens")
	assert.Equal(t, 0.3, completer.requests[0].Temperature)

	stored, err := store.DailyAggregate(ctx, "TSLA", day(15))
	require.NoError(t, err)
	assert.Equal(t, agg, stored)
}

func TestAggregateTrendAgainstOffsetDay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := storage.NewMemoryStore()
	require.NoError(t, store.UpsertDailyAggregate(ctx, domain.DailyAggregate{Ticker: "TSLA", Date: day(12), AvgSentiment: 0.10}))
	// The day before yesterday must not be used as the baseline.
	require.NoError(t, store.UpsertDailyAggregate(ctx, domain.DailyAggregate{Ticker: "TSLA", Date: day(14), AvgSentiment: 0.9}))
	seedDay(t, store, "TSLA", day(15), []scoredArticle{{"a", 0.21, nil}})

	a := newTestAggregator(&scriptedCompleter{respond: fixedText("brief")}, store)
	agg, err := a.Aggregate(ctx, "TSLA", day(15))
	require.NoError(t, err)
	assert.Equal(t, domain.TrendImproving, agg.Trend)
}

func TestAggregateUpsertIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := storage.NewMemoryStore()
	seedDay(t, store, "NVDA", day(16), []scoredArticle{{"a", 0.5, []string{"ai demand"}}, {"b", -0.1, []string{"export rules"}}})

	a := newTestAggregator(&scriptedCompleter{respond: fixedText("same brief")}, store)
	first, err := a.Aggregate(ctx, "NVDA", day(16))
	require.NoError(t, err)
	second, err := a.Aggregate(ctx, "NVDA", day(16))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	all, err := store.DailyAggregatesInRange(ctx, "NVDA", day(1), day(31))
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAggregateFallbackBrief(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := storage.NewMemoryStore()
	seedDay(t, store, "AAPL", day(16), []scoredArticle{
		{"a", -0.5, []string{"antitrust", "app store"}},
		{"b", -0.3, []string{"antitrust", "iphone sales", "china"}},
	})

	failing := &scriptedCompleter{respond: func(domain.CompletionRequest) (string, error) { return "", errors.New("timeout") }}
	agg, err := newTestAggregator(failing, store).Aggregate(ctx, "AAPL", day(16))
	require.NoError(t, err)
	assert.Equal(t, "Analyzed 2 articles with negative sentiment (-0.40). Top topics: antitrust, app store, iphone sales.", agg.Brief)

	empty := &scriptedCompleter{respond: fixedText("   ")}
	agg, err = newTestAggregator(empty, store).Aggregate(ctx, "AAPL", day(16))
	require.NoError(t, err)
	assert.Contains(t, agg.Brief, "Analyzed 2 articles")
}

func TestAggregateNoMentions(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	completer := &scriptedCompleter{}
	_, err := newTestAggregator(completer, store).Aggregate(context.Background(), "TSLA", day(10))
	assert.ErrorIs(t, err, domain.ErrNoData)
	assert.Zero(t, completer.calls(""))

	_, err = store.DailyAggregate(context.Background(), "TSLA", day(10))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExtremeHeadlines(t *testing.T) {
	t.Parallel()

	mk := func(title string, score float64) domain.Mention {
		return domain.Mention{Score: score, Article: &domain.Article{Title: title}}
	}
	got := extremeHeadlines([]domain.Mention{
		mk("mild", 0.1), mk("crash", -0.9), mk("surge", 0.8), mk("flat", 0), mk("dip", -0.3), mk("pop", 0.5),
	}, 5)
	assert.Equal(t, []string{"crash", "surge", "pop", "dip", "mild"}, got)
}
