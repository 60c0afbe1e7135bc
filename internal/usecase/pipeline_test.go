package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentimentTracker/internal/domain"
	"SentimentTracker/internal/infrastructure/storage"
)

// sentimentByTitle scores each article from the title embedded in its prompt.
func sentimentByTitle(scores map[string]string) func(domain.CompletionRequest) (string, error) {
	return func(req domain.CompletionRequest) (string, error) {
		if req.Purpose != "sentiment" {
			return "Daily brief.", nil
		}
		for title, payload := range scores {
			if strings.Contains(req.Prompt, "Title: "+title+"\n") {
				if payload == "" {
					return "", errors.New("service unavailable")
				}
				return payload, nil
			}
		}
		return `{"sentiment": 0, "label": "neutral", "topics": []}`, nil
	}
}

type pipelineEnv struct {
	pipeline  *Pipeline
	store     *storage.MemoryStore
	completer *scriptedCompleter
	notifier  *recordingNotifier
}

func newPipelineEnv(news *windowNews, respond func(domain.CompletionRequest) (string, error)) *pipelineEnv {
	store := storage.NewMemoryStore()
	completer := &scriptedCompleter{respond: respond}
	notifier := &recordingNotifier{}

	extractor := newTestExtractor(news, store, nil)
	scorer := newTestScorer(completer, store, nil)
	aggregator := newTestAggregator(completer, store)

	return &pipelineEnv{
		pipeline: NewPipeline(PipelineDeps{
			Extractor:    extractor,
			Scorer:       scorer,
			Aggregator:   aggregator,
			Notifier:     notifier,
			Tickers:      []string{"TSLA"},
			LookbackDays: 7,
		}),
		store:     store,
		completer: completer,
		notifier:  notifier,
	}
}

func threeArticlesOneDay() []domain.NewsItem {
	return []domain.NewsItem{
		{Source: "Reuters", Title: "Deliveries beat", URL: "https://reuters.com/1", PublishedAt: day(17).Add(9 * time.Hour)},
		{Source: "WSJ", Title: "Recall widens", URL: "https://wsj.com/2", PublishedAt: day(17).Add(11 * time.Hour)},
		{Source: "CNBC", Title: "Robotaxi launch", URL: "https://cnbc.com/3", PublishedAt: day(17).Add(15 * time.Hour)},
	}
}

var threeScores = map[string]string{
	"Deliveries beat": `{"sentiment": 0.6, "label": "positive", "topics": ["deliveries", "earnings"]}`,
	"Recall widens":   `{"sentiment": -0.2, "label": "neutral", "topics": ["recall"]}`,
	"Robotaxi launch": `{"sentiment": 0.4, "label": "positive", "topics": ["Deliveries", "autonomy"]}`,
}

func TestPipelineRunEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newPipelineEnv(&windowNews{pages: map[int][]domain.NewsItem{0: threeArticlesOneDay()}}, sentimentByTitle(threeScores))

	res, err := env.pipeline.Run(ctx, RunRequest{Ticker: "TSLA", LookbackDays: 7})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 3, res.ArticlesFetched)
	assert.Equal(t, 3, res.ArticlesAnalyzed)
	assert.Equal(t, 1, res.DaysSummarized)
	assert.Empty(t, res.Errors)

	require.Len(t, res.Aggregates, 1)
	agg := res.Aggregates[0]
	assert.Equal(t, day(17), agg.Date)
	assert.Equal(t, 3, agg.ArticleCount)
	assert.InDelta(t, 0.2667, agg.AvgSentiment, 1e-4)
	assert.Equal(t, domain.LabelPositive, domain.DefaultThresholds().LabelFor(agg.AvgSentiment))
	assert.Equal(t, []string{"deliveries", "earnings", "recall", "autonomy"}, agg.TopTopics)
	assert.Equal(t, 3, env.completer.calls("sentiment"))
	assert.Equal(t, 1, env.completer.calls("brief"))
}

func TestPipelineRerunIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	news := &windowNews{pages: map[int][]domain.NewsItem{0: threeArticlesOneDay(), 1: threeArticlesOneDay()}}
	env := newPipelineEnv(news, sentimentByTitle(threeScores))

	_, err := env.pipeline.Run(ctx, RunRequest{Ticker: "TSLA", LookbackDays: 7})
	require.NoError(t, err)
	calls := env.completer.calls("")

	res, err := env.pipeline.Run(ctx, RunRequest{Ticker: "TSLA", LookbackDays: 7})
	require.NoError(t, err)
	assert.Zero(t, res.ArticlesFetched)
	assert.Zero(t, res.ArticlesAnalyzed)
	assert.Zero(t, res.DaysSummarized)
	assert.Equal(t, calls, env.completer.calls(""))
}

func TestPipelineCollectsScoringErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	scores := map[string]string{
		"Deliveries beat": threeScores["Deliveries beat"],
		"Recall widens":   "",
		"Robotaxi launch": "sorry, no JSON today",
	}
	env := newPipelineEnv(&windowNews{pages: map[int][]domain.NewsItem{0: threeArticlesOneDay()}}, sentimentByTitle(scores))

	res, err := env.pipeline.Run(ctx, RunRequest{Ticker: "TSLA", LookbackDays: 7})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ArticlesFetched)
	assert.Equal(t, 1, res.ArticlesAnalyzed)
	assert.Equal(t, 1, res.DaysSummarized)
	assert.Len(t, res.Errors, 2)
	assert.InDelta(t, 0.6, res.Aggregates[0].AvgSentiment, 1e-9)
	for _, msg := range res.Errors {
		assert.Equal(t, 1, strings.Count(msg, "analyze article"), msg)
	}
}

func TestPipelineRetriesArticlesThatFailedScoring(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	flaky := map[string]string{
		"Deliveries beat": threeScores["Deliveries beat"],
		"Recall widens":   "",
		"Robotaxi launch": threeScores["Robotaxi launch"],
	}
	news := &windowNews{pages: map[int][]domain.NewsItem{0: threeArticlesOneDay(), 1: threeArticlesOneDay()}}
	env := newPipelineEnv(news, sentimentByTitle(flaky))

	first, err := env.pipeline.Run(ctx, RunRequest{Ticker: "TSLA", LookbackDays: 7})
	require.NoError(t, err)
	assert.Equal(t, 2, first.ArticlesAnalyzed)
	require.Len(t, first.Errors, 1)
	require.Len(t, first.Aggregates, 1)
	assert.Equal(t, 2, first.Aggregates[0].ArticleCount)

	env.completer.mu.Lock()
	env.completer.respond = sentimentByTitle(threeScores)
	env.completer.mu.Unlock()

	second, err := env.pipeline.Run(ctx, RunRequest{Ticker: "TSLA", LookbackDays: 7})
	require.NoError(t, err)
	assert.Zero(t, second.ArticlesFetched)
	assert.Equal(t, 1, second.ArticlesRetried)
	assert.Equal(t, 1, second.ArticlesAnalyzed)
	assert.Equal(t, 1, second.DaysSummarized)
	assert.Empty(t, second.Errors)

	stored, err := env.store.DailyAggregate(ctx, "TSLA", day(17))
	require.NoError(t, err)
	assert.Equal(t, 3, stored.ArticleCount)
	assert.InDelta(t, 0.2667, stored.AvgSentiment, 1e-4)
}

func TestPipelineKeepsFailingArticlePendingWithoutResummarizing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	flaky := map[string]string{"Recall widens": ""}
	for title, payload := range threeScores {
		if _, ok := flaky[title]; !ok {
			flaky[title] = payload
		}
	}
	news := &windowNews{pages: map[int][]domain.NewsItem{0: threeArticlesOneDay(), 1: threeArticlesOneDay()}}
	env := newPipelineEnv(news, sentimentByTitle(flaky))

	_, err := env.pipeline.Run(ctx, RunRequest{Ticker: "TSLA", LookbackDays: 7})
	require.NoError(t, err)
	briefs := env.completer.calls("brief")

	second, err := env.pipeline.Run(ctx, RunRequest{Ticker: "TSLA", LookbackDays: 7})
	require.NoError(t, err)
	assert.Equal(t, 1, second.ArticlesRetried)
	assert.Zero(t, second.ArticlesAnalyzed)
	assert.Zero(t, second.DaysSummarized)
	assert.Len(t, second.Errors, 1)
	assert.Equal(t, briefs, env.completer.calls("brief"))
}

func TestMergeArticlesKeepsFreshFirst(t *testing.T) {
	t.Parallel()

	fresh := []domain.Article{{ID: 3}, {ID: 4}}
	pending := []domain.Article{{ID: 1}, {ID: 3}, {ID: 4}}
	got := mergeArticles(fresh, pending)

	ids := make([]int64, 0, len(got))
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []int64{3, 4, 1}, ids)
}

func TestPipelineSummarizesDaysAscending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	items := []domain.NewsItem{
		{Title: "Later", URL: "https://x/later", PublishedAt: day(17)},
		{Title: "Earlier", URL: "https://x/earlier", PublishedAt: day(14)},
	}
	scores := map[string]string{
		"Later":   `{"sentiment": 0.5, "label": "positive", "topics": []}`,
		"Earlier": `{"sentiment": 0.1, "label": "neutral", "topics": []}`,
	}
	env := newPipelineEnv(&windowNews{pages: map[int][]domain.NewsItem{0: items}}, sentimentByTitle(scores))

	res, err := env.pipeline.Run(ctx, RunRequest{Ticker: "TSLA", LookbackDays: 7})
	require.NoError(t, err)
	require.Len(t, res.Aggregates, 2)
	assert.Equal(t, day(14), res.Aggregates[0].Date)
	assert.Equal(t, day(17), res.Aggregates[1].Date)
	// Day 17 sees day 14 as its baseline because it was written first.
	assert.Equal(t, domain.TrendImproving, res.Aggregates[1].Trend)
}

func TestPipelineRejectsConcurrentRunForTicker(t *testing.T) {
	t.Parallel()

	news := &windowNews{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	env := newPipelineEnv(news, sentimentByTitle(nil))

	done := make(chan error, 1)
	go func() {
		_, err := env.pipeline.Run(context.Background(), RunRequest{Ticker: "TSLA", LookbackDays: 7})
		done <- err
	}()

	select {
	case <-news.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never reached the news search")
	}

	_, err := env.pipeline.Run(context.Background(), RunRequest{Ticker: "TSLA", LookbackDays: 7})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(news.block)
	require.NoError(t, <-done)

	_, err = env.pipeline.Run(context.Background(), RunRequest{Ticker: "TSLA", LookbackDays: 7})
	assert.NoError(t, err)
}

func TestPipelineRunValidation(t *testing.T) {
	t.Parallel()

	env := newPipelineEnv(&windowNews{}, nil)
	_, err := env.pipeline.Run(context.Background(), RunRequest{Ticker: "", LookbackDays: 7})
	assert.Error(t, err)
	_, err = env.pipeline.Run(context.Background(), RunRequest{Ticker: "TSLA", LookbackDays: -1})
	assert.Error(t, err)
}

func TestSchedulerRefreshesUniverseAndPublishesDigest(t *testing.T) {
	t.Parallel()

	env := newPipelineEnv(&windowNews{pages: map[int][]domain.NewsItem{0: threeArticlesOneDay()}}, sentimentByTitle(threeScores))
	driver := &captureScheduler{}
	sched := NewScheduler(driver, env.pipeline, nil)

	require.NoError(t, sched.Start(context.Background()))
	require.NotNil(t, driver.job)
	driver.job(testNow)

	require.Len(t, env.notifier.digests, 1)
	digest := env.notifier.digests[0]
	assert.Contains(t, digest, "TSLA 2026-10-17")
	assert.Contains(t, digest, "Daily brief.")
	assert.Contains(t, digest, "3 articles")

	require.NoError(t, sched.Stop(context.Background()))
	assert.True(t, driver.stopped)
}

func TestDigestSkipsEmptyRuns(t *testing.T) {
	t.Parallel()

	assert.Empty(t, buildDigestMessage([]RunResult{{Ticker: "TSLA"}}))
}

func TestSchedulerDropsOverlappingTrigger(t *testing.T) {
	t.Parallel()

	env := newPipelineEnv(&windowNews{}, nil)
	sched := NewScheduler(&captureScheduler{}, env.pipeline, nil)
	sched.running.Store(true)

	sched.refresh(context.Background(), testNow)

	assert.Equal(t, int64(1), sched.Skipped())
	assert.Empty(t, env.notifier.digests)
}

func TestSchedulerWithoutDriverIsDisabled(t *testing.T) {
	t.Parallel()

	sched := NewScheduler(nil, nil, nil)
	require.NoError(t, sched.Start(context.Background()))
	require.NoError(t, sched.Stop(context.Background()))
}
