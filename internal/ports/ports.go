package ports

import (
	"context"
	"time"

	"SentimentTracker/internal/domain"
)

// NewsSearcher returns candidate articles for a query and time window.
type NewsSearcher interface {
	Search(ctx context.Context, query domain.NewsQuery) ([]domain.NewsItem, error)
}

// Completer sends one prompt to the text-understanding service and returns its text.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
}

// ArticleRepository persists deduplicated articles.
type ArticleRepository interface {
	// InsertArticle returns the assigned id, or domain.ErrAlreadyExists for a known URL.
	InsertArticle(ctx context.Context, article domain.Article) (int64, error)
	ArticleExists(ctx context.Context, url string) (bool, error)
	// ArticlesInRange returns articles published in [start, end] (whole days) that
	// carry a mention for ticker, newest first.
	ArticlesInRange(ctx context.Context, ticker string, start, end time.Time) ([]domain.ArticleWithMentions, error)
	// UnscoredArticles returns articles surfaced for ticker, published on or after
	// since's day, that still lack a mention for it, oldest first.
	UnscoredArticles(ctx context.Context, ticker string, since time.Time) ([]domain.Article, error)
}

// MentionRepository persists per-ticker sentiment judgments.
type MentionRepository interface {
	// InsertMention returns domain.ErrAlreadyExists if (article, ticker) is already scored.
	InsertMention(ctx context.Context, mention domain.Mention) (int64, error)
	// MentionForArticle returns domain.ErrNotFound when the article has no mention.
	MentionForArticle(ctx context.Context, articleID int64) (domain.Mention, error)
	// MentionsFor returns the ticker's mentions for articles published on day, with Article attached.
	MentionsFor(ctx context.Context, ticker string, day time.Time) ([]domain.Mention, error)
}

// AggregateRepository persists daily rollups keyed by (ticker, date).
type AggregateRepository interface {
	UpsertDailyAggregate(ctx context.Context, agg domain.DailyAggregate) error
	// DailyAggregate returns domain.ErrNotFound when no row exists.
	DailyAggregate(ctx context.Context, ticker string, day time.Time) (domain.DailyAggregate, error)
	// DailyAggregatesInRange returns rows with start <= date <= end ordered by date ascending.
	DailyAggregatesInRange(ctx context.Context, ticker string, start, end time.Time) ([]domain.DailyAggregate, error)
}

// Store is the full persistence surface consumed by the pipeline.
type Store interface {
	ArticleRepository
	MentionRepository
	AggregateRepository
}

// Notifier streams digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
