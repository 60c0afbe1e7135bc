package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"SentimentTracker/internal/domain"
	"SentimentTracker/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	articleColumns = []string{
		"a.id", "a.ticker", "a.source", "a.title", "a.url", "a.published_at", "a.content_snippet", "a.fetched_at",
	}
	mentionColumns = []string{
		"m.id", "m.article_id", "m.company_ticker", "m.sentiment_score", "m.sentiment_label", "m.key_topics", "m.analyzed_at",
	}
	joinedArticleColumns = []string{
		"a.ticker AS article_ticker",
		"a.source AS article_source",
		"a.title AS article_title",
		"a.url AS article_url",
		"a.published_at AS article_published_at",
		"a.content_snippet AS article_snippet",
		"a.fetched_at AS article_fetched_at",
	}
	joinedMentionColumns = []string{
		"m.id AS mention_id",
		"m.company_ticker AS mention_ticker",
		"m.sentiment_score AS mention_score",
		"m.sentiment_label AS mention_label",
		"m.key_topics AS mention_topics",
		"m.analyzed_at AS mention_analyzed_at",
	}
	aggregateColumns = []string{
		"ticker", "date", "avg_sentiment", "article_count", "sentiment_trend", "top_topics", "ir_brief", "created_at",
	}
)

// PostgresStore persists articles, mentions and daily aggregates into Postgres.
type PostgresStore struct {
	db *sqlx.DB
}

var _ ports.Store = (*PostgresStore)(nil)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresStore wires a sqlx.DB implementation.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the tables if they are missing.
func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type articleRow struct {
	ID          int64     `db:"id"`
	Ticker      string    `db:"ticker"`
	Source      string    `db:"source"`
	Title       string    `db:"title"`
	URL         string    `db:"url"`
	PublishedAt time.Time `db:"published_at"`
	Snippet     string    `db:"content_snippet"`
	FetchedAt   time.Time `db:"fetched_at"`
}

type mentionRow struct {
	ID         int64          `db:"id"`
	ArticleID  int64          `db:"article_id"`
	Ticker     string         `db:"company_ticker"`
	Score      float64        `db:"sentiment_score"`
	Label      string         `db:"sentiment_label"`
	Topics     pq.StringArray `db:"key_topics"`
	AnalyzedAt time.Time      `db:"analyzed_at"`
}

type mentionArticleRow struct {
	mentionRow
	ArticleTicker      string    `db:"article_ticker"`
	ArticleSource      string    `db:"article_source"`
	ArticleTitle       string    `db:"article_title"`
	ArticleURL         string    `db:"article_url"`
	ArticlePublishedAt time.Time `db:"article_published_at"`
	ArticleSnippet     string    `db:"article_snippet"`
	ArticleFetchedAt   time.Time `db:"article_fetched_at"`
}

type articleMentionRow struct {
	articleRow
	MentionID         int64          `db:"mention_id"`
	MentionTicker     string         `db:"mention_ticker"`
	MentionScore      float64        `db:"mention_score"`
	MentionLabel      string         `db:"mention_label"`
	MentionTopics     pq.StringArray `db:"mention_topics"`
	MentionAnalyzedAt time.Time      `db:"mention_analyzed_at"`
}

type aggregateRow struct {
	Ticker       string         `db:"ticker"`
	Date         time.Time      `db:"date"`
	AvgSentiment float64        `db:"avg_sentiment"`
	ArticleCount int            `db:"article_count"`
	Trend        string         `db:"sentiment_trend"`
	TopTopics    pq.StringArray `db:"top_topics"`
	Brief        string         `db:"ir_brief"`
	CreatedAt    time.Time      `db:"created_at"`
}

// InsertArticle relies on the url unique constraint; a conflict yields domain.ErrAlreadyExists.
func (r *PostgresStore) InsertArticle(ctx context.Context, article domain.Article) (int64, error) {
	query, args, err := insertArticleQuery(article)
	if err != nil {
		return 0, fmt.Errorf("build insert article: %w", err)
	}

	var id int64
	err = r.db.GetContext(ctx, &id, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrAlreadyExists
	}
	if err != nil {
		return 0, fmt.Errorf("insert article: %w", err)
	}
	return id, nil
}

func (r *PostgresStore) ArticleExists(ctx context.Context, url string) (bool, error) {
	query, args, err := psql.Select("1").
		From("articles").
		Where(sq.Eq{"url": url}).
		Prefix("SELECT EXISTS(").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build article exists: %w", err)
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("article exists: %w", err)
	}
	return exists, nil
}

// ArticlesInRange joins articles with the ticker's mentions, newest first.
func (r *PostgresStore) ArticlesInRange(ctx context.Context, ticker string, start, end time.Time) ([]domain.ArticleWithMentions, error) {
	from, until := dayBounds(start, end)
	query, args, err := psql.Select(append(append([]string{}, articleColumns...), joinedMentionColumns...)...).
		From("articles a").
		Join("mentions m ON m.article_id = a.id").
		Where(sq.Eq{"m.company_ticker": ticker}).
		Where(sq.GtOrEq{"a.published_at": from}).
		Where(sq.Lt{"a.published_at": until}).
		OrderBy("a.published_at DESC", "a.id DESC", "m.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build articles in range: %w", err)
	}

	var rows []articleMentionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("articles in range: %w", err)
	}

	var out []domain.ArticleWithMentions
	index := map[int64]int{}
	for _, row := range rows {
		mention := domain.Mention{
			ID:         row.MentionID,
			ArticleID:  row.ID,
			Ticker:     row.MentionTicker,
			Score:      row.MentionScore,
			Label:      domain.Label(row.MentionLabel),
			Topics:     []string(row.MentionTopics),
			AnalyzedAt: row.MentionAnalyzedAt,
		}
		if i, ok := index[row.ID]; ok {
			out[i].Mentions = append(out[i].Mentions, mention)
			continue
		}
		index[row.ID] = len(out)
		out = append(out, domain.ArticleWithMentions{
			Article:  row.articleRow.toDomain(),
			Mentions: []domain.Mention{mention},
		})
	}
	return out, nil
}

// UnscoredArticles returns the ticker's articles published on or after since's
// day that have no mention for the ticker yet, oldest first.
func (r *PostgresStore) UnscoredArticles(ctx context.Context, ticker string, since time.Time) ([]domain.Article, error) {
	query, args, err := unscoredArticlesQuery(ticker, since)
	if err != nil {
		return nil, fmt.Errorf("build unscored articles: %w", err)
	}

	var rows []articleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("unscored articles: %w", err)
	}

	out := make([]domain.Article, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// InsertMention relies on the (article_id, company_ticker) unique constraint.
func (r *PostgresStore) InsertMention(ctx context.Context, mention domain.Mention) (int64, error) {
	query, args, err := psql.Insert("mentions").
		Columns("article_id", "company_ticker", "sentiment_score", "sentiment_label", "key_topics", "analyzed_at").
		Values(mention.ArticleID, mention.Ticker, mention.Score, string(mention.Label), stringArray(mention.Topics), mention.AnalyzedAt).
		Suffix("ON CONFLICT (article_id, company_ticker) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert mention: %w", err)
	}

	var id int64
	err = r.db.GetContext(ctx, &id, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrAlreadyExists
	}
	if err != nil {
		return 0, fmt.Errorf("insert mention: %w", err)
	}
	return id, nil
}

func (r *PostgresStore) MentionForArticle(ctx context.Context, articleID int64) (domain.Mention, error) {
	query, args, err := psql.Select(mentionColumns...).
		From("mentions m").
		Where(sq.Eq{"m.article_id": articleID}).
		OrderBy("m.id ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.Mention{}, fmt.Errorf("build mention for article: %w", err)
	}

	var row mentionRow
	err = r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Mention{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Mention{}, fmt.Errorf("mention for article: %w", err)
	}
	return row.toDomain(), nil
}

// MentionsFor returns the ticker's mentions on day with the article attached.
func (r *PostgresStore) MentionsFor(ctx context.Context, ticker string, day time.Time) ([]domain.Mention, error) {
	from, until := dayBounds(day, day)
	query, args, err := psql.Select(append(append([]string{}, mentionColumns...), joinedArticleColumns...)...).
		From("mentions m").
		Join("articles a ON a.id = m.article_id").
		Where(sq.Eq{"m.company_ticker": ticker}).
		Where(sq.GtOrEq{"a.published_at": from}).
		Where(sq.Lt{"a.published_at": until}).
		OrderBy("m.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build mentions for day: %w", err)
	}

	var rows []mentionArticleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("mentions for day: %w", err)
	}

	out := make([]domain.Mention, 0, len(rows))
	for _, row := range rows {
		mention := row.mentionRow.toDomain()
		mention.Article = &domain.Article{
			ID:          row.ArticleID,
			Ticker:      row.ArticleTicker,
			Source:      row.ArticleSource,
			Title:       row.ArticleTitle,
			URL:         row.ArticleURL,
			PublishedAt: row.ArticlePublishedAt,
			Excerpt:     row.ArticleSnippet,
			FetchedAt:   row.ArticleFetchedAt,
		}
		out = append(out, mention)
	}
	return out, nil
}

// UpsertDailyAggregate overwrites every column of an existing (ticker, date) row.
func (r *PostgresStore) UpsertDailyAggregate(ctx context.Context, agg domain.DailyAggregate) error {
	query, args, err := upsertAggregateQuery(agg)
	if err != nil {
		return fmt.Errorf("build upsert aggregate: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert aggregate: %w", err)
	}
	return nil
}

func (r *PostgresStore) DailyAggregate(ctx context.Context, ticker string, day time.Time) (domain.DailyAggregate, error) {
	query, args, err := psql.Select(aggregateColumns...).
		From("daily_agg").
		Where(sq.Eq{"ticker": ticker, "date": day.Format(domain.DateLayout)}).
		ToSql()
	if err != nil {
		return domain.DailyAggregate{}, fmt.Errorf("build daily aggregate: %w", err)
	}

	var row aggregateRow
	err = r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DailyAggregate{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.DailyAggregate{}, fmt.Errorf("daily aggregate: %w", err)
	}
	return row.toDomain(), nil
}

func (r *PostgresStore) DailyAggregatesInRange(ctx context.Context, ticker string, start, end time.Time) ([]domain.DailyAggregate, error) {
	query, args, err := psql.Select(aggregateColumns...).
		From("daily_agg").
		Where(sq.Eq{"ticker": ticker}).
		Where(sq.GtOrEq{"date": domain.Day(start).Format(domain.DateLayout)}).
		Where(sq.LtOrEq{"date": domain.Day(end).Format(domain.DateLayout)}).
		OrderBy("date ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build aggregates in range: %w", err)
	}

	var rows []aggregateRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("aggregates in range: %w", err)
	}

	out := make([]domain.DailyAggregate, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func insertArticleQuery(article domain.Article) (string, []interface{}, error) {
	return psql.Insert("articles").
		Columns("source", "title", "url", "published_at", "content_snippet", "fetched_at", "ticker").
		Values(article.Source, article.Title, article.URL, article.PublishedAt, article.Excerpt, article.FetchedAt, article.Ticker).
		Suffix("ON CONFLICT (url) DO NOTHING RETURNING id").
		ToSql()
}

func unscoredArticlesQuery(ticker string, since time.Time) (string, []interface{}, error) {
	return psql.Select(articleColumns...).
		From("articles a").
		LeftJoin("mentions m ON m.article_id = a.id AND m.company_ticker = ?", ticker).
		Where(sq.Eq{"a.ticker": ticker}).
		Where(sq.GtOrEq{"a.published_at": domain.Day(since)}).
		Where("m.id IS NULL").
		OrderBy("a.published_at ASC", "a.id ASC").
		ToSql()
}

func upsertAggregateQuery(agg domain.DailyAggregate) (string, []interface{}, error) {
	return psql.Insert("daily_agg").
		Columns(aggregateColumns...).
		Values(
			agg.Ticker,
			domain.Day(agg.Date).Format(domain.DateLayout),
			agg.AvgSentiment,
			agg.ArticleCount,
			string(agg.Trend),
			stringArray(agg.TopTopics),
			agg.Brief,
			agg.CreatedAt,
		).
		Suffix(`ON CONFLICT (ticker, date) DO UPDATE
              SET avg_sentiment = EXCLUDED.avg_sentiment,
                  article_count = EXCLUDED.article_count,
                  sentiment_trend = EXCLUDED.sentiment_trend,
                  top_topics = EXCLUDED.top_topics,
                  ir_brief = EXCLUDED.ir_brief,
                  created_at = EXCLUDED.created_at`).
		ToSql()
}

// stringArray never returns nil so NOT NULL array columns receive '{}'.
func stringArray(values []string) pq.StringArray {
	if values == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(values)
}

func (r articleRow) toDomain() domain.Article {
	return domain.Article{
		ID:          r.ID,
		Ticker:      r.Ticker,
		Source:      r.Source,
		Title:       r.Title,
		URL:         r.URL,
		PublishedAt: r.PublishedAt,
		Excerpt:     r.Snippet,
		FetchedAt:   r.FetchedAt,
	}
}

func (r mentionRow) toDomain() domain.Mention {
	return domain.Mention{
		ID:         r.ID,
		ArticleID:  r.ArticleID,
		Ticker:     r.Ticker,
		Score:      r.Score,
		Label:      domain.Label(r.Label),
		Topics:     []string(r.Topics),
		AnalyzedAt: r.AnalyzedAt,
	}
}

func (r aggregateRow) toDomain() domain.DailyAggregate {
	return domain.DailyAggregate{
		Ticker:       r.Ticker,
		Date:         domain.Day(r.Date),
		AvgSentiment: r.AvgSentiment,
		ArticleCount: r.ArticleCount,
		Trend:        domain.Trend(r.Trend),
		TopTopics:    []string(r.TopTopics),
		Brief:        r.Brief,
		CreatedAt:    r.CreatedAt,
	}
}
