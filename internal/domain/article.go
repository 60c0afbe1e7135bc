package domain

import (
	"errors"
	"time"
)

var (
	// ErrAlreadyExists is reported by stores when a unique key is already taken.
	// It is a defined outcome, not a failure.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = errors.New("not found")
	// ErrNoData marks an aggregation or query that had nothing to work with.
	ErrNoData = errors.New("no data")
)

// Article is a deduplicated news item. URL is globally unique.
type Article struct {
	ID int64
	// Ticker is the company whose search surfaced the article.
	Ticker      string
	Source      string
	Title       string
	URL         string
	PublishedAt time.Time
	Excerpt     string
	FetchedAt   time.Time
}

// Day returns the UTC calendar day the article was published on.
func (a Article) Day() time.Time {
	return Day(a.PublishedAt)
}

// Mention is one sentiment judgment of one article for one ticker.
type Mention struct {
	ID         int64
	ArticleID  int64
	Ticker     string
	Score      float64
	Label      Label
	Topics     []string
	AnalyzedAt time.Time

	// Article is attached by store queries that join articles; it may be nil.
	Article *Article
}

// ArticleWithMentions pairs an article with the mentions stored for it.
type ArticleWithMentions struct {
	Article
	Mentions []Mention
}

// DailyAggregate is one day's rollup for one ticker, keyed by (Ticker, Date).
type DailyAggregate struct {
	Ticker       string
	Date         time.Time
	AvgSentiment float64
	ArticleCount int
	Trend        Trend
	TopTopics    []string
	Brief        string
	CreatedAt    time.Time
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateLayout is the calendar-date format used across storage, prompts and the API.
const DateLayout = "2006-01-02"

// ParseDay parses a YYYY-MM-DD string into a UTC day.
func ParseDay(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, time.UTC)
}
