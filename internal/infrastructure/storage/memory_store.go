package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"SentimentTracker/internal/domain"
	"SentimentTracker/internal/ports"
)

// MemoryStore keeps articles, mentions and aggregates in process memory with the
// same uniqueness rules as the Postgres schema.
type MemoryStore struct {
	mu sync.RWMutex

	nextArticleID int64
	nextMentionID int64

	articles     map[int64]domain.Article
	articleByURL map[string]int64
	mentions     map[int64]domain.Mention
	mentionByKey map[mentionKey]int64
	aggregates   map[aggregateKey]domain.DailyAggregate
}

type mentionKey struct {
	articleID int64
	ticker    string
}

type aggregateKey struct {
	ticker string
	day    time.Time
}

var _ ports.Store = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles:     map[int64]domain.Article{},
		articleByURL: map[string]int64{},
		mentions:     map[int64]domain.Mention{},
		mentionByKey: map[mentionKey]int64{},
		aggregates:   map[aggregateKey]domain.DailyAggregate{},
	}
}

// InsertArticle assigns an id, or returns domain.ErrAlreadyExists for a known URL.
func (s *MemoryStore) InsertArticle(_ context.Context, article domain.Article) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.articleByURL[article.URL]; ok {
		return 0, domain.ErrAlreadyExists
	}
	s.nextArticleID++
	article.ID = s.nextArticleID
	s.articles[article.ID] = article
	s.articleByURL[article.URL] = article.ID
	return article.ID, nil
}

func (s *MemoryStore) ArticleExists(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.articleByURL[url]
	return ok, nil
}

// ArticlesInRange returns mentioned articles published in the inclusive day range, newest first.
func (s *MemoryStore) ArticlesInRange(_ context.Context, ticker string, start, end time.Time) ([]domain.ArticleWithMentions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, until := dayBounds(start, end)
	var out []domain.ArticleWithMentions
	for _, article := range s.articles {
		if article.PublishedAt.Before(from) || !article.PublishedAt.Before(until) {
			continue
		}
		id, ok := s.mentionByKey[mentionKey{articleID: article.ID, ticker: ticker}]
		if !ok {
			continue
		}
		out = append(out, domain.ArticleWithMentions{
			Article:  article,
			Mentions: []domain.Mention{cloneMention(s.mentions[id])},
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out, nil
}

// UnscoredArticles returns the ticker's articles published on or after since's
// day that have no mention for the ticker yet, oldest first.
func (s *MemoryStore) UnscoredArticles(_ context.Context, ticker string, since time.Time) ([]domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from := domain.Day(since)
	var out []domain.Article
	for _, article := range s.articles {
		if article.Ticker != ticker || article.PublishedAt.Before(from) {
			continue
		}
		if _, scored := s.mentionByKey[mentionKey{articleID: article.ID, ticker: ticker}]; scored {
			continue
		}
		out = append(out, article)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].PublishedAt.Before(out[j].PublishedAt)
	})
	return out, nil
}

func (s *MemoryStore) InsertMention(_ context.Context, mention domain.Mention) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := mentionKey{articleID: mention.ArticleID, ticker: mention.Ticker}
	if _, ok := s.mentionByKey[key]; ok {
		return 0, domain.ErrAlreadyExists
	}
	s.nextMentionID++
	mention.ID = s.nextMentionID
	mention.Article = nil
	mention.Topics = append([]string(nil), mention.Topics...)
	s.mentions[mention.ID] = mention
	s.mentionByKey[key] = mention.ID
	return mention.ID, nil
}

// MentionForArticle returns the lowest-id mention of the article.
func (s *MemoryStore) MentionForArticle(_ context.Context, articleID int64) (domain.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found domain.Mention
		ok    bool
	)
	for _, m := range s.mentions {
		if m.ArticleID != articleID {
			continue
		}
		if !ok || m.ID < found.ID {
			found, ok = m, true
		}
	}
	if !ok {
		return domain.Mention{}, domain.ErrNotFound
	}
	return cloneMention(found), nil
}

// MentionsFor returns the ticker's mentions for articles published on day, in insertion order.
func (s *MemoryStore) MentionsFor(_ context.Context, ticker string, day time.Time) ([]domain.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, until := dayBounds(day, day)
	var out []domain.Mention
	for _, m := range s.mentions {
		if m.Ticker != ticker {
			continue
		}
		article, ok := s.articles[m.ArticleID]
		if !ok || article.PublishedAt.Before(from) || !article.PublishedAt.Before(until) {
			continue
		}
		mention := cloneMention(m)
		mention.Article = &article
		out = append(out, mention)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertDailyAggregate fully replaces any row for (ticker, date).
func (s *MemoryStore) UpsertDailyAggregate(_ context.Context, agg domain.DailyAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg.Date = domain.Day(agg.Date)
	agg.TopTopics = append([]string(nil), agg.TopTopics...)
	s.aggregates[aggregateKey{ticker: agg.Ticker, day: agg.Date}] = agg
	return nil
}

func (s *MemoryStore) DailyAggregate(_ context.Context, ticker string, day time.Time) (domain.DailyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, ok := s.aggregates[aggregateKey{ticker: ticker, day: domain.Day(day)}]
	if !ok {
		return domain.DailyAggregate{}, domain.ErrNotFound
	}
	agg.TopTopics = append([]string(nil), agg.TopTopics...)
	return agg, nil
}

func (s *MemoryStore) DailyAggregatesInRange(_ context.Context, ticker string, start, end time.Time) ([]domain.DailyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to := domain.Day(start), domain.Day(end)
	var out []domain.DailyAggregate
	for key, agg := range s.aggregates {
		if key.ticker != ticker || key.day.Before(from) || key.day.After(to) {
			continue
		}
		agg.TopTopics = append([]string(nil), agg.TopTopics...)
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// dayBounds turns an inclusive day range into a half-open instant range.
func dayBounds(start, end time.Time) (time.Time, time.Time) {
	return domain.Day(start), domain.Day(end).AddDate(0, 0, 1)
}

func cloneMention(m domain.Mention) domain.Mention {
	m.Topics = append([]string(nil), m.Topics...)
	return m
}
