package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"SentimentTracker/internal/domain"
	"SentimentTracker/internal/metrics"
	"SentimentTracker/internal/ports"
)

// CompletionOptions are the generation parameters for one kind of call.
type CompletionOptions struct {
	MaxTokens   int
	Temperature float64
}

// ScoreResult is a stored mention plus whether it predates this call.
type ScoreResult struct {
	Mention       domain.Mention
	AlreadyScored bool
}

// Scorer turns an article into at most one Mention per ticker.
type Scorer struct {
	completer  ports.Completer
	mentions   ports.MentionRepository
	thresholds domain.Thresholds
	opts       CompletionOptions
	logger     *slog.Logger
	metrics    *metrics.Collectors
	now        func() time.Time
}

// NewScorer wires the text service with the mention store.
func NewScorer(completer ports.Completer, mentions ports.MentionRepository, thresholds domain.Thresholds, opts CompletionOptions, logger *slog.Logger, m *metrics.Collectors) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		completer:  completer,
		mentions:   mentions,
		thresholds: thresholds,
		opts:       opts,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// Score returns the existing mention for articleID without calling the service,
// or asks the service, validates its answer and stores a new mention. On any
// failure nothing is stored, so the article is picked up again by a later run.
func (s *Scorer) Score(ctx context.Context, articleID int64, ticker, title, excerpt string) (ScoreResult, error) {
	existing, err := s.mentions.MentionForArticle(ctx, articleID)
	switch {
	case err == nil:
		return ScoreResult{Mention: existing, AlreadyScored: true}, nil
	case !errors.Is(err, domain.ErrNotFound):
		s.metrics.AnalysisFailed(ticker, "store")
		return ScoreResult{}, fmt.Errorf("lookup mention for article %d: %w", articleID, err)
	}

	log := s.logger.With("article_id", articleID, "ticker", ticker)

	started := time.Now()
	raw, err := s.completer.Complete(ctx, domain.CompletionRequest{
		Prompt:      buildSentimentPrompt(ticker, title, excerpt),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
		Purpose:     "sentiment",
	})
	s.metrics.Completion("sentiment", time.Since(started), err)
	if err != nil {
		log.Warn("sentiment analysis failed", "error", err)
		s.metrics.AnalysisFailed(ticker, "completion")
		return ScoreResult{}, fmt.Errorf("analyze article %d: %w", articleID, err)
	}

	parsed, err := ParseSentimentResponse(raw)
	if err != nil {
		kind := "parse"
		var respErr *ResponseError
		if errors.As(err, &respErr) {
			kind = string(respErr.Kind)
		}
		log.Warn("sentiment response rejected", "kind", kind, "error", err)
		s.metrics.AnalysisFailed(ticker, kind)
		return ScoreResult{}, fmt.Errorf("analyze article %d: %w", articleID, err)
	}

	label := s.reconcileLabel(log, parsed)
	mention := domain.Mention{
		ArticleID:  articleID,
		Ticker:     ticker,
		Score:      parsed.Score,
		Label:      label,
		Topics:     parsed.Topics,
		AnalyzedAt: s.now(),
	}

	id, err := s.mentions.InsertMention(ctx, mention)
	if errors.Is(err, domain.ErrAlreadyExists) {
		// Another run got there first; its mention wins.
		existing, lookupErr := s.mentions.MentionForArticle(ctx, articleID)
		if lookupErr != nil {
			return ScoreResult{}, fmt.Errorf("reload mention for article %d: %w", articleID, lookupErr)
		}
		return ScoreResult{Mention: existing, AlreadyScored: true}, nil
	}
	if err != nil {
		s.metrics.AnalysisFailed(ticker, "store")
		return ScoreResult{}, fmt.Errorf("store mention for article %d: %w", articleID, err)
	}

	mention.ID = id
	s.metrics.Analyzed(ticker)
	return ScoreResult{Mention: mention}, nil
}

// reconcileLabel keeps the label consistent with the score. The service's label
// is only ever advisory.
func (s *Scorer) reconcileLabel(log *slog.Logger, parsed SentimentResponse) domain.Label {
	derived := s.thresholds.LabelFor(parsed.Score)
	if supplied, ok := domain.ParseLabel(parsed.Label); !ok || supplied != derived {
		log.Debug("label overridden by score", "supplied", parsed.Label, "score", parsed.Score, "label", derived)
	}
	return derived
}
