package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"SentimentTracker/internal/domain"
)

// scriptedCompleter answers through respond and records every request.
type scriptedCompleter struct {
	mu       sync.Mutex
	requests []domain.CompletionRequest
	respond  func(req domain.CompletionRequest) (string, error)
}

func (c *scriptedCompleter) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	respond := c.respond
	c.mu.Unlock()
	if respond == nil {
		return "", nil
	}
	return respond(req)
}

func (c *scriptedCompleter) calls(purpose string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.requests {
		if purpose == "" || r.Purpose == purpose {
			n++
		}
	}
	return n
}

func (c *scriptedCompleter) lastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return ""
	}
	return c.requests[len(c.requests)-1].Prompt
}

func fixedText(text string) func(domain.CompletionRequest) (string, error) {
	return func(domain.CompletionRequest) (string, error) { return text, nil }
}

// windowNews returns pages[i] (or errs[i]) for the i-th search call.
type windowNews struct {
	mu      sync.Mutex
	pages   map[int][]domain.NewsItem
	errs    map[int]error
	queries []domain.NewsQuery
	block   chan struct{}
	entered chan struct{}
}

func (n *windowNews) Search(ctx context.Context, q domain.NewsQuery) ([]domain.NewsItem, error) {
	n.mu.Lock()
	idx := len(n.queries)
	n.queries = append(n.queries, q)
	block, entered := n.block, n.entered
	n.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.errs[idx]; err != nil {
		return nil, err
	}
	return n.pages[idx], nil
}

func (n *windowNews) searched() []domain.NewsQuery {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.NewsQuery(nil), n.queries...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	digests []string
}

func (r *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.digests = append(r.digests, digest)
	return nil
}

type captureScheduler struct {
	job     func(time.Time)
	stopped bool
}

func (c *captureScheduler) Start(_ context.Context, job func(time.Time)) error {
	c.job = job
	return nil
}

func (c *captureScheduler) Stop(context.Context) error {
	c.stopped = true
	return nil
}

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func day(d int) time.Time {
	return time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC)
}

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	return testutil.ToFloat64(c)
}
