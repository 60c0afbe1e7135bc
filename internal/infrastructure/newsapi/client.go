package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"SentimentTracker/internal/domain"
	"SentimentTracker/internal/ports"
)

const (
	// DefaultBaseURL is the NewsAPI v2 root.
	DefaultBaseURL = "https://newsapi.org/v2"
	// maxPageSize is the largest page NewsAPI accepts.
	maxPageSize = 100
	dateLayout  = "2006-01-02"
)

// Config describes how to reach NewsAPI.
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client implements ports.NewsSearcher against the /everything endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

var _ ports.NewsSearcher = (*Client)(nil)

// NewClient creates a reusable HTTP client; httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
	}
}

type everythingResponse struct {
	Status   string            `json:"status"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Articles []everythingEntry `json:"articles"`
}

type everythingEntry struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// Search issues one /everything request. A non-"ok" status is returned as an error.
func (c *Client) Search(ctx context.Context, query domain.NewsQuery) ([]domain.NewsItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/everything?"+buildParams(query).Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("User-Agent", "SentimentTracker/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var payload everythingResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&payload); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || payload.Status != "ok" {
		return nil, fmt.Errorf("newsapi status %q (%s): %s", payload.Status, resp.Status, payload.Message)
	}

	items := make([]domain.NewsItem, 0, len(payload.Articles))
	for _, entry := range payload.Articles {
		items = append(items, domain.NewsItem{
			Source:      entry.Source.Name,
			Title:       entry.Title,
			URL:         entry.URL,
			PublishedAt: parsePublished(entry.PublishedAt),
			Description: entry.Description,
			Content:     entry.Content,
		})
	}
	return items, nil
}

func buildParams(query domain.NewsQuery) url.Values {
	params := url.Values{}
	params.Set("q", query.Query)
	if query.Language != "" {
		params.Set("language", query.Language)
	}
	if query.SortBy != "" {
		params.Set("sortBy", query.SortBy)
	}
	if !query.From.IsZero() {
		params.Set("from", query.From.UTC().Format(dateLayout))
	}
	if !query.To.IsZero() {
		params.Set("to", query.To.UTC().Format(dateLayout))
	}
	if query.PageSize > 0 {
		size := query.PageSize
		if size > maxPageSize {
			size = maxPageSize
		}
		params.Set("pageSize", strconv.Itoa(size))
	}
	if len(query.Domains) > 0 {
		params.Set("domains", strings.Join(query.Domains, ","))
	}
	return params
}

// parsePublished returns the zero time when the timestamp is missing or malformed.
func parsePublished(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
