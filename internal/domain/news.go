package domain

import "time"

// NewsQuery is one request against the news-search collaborator.
type NewsQuery struct {
	Query    string
	Language string
	SortBy   string
	From     time.Time
	To       time.Time
	PageSize int
	Domains  []string
}

// NewsItem is a candidate article as returned by the news search.
type NewsItem struct {
	Source      string
	Title       string
	URL         string
	PublishedAt time.Time
	Description string
	Content     string
}

// CompletionRequest is a single-prompt call to the text-understanding service.
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	// Purpose labels the call for logs and metrics (sentiment, brief, answer).
	Purpose string
}
