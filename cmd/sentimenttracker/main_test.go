package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentimentTracker/internal/usecase"
)

// useConfig points the loader at a memory-store config whose collaborators
// live at newsURL and llmURL.
func useConfig(t *testing.T, newsURL, llmURL string) {
	t.Helper()

	raw := fmt.Sprintf(`storage:
  driver: memory
news:
  baseUrl: %s
  requestsPerSecond: 0
llm:
  provider: anthropic
  baseUrl: %s
  maxRetries: 0
  requestsPerSecond: 0
logging:
  level: error
`, newsURL, llmURL)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	t.Setenv("SENTIMENT_TRACKER_CONFIG", path)
	t.Setenv("NEWS_API_KEY", "news-key")
	t.Setenv("ANTHROPIC_API_KEY", "llm-key")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("LOG_LEVEL", "error")
}

func TestRunRejectsBadInvocations(t *testing.T) {
	useConfig(t, "http://127.0.0.1:1", "http://127.0.0.1:1")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown command", args: []string{"backfill"}, want: `unknown command "backfill"`},
		{name: "ask without question", args: []string{"ask", "-ticker", "TSLA"}, want: "-q is required"},
		{name: "ask with bad date", args: []string{"ask", "-q", "why?", "-from", "18/10/2026"}, want: "-from"},
		{name: "run with unknown sources", args: []string{"run", "-sources", "tabloids"}, want: "unknown source filter"},
		{name: "run with unknown flag", args: []string{"run", "-verbose"}, want: "flag provided but not defined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), tt.args, &out)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, out.String())
		})
	}
}

func TestRunWithoutArgumentsPrintsUsage(t *testing.T) {
	err := run(context.Background(), nil, io.Discard)
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestRunFailsOnInvalidConfig(t *testing.T) {
	useConfig(t, "http://127.0.0.1:1", "http://127.0.0.1:1")
	t.Setenv("NEWS_API_KEY", "")

	err := run(context.Background(), []string{"run"}, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Config.News.APIKey")
}

func TestRunRefreshAgainstMemoryStore(t *testing.T) {
	published := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)

	news := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/everything", r.URL.Path)
		assert.Equal(t, "news-key", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"status":"ok","totalResults":1,"articles":[`+
			`{"source":{"name":"Reuters"},"title":"Tesla deliveries beat","url":"https://reuters.com/tsla-1",`+
			`"publishedAt":%q,"description":"Record quarter.","content":"Record quarter."}]}`, published)
	}))
	defer news.Close()

	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-20241022",`+
			`"content":[{"type":"text","text":"{\"sentiment\": 0.5, \"label\": \"positive\", \"topics\": [\"deliveries\"]}"}],`+
			`"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":10}}`)
	}))
	defer model.Close()

	useConfig(t, news.URL, model.URL)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"run", "-ticker", "tsla", "-days", "7"}, &out))

	var result usecase.RunResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, "TSLA", result.Ticker)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 1, result.ArticlesFetched)
	assert.Equal(t, 1, result.ArticlesAnalyzed)
	assert.Equal(t, 1, result.DaysSummarized)
	assert.Empty(t, result.Errors)
}
