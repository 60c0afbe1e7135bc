package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorsAreNoop(t *testing.T) {
	t.Parallel()

	var c *Collectors
	assert.NotPanics(t, func() {
		c.Fetched("TSLA", 3)
		c.Analyzed("TSLA")
		c.AnalysisFailed("TSLA", "parse")
		c.Summarized("TSLA")
		c.WindowFailed("TSLA")
		c.Completion("sentiment", time.Second, nil)
		c.PipelineRun("TSLA", time.Second)
	})
}

func TestCountersAccumulate(t *testing.T) {
	t.Parallel()

	c := New()
	c.Fetched("TSLA", 4)
	c.Fetched("TSLA", 0)
	c.Analyzed("TSLA")
	c.Analyzed("TSLA")
	c.Completion("brief", 10*time.Millisecond, errors.New("boom"))
	c.Completion("brief", 10*time.Millisecond, nil)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.ArticlesFetched.WithLabelValues("TSLA")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.ArticlesAnalyzed.WithLabelValues("TSLA")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CompletionCalls.WithLabelValues("brief", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CompletionCalls.WithLabelValues("brief", "success")))
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	c := New()
	c.Summarized("NVDA")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sentiment_days_summarized_total{ticker="NVDA"} 1`)
}
