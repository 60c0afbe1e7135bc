package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"SentimentTracker/internal/domain"
	"SentimentTracker/internal/ports"
	"SentimentTracker/internal/usecase"
)

// Refresher starts one pipeline run.
type Refresher interface {
	Run(ctx context.Context, req usecase.RunRequest) (usecase.RunResult, error)
}

// Asker answers a question over stored data.
type Asker interface {
	Answer(ctx context.Context, q usecase.Question) (usecase.Answer, error)
}

// LookbackPolicy bounds the lookbackDays a refresh may ask for.
type LookbackPolicy struct {
	Default int
	Max     int
	// Strict limits requests to the preset ranges.
	Strict bool
}

// presetLookbacks are the date ranges offered to interactive users.
var presetLookbacks = []int{7, 14, 30}

// Allows reports whether days is an acceptable lookback.
func (p LookbackPolicy) Allows(days int) bool {
	if p.Strict {
		for _, preset := range presetLookbacks {
			if days == preset {
				return true
			}
		}
		return false
	}
	return days > 0 && days <= p.Max
}

// Deps groups everything the HTTP surface calls into.
type Deps struct {
	Refresher  Refresher
	Asker      Asker
	Aggregates ports.AggregateRepository
	Tickers    []string
	Thresholds domain.Thresholds
	Lookback   LookbackPolicy
	Metrics    http.Handler
	Logger     *slog.Logger
}

// Server exposes refresh, ask and read endpoints as JSON.
type Server struct {
	deps    Deps
	tickers map[string]struct{}
	logger  *slog.Logger
	now     func() time.Time
}

// NewServer validates deps and builds the handler set.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tickers := make(map[string]struct{}, len(deps.Tickers))
	for _, t := range deps.Tickers {
		tickers[t] = struct{}{}
	}
	if deps.Lookback.Default <= 0 {
		deps.Lookback.Default = 7
	}
	if deps.Lookback.Max <= 0 {
		deps.Lookback.Max = 90
	}
	return &Server{deps: deps, tickers: tickers, logger: logger, now: time.Now}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	api := r.Group("/api/v1")
	api.GET("/tickers", s.listTickers)

	ticker := api.Group("/tickers/:ticker", s.requireTicker)
	ticker.POST("/refresh", s.refresh)
	ticker.POST("/ask", s.ask)
	ticker.GET("/aggregates", s.aggregates)

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(started),
		)
	}
}

func (s *Server) requireTicker(c *gin.Context) {
	if _, ok := s.tickers[c.Param("ticker")]; !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown ticker %q", c.Param("ticker"))})
		return
	}
	c.Next()
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listTickers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tickers": s.deps.Tickers})
}
