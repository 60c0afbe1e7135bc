package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"SentimentTracker/internal/domain"
	"SentimentTracker/internal/usecase"
)

const defaultAggregateDays = 30

type refreshRequest struct {
	LookbackDays int    `json:"lookbackDays" binding:"gte=0"`
	SourceFilter string `json:"sourceFilter"`
}

type askRequest struct {
	Question  string `json:"question" binding:"required"`
	StartDate string `json:"startDate" binding:"required"`
	EndDate   string `json:"endDate" binding:"required"`
}

// AggregateResponse is one stored day plus its display label.
type AggregateResponse struct {
	Ticker       string   `json:"ticker"`
	Date         string   `json:"date"`
	AvgSentiment float64  `json:"avgSentiment"`
	Label        string   `json:"label"`
	ArticleCount int      `json:"articleCount"`
	Trend        string   `json:"trend"`
	TopTopics    []string `json:"topTopics"`
	Brief        string   `json:"brief"`
}

func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	days := req.LookbackDays
	if days == 0 {
		days = s.deps.Lookback.Default
	}
	if !s.deps.Lookback.Allows(days) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lookbackDays is not an allowed range"})
		return
	}

	filter, err := domain.ParseSourceFilter(req.SourceFilter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.deps.Refresher.Run(c.Request.Context(), usecase.RunRequest{
		Ticker:       c.Param("ticker"),
		LookbackDays: days,
		SourceFilter: filter,
	})
	if errors.Is(err, usecase.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("refresh failed", "ticker", c.Param("ticker"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err := domain.ParseDay(req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startDate: " + err.Error()})
		return
	}
	end, err := domain.ParseDay(req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endDate: " + err.Error()})
		return
	}

	answer, err := s.deps.Asker.Answer(c.Request.Context(), usecase.Question{
		Ticker: c.Param("ticker"),
		Text:   req.Question,
		Start:  start,
		End:    end,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, answer)
}

func (s *Server) aggregates(c *gin.Context) {
	end := domain.Day(s.now())
	start := end.AddDate(0, 0, -(defaultAggregateDays - 1))

	var err error
	if v := c.Query("end"); v != "" {
		if end, err = domain.ParseDay(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end: " + err.Error()})
			return
		}
		if c.Query("start") == "" {
			start = end.AddDate(0, 0, -(defaultAggregateDays - 1))
		}
	}
	if v := c.Query("start"); v != "" {
		if start, err = domain.ParseDay(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start: " + err.Error()})
			return
		}
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end is before start"})
		return
	}

	ticker := c.Param("ticker")
	daily, err := s.deps.Aggregates.DailyAggregatesInRange(c.Request.Context(), ticker, start, end)
	if err != nil {
		s.logger.Error("load aggregates failed", "ticker", ticker, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res := make([]AggregateResponse, 0, len(daily))
	for _, d := range daily {
		res = append(res, s.toAggregateResponse(d))
	}
	c.JSON(http.StatusOK, gin.H{
		"ticker":     ticker,
		"start":      start.Format(domain.DateLayout),
		"end":        end.Format(domain.DateLayout),
		"aggregates": res,
	})
}

func (s *Server) toAggregateResponse(d domain.DailyAggregate) AggregateResponse {
	topics := d.TopTopics
	if topics == nil {
		topics = []string{}
	}
	return AggregateResponse{
		Ticker:       d.Ticker,
		Date:         d.Date.Format(domain.DateLayout),
		AvgSentiment: d.AvgSentiment,
		Label:        string(s.deps.Thresholds.LabelFor(d.AvgSentiment)),
		ArticleCount: d.ArticleCount,
		Trend:        string(d.Trend),
		TopTopics:    topics,
		Brief:        d.Brief,
	}
}
