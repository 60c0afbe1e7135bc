package domain

import (
	"fmt"
	"strings"
)

// Label is the categorical reading of a sentiment score.
type Label string

const (
	LabelNegative Label = "negative"
	LabelNeutral  Label = "neutral"
	LabelPositive Label = "positive"
)

// ParseLabel lowercases and trims value and reports whether it names a known label.
func ParseLabel(value string) (Label, bool) {
	switch l := Label(strings.ToLower(strings.TrimSpace(value))); l {
	case LabelNegative, LabelNeutral, LabelPositive:
		return l, true
	default:
		return "", false
	}
}

// Trend classifies the direction of sentiment over time.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Thresholds maps numeric scores to labels. Positive is inclusive from above,
// Negative inclusive from below.
type Thresholds struct {
	Positive float64
	Negative float64
}

// DefaultThresholds are the +/-0.25 cut-offs used by scoring and display.
func DefaultThresholds() Thresholds {
	return Thresholds{Positive: 0.25, Negative: -0.25}
}

// LabelFor derives the label for score.
func (t Thresholds) LabelFor(score float64) Label {
	switch {
	case score >= t.Positive:
		return LabelPositive
	case score <= t.Negative:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

// TrendPolicy holds the delta thresholds for trend classification.
type TrendPolicy struct {
	Improving float64
	Declining float64
	// OffsetDays is how far back the daily trend looks for its baseline.
	OffsetDays int
}

// DefaultTrendPolicy compares against the aggregate three days earlier with +/-0.1 thresholds.
func DefaultTrendPolicy() TrendPolicy {
	return TrendPolicy{Improving: 0.1, Declining: -0.1, OffsetDays: 3}
}

// SourceFilter selects which publishers the news search may return.
type SourceFilter string

const (
	SourceFilterAll     SourceFilter = "all"
	SourceFilterCurated SourceFilter = "quality"
)

// ParseSourceFilter accepts the two filter names plus a few aliases.
func ParseSourceFilter(value string) (SourceFilter, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "all", "quantity", "unrestricted":
		return SourceFilterAll, nil
	case "quality", "curated":
		return SourceFilterCurated, nil
	default:
		return "", fmt.Errorf("unknown source filter %q", value)
	}
}
