package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ResponseErrorKind tells a malformed payload apart from a schema violation.
type ResponseErrorKind string

const (
	ResponseErrorParse  ResponseErrorKind = "parse"
	ResponseErrorSchema ResponseErrorKind = "schema"
)

// ResponseError is returned when the service answered with something that is not
// a valid sentiment payload.
type ResponseError struct {
	Kind ResponseErrorKind
	Raw  string
	Err  error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("sentiment response %s error: %v", e.Kind, e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// SentimentResponse is a schema-valid, normalised sentiment payload. Label is
// whatever the service sent, lowercased; callers reconcile it with Score.
type SentimentResponse struct {
	Score  float64
	Label  string
	Topics []string
}

type rawSentiment struct {
	Sentiment *float64 `json:"sentiment" validate:"required"`
	Label     *string  `json:"label" validate:"required"`
	Topics    []string `json:"topics" validate:"required"`
}

var responseValidator = validator.New()

const maxTopics = 3

// ParseSentimentResponse isolates the JSON object in raw, decodes it and checks
// that sentiment, label and topics are all present. It fails closed with a
// *ResponseError.
func ParseSentimentResponse(raw string) (SentimentResponse, error) {
	payload := extractJSONObject(raw)

	var parsed rawSentiment
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return SentimentResponse{}, &ResponseError{Kind: ResponseErrorParse, Raw: raw, Err: err}
	}
	if err := responseValidator.Struct(parsed); err != nil {
		return SentimentResponse{}, &ResponseError{Kind: ResponseErrorSchema, Raw: raw, Err: err}
	}

	return SentimentResponse{
		Score:  clampScore(*parsed.Sentiment),
		Label:  strings.ToLower(strings.TrimSpace(*parsed.Label)),
		Topics: NormalizeTopics(parsed.Topics),
	}, nil
}

// extractJSONObject drops an optional markdown fence and trims to the first '{'
// and last '}' so trailing prose is ignored.
func extractJSONObject(raw string) string {
	content := strings.TrimSpace(raw)
	if strings.HasPrefix(content, "```") {
		parts := strings.Split(content, "```")
		if len(parts) > 1 {
			content = strings.TrimPrefix(parts[1], "json")
		}
		content = strings.TrimSpace(content)
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}

// NormalizeTopics lowercases and trims topics, drops empties and
// case-insensitive repeats, keeps first-seen order and caps the list at three.
func NormalizeTopics(topics []string) []string {
	out := make([]string, 0, maxTopics)
	seen := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		normalized := strings.ToLower(strings.TrimSpace(topic))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
		if len(out) == maxTopics {
			break
		}
	}
	return out
}

func clampScore(score float64) float64 {
	switch {
	case score > 1:
		return 1
	case score < -1:
		return -1
	default:
		return score
	}
}
