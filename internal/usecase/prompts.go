package usecase

import (
	"fmt"
	"strings"

	"SentimentTracker/internal/domain"
)

const maxSnippetRunes = 500

const sentimentPrompt = `Analyze investor sentiment toward %s in this article.

Title: %s
Snippet: %s

Return valid JSON only:
{
  "sentiment": <float -1.0 to 1.0>,
  "label": "<negative|neutral|positive>",
  "topics": ["<topic1>", "<topic2>"]
}

Rules:
- sentiment: -1.0 (very negative) to 1.0 (very positive)
- label: must be exactly "negative", "neutral", or "positive"
- topics: max 3 topics, each 2-4 words, ALWAYS USE LOWERCASE, be consistent with naming
  Examples: "regulatory concerns", "earnings performance", "product launch", "market volatility"
`

const briefPrompt = `Create a 3-sentence IR brief for %s based on today's coverage.

Articles analyzed: %d
Average sentiment: %.2f (%s)
Top topics: %s

Sample headlines:
%s

Format:
1. Overall tone assessment (1 sentence)
2. Key narrative or theme (1 sentence)
3. Notable mention or shift (1 sentence)

Keep it factual and concise. No fluff.`

const answerPrompt = `You are an IR analyst assistant. Your task is to answer questions regarding the investor sentiment of the stock represented by %s. Use exclusively the following data to formulate your responses:

SENTIMENT SUMMARY:
- Date range: %s to %s
- Average sentiment: %.2f
- Total articles analyzed: %d
- Trend: %s

DAILY BRIEFS:
%s

KEY ARTICLES:
%s

User question: %s

Your answer should be concise and factual, limited to 2-3 sentences. If the information provided does not allow for a valid answer, please indicate that explicitly.`

func buildSentimentPrompt(ticker, title, snippet string) string {
	return fmt.Sprintf(sentimentPrompt, ticker, title, truncateRunes(snippet, maxSnippetRunes))
}

func buildBriefPrompt(ticker string, count int, avg float64, label domain.Label, topics, headlines []string) string {
	topicText := "No clear topics"
	if len(topics) > 0 {
		topicText = strings.Join(topics, ", ")
	}
	headlineText := "No significant headlines"
	if len(headlines) > 0 {
		lines := make([]string, len(headlines))
		for i, h := range headlines {
			lines[i] = "- " + h
		}
		headlineText = strings.Join(lines, "\n")
	}
	return fmt.Sprintf(briefPrompt, ticker, count, avg, label, topicText, headlineText)
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
