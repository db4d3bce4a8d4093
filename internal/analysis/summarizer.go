package analysis

import (
	"context"

	"djenwatch/internal/services/llm"
	"djenwatch/internal/textutil"
	"djenwatch/internal/timeline"
)

// Summarizer produces an AI analysis for one event. Failures should carry
// services.ErrAnalysisUnavailable, or services.ErrRateLimited to stop the
// pass.
type Summarizer interface {
	Summarize(ctx context.Context, event timeline.Event) (*timeline.AIAnalysis, error)
}

// DefaultTextLimit bounds the event text sent to the model, in runes.
const DefaultTextLimit = 4000

// LLMSummarizer adapts the chat client to Summarizer.
type LLMSummarizer struct {
	client    *llm.Client
	textLimit int
}

// NewLLMSummarizer wraps client. A non-positive textLimit selects
// DefaultTextLimit.
func NewLLMSummarizer(client *llm.Client, textLimit int) *LLMSummarizer {
	if textLimit <= 0 {
		textLimit = DefaultTextLimit
	}
	return &LLMSummarizer{client: client, textLimit: textLimit}
}

// Summarize implements Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, event timeline.Event) (*timeline.AIAnalysis, error) {
	summary, err := s.client.SummarizeEvent(ctx, llm.EventRequest{
		Date: event.Date.Format("2006-01-02"),
		Org:  event.Org,
		Type: string(event.Type),
		Text: textutil.Truncate(event.Description, s.textLimit),
	})
	if err != nil {
		return nil, err
	}
	urgency, ok := timeline.ParseUrgency(summary.Urgency)
	if !ok {
		urgency = timeline.UrgencyMedium
	}
	return &timeline.AIAnalysis{
		Summary:        summary.Summary,
		Urgency:        urgency,
		ActionRequired: summary.ActionRequired,
		KeyPoints:      summary.KeyPoints,
	}, nil
}
