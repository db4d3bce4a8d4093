package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"djenwatch/internal/services"
)

// SummaryPrompt instructs the model to summarize one communication.
const SummaryPrompt = `Você é um assistente jurídico brasileiro. Receberá uma publicação do Diário de Justiça Eletrônico Nacional (DJEN) em JSON com os campos date, org, type e text.
Responda somente com um objeto JSON com os campos:
- "summary": resumo objetivo em português, no máximo 3 frases;
- "urgency": um de "low", "medium", "high", "critical" (critical quando há prazo fatal curto ou audiência próxima);
- "actionRequired": true quando o advogado precisa praticar algum ato;
- "keyPoints": lista curta de prazos, datas e determinações relevantes.`

// EventRequest is the payload sent for one communication.
type EventRequest struct {
	Date string `json:"date"`
	Org  string `json:"org"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// EventSummary is the structured response for one communication.
type EventSummary struct {
	Summary        string   `json:"summary"`
	Urgency        string   `json:"urgency"`
	ActionRequired bool     `json:"actionRequired"`
	KeyPoints      []string `json:"keyPoints"`
	Raw            string   `json:"-"`
}

// SummarizeEvent asks the model to summarize req. A response without a
// summary is reported as services.ErrAnalysisUnavailable.
func (c *Client) SummarizeEvent(ctx context.Context, req EventRequest) (EventSummary, error) {
	var empty EventSummary
	if strings.TrimSpace(req.Text) == "" {
		return empty, services.Wrap(services.ErrAnalysisUnavailable, "llm", "summarize", "event text required", nil)
	}
	encoded, err := json.Marshal(req)
	if err != nil {
		return empty, fmt.Errorf("llm summarize: encode request: %w", err)
	}
	content, err := c.CompleteJSON(ctx, SummaryPrompt, string(encoded))
	if err != nil {
		return empty, err
	}
	var parsed EventSummary
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return empty, services.Wrap(services.ErrAnalysisUnavailable, "llm", "summarize", "parse payload", err)
	}
	parsed.Summary = strings.TrimSpace(parsed.Summary)
	if parsed.Summary == "" {
		return empty, services.Wrap(services.ErrAnalysisUnavailable, "llm", "summarize", "response missing summary", nil)
	}
	parsed.Urgency = strings.ToLower(strings.TrimSpace(parsed.Urgency))
	points := parsed.KeyPoints[:0]
	for _, p := range parsed.KeyPoints {
		if p = strings.TrimSpace(p); p != "" {
			points = append(points, p)
		}
	}
	parsed.KeyPoints = points
	parsed.Raw = content
	return parsed, nil
}
