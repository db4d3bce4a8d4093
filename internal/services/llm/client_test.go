package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"djenwatch/internal/services"
)

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		payload := map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": content}},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientHealthCheck(t *testing.T) {
	server := completionServer(t, `{"ok":true}`)
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server := completionServer(t, "```json\n{\"ok\":true}\n```")
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestSummarizeEventDecodesResponse(t *testing.T) {
	var received EventRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Content != SummaryPrompt {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		if err := json.Unmarshal([]byte(req.Messages[1].Content), &received); err != nil {
			t.Errorf("decode user prompt: %v", err)
		}
		content := `Segue: {"summary":" Prazo de 15 dias para réplica. ","urgency":"HIGH","actionRequired":true,"keyPoints":["15 dias"," "]}`
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"delta": map[string]any{"content": content}}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	summary, err := client.SummarizeEvent(context.Background(), EventRequest{Date: "2024-03-01", Org: "1ª Vara", Type: "intimation", Text: "Intime-se."})
	if err != nil {
		t.Fatalf("SummarizeEvent returned error: %v", err)
	}
	if received.Text != "Intime-se." || received.Type != "intimation" {
		t.Fatalf("unexpected request payload %+v", received)
	}
	if summary.Summary != "Prazo de 15 dias para réplica." || summary.Urgency != "high" || !summary.ActionRequired {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(summary.KeyPoints) != 1 {
		t.Fatalf("expected blank key points dropped, got %v", summary.KeyPoints)
	}
}

func TestSummarizeEventMalformedIsAnalysisUnavailable(t *testing.T) {
	for name, content := range map[string]string{
		"not json":        "desculpe, não consigo",
		"missing summary": `{"urgency":"low"}`,
	} {
		t.Run(name, func(t *testing.T) {
			server := completionServer(t, content)
			client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
			_, err := client.SummarizeEvent(context.Background(), EventRequest{Text: "Intime-se."})
			if !errors.Is(err, services.ErrAnalysisUnavailable) {
				t.Fatalf("expected ErrAnalysisUnavailable, got %v", err)
			}
		})
	}
}

func TestClientWithoutKeyNeverCallsProvider(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	if _, err := client.CompleteJSON(context.Background(), "sys", "user"); !errors.Is(err, services.ErrAnalysisUnavailable) {
		t.Fatalf("expected ErrAnalysisUnavailable, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no requests, got %d", calls.Load())
	}
}

func TestClientDoesNotRetryHTTP429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }))
	_, err := client.CompleteJSON(context.Background(), "sys", "user")
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if calls.Load() != 1 || len(slept) != 0 {
		t.Fatalf("expected a single attempt without sleeping, calls=%d slept=%v", calls.Load(), slept)
	}
}

func TestClientRetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": `{"ok":true}`}}},
		})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL},
		WithRetryBackoff(10*time.Millisecond, 15*time.Millisecond),
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }))
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if len(slept) != 2 || slept[0] != 10*time.Millisecond || slept[1] != 15*time.Millisecond {
		t.Fatalf("unexpected backoff %v", slept)
	}
}

func TestClientEmptyContentHasSnippet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": ""}, "finish_reason": "length"}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL}, WithRetryMaxAttempts(1))
	_, err := client.CompleteJSON(context.Background(), "sys", "user")
	if err == nil || !strings.Contains(err.Error(), `finish_reason="length"`) {
		t.Fatalf("expected finish reason in error, got %v", err)
	}
	if !errors.Is(err, services.ErrAnalysisUnavailable) {
		t.Fatalf("expected ErrAnalysisUnavailable, got %v", err)
	}
}

func TestDecodeLLMJSONExtractsObject(t *testing.T) {
	var out struct {
		Summary string `json:"summary"`
	}
	if err := DecodeLLMJSON("Aqui está:\n{\"summary\":\"ok\"}\nObrigado.", &out); err != nil {
		t.Fatalf("DecodeLLMJSON returned error: %v", err)
	}
	if out.Summary != "ok" {
		t.Fatalf("unexpected decode %+v", out)
	}
	if err := DecodeLLMJSON("   ", &out); err == nil {
		t.Fatal("expected empty payload error")
	}
}
