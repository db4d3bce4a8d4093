// Package llm provides an OpenRouter-compatible chat client used to summarize
// judicial communications.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive a JSON payload.
// Client.SummarizeEvent: summarize one communication into summary, urgency,
// action flag and key points.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client retries HTTP 408/5xx errors, empty completions and network
// timeouts with exponential backoff (base 1s, max 10s, up to 3 attempts by
// default). HTTP 429 is never retried: it surfaces as services.ErrRateLimited
// so the caller can stop the pass instead of adding pressure. Context
// cancellation aborts retries immediately.
//
// Every other failure is tagged services.ErrAnalysisUnavailable. Callers
// treat that as "no analysis yet", never as fatal.
package llm
