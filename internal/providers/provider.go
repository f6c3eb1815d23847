// Package providers implements the generative backend adapters that turn a
// checkpoint's text window into a cumulative summary and character mentions.
// Adapters are stateless across invocations; retry policy lives with the
// caller, which only retries failures classified as transient.
package providers

import (
	"context"
	"time"
)

// Generator is the adapter interface for a generative text backend.
type Generator interface {
	// Generate produces a summary and character mentions for one
	// checkpoint window. Implementations must classify failures via the
	// Failure type in this package and must not retry internally.
	Generate(ctx context.Context, req *Request) (*Result, error)

	// Name returns the backend identifier (e.g. "openrouter", "gemini").
	Name() string
}

// PriorSummary is one earlier checkpoint's summary, supplied as context so
// the model produces a cumulative recap rather than a window-local one.
type PriorSummary struct {
	Progress int    `json:"progress"`
	Summary  string `json:"summary"`
}

// Request describes one checkpoint generation call.
type Request struct {
	// WindowText is the checkpoint window's normalized text. Never empty;
	// empty windows are completed without a backend call.
	WindowText string

	// PriorSummaries are earlier checkpoints' summaries in ascending
	// progress order. The prompt builder drops the oldest first when the
	// context budget is exceeded.
	PriorSummaries []PriorSummary

	// KnownCharacters are canonical names already on the roster, used to
	// bias alias resolution toward established entities.
	KnownCharacters []string

	// Progress is the checkpoint's grid value, for logging and request
	// attribution only.
	Progress int

	// RequestID tracks the call through logs; generated if empty.
	RequestID string

	// Timeout bounds the outbound call. Zero means the client default.
	Timeout time.Duration
}

// Result is a validated backend response.
type Result struct {
	// Summary is the cumulative recap text. Non-empty by contract.
	Summary string `json:"summary"`
	// Characters are the raw character name strings observed in the
	// window. May be empty.
	Characters []string `json:"characters"`

	// Token counts, when the backend reports them.
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// Provider info
	Provider  string        `json:"provider"`
	ModelUsed string        `json:"model_used"`
	RequestID string        `json:"request_id"`
	Duration  time.Duration `json:"duration"`
}
