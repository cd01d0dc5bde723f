// Package model defines the boundary types exchanged with an LLM provider.
//
// The control core never talks to a provider directly; callers supply a
// Caller that owns transport, streaming, retries, and prompt-cache headers.
package model

import "context"

// Message is a single conversation message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is the raw model output for one call.
type Response struct {
	Content string `json:"content"`
}

// Caller performs one model call. The output format, when non-nil, is a
// JSON-Schema payload constraining the model's structured output.
type Caller func(ctx context.Context, messages []Message, outputFormat map[string]interface{}) (Response, error)
