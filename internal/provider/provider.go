// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package provider

import (
	"context"
)

// Client is the single seam through which every LLM call in a run passes:
// the target agent's own calls, the adaptive attacker's calls, and the
// judge's calls. Interception wraps this interface, so the code making
// the call never knows whether it hit the network or a recording.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
	Close() error
}

// Role identifies the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in a chat completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic completion request. Only fields that are
// semantically relevant to the completion appear here; volatile values
// (request IDs, timestamps) never do, so the request can be fingerprinted.
type Request struct {
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system,omitempty"`
	Messages     []Message `json:"messages"`
	Temperature  *float64  `json:"temperature,omitempty"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	JSONMode     bool      `json:"json_mode,omitempty"`
}

// Response is a provider-agnostic completion response.
type Response struct {
	Content    string `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason,omitempty"`
	Usage      Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Temp is a convenience constructor for Request.Temperature.
func Temp(v float64) *float64 { return &v }
