// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/yuktathapliyal/serix/internal/provider"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

// defaultMaxTokens applies when the request does not set a limit; the
// Messages API requires an explicit max_tokens value.
const defaultMaxTokens = 4096

// Config holds Anthropic client configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Client implements provider.Client using the Anthropic Messages API.
type Client struct {
	client anthropicsdk.Client
	config Config
}

// New creates a new Anthropic client. Returns an error if the API key is missing.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, serixerr.New(serixerr.CodeProviderKeyMissing, "anthropic: missing api key",
			serixerr.FieldProvider("anthropic"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{client: anthropicsdk.NewClient(opts...), config: cfg}, nil
}

func (c *Client) Name() string { return "anthropic" }

func (c *Client) Close() error { return nil }

func (c *Client) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	var buf strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			buf.WriteString(block.Text)
		}
	}

	return &provider.Response{
		Content:    buf.String(),
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Usage: provider.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// buildParams converts a provider.Request into Anthropic SDK MessageNewParams.
// The Messages API has no system role in the message list, so system entries
// are folded into the top-level system param after the request-level prompt.
func buildParams(req provider.Request) (anthropicsdk.MessageNewParams, error) {
	var msgs []anthropicsdk.MessageParam
	systemParts := make([]string, 0, 2)
	if req.SystemPrompt != "" {
		systemParts = append(systemParts, req.SystemPrompt)
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case provider.RoleUser:
			msgs = append(msgs, anthropicsdk.NewUserMessage(
				anthropicsdk.NewTextBlock(msg.Content),
			))
		case provider.RoleAssistant:
			msgs = append(msgs, anthropicsdk.NewAssistantMessage(
				anthropicsdk.NewTextBlock(msg.Content),
			))
		case provider.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		default:
			return anthropicsdk.MessageNewParams{}, serixerr.Errorf(
				serixerr.CodeProviderRequestInvalid, "anthropic: unsupported message role %q", msg.Role)
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}

	if req.JSONMode {
		// The Messages API has no response_format knob; JSON-only output is
		// requested through the system prompt instead.
		systemParts = append(systemParts, "Respond with a single JSON object and nothing else.")
	}
	if len(systemParts) > 0 {
		params.System = []anthropicsdk.TextBlockParam{{Text: strings.Join(systemParts, "\n\n")}}
	}

	if req.Temperature != nil {
		params.Temperature = anthropicsdk.Float(*req.Temperature)
	}

	return params, nil
}

// classifyError maps SDK errors onto the transient/terminal taxonomy so the
// interception layer can decide whether a retry is worthwhile.
func classifyError(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		if isTransientStatus(apiErr.StatusCode) {
			return serixerr.Wrapf(err, serixerr.CodeProviderTransient,
				"anthropic: upstream returned %d", apiErr.StatusCode)
		}
		return serixerr.Wrapf(err, serixerr.CodeProviderFailure,
			"anthropic: upstream returned %d", apiErr.StatusCode)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return serixerr.Wrap(err, serixerr.CodeProviderFailure, "anthropic: call cancelled")
	}

	return serixerr.Wrap(err, serixerr.CodeProviderTransient, "anthropic: request failed")
}

func isTransientStatus(status int) bool {
	return status == 408 || status == 429 || status >= 500
}
