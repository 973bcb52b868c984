// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package openai

import (
	"context"
	"errors"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"github.com/yuktathapliyal/serix/internal/provider"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

// Config holds OpenAI client configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Client implements provider.Client using the OpenAI Chat Completions API.
type Client struct {
	client openaisdk.Client
	config Config
}

// New creates a new OpenAI client. Returns an error if the API key is missing.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, serixerr.New(serixerr.CodeProviderKeyMissing, "openai: missing api key",
			serixerr.FieldProvider("openai"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{client: openaisdk.NewClient(opts...), config: cfg}, nil
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Close() error { return nil }

func (c *Client) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	if len(completion.Choices) == 0 {
		return nil, serixerr.New(serixerr.CodeProviderFailure, "openai: completion returned no choices",
			serixerr.FieldProvider("openai"))
	}

	choice := completion.Choices[0]
	return &provider.Response{
		Content:    choice.Message.Content,
		Model:      completion.Model,
		StopReason: string(choice.FinishReason),
		Usage: provider.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

// buildParams converts a provider.Request into OpenAI SDK ChatCompletionNewParams.
// The system prompt is prepended as a system message if present.
func buildParams(req provider.Request) (openaisdk.ChatCompletionNewParams, error) {
	var msgs []openaisdk.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.SystemPrompt))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case provider.RoleUser:
			msgs = append(msgs, openaisdk.UserMessage(msg.Content))
		case provider.RoleAssistant:
			msgs = append(msgs, openaisdk.AssistantMessage(msg.Content))
		case provider.RoleSystem:
			msgs = append(msgs, openaisdk.SystemMessage(msg.Content))
		default:
			return openaisdk.ChatCompletionNewParams{}, serixerr.Errorf(
				serixerr.CodeProviderRequestInvalid, "openai: unsupported message role %q", msg.Role)
		}
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}

	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}

	if req.JSONMode {
		params.ResponseFormat = openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	return params, nil
}

// classifyError maps SDK errors onto the transient/terminal taxonomy so the
// interception layer can decide whether a retry is worthwhile.
func classifyError(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		if isTransientStatus(apiErr.StatusCode) {
			return serixerr.Wrapf(err, serixerr.CodeProviderTransient,
				"openai: upstream returned %d", apiErr.StatusCode)
		}
		return serixerr.Wrapf(err, serixerr.CodeProviderFailure,
			"openai: upstream returned %d", apiErr.StatusCode)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return serixerr.Wrap(err, serixerr.CodeProviderFailure, "openai: call cancelled")
	}

	// Network-level failures without an HTTP status are treated as transient.
	return serixerr.Wrap(err, serixerr.CodeProviderTransient, "openai: request failed")
}

func isTransientStatus(status int) bool {
	return status == 408 || status == 429 || status >= 500
}
