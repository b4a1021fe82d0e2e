// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

// Package llm wraps chat completions with response validation and usage
// accounting. Responses are validated against a Target; rejected responses
// are fed back to the model with the rejection reason for a bounded number
// of retries.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	defaultModel       = "gpt-4o-mini"
	defaultMaxAttempts = 3
)

// Config holds chat client configuration.
type Config struct {
	APIKey      string
	BaseURL     string // optional, useful for testing against a mock server
	Model       string
	Temperature float64

	// MaxAttempts bounds the SendValid retry loop. Defaults to 3.
	MaxAttempts int
}

// Client sends chat completions. A nil ledger disables usage accounting.
type Client struct {
	api         openaisdk.Client
	model       string
	temperature float64
	maxAttempts int
	ledger      *Ledger
	logger      *slog.Logger
}

func NewClient(cfg Config, ledger *Ledger, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, mnemoerr.New(mnemoerr.CodeLLMUpstreamFailure, "llm: missing api_key in config")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := defaultModel
	if cfg.Model != "" {
		model = cfg.Model
	}
	maxAttempts := defaultMaxAttempts
	if cfg.MaxAttempts > 0 {
		maxAttempts = cfg.MaxAttempts
	}

	return &Client{
		api:         openaisdk.NewClient(opts...),
		model:       model,
		temperature: cfg.Temperature,
		maxAttempts: maxAttempts,
		ledger:      ledger,
		logger:      logger,
	}, nil
}

// Send runs one chat completion and returns the assistant's reply. Usage is
// written to the ledger under group; a ledger write failure is logged, never
// surfaced, since losing an accounting row must not fail the call.
func (c *Client) Send(ctx context.Context, messages []Message, group string) (string, error) {
	if len(messages) == 0 {
		return "", mnemoerr.New(mnemoerr.CodeLLMResponseInvalid, "llm: no messages to send")
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: convertMessages(messages),
	}
	if c.temperature > 0 {
		params.Temperature = param.NewOpt(c.temperature)
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", mnemoerr.Wrapf(err, mnemoerr.CodeLLMUpstreamFailure, "llm: chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", mnemoerr.New(mnemoerr.CodeLLMUpstreamFailure, "llm: chat completion returned no choices")
	}

	if c.ledger != nil {
		_, err := c.ledger.Record(ctx, c.model, group, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		if err != nil {
			c.logger.Warn("usage ledger write failed",
				"model", c.model,
				"group", group,
				"error", err)
		}
	}

	return resp.Choices[0].Message.Content, nil
}

// SendValid sends the messages and validates the reply against target,
// retrying up to the configured attempt limit. Each rejected reply is
// appended to the conversation along with the rejection reason, so the model
// sees what it said and why it was unacceptable.
//
// Returns the parsed value, which is nil when the model answered "none".
func (c *Client) SendValid(ctx context.Context, messages []Message, target Target, group string) (any, error) {
	convo := append([]Message(nil), messages...)

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		reply, err := c.Send(ctx, convo, group)
		if err != nil {
			return nil, err
		}

		value, err := target.Parse(reply)
		if err == nil {
			return value, nil
		}
		if !mnemoerr.HasCode(err, mnemoerr.CodeLLMResponseInvalid) {
			return nil, err
		}

		lastErr = err
		c.logger.Debug("model response rejected, retrying",
			"target", target.Kind(),
			"attempt", attempt+1,
			"reason", err.Error())

		convo = append(convo,
			Message{Role: RoleAssistant, Content: reply},
			Message{Role: RoleUser, Content: fmt.Sprintf(
				"That response was not acceptable: %s. Answer again, with nothing but the requested %s value.",
				err.Error(), target.Kind())},
		)
	}

	return nil, mnemoerr.Wrapf(lastErr, mnemoerr.CodeLLMValidateExhausted,
		"llm: no valid %s response after %d attempts", target.Kind(), c.maxAttempts)
}

func convertMessages(messages []Message) []openaisdk.ChatCompletionMessageParamUnion {
	result := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			result = append(result, openaisdk.AssistantMessage(msg.Content))
		case RoleSystem:
			result = append(result, openaisdk.SystemMessage(msg.Content))
		default:
			result = append(result, openaisdk.UserMessage(msg.Content))
		}
	}
	return result
}
