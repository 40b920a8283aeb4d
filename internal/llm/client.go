package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/onechat/internal/chat"
	"github.com/onechat/internal/session"
)

// DefaultBaseURL targets OpenRouter's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

var (
	// ErrRemoteCall covers transport and provider failures. The turn is
	// aborted and history left untouched.
	ErrRemoteCall = errors.New("llm: remote call failed")
	// ErrMalformedResponse covers replies that carry no usable text. Same
	// treatment as ErrRemoteCall.
	ErrMalformedResponse = errors.New("llm: malformed response")
)

// Options configure the remote client. The credential arrives as an opaque
// value at construction; the client never reads the environment itself.
type Options struct {
	APIKey  string
	BaseURL string
}

// Client sends assembled requests to an OpenAI-compatible endpoint through
// langchain. The model is chosen per call from the request, so a config
// reload switches models without rebuilding the client.
type Client struct {
	model llms.Model
	log   zerolog.Logger
}

func New(opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("llm: API key is required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model, err := openai.New(
		openai.WithToken(opts.APIKey),
		openai.WithBaseURL(baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("llm: create client: %w", err)
	}

	logger.Debug().Str("base_url", baseURL).Msg("Created model client")
	return &Client{model: model, log: logger}, nil
}

// Complete implements chat.ModelClient.
func (c *Client) Complete(ctx context.Context, req *chat.Request) (string, error) {
	c.log.Debug().Str("model", req.Model).Int("messages", len(req.Messages)).
		Msg("Calling model endpoint")

	resp, err := c.model.GenerateContent(ctx, toContent(req.Messages), callOptions(req)...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteCall, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrMalformedResponse)
	}
	return resp.Choices[0].Content, nil
}

func toContent(msgs []session.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case session.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case session.RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

// callOptions maps the snapshot's parameter set onto langchain call options.
// Keys without a dedicated option travel as request metadata so arbitrary
// config passthrough still reaches the provider.
func callOptions(req *chat.Request) []llms.CallOption {
	opts := []llms.CallOption{llms.WithModel(req.Model)}

	meta := make(map[string]interface{})
	for key, value := range req.Params {
		switch key {
		case "temperature":
			if f, ok := toFloat(value); ok {
				opts = append(opts, llms.WithTemperature(f))
			}
		case "max_tokens":
			if n, ok := toInt(value); ok {
				opts = append(opts, llms.WithMaxTokens(n))
			}
		case "top_p":
			if f, ok := toFloat(value); ok {
				opts = append(opts, llms.WithTopP(f))
			}
		case "frequency_penalty":
			if f, ok := toFloat(value); ok {
				opts = append(opts, llms.WithFrequencyPenalty(f))
			}
		case "presence_penalty":
			if f, ok := toFloat(value); ok {
				opts = append(opts, llms.WithPresencePenalty(f))
			}
		case "stop":
			if words, ok := toStrings(value); ok {
				opts = append(opts, llms.WithStopWords(words))
			}
		default:
			meta[key] = value
		}
	}
	if len(meta) > 0 {
		opts = append(opts, llms.WithMetadata(meta))
	}
	return opts
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func toStrings(v interface{}) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}
