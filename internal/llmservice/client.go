package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"syllabus-rag/internal/config"
)

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

type Message struct {
	Role    Role
	Content string
}

// Params bounds a single completion.
type Params struct {
	MaxTokens   int
	Temperature float64
}

// Completer generates a chat completion for messages.
type Completer interface {
	Complete(ctx context.Context, messages []Message, params Params) (string, error)
}

// Client adapts a langchaingo model to Completer.
type Client struct {
	llm   llms.Model
	model string
}

// NewClient builds a chat model for cfg. The openai provider works against
// any OpenAI-compatible API, Groq included.
func NewClient(cfg *config.LLMConfig) (*Client, error) {
	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	case config.ProviderOllama:
		llm, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}
	return NewClientFromModel(llm, cfg.Model), nil
}

func NewClientFromModel(llm llms.Model, model string) *Client {
	return &Client{llm: llm, model: model}
}

func (c *Client) Complete(ctx context.Context, messages []Message, params Params) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}

	var opts []llms.CallOption
	if params.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(params.MaxTokens))
	}
	opts = append(opts, llms.WithTemperature(params.Temperature))

	log.Debug().Str("model", c.model).Int("messages", len(messages)).
		Int("max_tokens", params.MaxTokens).Float64("temperature", params.Temperature).
		Msg("Generating content")

	res, err := c.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if res == nil || len(res.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return res.Choices[0].Content, nil
}

func chatMessageType(r Role) schema.ChatMessageType {
	if r == RoleSystem {
		return schema.ChatMessageTypeSystem
	}
	return schema.ChatMessageTypeHuman
}
