package llm

import (
	"chainwatch/internal/platform/obs"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures an OpenAI-compatible chat-completions endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // optional; defaults to the OpenAI API
	Model      string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

type completeFunc func(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)

// OpenAIClient implements TextGenerator over the chat-completions API.
type OpenAIClient struct {
	complete completeFunc
	model    string
	timeout  time.Duration
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm api key is empty")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	client := openai.NewClient(opts...)
	return &OpenAIClient{
		complete: client.Chat.Completions.New,
		model:    model,
		timeout:  timeout,
	}, nil
}

// Generate sends one system + user message pair and returns the first choice's text.
func (c *OpenAIClient) Generate(ctx context.Context, system string, prompt string) (_ string, err error) {
	defer obs.Time(ctx, "llm.Generate")(&err)

	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("generate: prompt is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := c.complete(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", fmt.Errorf("generate: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("generate: model returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
