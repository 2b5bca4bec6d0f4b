// Package openaicompat implements the llm adapter for providers that expose
// an OpenAI-compatible chat-completions API: Groq, SambaNova, DeepSeek and
// OpenRouter differ only in base URL, credentials and model identifiers.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mlopez/jobquest/llm"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const (
	connectTimeout = 10 * time.Second
	requestTimeout = 180 * time.Second
)

// BaseURLs maps each OpenAI-compatible provider to its API endpoint.
var BaseURLs = map[string]string{
	llm.ProviderGroq:       "https://api.groq.com/openai/v1",
	llm.ProviderSambaNova:  "https://api.sambanova.ai/v1",
	llm.ProviderDeepSeek:   "https://api.deepseek.com/v1",
	llm.ProviderOpenRouter: "https://openrouter.ai/api/v1",
}

// Client implements llm.Client for one OpenAI-compatible provider and model.
type Client struct {
	provider string
	model    string
	client   *openai.Client
	logger   zerolog.Logger
}

// New creates a client for the named provider. Fails at construction when the
// API key is absent or the provider has no known endpoint.
func New(provider, apiKey, model string, logger zerolog.Logger) (*Client, error) {
	baseURL, ok := BaseURLs[provider]
	if !ok {
		return nil, llm.NewConfigError(fmt.Sprintf("no OpenAI-compatible endpoint known for provider %q", provider))
	}
	if apiKey == "" {
		return nil, llm.NewConfigError(fmt.Sprintf(
			"%s API key not set; add %s_API_KEY to the environment or the %s.api_key config field",
			provider, strings.ToUpper(provider), provider))
	}
	if model == "" {
		return nil, llm.NewConfigError(fmt.Sprintf("no default model configured for provider %q", provider))
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
		},
	}

	return &Client{
		provider: provider,
		model:    model,
		client:   openai.NewClientWithConfig(cfg),
		logger:   logger.With().Str("component", provider).Logger(),
	}, nil
}

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Result, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: req.User},
	}
	if req.System != "" {
		messages = append([]openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
		}, messages...)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, c.convertError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, llm.NewInvalidResponseError(
			fmt.Sprintf("%s: response has no choices", c.provider), nil)
	}
	text := resp.Choices[0].Message.Content
	if text == "" {
		return nil, llm.NewInvalidResponseError(
			fmt.Sprintf("%s: response choice has empty content", c.provider), nil)
	}

	return &llm.Result{
		Text:     text,
		Provider: c.ModelName(),
	}, nil
}

// ModelName implements llm.Client.
func (c *Client) ModelName() string { return c.provider + "/" + c.model }

// convertError maps SDK errors to the structured llm taxonomy.
func (c *Client) convertError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return llm.NewTimeoutError(fmt.Sprintf("%s: request timed out", c.provider), err)
		}
		return llm.NewNetworkError(fmt.Sprintf("%s: request failed", c.provider), err)
	}

	switch {
	case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
		if llm.LooksLikeDailyQuota(apiErr.Message) {
			return llm.NewDailyQuotaError(
				fmt.Sprintf("%s %s: daily quota exhausted", c.provider, c.model), err)
		}
		hint := llm.ParseRetryHint(apiErr.Message)
		return llm.NewRateLimitError(
			fmt.Sprintf("%s %s: rate limited", c.provider, c.model), hint, err)

	case apiErr.HTTPStatusCode >= 500:
		return llm.NewProviderError(
			fmt.Sprintf("%s: server error (HTTP %d)", c.provider, apiErr.HTTPStatusCode),
			apiErr.HTTPStatusCode, true, err)

	case apiErr.HTTPStatusCode == http.StatusBadRequest,
		apiErr.HTTPStatusCode == http.StatusUnauthorized,
		apiErr.HTTPStatusCode == http.StatusForbidden,
		apiErr.HTTPStatusCode == http.StatusNotFound:
		return llm.NewInvalidRequestError(
			fmt.Sprintf("%s: request rejected (HTTP %d): %s", c.provider, apiErr.HTTPStatusCode, apiErr.Message),
			apiErr.HTTPStatusCode, err)

	default:
		return llm.NewProviderError(
			fmt.Sprintf("%s: API error (HTTP %d)", c.provider, apiErr.HTTPStatusCode),
			apiErr.HTTPStatusCode, false, err)
	}
}

var _ llm.Client = (*Client)(nil)
