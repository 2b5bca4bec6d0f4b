// Package anthropic implements the llm adapter for Anthropic's Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mlopez/jobquest/llm"
	"github.com/rs/zerolog"
)

const (
	connectTimeout = 10 * time.Second
	requestTimeout = 180 * time.Second

	maxTokens = 8192
)

// Client implements llm.Client for Anthropic.
type Client struct {
	client *anthropic.Client
	model  string
	logger zerolog.Logger
}

// New creates an Anthropic client. Fails at construction when the API key is
// absent.
func New(apiKey, model string, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, llm.NewConfigError(
			"ANTHROPIC_API_KEY not set; add it to the environment or the anthropic.api_key config field")
	}
	if model == "" {
		return nil, llm.NewConfigError("no default model configured for provider \"anthropic\"")
	}

	httpClient := &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
		},
	}
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0), // retry policy lives in the llm.Retrier
	)

	return &Client{
		client: &client,
		model:  model,
		logger: logger.With().Str("component", "anthropic").Logger(),
	}, nil
}

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Result, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, c.convertError(err)
	}

	var sb strings.Builder
	for _, blockUnion := range message.Content {
		if block, ok := blockUnion.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, llm.NewInvalidResponseError("anthropic: response has no text blocks", nil)
	}

	return &llm.Result{
		Text:     sb.String(),
		Provider: c.ModelName(),
	}, nil
}

// ModelName implements llm.Client.
func (c *Client) ModelName() string { return llm.ProviderAnthropic + "/" + c.model }

func (c *Client) convertError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return llm.NewTimeoutError("anthropic: request timed out", err)
		}
		return llm.NewNetworkError("anthropic: request failed", err)
	}

	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		msg := apiErr.Error()
		if llm.LooksLikeDailyQuota(msg) {
			return llm.NewDailyQuotaError(
				fmt.Sprintf("anthropic %s: daily quota exhausted", c.model), err)
		}
		hint := llm.ParseRetryHint(msg)
		if hint == nil && apiErr.Response != nil {
			hint = llm.ParseRetryHint("retry-after: " + apiErr.Response.Header.Get("Retry-After"))
		}
		return llm.NewRateLimitError(
			fmt.Sprintf("anthropic %s: rate limited", c.model), hint, err)

	case apiErr.StatusCode >= 500, apiErr.StatusCode == http.StatusRequestTimeout:
		return llm.NewProviderError(
			fmt.Sprintf("anthropic: server error (HTTP %d)", apiErr.StatusCode),
			apiErr.StatusCode, true, err)

	case apiErr.StatusCode == http.StatusBadRequest,
		apiErr.StatusCode == http.StatusUnauthorized,
		apiErr.StatusCode == http.StatusForbidden,
		apiErr.StatusCode == http.StatusNotFound:
		return llm.NewInvalidRequestError(
			fmt.Sprintf("anthropic: request rejected (HTTP %d)", apiErr.StatusCode),
			apiErr.StatusCode, err)

	default:
		return llm.NewProviderError(
			fmt.Sprintf("anthropic: API error (HTTP %d)", apiErr.StatusCode),
			apiErr.StatusCode, false, err)
	}
}

var _ llm.Client = (*Client)(nil)
