// Package gemini implements the llm adapter for Google's Generative Language
// API. There is no official Go SDK dependency here; the REST surface is small
// enough to call directly.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mlopez/jobquest/llm"
	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// Generation latency dominates, so the overall deadline is much longer
	// than the dial timeout.
	connectTimeout = 10 * time.Second
	requestTimeout = 180 * time.Second

	maxOutputTokens = 16384
)

// Client calls the Gemini generateContent endpoint. It implements
// llm.ModelCaller: model selection stays with the ModelLadder that wraps it.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a Gemini client. Fails at construction when the API key is
// absent so a misconfigured provider surfaces before the first pipeline step.
func New(apiKey string, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, llm.NewConfigError(
			"GEMINI_API_KEY not set; add it to the environment or the gemini.api_key config field")
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		logger: logger.With().Str("component", "gemini").Logger(),
	}, nil
}

// ProviderName implements llm.ModelCaller.
func (c *Client) ProviderName() string { return llm.ProviderGemini }

type generateRequest struct {
	SystemInstruction *content         `json:"system_instruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// GenerateModel implements llm.ModelCaller.
func (c *Client) GenerateModel(ctx context.Context, model string, req *llm.Request) (*llm.Result, error) {
	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.User}}}},
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: maxOutputTokens,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, llm.NewInvalidRequestError("gemini: failed to encode request", 0, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, llm.NewInvalidRequestError("gemini: failed to build request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, llm.NewNetworkError("gemini: failed to read response body", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyStatus(model, resp, string(respBody))
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, llm.NewInvalidResponseError("gemini: response is not valid JSON", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, llm.NewInvalidResponseError(
			fmt.Sprintf("gemini: response has no candidates (model %s)", model), nil)
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}

	return &llm.Result{
		Text:     sb.String(),
		Provider: llm.ProviderGemini + "/" + model,
	}, nil
}

// classifyStatus maps a non-2xx response to a structured llm error.
func (c *Client) classifyStatus(model string, resp *http.Response, body string) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if llm.LooksLikeDailyQuota(body) {
			return llm.NewDailyQuotaError(
				fmt.Sprintf("gemini %s: daily quota exhausted", model), errors.New(snippet(body)))
		}
		hint := llm.ParseRetryHint(body)
		if hint == nil {
			hint = llm.ParseRetryHint("retry-after: " + resp.Header.Get("Retry-After"))
		}
		return llm.NewRateLimitError(
			fmt.Sprintf("gemini %s: rate limited", model), hint, errors.New(snippet(body)))

	case resp.StatusCode >= 500:
		return llm.NewProviderError(
			fmt.Sprintf("gemini %s: server error (HTTP %d)", model, resp.StatusCode),
			resp.StatusCode, true, errors.New(snippet(body)))

	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return llm.NewInvalidRequestError(
			fmt.Sprintf("gemini %s: request rejected (HTTP %d)", model, resp.StatusCode),
			resp.StatusCode, errors.New(snippet(body)))

	default:
		return llm.NewProviderError(
			fmt.Sprintf("gemini %s: unexpected status (HTTP %d)", model, resp.StatusCode),
			resp.StatusCode, false, errors.New(snippet(body)))
	}
}

func classifyTransportError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return llm.NewTimeoutError("gemini: request timed out", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return llm.NewNetworkError("gemini: request failed", err)
}

func snippet(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 300 {
		return body[:300] + "…"
	}
	return body
}
