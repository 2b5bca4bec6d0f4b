// Package notion is a small REST client for the Notion API, covering
// only what the pipeline needs: reading page text, reading database
// entries, and creating application tracking records.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mlopez/jobquest/llm"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
	requestTimeout = 60 * time.Second
)

// Client talks to the Notion REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a Notion client. The integration token is required.
func New(token string, logger zerolog.Logger) (*Client, error) {
	if token == "" {
		return nil, llm.NewConfigError("notion token not set (set NOTION_TOKEN)")
	}
	return &Client{
		baseURL:    defaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With().Str("component", "notion").Logger(),
	}, nil
}

// do issues an API request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding notion request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating notion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notion request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("reading notion response: %w", err)
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("notion API returned status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decoding notion response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// richText is the Notion rich_text array, flattened on read.
type richText []struct {
	PlainText string `json:"plain_text"`
}

func (rt richText) String() string {
	var out string
	for _, t := range rt {
		out += t.PlainText
	}
	return out
}
