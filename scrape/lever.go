package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Overridable in tests.
var leverBaseURL = "https://api.lever.co/v0/postings"

type leverPosting struct {
	Text        string `json:"text"`
	Description string `json:"description"`
	Additional  string `json:"additional"`
	HostedURL   string `json:"hostedUrl"`
	Lists       []struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	} `json:"lists"`
}

// scrapeLever reads the Lever public postings API (v0), no auth required.
// Docs: https://github.com/lever/postings-api
func (c *Client) scrapeLever(ctx context.Context, company, postingID string) (*Job, error) {
	url := fmt.Sprintf("%s/%s/%s?mode=json", leverBaseURL, company, postingID)
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("lever API returned status %d", resp.StatusCode)
	}

	var data leverPosting
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding lever response: %w", err)
	}

	var desc strings.Builder
	desc.WriteString(htmlToText(data.Description + "\n" + data.Additional))
	for _, section := range data.Lists {
		desc.WriteString("\n\n" + section.Text + ":\n")
		desc.WriteString(htmlToText(section.Content))
	}

	hosted := data.HostedURL
	if hosted == "" {
		hosted = fmt.Sprintf("https://jobs.lever.co/%s/%s", company, postingID)
	}

	return &Job{
		Title:       data.Text,
		Company:     titleFromSlug(company),
		Description: desc.String(),
		URL:         hosted,
		Source:      "lever_api",
		// Lever does not expose application questions in the public API.
		Questions: []string{},
	}, nil
}
