package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Overridable in tests.
var greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

type greenhouseJob struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	AbsoluteURL string `json:"absolute_url"`
	CompanyName string `json:"company_name"`
	Company     struct {
		Name string `json:"name"`
	} `json:"company"`
	Questions []struct {
		Label string `json:"label"`
	} `json:"questions"`
}

// scrapeGreenhouse reads the Greenhouse public boards API, which returns
// structured JSON including application questions.
// Docs: https://developers.greenhouse.io/job-board.html
func (c *Client) scrapeGreenhouse(ctx context.Context, board, jobID string) (*Job, error) {
	url := fmt.Sprintf("%s/%s/jobs/%s?questions=true", greenhouseBaseURL, board, jobID)
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("greenhouse API returned status %d", resp.StatusCode)
	}

	var data greenhouseJob
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding greenhouse response: %w", err)
	}

	questions := make([]string, 0, len(data.Questions))
	for _, q := range data.Questions {
		if q.Label != "" {
			questions = append(questions, q.Label)
		}
	}

	// Company can be nested, flat, or absent. The board slug usually
	// matches the company name, so it serves as the last fallback.
	company := data.Company.Name
	if company == "" {
		company = data.CompanyName
	}
	if company == "" {
		company = titleFromSlug(board)
	}

	return &Job{
		Title:       data.Title,
		Company:     company,
		Description: htmlToText(data.Content),
		URL:         data.AbsoluteURL,
		Source:      "greenhouse_api",
		Questions:   questions,
	}, nil
}

// titleFromSlug turns "acme-corp" into "Acme Corp".
func titleFromSlug(slug string) string {
	words := strings.Split(strings.ReplaceAll(slug, "-", " "), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
