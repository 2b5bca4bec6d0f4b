package notion

import (
	"context"
	"time"
)

// Notion rejects rich_text content over 2000 characters per block.
const maxTextBlock = 2000

// ApplicationRecord is one tracked application.
type ApplicationRecord struct {
	JobTitle string
	Company  string
	URL      string
	Status   string
	Variant  string
	QAText   string
}

// CreateApplication creates a row in the applications database and
// returns the new page ID and URL. Q&A text, when present, is appended
// as paragraph blocks under the page.
func (c *Client) CreateApplication(ctx context.Context, databaseID string, rec ApplicationRecord) (pageID, pageURL string, err error) {
	status := rec.Status
	if status == "" {
		status = "Applied"
	}

	properties := map[string]any{
		"Company": map[string]any{
			"title": []any{textContent(rec.Company)},
		},
		"Status": map[string]any{
			"select": map[string]string{"name": status},
		},
		"Job Title": map[string]any{
			"select": map[string]string{"name": rec.JobTitle},
		},
		"URL": map[string]any{
			"url": rec.URL,
		},
		"Date applied": map[string]any{
			"date": map[string]string{"start": time.Now().Format("2006-01-02")},
		},
	}
	if rec.Variant != "" {
		properties["Resume Variant"] = map[string]any{
			"select": map[string]string{"name": rec.Variant},
		}
	}

	body := map[string]any{
		"parent":     map[string]string{"database_id": databaseID},
		"properties": properties,
	}
	if rec.QAText != "" {
		body["children"] = paragraphBlocks(rec.QAText)
	}

	var created struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := c.do(ctx, "POST", "/pages", body, &created); err != nil {
		return "", "", err
	}
	c.logger.Info().Str("page_id", created.ID).Str("company", rec.Company).Msg("created application entry")
	return created.ID, created.URL, nil
}

func textContent(s string) map[string]any {
	return map[string]any{"text": map[string]string{"content": s}}
}

// paragraphBlocks splits text into paragraph blocks under the API's
// per-block size limit.
func paragraphBlocks(text string) []any {
	var blocks []any
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxTextBlock {
			chunk = chunk[:maxTextBlock]
		}
		text = text[len(chunk):]
		blocks = append(blocks, map[string]any{
			"object": "block",
			"type":   "paragraph",
			"paragraph": map[string]any{
				"rich_text": []any{textContent(chunk)},
			},
		})
	}
	return blocks
}
