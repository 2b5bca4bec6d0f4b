package notion

import (
	"context"
	"fmt"
	"strings"
)

// Entry is a database row with its properties flattened to strings.
type Entry struct {
	ID         string
	Properties map[string]string
}

// DatabaseEntries queries all rows of a database, following pagination.
// Title, rich_text, select, multi_select, and url properties are
// flattened to plain strings; other types are dropped.
func (c *Client) DatabaseEntries(ctx context.Context, databaseID string) ([]Entry, error) {
	c.logger.Debug().Str("database_id", databaseID).Msg("reading database")

	var entries []Entry
	cursor := ""
	for {
		body := map[string]any{"page_size": 100}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		var page struct {
			Results []struct {
				ID         string                  `json:"id"`
				Properties map[string]propertyType `json:"properties"`
			} `json:"results"`
			HasMore    bool   `json:"has_more"`
			NextCursor string `json:"next_cursor"`
		}
		path := fmt.Sprintf("/databases/%s/query", databaseID)
		if err := c.do(ctx, "POST", path, body, &page); err != nil {
			return nil, err
		}

		for _, row := range page.Results {
			entry := Entry{ID: row.ID, Properties: map[string]string{}}
			for name, prop := range row.Properties {
				if v := prop.flatten(); v != "" {
					entry.Properties[name] = v
				}
			}
			entries = append(entries, entry)
		}

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	return entries, nil
}

type propertyType struct {
	Type        string   `json:"type"`
	Title       richText `json:"title"`
	RichText    richText `json:"rich_text"`
	URL         string   `json:"url"`
	Select      *struct{ Name string } `json:"select"`
	MultiSelect []struct{ Name string } `json:"multi_select"`
}

func (p propertyType) flatten() string {
	switch p.Type {
	case "title":
		return p.Title.String()
	case "rich_text":
		return p.RichText.String()
	case "select":
		if p.Select != nil {
			return p.Select.Name
		}
	case "multi_select":
		names := make([]string, 0, len(p.MultiSelect))
		for _, s := range p.MultiSelect {
			names = append(names, s.Name)
		}
		return strings.Join(names, ", ")
	case "url":
		return p.URL
	}
	return ""
}

// SkillsInventory reads the skills database and formats it as a text
// list for prompt context. Each line is "Name | Category | Proficiency
// | Priority: X".
func (c *Client) SkillsInventory(ctx context.Context, databaseID string) (string, error) {
	entries, err := c.DatabaseEntries(ctx, databaseID)
	if err != nil {
		return "", err
	}
	var lines []string
	for _, e := range entries {
		name := e.Properties["Name"]
		if name == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s | %s | %s | Priority: %s",
			name, e.Properties["Category"], e.Properties["Proficiency"], e.Properties["ATS Priority"]))
	}
	return strings.Join(lines, "\n"), nil
}

// QATemplates reads the Q&A templates database and formats each row as
// a "[Category] question" block with its template answer and notes.
func (c *Client) QATemplates(ctx context.Context, databaseID string) (string, error) {
	entries, err := c.DatabaseEntries(ctx, databaseID)
	if err != nil {
		return "", err
	}
	var blocks []string
	for _, e := range entries {
		question := e.Properties["Name"]
		if question == "" {
			continue
		}
		block := fmt.Sprintf("**[%s]** %s", e.Properties["Category"], question)
		if t := e.Properties["Template Answer"]; t != "" {
			block += "\n" + t
		}
		if n := e.Properties["Notes"]; n != "" {
			block += "\n*Notes: " + n + "*"
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n"), nil
}
