package notion

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Recursion guard for nested blocks.
const maxBlockDepth = 5

// PageText reads a page's full block tree and renders it as plain text
// with markdown-style headings and bullets. Used to pull the master
// resume out of Notion.
func (c *Client) PageText(ctx context.Context, pageID string) (string, error) {
	c.logger.Debug().Str("page_id", pageID).Msg("reading page")
	blocks, err := c.fetchBlocks(ctx, pageID, 0)
	if err != nil {
		return "", err
	}
	return renderBlocks(blocks, 0), nil
}

// textBlock is a flattened block with its rendered text and children.
type textBlock struct {
	Type     string
	Text     string
	Checked  bool
	Title    string
	Children []textBlock
}

func (c *Client) fetchBlocks(ctx context.Context, blockID string, depth int) ([]textBlock, error) {
	if depth > maxBlockDepth {
		return nil, nil
	}

	var blocks []textBlock
	cursor := ""
	for {
		path := fmt.Sprintf("/blocks/%s/children?page_size=100", blockID)
		if cursor != "" {
			path += "&start_cursor=" + url.QueryEscape(cursor)
		}

		var page struct {
			Results []struct {
				ID          string         `json:"id"`
				Type        string         `json:"type"`
				HasChildren bool           `json:"has_children"`
				Paragraph   *blockContent  `json:"paragraph"`
				Heading1    *blockContent  `json:"heading_1"`
				Heading2    *blockContent  `json:"heading_2"`
				Heading3    *blockContent  `json:"heading_3"`
				Bulleted    *blockContent  `json:"bulleted_list_item"`
				Numbered    *blockContent  `json:"numbered_list_item"`
				ToDo        *todoContent   `json:"to_do"`
				ChildPage   *childMetadata `json:"child_page"`
			} `json:"results"`
			HasMore    bool   `json:"has_more"`
			NextCursor string `json:"next_cursor"`
		}
		if err := c.do(ctx, "GET", path, nil, &page); err != nil {
			return nil, err
		}

		for _, b := range page.Results {
			tb := textBlock{Type: b.Type}
			switch {
			case b.Paragraph != nil:
				tb.Text = b.Paragraph.RichText.String()
			case b.Heading1 != nil:
				tb.Text = b.Heading1.RichText.String()
			case b.Heading2 != nil:
				tb.Text = b.Heading2.RichText.String()
			case b.Heading3 != nil:
				tb.Text = b.Heading3.RichText.String()
			case b.Bulleted != nil:
				tb.Text = b.Bulleted.RichText.String()
			case b.Numbered != nil:
				tb.Text = b.Numbered.RichText.String()
			case b.ToDo != nil:
				tb.Text = b.ToDo.RichText.String()
				tb.Checked = b.ToDo.Checked
			case b.ChildPage != nil:
				tb.Title = b.ChildPage.Title
			}
			if b.HasChildren {
				children, err := c.fetchBlocks(ctx, b.ID, depth+1)
				if err != nil {
					return nil, err
				}
				tb.Children = children
			}
			blocks = append(blocks, tb)
		}

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	return blocks, nil
}

type blockContent struct {
	RichText richText `json:"rich_text"`
}

type todoContent struct {
	RichText richText `json:"rich_text"`
	Checked  bool     `json:"checked"`
}

type childMetadata struct {
	Title string `json:"title"`
}

func renderBlocks(blocks []textBlock, indent int) string {
	var lines []string
	prefix := strings.Repeat("  ", indent)
	for _, b := range blocks {
		switch b.Type {
		case "heading_1":
			lines = append(lines, "\n"+prefix+"# "+b.Text)
		case "heading_2":
			lines = append(lines, "\n"+prefix+"## "+b.Text)
		case "heading_3":
			lines = append(lines, prefix+"### "+b.Text)
		case "bulleted_list_item":
			lines = append(lines, prefix+"- "+b.Text)
		case "numbered_list_item":
			lines = append(lines, prefix+"1. "+b.Text)
		case "to_do":
			check := " "
			if b.Checked {
				check = "x"
			}
			lines = append(lines, prefix+"- ["+check+"] "+b.Text)
		case "child_page":
			lines = append(lines, prefix+"[Page: "+b.Title+"]")
		case "divider":
			lines = append(lines, prefix+"---")
		default:
			if b.Text != "" {
				lines = append(lines, prefix+b.Text)
			}
		}
		if len(b.Children) > 0 {
			lines = append(lines, renderBlocks(b.Children, indent+1))
		}
	}
	return strings.Join(lines, "\n")
}
