package scrape

import (
	"context"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Bound research text so prompts stay a predictable size.
const maxResearchChars = 3000

// ResearchCompany fetches the company website and returns a text digest
// for prompt context. Research is best-effort: any failure returns "",
// never an error, and the caller proceeds without it.
func (c *Client) ResearchCompany(ctx context.Context, companyName, companyURL string) string {
	if companyURL == "" {
		c.logger.Debug().Str("company", companyName).Msg("no company URL, skipping research")
		return ""
	}
	c.logger.Debug().Str("company", companyName).Str("url", companyURL).Msg("researching company")

	resp, err := c.get(ctx, companyURL)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", companyURL).Msg("company fetch failed")
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		c.logger.Warn().Int("status", resp.StatusCode).Str("url", companyURL).Msg("company fetch failed")
		return ""
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxGenericBody))
	if err != nil {
		return ""
	}

	var parts []string
	if meta := metaContent(doc, "description"); meta != "" {
		parts = append(parts, "About: "+meta)
	}
	if og := metaContent(doc, "og:description"); og != "" && !contains(parts, og) {
		parts = append(parts, "Description: "+og)
	}
	if body := nodeText(doc); body != "" {
		parts = append(parts, body)
	}

	text := strings.Join(parts, "\n\n")
	if len(text) > maxResearchChars {
		text = text[:maxResearchChars]
	}
	return text
}

func contains(parts []string, substr string) bool {
	for _, p := range parts {
		if strings.Contains(p, substr) {
			return true
		}
	}
	return false
}
