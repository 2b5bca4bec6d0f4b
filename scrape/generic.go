package scrape

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Cap generic page reads. Job postings are small; anything larger is
// noise from a JS-heavy page.
const maxGenericBody = 2 << 20

// scrapeGeneric fetches an arbitrary posting URL and extracts what it
// can from JSON-LD structured data, Open Graph tags, and page text. It
// never returns an error: an unreachable page yields an empty Job
// tagged "unavailable" so the pipeline can decide how to proceed.
func (c *Client) scrapeGeneric(ctx context.Context, pageURL string) *Job {
	job := &Job{URL: pageURL, Source: "unavailable", Questions: []string{}}

	resp, err := c.get(ctx, pageURL)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", pageURL).Msg("generic fetch failed")
		return job
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		c.logger.Warn().Int("status", resp.StatusCode).Str("url", pageURL).Msg("generic fetch failed")
		return job
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxGenericBody))
	if err != nil {
		c.logger.Warn().Err(err).Str("url", pageURL).Msg("parsing page HTML failed")
		return job
	}
	job.Source = "html"

	// Strategy 1: JSON-LD JobPosting blocks, the most reliable when present.
	for _, raw := range scriptContents(doc, "application/ld+json") {
		if posting := parseJobPostingLD(raw); posting != nil {
			if job.Title == "" {
				job.Title = posting.title
			}
			if job.Company == "" {
				job.Company = posting.company
			}
			if job.Description == "" {
				job.Description = posting.description
			}
		}
	}

	// Strategy 2: Open Graph meta tags.
	if job.Title == "" {
		job.Title = metaContent(doc, "og:title")
	}
	if job.Company == "" {
		job.Company = metaContent(doc, "og:site_name")
	}

	// Strategy 3: first h1, then full page text.
	if job.Title == "" {
		job.Title = firstElementText(doc, "h1")
	}
	if job.Description == "" {
		job.Description = nodeText(doc)
	}

	// Last resort: derive company from the hostname.
	if job.Company == "" {
		if u, err := url.Parse(pageURL); err == nil && u.Hostname() != "" {
			job.Company = titleFromSlug(strings.Split(u.Hostname(), ".")[0])
		}
	}

	return job
}

type jobPostingLD struct {
	title, company, description string
}

func parseJobPostingLD(raw string) *jobPostingLD {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		// Some sites wrap JSON-LD in an array.
		var list []map[string]any
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil
		}
		for _, item := range list {
			if t, _ := item["@type"].(string); t == "JobPosting" {
				data = item
				break
			}
		}
	}
	if t, _ := data["@type"].(string); t != "JobPosting" {
		return nil
	}

	posting := &jobPostingLD{}
	posting.title, _ = data["title"].(string)
	if org, ok := data["hiringOrganization"].(map[string]any); ok {
		posting.company, _ = org["name"].(string)
	}
	desc, _ := data["description"].(string)
	if strings.Contains(desc, "<") {
		desc = htmlToText(desc)
	}
	posting.description = desc
	return posting
}

// --- x/net/html helpers ---

var skipTags = map[string]bool{
	"script": true, "style": true, "nav": true,
	"footer": true, "header": true, "aside": true,
}

// htmlToText strips tags from an HTML fragment and joins text nodes
// with newlines. Board APIs HTML-escape their content, so entities are
// resolved first.
func htmlToText(fragment string) string {
	if strings.Contains(fragment, "&lt;") {
		fragment = html.UnescapeString(fragment)
	}
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return nodeText(doc)
}

// nodeText collects trimmed text under n, skipping chrome tags.
func nodeText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && skipTags[node.Data] {
			return
		}
		if node.Type == html.TextNode {
			if t := strings.TrimSpace(node.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(parts, "\n")
}

// metaContent returns the content of a <meta property=...> tag.
func metaContent(doc *html.Node, property string) string {
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			var prop, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "property", "name":
					prop = attr.Val
				case "content":
					content = attr.Val
				}
			}
			if prop == property && content != "" {
				found = content
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return found
}

// firstElementText returns the text of the first element with the given tag.
func firstElementText(doc *html.Node, tag string) string {
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == tag {
			found = strings.TrimSpace(nodeText(n))
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return found
}

// scriptContents returns the raw contents of <script type=...> blocks.
func scriptContents(doc *html.Node, scriptType string) []string {
	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			for _, attr := range n.Attr {
				if attr.Key == "type" && attr.Val == scriptType {
					if n.FirstChild != nil {
						blocks = append(blocks, n.FirstChild.Data)
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return blocks
}
