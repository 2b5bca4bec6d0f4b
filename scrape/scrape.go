// Package scrape fetches job postings from ATS job boards. Greenhouse
// and Lever expose public JSON APIs and are handled natively; everything
// else goes through a best-effort generic HTML fetch that never fails
// the pipeline.
package scrape

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog"
)

const fetchTimeout = 15 * time.Second

// Browser-like UA. Some boards reject the default Go user agent.
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var (
	// boards.greenhouse.io/{board}/jobs/{id} or job-boards.eu.greenhouse.io/{board}/jobs/{id}
	greenhousePattern = regexp.MustCompile(`(?:boards|job-boards\.eu)\.greenhouse\.io/([\w-]+)/jobs/(\d+)`)
	// jobs.lever.co/{company}/{posting-id}
	leverPattern = regexp.MustCompile(`jobs\.lever\.co/([\w-]+)/([\w-]+)`)
)

// Job is a scraped job posting. Source records which path produced it:
// "greenhouse_api", "lever_api", "html", or "unavailable" when nothing
// could be fetched.
type Job struct {
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Source      string   `json:"source"`
	Questions   []string `json:"questions"`
}

// Client scrapes job postings and researches companies.
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a scrape client with bounded request timeouts.
func NewClient(logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: fetchTimeout},
		logger:     logger.With().Str("component", "scrape").Logger(),
	}
}

// Scrape fetches a job posting. Board APIs are tried first when the URL
// matches a known ATS pattern; API failures fall back to the generic
// HTML path rather than aborting.
func (c *Client) Scrape(ctx context.Context, url string) (*Job, error) {
	if m := greenhousePattern.FindStringSubmatch(url); m != nil {
		c.logger.Debug().Str("board", m[1]).Str("job_id", m[2]).Msg("greenhouse detected, using API")
		job, err := c.scrapeGreenhouse(ctx, m[1], m[2])
		if err == nil {
			return job, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn().Err(err).Msg("greenhouse API failed, falling back to HTML")
	}

	if m := leverPattern.FindStringSubmatch(url); m != nil {
		c.logger.Debug().Str("company", m[1]).Str("posting_id", m[2]).Msg("lever detected, using API")
		job, err := c.scrapeLever(ctx, m[1], m[2])
		if err == nil {
			return job, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn().Err(err).Msg("lever API failed, falling back to HTML")
	}

	return c.scrapeGeneric(ctx, url), nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return c.httpClient.Do(req)
}
