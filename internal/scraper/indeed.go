package scraper

import (
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/rolecall/internal/model"
	"github.com/amishk599/rolecall/internal/normalize"
)

// NewIndeed returns the Indeed AU scraper. Indeed blocks datacenter traffic,
// so it runs behind the residential proxy when one is configured.
func NewIndeed(opts Options, logger *slog.Logger) *Site {
	return newSite(siteDef{
		board:       "indeed",
		name:        "Indeed AU",
		baseURL:     "https://au.indeed.com",
		maxRequests: 30,
		delay:       2 * time.Second,
		randomDelay: 3 * time.Second,
		wantsProxy:  true,
		searchURL: func(base string, p SearchParams) string {
			return base + "/jobs?q=" + keywordQuery(p) + "&l=" + escape(p.Location) + "&radius=" + strconv.Itoa(p.RadiusKm)
		},
		links: func(doc *goquery.Document) []string {
			return cardLinks(doc, ".job_seen_beacon, [data-jk]", "a[data-jk], h2 a")
		},
		next: func(doc *goquery.Document) string {
			return attr(doc, `a[data-testid="pagination-page-next"]`)
		},
		extract: extractIndeed,
	}, opts, logger)
}

func extractIndeed(doc *goquery.Document, pageURL string, _ SearchParams) (model.RawListing, bool) {
	title := firstText(doc, "h1")
	if title == "" {
		return model.RawListing{}, false
	}

	var jk string
	if u, err := url.Parse(pageURL); err == nil {
		jk = u.Query().Get("jk")
	}

	l := model.RawListing{
		ExternalID:  firstNonEmpty(jk, lastPathSegment(pageURL), pageURL),
		Title:       title,
		Company:     firstText(doc, `[data-testid="inlineHeader-companyName"], .css-1saizt3`),
		LocationRaw: firstText(doc, `[data-testid="inlineHeader-companyLocation"], [data-testid="job-location"]`),
		Description: firstText(doc, "#jobDescriptionText, .jobsearch-jobDescriptionText"),
	}
	normalize.ParseSalary(firstText(doc, `#salaryInfoAndJobType, [data-testid="attribute_snippet_testid"]`)).Apply(&l)
	return l, true
}
