package scraper

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/rolecall/internal/model"
	"github.com/amishk599/rolecall/internal/normalize"
)

var seekJobIDRe = regexp.MustCompile(`/job/(\d+)`)

// NewSeek returns the SEEK scraper. SEEK's anti-bot is aggressive: longer
// delays, a smaller request cap, and a proxy whenever one is available.
func NewSeek(opts Options, logger *slog.Logger) *Site {
	return newSite(siteDef{
		board:       "seek",
		name:        "SEEK",
		baseURL:     "https://www.seek.com.au",
		maxRequests: 25,
		delay:       3 * time.Second,
		randomDelay: 5 * time.Second,
		wantsProxy:  true,
		searchURL: func(base string, p SearchParams) string {
			return base + "/" + escape(strings.Join(p.Keywords, " ")) + "-jobs/in-" + escape(p.Location) + "?sortmode=ListedDate"
		},
		links: func(doc *goquery.Document) []string {
			return cardLinks(doc, `article[data-card-type="JobCard"]`, `a[data-automation="jobTitle"]`)
		},
		next: func(doc *goquery.Document) string {
			return attr(doc, `a[data-automation="page-next"]`)
		},
		extract: extractSeek,
	}, opts, logger)
}

func extractSeek(doc *goquery.Document, pageURL string, _ SearchParams) (model.RawListing, bool) {
	title := firstText(doc, `h1[data-automation="job-detail-title"]`)
	if title == "" {
		return model.RawListing{}, false
	}

	l := model.RawListing{
		ExternalID:     firstNonEmpty(submatch(seekJobIDRe, pageURL), pageURL),
		Title:          title,
		Company:        firstText(doc, `[data-automation="advertiser-name"]`),
		LocationRaw:    firstText(doc, `[data-automation="job-detail-location"]`),
		Description:    strings.TrimSpace(doc.Find(`[data-automation="jobAdDetails"]`).First().Text()),
		EmploymentType: firstText(doc, `[data-automation="job-detail-work-type"]`),
	}
	normalize.ParseSalary(firstText(doc, `[data-automation="job-detail-salary"]`)).Apply(&l)
	return l, true
}
