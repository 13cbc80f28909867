package scraper

import (
	"log/slog"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/rolecall/internal/filter"
	"github.com/amishk599/rolecall/internal/model"
	"github.com/amishk599/rolecall/internal/normalize"
)

var sccJobIDRe = regexp.MustCompile(`/jobs/(\d+)`)

// NewSCCCareers returns the Sunshine Coast Council careers scraper.
// The site has no keyword search, so every listing is fetched and
// post-filtered against the profile keywords.
func NewSCCCareers(opts Options, logger *slog.Logger) *Site {
	return newSite(siteDef{
		board:       "scc-careers",
		name:        "SCC Careers",
		baseURL:     "https://careers.sunshinecoast.qld.gov.au",
		maxRequests: 50,
		searchURL: func(base string, _ SearchParams) string {
			return base + "/jobs"
		},
		links: func(doc *goquery.Document) []string {
			return hrefs(doc, `a[href*="/jobs/"], .job-listing a, .vacancy a`)
		},
		next: func(doc *goquery.Document) string {
			return attr(doc, `a[rel="next"], .pagination a.next`)
		},
		extract: extractSCCCareers,
	}, opts, logger)
}

func extractSCCCareers(doc *goquery.Document, pageURL string, p SearchParams) (model.RawListing, bool) {
	title := firstText(doc, "h1, .job-title")
	if title == "" {
		return model.RawListing{}, false
	}

	l := model.RawListing{
		ExternalID:     firstNonEmpty(submatch(sccJobIDRe, pageURL), lastPathSegment(pageURL), pageURL),
		Title:          title,
		Company:        "Sunshine Coast Council",
		Description:    allText(doc, ".job-description, .job-content, .job-detail__content"),
		LocationRaw:    firstNonEmpty(firstText(doc, `.job-location, [class*="location"]`), "Sunshine Coast, QLD"),
		EmploymentType: firstText(doc, `.job-type, [class*="employment"], [class*="work-type"]`),
		Category:       "Local Government",
	}
	if !filter.NewKeywordFilter(p.Keywords).Match(l) {
		return model.RawListing{}, false
	}
	normalize.ParseSalary(firstText(doc, `.job-salary, [class*="salary"], [class*="classification"]`)).Apply(&l)
	return l, true
}
