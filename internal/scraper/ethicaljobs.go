package scraper

import (
	"log/slog"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/rolecall/internal/model"
	"github.com/amishk599/rolecall/internal/normalize"
)

var ethicalJobsIDRe = regexp.MustCompile(`/jobs/(\d+)`)

// NewEthicalJobs returns the EthicalJobs scraper for the not-for-profit sector.
func NewEthicalJobs(opts Options, logger *slog.Logger) *Site {
	return newSite(siteDef{
		board:       "ethical-jobs",
		name:        "EthicalJobs",
		baseURL:     "https://www.ethicaljobs.com.au",
		maxRequests: 50,
		searchURL: func(base string, p SearchParams) string {
			return base + "/jobs?keywords=" + keywordQuery(p) + "&location=" + escape(p.Location)
		},
		links: func(doc *goquery.Document) []string {
			var out []string
			for _, h := range hrefs(doc, `a[href*="/jobs/"], .job-listing a, .search-result a`) {
				if ethicalJobsIDRe.MatchString(h) {
					out = append(out, h)
				}
			}
			return out
		},
		next: func(doc *goquery.Document) string {
			return attr(doc, `a[rel="next"], .pagination a.next`)
		},
		extract: extractEthicalJobs,
	}, opts, logger)
}

func extractEthicalJobs(doc *goquery.Document, pageURL string, _ SearchParams) (model.RawListing, bool) {
	title := firstText(doc, "h1")
	if title == "" {
		return model.RawListing{}, false
	}

	l := model.RawListing{
		ExternalID:     firstNonEmpty(submatch(ethicalJobsIDRe, pageURL), pageURL),
		Title:          title,
		Company:        firstNonEmpty(firstText(doc, ".organisation-name, .employer-name"), "Unknown Organisation"),
		Description:    allText(doc, `.job-description, .job-content, [class*="description"]`),
		LocationRaw:    firstText(doc, `.job-location, [class*="location"]`),
		EmploymentType: firstText(doc, `.job-type, [class*="work-type"]`),
		Category:       "Not-for-profit",
	}
	normalize.ParseSalary(firstText(doc, `.job-salary, [class*="salary"]`)).Apply(&l)
	return l, true
}
