package scraper

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/rolecall/internal/model"
	"github.com/amishk599/rolecall/internal/normalize"
)

var smartJobsRefRe = regexp.MustCompile(`QLD-(\d+)`)

// NewSmartJobs returns the SmartJobs QLD scraper. Plain government HTML, no anti-bot.
func NewSmartJobs(opts Options, logger *slog.Logger) *Site {
	return newSite(siteDef{
		board:       "smartjobs",
		name:        "SmartJobs QLD",
		baseURL:     "https://smartjobs.qld.gov.au",
		maxRequests: 50,
		searchURL: func(base string, p SearchParams) string {
			return base + "/jobs/search?query=" + keywordQuery(p) + "&location=" + escape(p.Location)
		},
		links: func(doc *goquery.Document) []string {
			var out []string
			for _, h := range hrefs(doc, `a[href*="/jobs/QLD-"], .search-result__item a`) {
				if strings.Contains(h, "/jobs/") {
					out = append(out, h)
				}
			}
			return out
		},
		next: func(doc *goquery.Document) string {
			return attr(doc, `a[rel="next"], .pagination__next a`)
		},
		extract: extractSmartJobs,
	}, opts, logger)
}

func extractSmartJobs(doc *goquery.Document, pageURL string, _ SearchParams) (model.RawListing, bool) {
	title := firstText(doc, "h1")
	if title == "" {
		return model.RawListing{}, false
	}

	details := doc.Find(".job-detail__info, .job-details")
	field := func(name string) string {
		return cleanText(details.Find(`[data-field="` + name + `"]`).Text())
	}

	location := field("location")
	if location == "" {
		location, _ = doc.Find(`meta[name="location"]`).Attr("content")
	}

	l := model.RawListing{
		ExternalID:     firstNonEmpty(submatch(smartJobsRefRe, pageURL), pageURL),
		Title:          title,
		Company:        firstNonEmpty(field("department"), "Queensland Government"),
		Description:    allText(doc, ".job-detail__content, .job-description"),
		LocationRaw:    strings.TrimSpace(location),
		EmploymentType: field("position-type"),
		Category:       "Government",
	}
	normalize.ParseSalary(field("salary")).Apply(&l)
	return l, true
}
