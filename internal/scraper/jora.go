package scraper

import (
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/rolecall/internal/model"
	"github.com/amishk599/rolecall/internal/normalize"
)

var joraIDRe = regexp.MustCompile(`[?&]id=([^&]+)`)

// NewJora returns the Jora AU scraper. Selectors on this aggregator change often.
func NewJora(opts Options, logger *slog.Logger) *Site {
	return newSite(siteDef{
		board:       "jora",
		name:        "Jora",
		baseURL:     "https://au.jora.com",
		maxRequests: 30,
		delay:       2 * time.Second,
		randomDelay: 3 * time.Second,
		wantsProxy:  true,
		searchURL: func(base string, p SearchParams) string {
			return base + "/j?q=" + keywordQuery(p) + "&l=" + escape(p.Location) + "&r=" + strconv.Itoa(p.RadiusKm)
		},
		links: func(doc *goquery.Document) []string {
			return cardLinks(doc, ".result, .job-card", `a[href*="/j?"]`)
		},
		next: func(doc *goquery.Document) string {
			return attr(doc, `a.next, a[rel="next"]`)
		},
		extract: extractJora,
	}, opts, logger)
}

func extractJora(doc *goquery.Document, pageURL string, _ SearchParams) (model.RawListing, bool) {
	title := firstText(doc, "h1")
	if title == "" {
		return model.RawListing{}, false
	}

	l := model.RawListing{
		ExternalID:  firstNonEmpty(submatch(joraIDRe, pageURL), lastPathSegment(pageURL), pageURL),
		Title:       title,
		Company:     firstText(doc, `.company, [data-testid="company-name"]`),
		LocationRaw: firstText(doc, `.location, [data-testid="job-location"]`),
		Description: firstText(doc, ".job-description, .desc"),
	}
	normalize.ParseSalary(firstText(doc, `.salary, [data-testid="job-salary"]`)).Apply(&l)
	return l, true
}
