package scraper

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// firstText returns the trimmed text of the first element matching sel.
func firstText(doc *goquery.Document, sel string) string {
	return cleanText(doc.Find(sel).First().Text())
}

// allText returns the trimmed text of every element matching sel.
func allText(doc *goquery.Document, sel string) string {
	return strings.TrimSpace(doc.Find(sel).Text())
}

// hrefs collects the href of every element matching sel.
func hrefs(doc *goquery.Document, sel string) []string {
	var out []string
	doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && href != "" {
			out = append(out, href)
		}
	})
	return out
}

// cardLinks collects the first matching link inside each card.
func cardLinks(doc *goquery.Document, cardSel, linkSel string) []string {
	var out []string
	doc.Find(cardSel).Each(func(_ int, card *goquery.Selection) {
		if href, ok := card.Find(linkSel).First().Attr("href"); ok && href != "" {
			out = append(out, href)
		}
	})
	return out
}

// attr returns the href of the first element matching sel.
func attr(doc *goquery.Document, sel string) string {
	href, _ := doc.Find(sel).First().Attr("href")
	return href
}

// cleanText collapses whitespace runs into single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolveURL resolves href against the page it was found on.
func resolveURL(page, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	base, err := url.Parse(page)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// escape encodes a search term the way browsers encode a URI component.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// keywordQuery joins profile keywords into a single search phrase.
func keywordQuery(p SearchParams) string {
	return escape(strings.Join(p.Keywords, " "))
}

// submatch returns the first capture group of re in s, or "".
func submatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}

// lastPathSegment returns the final non-empty path element of rawURL.
func lastPathSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return parts[len(parts)-1]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
