package filter

import (
	"strings"

	"github.com/amishk599/rolecall/internal/model"
)

// KeywordFilter matches listings whose title or description contains any of
// the keywords. Matching is case-insensitive. An empty keyword list matches all.
// Boards whose search URL cannot carry keywords use it to post-filter.
type KeywordFilter struct {
	keywords []string
}

// NewKeywordFilter returns a filter over the given keywords.
func NewKeywordFilter(keywords []string) *KeywordFilter {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &KeywordFilter{keywords: lowered}
}

// Match reports whether the listing mentions any keyword.
func (f *KeywordFilter) Match(l model.RawListing) bool {
	if len(f.keywords) == 0 {
		return true
	}

	titleLower := strings.ToLower(l.Title)
	descLower := strings.ToLower(l.Description)
	for _, kw := range f.keywords {
		if strings.Contains(titleLower, kw) || strings.Contains(descLower, kw) {
			return true
		}
	}
	return false
}
