package filter

import (
	"testing"

	"github.com/amishk599/rolecall/internal/model"
)

func listing(title, description string) model.RawListing {
	return model.RawListing{Title: title, Description: description}
}

func TestKeywordFilter_Match(t *testing.T) {
	tests := []struct {
		name      string
		keywords  []string
		listing   model.RawListing
		wantMatch bool
	}{
		{
			name:      "title match",
			keywords:  []string{"administration", "receptionist"},
			listing:   listing("Administration Officer", "Council offices"),
			wantMatch: true,
		},
		{
			name:      "description match",
			keywords:  []string{"customer service"},
			listing:   listing("Team Member", "Deliver excellent customer service at our libraries"),
			wantMatch: true,
		},
		{
			name:      "case insensitive",
			keywords:  []string{"LIBRARY"},
			listing:   listing("Library Assistant", ""),
			wantMatch: true,
		},
		{
			name:      "no keyword present",
			keywords:  []string{"engineer"},
			listing:   listing("Lifeguard", "Aquatic centre role"),
			wantMatch: false,
		},
		{
			name:      "empty keywords pass all",
			keywords:  nil,
			listing:   listing("Anything", ""),
			wantMatch: true,
		},
		{
			name:      "blank keywords are ignored",
			keywords:  []string{"  ", ""},
			listing:   listing("Anything", ""),
			wantMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewKeywordFilter(tt.keywords)
			if got := f.Match(tt.listing); got != tt.wantMatch {
				t.Errorf("Match() = %v, want %v", got, tt.wantMatch)
			}
		})
	}
}
