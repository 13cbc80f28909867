// Package dedup collapses listings seen on several boards, or seen again on
// the same board, into a single stored row.
package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/amishk599/rolecall/internal/model"
	"github.com/amishk599/rolecall/internal/normalize"
)

// Upserter stores raw listings and reports which ones are new.
type Upserter struct {
	store model.ListingStore
}

// New returns an Upserter over store.
func New(store model.ListingStore) *Upserter {
	return &Upserter{store: store}
}

// Upsert stores raw and reports whether it created a new listing.
//
// A content-hash match on any board returns the existing row untouched.
// Otherwise the listing is inserted keyed by (board, external id) and source
// URL; a key conflict touches updated_at on the existing row. Only an actual
// insert returns isNew=true.
func (u *Upserter) Upsert(ctx context.Context, raw model.RawListing) (model.JobListing, bool, error) {
	hash := normalize.ContentHash(raw.Title, raw.Company, raw.Description)

	existing, err := u.store.ListingByContentHash(ctx, hash)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.JobListing{}, false, fmt.Errorf("checking fingerprint: %w", err)
	}

	stored, inserted, err := u.store.InsertListing(ctx, model.JobListing{RawListing: raw, ContentHash: hash})
	if err != nil {
		return model.JobListing{}, false, fmt.Errorf("upserting listing: %w", err)
	}
	return stored, inserted, nil
}
