package dedup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/amishk599/rolecall/internal/model"
	"github.com/amishk599/rolecall/internal/store"
)

func newUpserter(t *testing.T) (*Upserter, *store.SQLStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "dedup.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func raw(board, extID, url, title, company, desc string) model.RawListing {
	return model.RawListing{
		SourceBoard: board,
		ExternalID:  extID,
		SourceURL:   url,
		Title:       title,
		Company:     company,
		Description: desc,
	}
}

func TestUpsert_NewListing(t *testing.T) {
	u, _ := newUpserter(t)

	l, isNew, err := u.Upsert(context.Background(), raw("seek", "1", "https://seek/1", "Admin Officer", "Acme", "Answer phones"))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !isNew {
		t.Fatal("expected new listing")
	}
	if l.ID == "" || l.ContentHash == "" {
		t.Errorf("listing missing id or hash: %+v", l)
	}
}

func TestUpsert_CrossBoardFingerprintMatch(t *testing.T) {
	u, _ := newUpserter(t)
	ctx := context.Background()

	first, _, _ := u.Upsert(ctx, raw("seek", "1", "https://seek/1", "Admin Officer", "Acme", "Answer phones"))
	second, isNew, err := u.Upsert(ctx, raw("indeed", "jk9", "https://indeed/jk9", "ADMIN  officer", "acme", "answer   phones"))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if isNew {
		t.Fatal("expected fingerprint match to not be new")
	}
	if second.ID != first.ID {
		t.Errorf("got %s, want existing %s", second.ID, first.ID)
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Error("fingerprint match should leave the row untouched")
	}
}

func TestUpsert_SameBoardRescrapeWithEditedText(t *testing.T) {
	u, _ := newUpserter(t)
	ctx := context.Background()

	first, _, _ := u.Upsert(ctx, raw("seek", "1", "https://seek/1", "Admin Officer", "Acme", "Answer phones"))
	second, isNew, err := u.Upsert(ctx, raw("seek", "1", "https://seek/1", "Admin Officer (updated)", "Acme", "Answer phones"))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if isNew {
		t.Fatal("key conflict should not be new")
	}
	if second.ID != first.ID {
		t.Errorf("got %s, want %s", second.ID, first.ID)
	}
	if second.Title != "Admin Officer" {
		t.Errorf("title overwritten: %q", second.Title)
	}
}

func TestUpsert_DistinctListings(t *testing.T) {
	u, _ := newUpserter(t)
	ctx := context.Background()

	_, a, _ := u.Upsert(ctx, raw("seek", "1", "https://seek/1", "Admin Officer", "Acme", "x"))
	_, b, _ := u.Upsert(ctx, raw("seek", "2", "https://seek/2", "Receptionist", "Acme", "y"))
	if !a || !b {
		t.Fatalf("expected both new, got %v %v", a, b)
	}
}

type failingStore struct {
	model.ListingStore
}

func (failingStore) ListingByContentHash(context.Context, string) (model.JobListing, error) {
	return model.JobListing{}, errors.New("db down")
}

func TestUpsert_LookupErrorPropagates(t *testing.T) {
	u := New(failingStore{})
	if _, _, err := u.Upsert(context.Background(), raw("seek", "1", "u", "t", "c", "d")); err == nil {
		t.Fatal("expected error")
	}
}
