package store

import (
	"context"
	"fmt"
	"strings"
)

// Open picks a backend from the DATABASE_URL scheme:
// postgres:// and postgresql:// use Postgres, sqlite://<path> and file: use SQLite.
func Open(ctx context.Context, databaseURL string) (*SQLStore, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewPostgresStore(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return NewSQLiteStore(strings.TrimPrefix(databaseURL, "sqlite://"))
	case strings.HasPrefix(databaseURL, "file:"):
		return NewSQLiteStore(databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database_url %q: want postgres://, sqlite:// or file:", redact(databaseURL))
	}
}

// redact hides credentials in a connection string before it reaches a log line.
func redact(u string) string {
	at := strings.LastIndex(u, "@")
	scheme := strings.Index(u, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return u
	}
	return u[:scheme+3] + "***" + u[at:]
}
