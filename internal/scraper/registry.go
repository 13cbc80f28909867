package scraper

import (
	"log/slog"
	"sort"
)

// Registry maps board ids to scrapers. It is read-only after construction.
type Registry struct {
	scrapers map[string]Scraper
}

// NewRegistry registers the given scrapers under their board ids. A later
// scraper with the same id replaces an earlier one.
func NewRegistry(scrapers ...Scraper) *Registry {
	r := &Registry{scrapers: make(map[string]Scraper, len(scrapers))}
	for _, s := range scrapers {
		r.scrapers[s.Board()] = s
	}
	return r
}

// Default builds a registry with every supported board.
func Default(opts Options, logger *slog.Logger) *Registry {
	return NewRegistry(
		NewSmartJobs(opts, logger),
		NewEthicalJobs(opts, logger),
		NewSCCCareers(opts, logger),
		NewIndeed(opts, logger),
		NewJora(opts, logger),
		NewSeek(opts, logger),
	)
}

// Get returns the scraper for board.
func (r *Registry) Get(board string) (Scraper, bool) {
	s, ok := r.scrapers[board]
	return s, ok
}

// Boards lists registered board ids in sorted order.
func (r *Registry) Boards() []string {
	out := make([]string, 0, len(r.scrapers))
	for b := range r.scrapers {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}
