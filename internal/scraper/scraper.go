// Package scraper turns a search profile into a stream of raw listings from a
// job board. Each board is a Site: a search URL, a few selectors, and an
// extractor; the crawl itself is shared.
package scraper

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/rolecall/internal/model"
)

// SearchParams are the parts of a profile a board search needs.
type SearchParams struct {
	Keywords []string
	Location string
	RadiusKm int
}

// ParamsFromProfile extracts search parameters from a profile.
func ParamsFromProfile(p model.SearchProfile) SearchParams {
	return SearchParams{Keywords: p.Keywords, Location: p.Location, RadiusKm: p.RadiusKm}
}

// Scraper crawls one job board.
//
// Scrape returns a lazy, finite, single-use sequence. Listings that fail to
// fetch or parse are skipped; a yielded error means the crawl itself could not
// proceed and the sequence ends there.
type Scraper interface {
	Board() string
	Name() string
	BuildSearchURL(p SearchParams) string
	Scrape(ctx context.Context, p SearchParams) iter.Seq2[model.RawListing, error]
}

// Options tune a board scraper. Zero values take the defaults.
type Options struct {
	BaseURL    string // overrides the board's public origin
	Proxy      ProxyConfig
	Timeout    time.Duration
	UserAgent  string
	MaxRetries *int
	RetryDelay time.Duration
	NoDelay    bool // skip politeness delays between requests
}

// Site is a Scraper built from a board definition.
type Site struct {
	board       string
	name        string
	baseURL     string
	maxRequests int
	wantsProxy  bool
	proxy       ProxyConfig
	fetcher     *fetcher
	logger      *slog.Logger

	searchURL func(base string, p SearchParams) string
	links     func(doc *goquery.Document) []string
	next      func(doc *goquery.Document) string
	extract   func(doc *goquery.Document, pageURL string, p SearchParams) (model.RawListing, bool)
}

// siteDef is the static description of a board.
type siteDef struct {
	board       string
	name        string
	baseURL     string
	maxRequests int
	delay       time.Duration
	randomDelay time.Duration
	wantsProxy  bool

	searchURL func(base string, p SearchParams) string
	links     func(doc *goquery.Document) []string
	next      func(doc *goquery.Document) string
	extract   func(doc *goquery.Document, pageURL string, p SearchParams) (model.RawListing, bool)
}

func newSite(def siteDef, opts Options, logger *slog.Logger) *Site {
	base := def.baseURL
	if opts.BaseURL != "" {
		base = opts.BaseURL
	}

	fo := fetchOptions{
		userAgent:   opts.UserAgent,
		timeout:     opts.Timeout,
		delay:       def.delay,
		randomDelay: def.randomDelay,
		maxRetries:  defaultMaxRetries,
		retryDelay:  defaultRetryDelay,
	}
	if opts.NoDelay {
		fo.delay, fo.randomDelay = 0, 0
	}
	if opts.MaxRetries != nil {
		fo.maxRetries = *opts.MaxRetries
	}
	if opts.RetryDelay > 0 {
		fo.retryDelay = opts.RetryDelay
	}
	if def.wantsProxy && opts.Proxy.Configured() {
		fo.proxyURL = opts.Proxy.URL()
	}

	logger = logger.With("board", def.board)
	return &Site{
		board:       def.board,
		name:        def.name,
		baseURL:     base,
		maxRequests: def.maxRequests,
		wantsProxy:  def.wantsProxy,
		proxy:       opts.Proxy,
		fetcher:     newFetcher(fo, logger),
		logger:      logger,
		searchURL:   def.searchURL,
		links:       def.links,
		next:        def.next,
		extract:     def.extract,
	}
}

func (s *Site) Board() string { return s.board }
func (s *Site) Name() string  { return s.name }

// BuildSearchURL renders the board's search page URL for p.
func (s *Site) BuildSearchURL(p SearchParams) string {
	return s.searchURL(s.baseURL, p)
}

// Scrape walks search result pages, following each detail link and then the
// next-page link, until pages run out or the request cap is reached.
// Only a failure on the first search page aborts the crawl.
func (s *Site) Scrape(ctx context.Context, p SearchParams) iter.Seq2[model.RawListing, error] {
	return func(yield func(model.RawListing, error) bool) {
		if s.wantsProxy && !s.proxy.Configured() {
			s.logger.Warn("no proxy configured, running without proxy")
		}

		sess, err := s.fetcher.session(ctx)
		if err != nil {
			yield(model.RawListing{}, fmt.Errorf("%s: %w", s.board, err))
			return
		}

		requests := 0
		visited := make(map[string]bool)
		pageURL := s.BuildSearchURL(p)

		for page := 0; pageURL != "" && !visited[pageURL]; page++ {
			if requests >= s.maxRequests {
				s.logger.Info("request cap reached", "max_requests", s.maxRequests)
				return
			}
			visited[pageURL] = true

			doc, err := sess.fetch(pageURL)
			requests++
			if err != nil {
				if page == 0 || ctx.Err() != nil {
					yield(model.RawListing{}, fmt.Errorf("%s search page %s: %w", s.board, pageURL, err))
					return
				}
				s.logger.Warn("search page failed, stopping pagination", "url", pageURL, "page", page, "error", err)
				return
			}

			next := resolveURL(pageURL, s.next(doc))
			for _, href := range s.links(doc) {
				link := resolveURL(pageURL, href)
				if link == "" || visited[link] {
					continue
				}
				if requests >= s.maxRequests {
					s.logger.Info("request cap reached", "max_requests", s.maxRequests)
					return
				}
				visited[link] = true

				detail, err := sess.fetch(link)
				requests++
				if err != nil {
					if ctx.Err() != nil {
						yield(model.RawListing{}, fmt.Errorf("%s: %w", s.board, ctx.Err()))
						return
					}
					s.logger.Warn("detail page failed, skipping", "url", link, "error", err)
					continue
				}

				listing, ok := s.extract(detail, link, p)
				if !ok {
					s.logger.Debug("no listing extracted", "url", link)
					continue
				}
				listing.SourceBoard = s.board
				listing.SourceURL = link
				if !yield(listing, nil) {
					return
				}
			}
			pageURL = next
		}
	}
}
