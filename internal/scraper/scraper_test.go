package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/rolecall/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(base string) Options {
	zero := 0
	return Options{BaseURL: base, NoDelay: true, MaxRetries: &zero, Timeout: 5 * time.Second}
}

func detailPage(title, dept string) string {
	return fmt.Sprintf(`<html><body>
		<h1>%s</h1>
		<div class="job-details">
			<span data-field="department">%s</span>
			<span data-field="location">Brisbane CBD</span>
			<span data-field="salary">$80,000 - $90,000 per annum</span>
			<span data-field="position-type">Permanent full-time</span>
		</div>
		<div class="job-description">Provide administrative support.</div>
	</body></html>`, title, dept)
}

// fakeSmartJobs serves two search pages and a handful of detail pages.
type fakeSmartJobs struct {
	requests   atomic.Int32
	failFirst  bool
	failPage2  bool
	failDetail string
}

func (f *fakeSmartJobs) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs/search", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		switch r.URL.Query().Get("page") {
		case "":
			if f.failFirst {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, `<html><body>
				<a href="/jobs/QLD-100">Admin Officer</a>
				<a href="/jobs/QLD-101">Receptionist</a>
				<a href="/jobs/QLD-102">Untitled</a>
				<a rel="next" href="/jobs/search?page=2">Next</a>
			</body></html>`)
		case "2":
			if f.failPage2 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, `<html><body><a href="/jobs/QLD-200">Records Officer</a></body></html>`)
		}
	})
	mux.HandleFunc("/jobs/", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		id := strings.TrimPrefix(r.URL.Path, "/jobs/")
		if id == f.failDetail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		switch id {
		case "QLD-100":
			fmt.Fprint(w, detailPage("Admin Officer", "Department of Health"))
		case "QLD-101":
			fmt.Fprint(w, detailPage("Receptionist", ""))
		case "QLD-102":
			fmt.Fprint(w, `<html><body><p>no heading here</p></body></html>`)
		case "QLD-200":
			fmt.Fprint(w, detailPage("Records Officer", "Queensland Treasury"))
		default:
			http.NotFound(w, r)
		}
	})
	return mux
}

func newFakeServer(t *testing.T, f *fakeSmartJobs) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, s Scraper, p SearchParams) ([]model.RawListing, error) {
	t.Helper()
	var out []model.RawListing
	for l, err := range s.Scrape(context.Background(), p) {
		if err != nil {
			return out, err
		}
		out = append(out, l)
	}
	return out, nil
}

var adminParams = SearchParams{Keywords: []string{"admin"}, Location: "Brisbane", RadiusKm: 20}

func TestScrape_FollowsDetailsAndPagination(t *testing.T) {
	fake := &fakeSmartJobs{}
	srv := newFakeServer(t, fake)

	got, err := collect(t, NewSmartJobs(testOptions(srv.URL), discardLogger()), adminParams)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d listings, want 3 (untitled page dropped): %+v", len(got), got)
	}

	first := got[0]
	if first.Title != "Admin Officer" || first.Company != "Department of Health" {
		t.Errorf("first listing = %+v", first)
	}
	if first.ExternalID != "100" {
		t.Errorf("ExternalID = %q, want 100", first.ExternalID)
	}
	if first.SourceBoard != "smartjobs" || first.SourceURL != srv.URL+"/jobs/QLD-100" {
		t.Errorf("source = %s %s", first.SourceBoard, first.SourceURL)
	}
	if first.SalaryType != model.SalaryAnnual || first.SalaryMin == nil || *first.SalaryMin != 80000 {
		t.Errorf("salary not parsed: %+v", first)
	}
	if got[1].Company != "Queensland Government" {
		t.Errorf("default company = %q", got[1].Company)
	}
	if got[2].Title != "Records Officer" {
		t.Errorf("page 2 listing = %q", got[2].Title)
	}
}

func TestScrape_FirstSearchPageFailureAborts(t *testing.T) {
	srv := newFakeServer(t, &fakeSmartJobs{failFirst: true})

	got, err := collect(t, NewSmartJobs(testOptions(srv.URL), discardLogger()), adminParams)
	if err == nil {
		t.Fatal("expected error when first search page fails")
	}
	if len(got) != 0 {
		t.Errorf("got %d listings before error, want 0", len(got))
	}
}

func TestScrape_LaterPageFailureEndsNormally(t *testing.T) {
	srv := newFakeServer(t, &fakeSmartJobs{failPage2: true})

	got, err := collect(t, NewSmartJobs(testOptions(srv.URL), discardLogger()), adminParams)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d listings, want 2 from page 1", len(got))
	}
}

func TestScrape_DetailFailureSkipsListing(t *testing.T) {
	srv := newFakeServer(t, &fakeSmartJobs{failDetail: "QLD-100"})

	got, err := collect(t, NewSmartJobs(testOptions(srv.URL), discardLogger()), adminParams)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	for _, l := range got {
		if l.ExternalID == "100" {
			t.Error("failed detail page should be skipped")
		}
	}
	if len(got) != 2 {
		t.Errorf("got %d listings, want 2", len(got))
	}
}

func TestScrape_ConsumerBreakStopsCrawl(t *testing.T) {
	fake := &fakeSmartJobs{}
	srv := newFakeServer(t, fake)

	s := NewSmartJobs(testOptions(srv.URL), discardLogger())
	for range s.Scrape(context.Background(), adminParams) {
		break
	}
	// search page + first detail only
	if n := fake.requests.Load(); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestScrape_RequestCap(t *testing.T) {
	var requests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs/search", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var b strings.Builder
		b.WriteString("<html><body>")
		for i := 0; i < 80; i++ {
			fmt.Fprintf(&b, `<a href="/jobs/QLD-%d">job</a>`, i)
		}
		b.WriteString("</body></html>")
		fmt.Fprint(w, b.String())
	})
	mux.HandleFunc("/jobs/", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, detailPage("Job "+r.URL.Path, "Dept"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	got, err := collect(t, NewSmartJobs(testOptions(srv.URL), discardLogger()), adminParams)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if n := requests.Load(); n != 50 {
		t.Errorf("requests = %d, want cap of 50", n)
	}
	if len(got) != 49 {
		t.Errorf("listings = %d, want 49", len(got))
	}
}

func TestScrape_RetriesTransientDetailFailure(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/jobs/QLD-1">x</a></body></html>`)
	})
	mux.HandleFunc("/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, detailPage("Admin", "Dept"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	one := 1
	opts := testOptions(srv.URL)
	opts.MaxRetries = &one
	opts.RetryDelay = time.Millisecond

	got, err := collect(t, NewSmartJobs(opts, discardLogger()), adminParams)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d listings, want 1 after retry", len(got))
	}
}

func TestScrape_CancelledContextYieldsError(t *testing.T) {
	srv := newFakeServer(t, &fakeSmartJobs{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range NewSmartJobs(testOptions(srv.URL), discardLogger()).Scrape(ctx, adminParams) {
		if err != nil {
			gotErr = err
			break
		}
	}
	if gotErr == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestFetch_HTTPErrorCarriesStatusAndRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	f := newFetcher(fetchOptions{maxRetries: 0, timeout: time.Second}, discardLogger())
	sess, err := f.session(context.Background())
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	_, err = sess.fetchOnce(context.Background(), srv.URL)
	httpErr, ok := err.(*model.HTTPError)
	if !ok {
		t.Fatalf("err = %T %v, want *model.HTTPError", err, err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests || httpErr.RetryAfter != 30*time.Second {
		t.Errorf("HTTPError = %+v", httpErr)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"120", 120 * time.Second},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestProxyConfig(t *testing.T) {
	p := ProxyConfig{Host: "p.webshare.io", Port: "80", User: "u", Pass: "s"}
	if !p.Configured() {
		t.Fatal("expected configured")
	}
	if p.URL() != "http://u:s@p.webshare.io:80" {
		t.Errorf("URL = %q", p.URL())
	}
	if (ProxyConfig{Host: "h"}).Configured() {
		t.Error("partial config should not count as configured")
	}
}

func TestScrape_ConfiguredProxyCarriesRequests(t *testing.T) {
	var (
		mu      sync.Mutex
		proxied []string
		auth    []string
	)
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		proxied = append(proxied, r.URL.String())
		auth = append(auth, r.Header.Get("Proxy-Authorization"))
		mu.Unlock()
		fmt.Fprint(w, `<html><body><p>No results</p></body></html>`)
	}))
	defer proxySrv.Close()

	u, err := url.Parse(proxySrv.URL)
	if err != nil {
		t.Fatal(err)
	}
	opts := testOptions("http://board.invalid")
	opts.Proxy = ProxyConfig{Host: u.Hostname(), Port: u.Port(), User: "u", Pass: "p"}

	s := NewJora(opts, discardLogger())
	if _, err := collect(t, s, SearchParams{Keywords: []string{"a"}, Location: "b"}); err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(proxied) != 1 {
		t.Fatalf("proxy saw %d requests, want 1: %v", len(proxied), proxied)
	}
	if !strings.HasPrefix(proxied[0], "http://board.invalid/j?") {
		t.Errorf("proxied URL = %q", proxied[0])
	}
	if auth[0] != "Basic dTpw" {
		t.Errorf("Proxy-Authorization = %q, want Basic dTpw", auth[0])
	}
}

func TestScrape_MissingProxyWarnsAndRunsDirect(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `<html><body><p>No results</p></body></html>`)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := NewJora(testOptions(srv.URL), logger)
	if _, err := collect(t, s, SearchParams{Keywords: []string{"a"}, Location: "b"}); err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}

	if hits.Load() != 1 {
		t.Errorf("board saw %d requests, want 1", hits.Load())
	}
	if !strings.Contains(buf.String(), "no proxy configured") {
		t.Errorf("expected proxy warning in log, got:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "board=jora") {
		t.Errorf("expected warning tagged with board, got:\n%s", buf.String())
	}
}

func TestScrape_DirectBoardIgnoresProxy(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `<html><body></body></html>`)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	opts := testOptions(srv.URL)
	// Unreachable proxy: a board that does not want one must never use it.
	opts.Proxy = ProxyConfig{Host: "127.0.0.1", Port: "1", User: "u", Pass: "p"}

	s := NewSmartJobs(opts, slog.New(slog.NewTextHandler(&buf, nil)))
	if _, err := collect(t, s, SearchParams{Keywords: []string{"admin"}}); err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("board saw %d requests, want 1", hits.Load())
	}
	if strings.Contains(buf.String(), "no proxy configured") {
		t.Error("unexpected proxy warning for a direct board")
	}
}
