// Package scrape fetches supplementary insurer content (coverage bullet
// points, plan descriptions) from the public website over HTTPS. Fetched
// text is treated as untrusted input: it is sanitized and length-filtered
// before it is ever rendered into a quote email.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/chiinsurancebrokers/petquoteengine/internal/config"
	"github.com/chiinsurancebrokers/petquoteengine/internal/metrics"
	"github.com/chiinsurancebrokers/petquoteengine/internal/sanitize"
	"github.com/chiinsurancebrokers/petquoteengine/internal/validate"
)

// maxResponseSize caps how much of a remote page is read.
const maxResponseSize = 10 * 1024 * 1024

// Item length bounds: fragments shorter than minItemLength are navigation
// crumbs, longer ones are whole paragraphs of boilerplate.
const (
	minItemLength = 20
	maxItemLength = 500
)

// ErrSchemeNotAllowed is returned for any URL that is not plain https.
var ErrSchemeNotAllowed = errors.New("only https urls can be fetched")

// contentTags are the elements whose text is considered content.
var contentTags = map[string]bool{
	"h1": true, "h2": true, "h3": true,
	"li": true, "p": true,
}

// boilerplate fragments cause an extracted item to be skipped.
var boilerplate = []string{
	"cookie", "javascript", "newsletter",
	"all rights reserved", "privacy policy", "terms of use",
}

// Fetcher retrieves and extracts content items from whitelisted pages.
type Fetcher struct {
	client         *http.Client
	userAgent      string
	maxItems       int
	allowedDomains []string
	log            *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	items   []string
	fetched time.Time
}

// New creates a Fetcher restricted to the given domains.
func New(cfg config.ScrapeConfig, allowedDomains []string, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		client:         &http.Client{Timeout: cfg.Timeout},
		userAgent:      cfg.UserAgent,
		maxItems:       cfg.MaxItems,
		allowedDomains: allowedDomains,
		log:            log,
		cache:          make(map[string]cacheEntry),
		ttl:            cfg.CacheTTL,
	}
}

// Fetch returns sanitized content items from the page at rawURL, serving
// from cache within the TTL. The URL must be https and on the whitelist.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]string, error) {
	if !strings.HasPrefix(rawURL, "https://") {
		return nil, ErrSchemeNotAllowed
	}
	if res := validate.URL(rawURL, f.allowedDomains); !res.Valid {
		return nil, fmt.Errorf("url rejected: %s", res.Reason)
	}

	if items, ok := f.cached(rawURL); ok {
		metrics.ScrapeFetchesTotal.WithLabelValues("cache_hit").Inc()
		return items, nil
	}

	items, err := f.fetch(ctx, rawURL)
	if err != nil {
		metrics.ScrapeFetchesTotal.WithLabelValues("error").Inc()
		f.log.Warn("site content fetch failed", "url", rawURL, "error", err)
		return nil, err
	}
	metrics.ScrapeFetchesTotal.WithLabelValues("ok").Inc()

	f.mu.Lock()
	f.cache[rawURL] = cacheEntry{items: items, fetched: time.Now()}
	f.mu.Unlock()

	return items, nil
}

func (f *Fetcher) cached(url string) ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[url]
	if !ok || time.Since(entry.fetched) > f.ttl {
		return nil, false
	}
	return entry.items, true
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", url, err)
	}

	return f.extract(doc), nil
}

// extract walks the parsed document collecting text from content elements,
// sanitizing, filtering, and deduplicating as it goes.
func (f *Fetcher) extract(doc *html.Node) []string {
	var items []string
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && contentTags[n.Data] {
			if item, ok := f.item(textOf(n)); ok && !seen[item] {
				seen[item] = true
				items = append(items, item)
			}
			return // nested content tags would duplicate text
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if f.maxItems > 0 && len(items) > f.maxItems {
		items = items[:f.maxItems]
	}
	return items
}

// item sanitizes a raw text fragment and reports whether it qualifies as a
// content item.
func (f *Fetcher) item(raw string) (string, bool) {
	s := sanitize.ScrapedText(raw, maxItemLength)
	if n := len([]rune(s)); n < minItemLength || n > maxItemLength {
		return "", false
	}
	lower := strings.ToLower(s)
	for _, b := range boilerplate {
		if strings.Contains(lower, b) {
			return "", false
		}
	}
	return s, true
}

// textOf concatenates the text nodes under n, skipping script and style.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
