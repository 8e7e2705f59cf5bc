package sources

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"

	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/config"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/paper"
	"github.com/Ryomatech/everyday-arXiv-to-slack/internal/query"
)

const (
	defaultUserAgent = "arxivdigest/1.0 (+https://github.com/Ryomatech/everyday-arXiv-to-slack)"
	maxResponseBytes = 16 << 20
)

// Collector fetches and normalizes entries for one category at a time.
type Collector struct {
	provider config.Provider
	client   *http.Client

	mu        sync.Mutex
	throttles map[string]*throttle
}

// NewCollector creates a collector. A nil client gets the provider timeout.
func NewCollector(provider config.Provider, client *http.Client) *Collector {
	if client == nil {
		timeout := provider.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Collector{
		provider:  provider,
		client:    client,
		throttles: make(map[string]*throttle),
	}
}

// Provider returns the key used to rate-limit and group categories: the host
// serving the category's feed.
func (c *Collector) Provider(cat config.Category) string {
	raw := c.provider.BaseURL
	if cat.IsFeed() {
		raw = cat.FeedURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.ToLower(u.Host)
}

// Fetch implements app.EntrySource. Entries keep the source order (newest first).
func (c *Collector) Fetch(ctx context.Context, cat config.Category) ([]paper.Entry, error) {
	target, parse, err := c.target(cat)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = c.throttleFor(c.Provider(cat)).do(ctx, func() error {
		var fetchErr error
		body, fetchErr = c.get(ctx, target)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	return parse(body)
}

// URL returns the request URL for a category; API-style categories get a built query.
func (c *Collector) URL(cat config.Category) (string, error) {
	target, _, err := c.target(cat)
	return target, err
}

func (c *Collector) target(cat config.Category) (string, func([]byte) ([]paper.Entry, error), error) {
	if cat.IsFeed() {
		return strings.TrimSpace(cat.FeedURL), parseRSS, nil
	}

	q, err := query.Build(cat.Name, cat.Keywords, query.Options{
		MaxResults: c.provider.MaxResults,
		SortBy:     c.provider.SortBy,
		SortOrder:  c.provider.SortOrder,
	})
	if err != nil {
		return "", nil, err
	}
	return q.URL(c.provider.BaseURL), parseAtom, nil
}

func (c *Collector) throttleFor(provider string) *throttle {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.throttles[provider]
	if !ok {
		t = &throttle{delay: c.provider.Delay()}
		c.throttles[provider] = t
	}
	return t
}

func (c *Collector) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	userAgent := c.provider.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/xml, text/xml, */*")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// descriptionPolicy strips the HTML carried by RSS descriptions.
var descriptionPolicy = bluemonday.StrictPolicy()

// stripMarkup turns an HTML fragment into single-line plain text. Only fields
// that are HTML go through it: a literal "<" in plain text (LaTeX such as
// $T<T_c$) would be taken for a tag and cut the text.
func stripMarkup(s string) string {
	return paper.SingleLine(html.UnescapeString(descriptionPolicy.Sanitize(s)))
}

// --- Atom (API-style) ---

func parseAtom(data []byte) ([]paper.Entry, error) {
	feed, err := (&atom.Parser{}).Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse atom: %w", err)
	}

	entries := make([]paper.Entry, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		if strings.Contains(e.ID, "/api/errors") {
			return nil, fmt.Errorf("provider error: %s", paper.SingleLine(e.Summary))
		}

		link, pdf := atomLinks(e)
		if link == "" {
			link = strings.TrimSpace(e.ID)
		}
		id := paper.IDFromLink(e.ID)
		if id == "" {
			id = paper.IDFromLink(link)
		}
		if id == "" || strings.TrimSpace(e.Title) == "" {
			continue
		}

		tags := make([]string, 0, len(e.Categories))
		for _, cat := range e.Categories {
			if cat.Term != "" {
				tags = append(tags, cat.Term)
			}
		}

		entries = append(entries, paper.Entry{
			ID:          id,
			Title:       paper.SingleLine(e.Title),
			Summary:     paper.SingleLine(e.Summary),
			PublishedAt: pickTime(e.PublishedParsed, e.Published, e.UpdatedParsed),
			Link:        link,
			PDFLink:     pdf,
			Tags:        tags,
		})
	}
	return entries, nil
}

func atomLinks(e *atom.Entry) (link, pdf string) {
	for _, l := range e.Links {
		switch {
		case l.Title == "pdf" || l.Type == "application/pdf":
			if pdf == "" {
				pdf = l.Href
			}
		case l.Rel == "" || l.Rel == "alternate":
			if link == "" {
				link = l.Href
			}
		}
	}
	return link, pdf
}

// --- RSS-style ---

func parseRSS(data []byte) ([]paper.Entry, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	entries := make([]paper.Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		id := itemID(item)
		if id == "" || strings.TrimSpace(item.Title) == "" {
			continue
		}

		var pdf string
		for _, l := range item.Links {
			if strings.Contains(l, "/pdf/") {
				pdf = l
				break
			}
		}

		entries = append(entries, paper.Entry{
			ID:          id,
			Title:       paper.SingleLine(item.Title),
			Summary:     stripMarkup(abstractOf(item.Description)),
			PublishedAt: pickTime(item.PublishedParsed, item.Published, item.UpdatedParsed),
			Link:        strings.TrimSpace(item.Link),
			PDFLink:     pdf,
			Tags:        item.Categories,
		})
	}
	return entries, nil
}

// itemID prefers the abstract link, then the OAI identifier in the GUID.
func itemID(item *gofeed.Item) string {
	if strings.Contains(item.Link, "/abs/") {
		return paper.IDFromLink(item.Link)
	}
	if guid := strings.TrimSpace(item.GUID); guid != "" {
		return strings.TrimPrefix(guid, "oai:arXiv.org:")
	}
	return strings.TrimSpace(item.Link)
}

// abstractOf drops the "arXiv:... Announce Type: ..." preamble of RSS descriptions.
func abstractOf(desc string) string {
	if i := strings.Index(desc, "Abstract:"); i >= 0 {
		return strings.TrimSpace(desc[i+len("Abstract:"):])
	}
	return desc
}

func pickTime(parsed *time.Time, raw string, updated *time.Time) time.Time {
	if parsed != nil {
		return parsed.UTC()
	}
	if t := parseTime(raw, time.Time{}); !t.IsZero() {
		return t.UTC()
	}
	if updated != nil {
		return updated.UTC()
	}
	return time.Time{}
}

func parseTime(value string, fallback time.Time) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		"Mon, 02 Jan 2006 15:04:05 MST",
		"02 Jan 2006 15:04:05 MST",
	}

	for _, f := range formats {
		if t, err := time.Parse(f, value); err == nil {
			return t
		}
	}

	return fallback
}
