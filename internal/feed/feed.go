// Package feed fetches and parses the adland RSS feed into entries.
package feed

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrEmptyFeed is returned when the feed parses cleanly but carries no items.
var ErrEmptyFeed = errors.New("feed contains no items")

// maxFeedBytes bounds how much of the response body is read.
const maxFeedBytes = 32 << 20

// Entry is a single feed item.
type Entry struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	PublishedAt string `json:"published_at"`
	Author      string `json:"author"`
	// MediaURL is the enclosure URL when the feed carries one.
	MediaURL string `json:"media_url,omitempty"`
}

// PlainDescription returns the description with HTML markup removed.
func (e Entry) PlainDescription() string {
	return HTMLToText(e.Description)
}

// FetchError reports a feed that could not be retrieved or parsed.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch feed %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch feed %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Config configures a Reader.
type Config struct {
	URL        string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Reader retrieves feed entries over HTTP.
type Reader struct {
	url     string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewReader creates a Reader from cfg.
func NewReader(cfg Config) *Reader {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		url:     cfg.URL,
		baseURL: cfg.BaseURL,
		client:  client,
		logger:  logger,
	}
}

// Fetch downloads the feed and returns its entries in feed order.
// A feed with no items yields ErrEmptyFeed; transport, status and parse
// failures yield *FetchError.
func (r *Reader) Fetch(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, &FetchError{URL: r.url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", "adland-ingest/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: r.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: r.url, StatusCode: resp.StatusCode}
	}

	entries, err := Parse(io.LimitReader(resp.Body, maxFeedBytes), r.baseURL)
	if err != nil && !errors.Is(err, ErrEmptyFeed) {
		return nil, &FetchError{URL: r.url, Err: err}
	}

	r.logger.Info("feed fetched",
		"url", r.url,
		"entries", len(entries),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return entries, err
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Author      string `xml:"author"`
	Creator     string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Enclosure   struct {
		URL  string `xml:"url,attr"`
		Type string `xml:"type,attr"`
	} `xml:"enclosure"`
}

var (
	titleEntities       = strings.NewReplacer("&apos;", "'", "&amp;", "&", "&quot;", `"`)
	descriptionEntities = strings.NewReplacer("&apos;", "'", "&amp;", "&")
)

// Parse decodes an RSS document. Slugs are links with baseURL removed.
func Parse(r io.Reader, baseURL string) ([]Entry, error) {
	dec := xml.NewDecoder(r)
	// Feeds in the wild declare all sorts of charsets; treat them as UTF-8.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var doc rssDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rss: %w", err)
	}

	entries := make([]Entry, 0, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		link := strings.TrimSpace(item.Link)
		author := strings.TrimSpace(item.Author)
		if author == "" {
			author = strings.TrimSpace(item.Creator)
		}
		entries = append(entries, Entry{
			Title:       titleEntities.Replace(strings.TrimSpace(item.Title)),
			Link:        link,
			Slug:        SlugFromLink(link, baseURL),
			Description: descriptionEntities.Replace(strings.TrimSpace(item.Description)),
			PublishedAt: strings.TrimSpace(item.PubDate),
			Author:      author,
			MediaURL:    mediaURL(item),
		})
	}

	if len(entries) == 0 {
		return entries, ErrEmptyFeed
	}
	return entries, nil
}

// SlugFromLink strips baseURL from link. Links outside baseURL are returned unchanged.
func SlugFromLink(link, baseURL string) string {
	if baseURL == "" {
		return link
	}
	return strings.TrimPrefix(link, baseURL)
}

func mediaURL(item rssItem) string {
	u := strings.TrimSpace(item.Enclosure.URL)
	if u == "" {
		return ""
	}
	if t := item.Enclosure.Type; t != "" && !strings.HasPrefix(t, "video/") {
		return ""
	}
	return u
}

// HTMLToText extracts the visible text from an HTML fragment.
func HTMLToText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
