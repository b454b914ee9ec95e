package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/seenimoa/riskwatch/internal/config"
)

// NaverOptions configures the Naver news search scraper.
type NaverOptions struct {
	URLTemplate   string // %s is replaced by the escaped keyword
	ItemSelector  string // container of one result; may be empty
	TitleSelector string // anchor carrying title and href
	DateSelector  string // elements inside the item holding date text
	UserAgent     string
	Client        *http.Client
}

// Naver scrapes the Naver news search listing sorted by recency.
type Naver struct {
	opts NaverOptions
}

// NewNaver creates a Naver listing scraper. Empty options fall back to the
// defaults of the public search page.
func NewNaver(opts NaverOptions) *Naver {
	def := config.Default().Source.Naver
	if opts.URLTemplate == "" {
		opts.URLTemplate = def.URLTemplate
	}
	if opts.TitleSelector == "" {
		opts.TitleSelector = def.TitleSelector
	}
	return &Naver{opts: opts}
}

// Name returns the strategy name.
func (n *Naver) Name() string { return config.StrategyNaver }

// Query fetches and parses the listing page for keyword.
func (n *Naver) Query(ctx context.Context, keyword string) (*Listing, error) {
	pageURL := queryURL(n.opts.URLTemplate, keyword)

	body, contentType, err := doGet(ctx, n.opts.Client, pageURL, n.opts.UserAgent, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer body.Close()

	r, err := utf8Reader(body, contentType)
	if err != nil {
		return nil, readFailure(ctx, err)
	}

	// The HTML parser is lenient; it only fails when the body cannot be read.
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, readFailure(ctx, fmt.Errorf("parse HTML: %w", err))
	}

	return &Listing{
		Source:    n.Name(),
		Keyword:   keyword,
		URL:       pageURL,
		Entries:   n.parse(doc),
		FetchedAt: time.Now(),
	}, nil
}

// parse walks result items in page order. When the item selector matches
// nothing (markup drift), title anchors are read directly without dates.
func (n *Naver) parse(doc *goquery.Document) []Entry {
	var entries []Entry

	if n.opts.ItemSelector != "" {
		doc.Find(n.opts.ItemSelector).Each(func(_ int, item *goquery.Selection) {
			a := item.Find(n.opts.TitleSelector).First()
			if a.Length() == 0 {
				return
			}
			e := anchorEntry(a)
			if n.opts.DateSelector != "" {
				item.Find(n.opts.DateSelector).Each(func(_ int, s *goquery.Selection) {
					if txt := strings.TrimSpace(s.Text()); txt != "" {
						e.DateText = append(e.DateText, txt)
					}
				})
			}
			entries = append(entries, e)
		})
	}

	if len(entries) == 0 {
		doc.Find(n.opts.TitleSelector).Each(func(_ int, a *goquery.Selection) {
			entries = append(entries, anchorEntry(a))
		})
	}

	return entries
}

// readFailure classifies an error raised while reading a response body. A
// cancelled or expired context is reported in place of the transport error.
func readFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, ctx.Err())
	}
	return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
}

func anchorEntry(a *goquery.Selection) Entry {
	title := strings.TrimSpace(a.Text())
	if title == "" {
		title, _ = a.Attr("title")
	}
	href, _ := a.Attr("href")
	return Entry{Title: title, Link: strings.TrimSpace(href)}
}
