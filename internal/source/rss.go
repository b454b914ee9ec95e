package source

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/seenimoa/riskwatch/internal/config"
)

// RSSOptions configures the feed strategy.
type RSSOptions struct {
	URLTemplate string // %s is replaced by the escaped keyword
	UserAgent   string
	Client      *http.Client
}

// RSS queries a keyword search feed (Google News by default).
type RSS struct {
	opts   RSSOptions
	parser *gofeed.Parser
}

// NewRSS creates a feed strategy.
func NewRSS(opts RSSOptions) *RSS {
	if opts.URLTemplate == "" {
		opts.URLTemplate = config.Default().Source.RSS.URLTemplate
	}
	return &RSS{opts: opts, parser: gofeed.NewParser()}
}

// Name returns the strategy name.
func (f *RSS) Name() string { return config.StrategyRSS }

// Query fetches the feed for keyword. Entries are ordered newest first;
// undated entries keep their feed order after the dated ones.
func (f *RSS) Query(ctx context.Context, keyword string) (*Listing, error) {
	feedURL := queryURL(f.opts.URLTemplate, keyword)

	body, _, err := doGet(ctx, f.opts.Client, feedURL, f.opts.UserAgent, "application/rss+xml, application/atom+xml, application/xml, text/xml")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer body.Close()

	feed, err := f.parser.Parse(body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, ctx.Err())
		}
		return nil, fmt.Errorf("%w: parse feed: %w", ErrExtractionEmpty, err)
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		e := Entry{Title: item.Title, Link: item.Link}
		if item.Published != "" {
			e.DateText = []string{item.Published}
		} else if item.Updated != "" {
			e.DateText = []string{item.Updated}
		}
		switch {
		case item.PublishedParsed != nil:
			e.PublishedAt = item.PublishedParsed
		case item.UpdatedParsed != nil:
			e.PublishedAt = item.UpdatedParsed
		}
		entries = append(entries, e)
	}
	sortEntriesByDate(entries)

	return &Listing{
		Source:    f.Name(),
		Keyword:   keyword,
		URL:       feedURL,
		Entries:   entries,
		FetchedAt: time.Now(),
	}, nil
}

// sortEntriesByDate sorts newest first; stable so equal or missing dates
// keep feed order.
func sortEntriesByDate(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].PublishedAt, entries[j].PublishedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}
