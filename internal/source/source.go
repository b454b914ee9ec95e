// Package source queries upstream news services for the most recent items
// matching a keyword. A NewsSource strategy (search listing scrape, RSS
// feed) is selected at configuration time; the Fetcher wraps it with
// pacing, a per-request timeout and failure classification.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/seenimoa/riskwatch/internal/config"
)

// NewsSource is one upstream strategy.
type NewsSource interface {
	// Name returns the strategy name, e.g. "naver".
	Name() string

	// Query returns the listing for keyword, most recent entries first
	// where the upstream orders by recency.
	Query(ctx context.Context, keyword string) (*Listing, error)
}

// Listing is the structured response of one query.
type Listing struct {
	Source    string
	Keyword   string
	URL       string
	Entries   []Entry
	FetchedAt time.Time
}

// Entry is one raw, unvalidated result.
type Entry struct {
	Title       string
	Link        string
	DateText    []string   // date candidates as displayed, in page order
	PublishedAt *time.Time // set when the upstream provides a machine-readable date
}

// --- Sentinel errors ---

// ErrSourceUnavailable covers network errors, timeouts and non-success statuses.
var ErrSourceUnavailable = errors.New("source unavailable")

// ErrExtractionEmpty means the source answered but no entries could be parsed.
var ErrExtractionEmpty = errors.New("no parsable entries")

// HTTPError wraps a non-success HTTP response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// Failure is the per-keyword failure value handed back to the aggregator.
type Failure struct {
	Keyword string
	Source  string
	Err     error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: keyword %q: %v", f.Source, f.Keyword, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Reason returns a short diagnostic label for logs and the report summary.
func (f *Failure) Reason() string {
	var httpErr *HTTPError
	switch {
	case errors.As(f.Err, &httpErr):
		return fmt.Sprintf("http %d", httpErr.StatusCode)
	case errors.Is(f.Err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(f.Err, context.Canceled):
		return "canceled"
	case errors.Is(f.Err, ErrExtractionEmpty):
		return "empty"
	default:
		return "unavailable"
	}
}

// New builds the strategy named by cfg.Strategy.
func New(cfg config.SourceConfig, client *http.Client) (NewsSource, error) {
	switch strings.ToLower(cfg.Strategy) {
	case config.StrategyNaver:
		return NewNaver(NaverOptions{
			URLTemplate:   cfg.Naver.URLTemplate,
			ItemSelector:  cfg.Naver.ItemSelector,
			TitleSelector: cfg.Naver.TitleSelector,
			DateSelector:  cfg.Naver.DateSelector,
			UserAgent:     cfg.UserAgent,
			Client:        client,
		}), nil
	case config.StrategyRSS:
		return NewRSS(RSSOptions{
			URLTemplate: cfg.RSS.URLTemplate,
			UserAgent:   cfg.UserAgent,
			Client:      client,
		}), nil
	}
	return nil, fmt.Errorf("unknown source strategy %q", cfg.Strategy)
}

// Strategies lists the registered strategy names.
func Strategies() []string {
	return []string{config.StrategyNaver, config.StrategyRSS}
}
