package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/riskwatch/internal/logging"
)

// DefaultTimeout bounds a single query when none is configured.
const DefaultTimeout = 10 * time.Second

// Fetcher performs one paced, time-bounded query per keyword and turns
// every problem into a *Failure. It holds no per-call state.
type Fetcher struct {
	src     NewsSource
	timeout time.Duration
	pacer   *Pacer
	logger  *zap.Logger
}

// NewFetcher wraps src. A nil pacer disables pacing.
func NewFetcher(src NewsSource, timeout time.Duration, pacer *Pacer, logger *zap.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		src:     src,
		timeout: timeout,
		pacer:   pacer,
		logger:  logging.OrNop(logger),
	}
}

// Source returns the wrapped strategy.
func (f *Fetcher) Source() NewsSource { return f.src }

// Fetch queries the source for keyword. On failure the returned error is a
// *Failure wrapping ErrSourceUnavailable or ErrExtractionEmpty.
func (f *Fetcher) Fetch(ctx context.Context, keyword string) (*Listing, error) {
	if keyword == "" {
		return nil, f.fail(keyword, fmt.Errorf("%w: empty keyword", ErrExtractionEmpty))
	}

	if err := f.pacer.Wait(ctx); err != nil {
		return nil, f.fail(keyword, fmt.Errorf("%w: %w", ErrSourceUnavailable, err))
	}

	qctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	listing, err := f.query(qctx, keyword)
	if err != nil {
		if !errors.Is(err, ErrSourceUnavailable) && !errors.Is(err, ErrExtractionEmpty) {
			err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		return nil, f.fail(keyword, err)
	}
	if listing == nil || len(listing.Entries) == 0 {
		return nil, f.fail(keyword, ErrExtractionEmpty)
	}

	f.logger.Debug("query complete",
		zap.String("source", f.src.Name()),
		zap.String("keyword", keyword),
		zap.Int("entries", len(listing.Entries)),
		zap.Duration("elapsed", time.Since(start)))
	return listing, nil
}

// query shields the caller from a panicking strategy.
func (f *Fetcher) query(ctx context.Context, keyword string) (listing *Listing, err error) {
	defer func() {
		if r := recover(); r != nil {
			listing, err = nil, fmt.Errorf("%w: source panic: %v", ErrSourceUnavailable, r)
		}
	}()
	return f.src.Query(ctx, keyword)
}

func (f *Fetcher) fail(keyword string, err error) *Failure {
	return &Failure{Keyword: keyword, Source: f.src.Name(), Err: err}
}
