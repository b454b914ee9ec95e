// Package collector runs the per-keyword collection pipeline: fetch,
// extract, classify, merge, and fall back to synthetic data when nothing
// could be collected.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/riskwatch/internal/config"
	"github.com/seenimoa/riskwatch/internal/logging"
	"github.com/seenimoa/riskwatch/internal/severity"
	"github.com/seenimoa/riskwatch/internal/source"
	"github.com/seenimoa/riskwatch/pkg/models"
	"github.com/seenimoa/riskwatch/pkg/utils"
)

// ErrNoKeywords is returned by Run when called without keywords.
var ErrNoKeywords = errors.New("no keywords configured")

// Placeholder text used when the fallback configuration leaves it blank.
const (
	DefaultFallbackKeyword = "시스템"
	DefaultFallbackTitle   = "데이터 수집 실패"
)

// Fetcher is the per-keyword query the aggregator drives.
type Fetcher interface {
	Fetch(ctx context.Context, keyword string) (*source.Listing, error)
}

// Options tunes a run.
type Options struct {
	Concurrency int           // parallel fetches; 1 means sequential
	Deadline    time.Duration // bound for the whole run
	Fallback    config.FallbackConfig
	Location    *time.Location
}

// Outcome is the result for one keyword.
type Outcome struct {
	Keyword string
	Items   []models.NewsItem
	Err     error // nil on success
}

// Reason returns a short label for a failed outcome, or "" on success.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	var f *source.Failure
	if errors.As(o.Err, &f) {
		return f.Reason()
	}
	return "unavailable"
}

// Result is everything one run produced. It lives only in memory.
type Result struct {
	RunID     string
	Keywords  []string
	Items     []models.NewsItem
	Outcomes  []Outcome
	Fallback  bool
	StartedAt time.Time
	Duration  time.Duration
}

// Failed returns the outcomes that produced no items.
func (r *Result) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Aggregator fetches every keyword and merges the results.
type Aggregator struct {
	fetcher   Fetcher
	extractor *Extractor
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// NewAggregator wires an aggregator from explicit parts.
func NewAggregator(fetcher Fetcher, extractor *Extractor, opts Options, logger *zap.Logger) *Aggregator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Deadline <= 0 {
		opts.Deadline = 2 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = utils.KST
	}
	if opts.Fallback.Keyword == "" {
		opts.Fallback.Keyword = DefaultFallbackKeyword
	}
	if opts.Fallback.Title == "" {
		opts.Fallback.Title = DefaultFallbackTitle
	}
	return &Aggregator{
		fetcher:   fetcher,
		extractor: extractor,
		opts:      opts,
		logger:    logging.OrNop(logger),
		now:       time.Now,
	}
}

// New builds the full pipeline from configuration: source strategy,
// pacer, fetcher, classifier and extractor.
func New(cfg *config.Config, logger *zap.Logger) (*Aggregator, error) {
	src, err := source.New(cfg.Source, nil)
	if err != nil {
		return nil, err
	}
	loc := utils.LoadLocation(cfg.Timezone)
	fetcher := source.NewFetcher(src, cfg.Source.Timeout, source.NewPacer(cfg.Collector.Pause), logger)
	classifier := severity.FromLists(cfg.Severity.Red, cfg.Severity.Amber)
	extractor := NewExtractor(classifier, cfg.Collector.PerKeywordCap, loc, logger)

	return NewAggregator(fetcher, extractor, Options{
		Concurrency: cfg.Collector.Concurrency,
		Deadline:    cfg.Collector.Deadline,
		Fallback:    cfg.Fallback,
		Location:    loc,
	}, logger), nil
}

// Run collects all keywords. Per-keyword failures are recorded in the
// result, never returned; the error is reserved for invalid input.
func (a *Aggregator) Run(ctx context.Context, keywords []string) (*Result, error) {
	if len(keywords) == 0 {
		return nil, ErrNoKeywords
	}

	res := &Result{
		RunID:     uuid.NewString(),
		Keywords:  append([]string(nil), keywords...),
		StartedAt: a.now(),
	}
	log := a.logger.With(zap.String("run_id", res.RunID))
	log.Info("collection started",
		zap.Int("keywords", len(keywords)),
		zap.Int("concurrency", a.opts.Concurrency))

	ctx, cancel := context.WithTimeout(ctx, a.opts.Deadline)
	defer cancel()

	// Each task owns exactly one slot; merging happens after Wait.
	outcomes := make([]Outcome, len(keywords))
	var g errgroup.Group
	g.SetLimit(a.opts.Concurrency)
	for i, kw := range keywords {
		g.Go(func() error {
			outcomes[i] = a.collect(ctx, kw)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.Err != nil {
			log.Warn("keyword failed",
				zap.String("keyword", o.Keyword),
				zap.String("reason", o.Reason()),
				zap.Error(o.Err))
			continue
		}
		log.Info("keyword collected",
			zap.String("keyword", o.Keyword),
			zap.Int("items", len(o.Items)))
		res.Items = append(res.Items, o.Items...)
	}
	res.Outcomes = outcomes

	if len(res.Items) == 0 {
		today := utils.FormatDate(a.now(), a.opts.Location)
		res.Items = FallbackItems(a.opts.Fallback, keywords, today)
		res.Fallback = true
		log.Warn("all sources failed, substituting fallback data", zap.Int("items", len(res.Items)))
	}

	res.Duration = time.Since(res.StartedAt)
	log.Info("collection finished",
		zap.Int("items", len(res.Items)),
		zap.Int("failed_keywords", len(res.Failed())),
		zap.Bool("fallback", res.Fallback),
		zap.Duration("elapsed", res.Duration))
	return res, nil
}

// collect runs fetch and extract for one keyword in isolation.
func (a *Aggregator) collect(ctx context.Context, keyword string) (out Outcome) {
	out.Keyword = keyword
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Keyword: keyword, Err: fmt.Errorf("%w: collect panic: %v", source.ErrSourceUnavailable, r)}
		}
	}()

	listing, err := a.fetcher.Fetch(ctx, keyword)
	if err != nil {
		out.Err = err
		return out
	}

	items := a.extractor.Extract(listing, keyword)
	if len(items) == 0 {
		out.Err = &source.Failure{Keyword: keyword, Source: listing.Source, Err: source.ErrExtractionEmpty}
		return out
	}
	out.Items = items
	return out
}

// FallbackItems builds the deterministic placeholder set signalling that
// collection failed: one item, or one per keyword when configured so.
func FallbackItems(fb config.FallbackConfig, keywords []string, date string) []models.NewsItem {
	item := func(kw string) models.NewsItem {
		return models.NewsItem{
			Keyword: kw,
			Title:   fb.Title,
			Link:    models.PlaceholderLink,
			Date:    date,
			Risk:    models.TierRed,
		}
	}

	if fb.PerKeyword && len(keywords) > 0 {
		items := make([]models.NewsItem, 0, len(keywords))
		for _, kw := range keywords {
			items = append(items, item(kw))
		}
		return items
	}
	return []models.NewsItem{item(fb.Keyword)}
}
