package collector

import (
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/seenimoa/riskwatch/internal/logging"
	"github.com/seenimoa/riskwatch/internal/severity"
	"github.com/seenimoa/riskwatch/internal/source"
	"github.com/seenimoa/riskwatch/pkg/models"
	"github.com/seenimoa/riskwatch/pkg/utils"
)

// DefaultPerKeywordCap is the number of items kept per keyword.
const DefaultPerKeywordCap = 3

// Extractor turns a raw listing into classified items. It never fails:
// malformed entries are skipped one by one.
type Extractor struct {
	classifier *severity.Classifier
	cap        int
	loc        *time.Location
	now        func() time.Time
	logger     *zap.Logger
}

// NewExtractor creates an extractor keeping at most limit items per listing.
func NewExtractor(classifier *severity.Classifier, limit int, loc *time.Location, logger *zap.Logger) *Extractor {
	if classifier == nil {
		classifier = severity.Default()
	}
	if limit < 1 {
		limit = DefaultPerKeywordCap
	}
	if loc == nil {
		loc = utils.KST
	}
	return &Extractor{
		classifier: classifier,
		cap:        limit,
		loc:        loc,
		now:        time.Now,
		logger:     logging.OrNop(logger),
	}
}

// Extract normalizes entries in listing order and truncates to the cap.
func (e *Extractor) Extract(listing *source.Listing, keyword string) []models.NewsItem {
	if listing == nil {
		return nil
	}

	now := e.now().In(e.loc)
	items := make([]models.NewsItem, 0, e.cap)
	for _, entry := range listing.Entries {
		if len(items) == e.cap {
			break
		}

		title := cleanTitle(entry.Title)
		if title == "" {
			e.logger.Debug("skipping entry without title", zap.String("keyword", keyword))
			continue
		}
		link, ok := absoluteLink(entry.Link)
		if !ok {
			e.logger.Debug("skipping entry with non-absolute link",
				zap.String("keyword", keyword),
				zap.String("link", entry.Link))
			continue
		}

		items = append(items, models.NewsItem{
			Keyword: keyword,
			Title:   title,
			Link:    link,
			Date:    e.entryDate(entry, now),
			Risk:    e.classifier.Classify(title),
		})
	}
	return items
}

// entryDate prefers the machine-readable date, then the first displayed
// date text that parses, then today.
func (e *Extractor) entryDate(entry source.Entry, now time.Time) string {
	if entry.PublishedAt != nil && !entry.PublishedAt.IsZero() {
		return utils.FormatDate(*entry.PublishedAt, e.loc)
	}
	for _, txt := range entry.DateText {
		if t, ok := utils.ParseNewsDate(txt, now); ok {
			return utils.FormatDate(t, e.loc)
		}
	}
	return utils.FormatDate(now, e.loc)
}

// cleanTitle collapses whitespace, repairs invalid UTF-8 and applies NFC so
// visually identical titles serialize identically.
func cleanTitle(s string) string {
	s = strings.ToValidUTF8(s, "�")
	s = strings.Join(strings.Fields(s), " ")
	return norm.NFC.String(s)
}

// absoluteLink accepts only absolute http(s) URLs with a host.
func absoluteLink(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", false
	}
	return strings.ToValidUTF8(raw, ""), true
}
