// Package report merges the encoded dataset into the dashboard document and
// writes it to disk.
package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/seenimoa/riskwatch/internal/collector"
	"github.com/seenimoa/riskwatch/internal/transport"
	"github.com/seenimoa/riskwatch/pkg/models"
	"github.com/seenimoa/riskwatch/pkg/utils"
)

// DefaultTitle is used when no title is configured.
const DefaultTitle = "Security Daily Watch"

// Options controls report generation.
type Options struct {
	Title    string         // page title (default: DefaultTitle)
	Location *time.Location // zone for the generation timestamp (default: KST)
}

// ════════════════════════════════════════════════════════════════════
// Page data
// ════════════════════════════════════════════════════════════════════

// Page is the template model. The two tokens are the only place item data
// enters the document; everything else is escaped with the html func.
type Page struct {
	Title         string
	GeneratedAt   string
	RunID         string
	Fallback      bool
	Total         int
	Counts        []TierCount
	Failed        []FailedKeyword
	KeywordsToken string
	ItemsToken    string
}

// TierCount is one badge in the summary bar.
type TierCount struct {
	Tier  models.Tier
	Class string // CSS class: red, amber, green
	Count int
}

// FailedKeyword is a keyword that produced no items this run.
type FailedKeyword struct {
	Keyword string
	Reason  string
}

var pageTemplate = template.Must(template.New("report").Parse(Template))

// Build encodes the run result into page data.
func Build(res *collector.Result, opts Options) (*Page, error) {
	if res == nil {
		return nil, fmt.Errorf("result is nil")
	}
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}
	if opts.Location == nil {
		opts.Location = utils.KST
	}

	keywords, err := transport.EncodeKeywords(res.Keywords)
	if err != nil {
		return nil, fmt.Errorf("encoding keywords: %w", err)
	}
	items, err := transport.EncodeItems(res.Items)
	if err != nil {
		return nil, fmt.Errorf("encoding items: %w", err)
	}

	started := res.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	page := &Page{
		Title:         opts.Title,
		GeneratedAt:   utils.FormatDateTime(started, opts.Location),
		RunID:         res.RunID,
		Fallback:      res.Fallback,
		Total:         len(res.Items),
		KeywordsToken: keywords,
		ItemsToken:    items,
	}

	counts := models.TierCounts(res.Items)
	for _, t := range models.AllTiers() {
		page.Counts = append(page.Counts, TierCount{
			Tier:  t,
			Class: strings.ToLower(string(t)),
			Count: counts[t],
		})
	}
	for _, o := range res.Failed() {
		page.Failed = append(page.Failed, FailedKeyword{Keyword: o.Keyword, Reason: o.Reason()})
	}
	return page, nil
}

// Render writes the HTML document for page. Tokens that are not plain
// base64 are refused with transport.ErrEncoding, since they would be
// inserted into the script block unescaped.
func Render(w io.Writer, page *Page) error {
	if page == nil {
		return fmt.Errorf("page is nil")
	}
	for name, tok := range map[string]string{"keywords": page.KeywordsToken, "items": page.ItemsToken} {
		if tok == "" || !transport.IsToken(tok) {
			return fmt.Errorf("%w: %s token is not embeddable", transport.ErrEncoding, name)
		}
	}
	if err := pageTemplate.Execute(w, page); err != nil {
		return fmt.Errorf("executing template: %w", err)
	}
	return nil
}

// Generate builds and renders the report for res.
func Generate(res *collector.Result, opts Options) ([]byte, error) {
	page, err := Build(res, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := Render(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ════════════════════════════════════════════════════════════════════
// Atomic write
// ════════════════════════════════════════════════════════════════════

// WriteFile replaces path with data. The bytes go to a temp file in the
// same directory which is then renamed over the target, so readers see
// either the old document or the new one.
func WriteFile(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════
// Plain-text summary
// ════════════════════════════════════════════════════════════════════

// WriteSummary prints a terminal friendly digest of a run.
func WriteSummary(w io.Writer, res *collector.Result, loc *time.Location) {
	if loc == nil {
		loc = utils.KST
	}
	var sb strings.Builder
	line := strings.Repeat("═", 60)
	thinLine := strings.Repeat("─", 60)

	sb.WriteString(line + "\n")
	sb.WriteString(fmt.Sprintf("  Run %s | %s | %s\n", res.RunID, utils.FormatDateTime(res.StartedAt, loc), FormatDuration(res.Duration)))
	sb.WriteString(line + "\n")

	counts := models.TierCounts(res.Items)
	sb.WriteString(fmt.Sprintf("  Items: %d  (RED %d · AMBER %d · GREEN %d)\n",
		len(res.Items), counts[models.TierRed], counts[models.TierAmber], counts[models.TierGreen]))
	if res.Fallback {
		sb.WriteString("  ! all sources failed, fallback data emitted\n")
	}
	sb.WriteString(thinLine + "\n")

	for _, o := range res.Outcomes {
		if o.Err != nil {
			sb.WriteString(fmt.Sprintf("  ✗ %-16s %s\n", o.Keyword, o.Reason()))
			continue
		}
		sb.WriteString(fmt.Sprintf("  ✓ %-16s %d items\n", o.Keyword, len(o.Items)))
	}
	sb.WriteString(thinLine + "\n")

	for _, it := range res.Items {
		sb.WriteString(fmt.Sprintf("  [%-5s] %s %s\n", it.Risk, it.Date, it.Title))
	}
	sb.WriteString(line + "\n")

	io.WriteString(w, sb.String())
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
