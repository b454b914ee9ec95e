package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/seenimoa/riskwatch/internal/collector"
	"github.com/seenimoa/riskwatch/internal/config"
	"github.com/seenimoa/riskwatch/internal/source"
	"github.com/seenimoa/riskwatch/internal/transport"
	"github.com/seenimoa/riskwatch/pkg/models"
	"github.com/seenimoa/riskwatch/pkg/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

type fakePipeline struct {
	calls    atomic.Int32
	err      error
	lastCtx  context.Context
	keywords []string
}

func (f *fakePipeline) Run(ctx context.Context, keywords []string) (*collector.Result, error) {
	n := f.calls.Add(1)
	f.lastCtx = ctx
	f.keywords = keywords
	if f.err != nil {
		return nil, f.err
	}
	items := []models.NewsItem{
		{Keyword: "해킹", Title: "해킹 공격으로 개인정보 유출", Link: "https://e.example/1", Date: "2025-01-05", Risk: models.TierRed},
		{Keyword: "해킹", Title: "시스템 점검 안내", Link: "https://e.example/2", Date: "2025-01-05", Risk: models.TierAmber},
		{Keyword: "에스원", Title: "신규 서비스 출시", Link: "https://e.example/3", Date: "2025-01-04", Risk: models.TierGreen},
	}
	return &collector.Result{
		RunID:     "run-" + string(rune('0'+n)),
		Keywords:  keywords,
		Items:     items,
		StartedAt: time.Date(2025, 1, 5, 9, 0, 0, 0, utils.KST),
		Outcomes: []collector.Outcome{
			{Keyword: "해킹", Items: items[:2]},
			{Keyword: "에스원", Items: items[2:]},
			{Keyword: "산업 재해", Err: &source.Failure{Keyword: "산업 재해", Source: "naver", Err: &source.HTTPError{StatusCode: 503}}},
		},
	}, nil
}

// gatedPipeline blocks every run until the test lets it through.
type gatedPipeline struct {
	fakePipeline
	started chan struct{}
	release chan struct{}
}

func newGatedPipeline() *gatedPipeline {
	return &gatedPipeline{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedPipeline) Run(ctx context.Context, keywords []string) (*collector.Result, error) {
	g.started <- struct{}{}
	<-g.release
	return g.fakePipeline.Run(ctx, keywords)
}

// unblock lets one pending run finish.
func (g *gatedPipeline) unblock() {
	g.release <- struct{}{}
}

// abandon frees a run still parked on the gate, if any.
func (g *gatedPipeline) abandon() {
	select {
	case g.release <- struct{}{}:
	default:
	}
}

// within serves target on a goroutine and fails the test if no response
// arrives in d.
func within(t *testing.T, srv *Server, target string, d time.Duration) *httptest.ResponseRecorder {
	t.Helper()
	ch := make(chan *httptest.ResponseRecorder, 1)
	go func() { ch <- do(t, srv, target) }()
	select {
	case rec := <-ch:
		return rec
	case <-time.After(d):
		t.Fatalf("GET %s still blocked after %v", target, d)
		return nil
	}
}

func testServer(t *testing.T, p Pipeline) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Keywords = []string{"해킹", "에스원", "산업 재해"}
	cfg.API.CacheTTL = time.Minute
	return NewServer(cfg, p, nil)
}

func do(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, data any) APIResponse {
	t.Helper()
	var raw struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return APIResponse{Success: raw.Success, Error: raw.Error}
}

// ════════════════════════════════════════════════════════════════════
// Handlers
// ════════════════════════════════════════════════════════════════════

func TestHandleHealth(t *testing.T) {
	srv := testServer(t, &fakePipeline{})
	srv.SetVersion("1.2.3")

	rec := do(t, srv, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var data map[string]any
	resp := decodeResponse(t, rec, &data)
	assert.True(t, resp.Success)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "1.2.3", data["version"])
	assert.Contains(t, data, "time")
	assert.NotContains(t, data, "last_run")
}

func TestHandleIndexRendersReport(t *testing.T) {
	p := &fakePipeline{}
	srv := testServer(t, p)

	rec := do(t, srv, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	res, _ := p.Run(context.Background(), []string{"해킹", "에스원", "산업 재해"})
	token, err := transport.EncodeItems(res.Items)
	require.NoError(t, err)
	assert.Contains(t, body, `var ITEMS = "`+token+`";`)
	assert.NotContains(t, body, "해킹 공격으로 개인정보 유출")
	assert.Equal(t, []string{"해킹", "에스원", "산업 재해"}, p.keywords)
}

func TestSnapshotIsCached(t *testing.T) {
	p := &fakePipeline{}
	srv := testServer(t, p)

	do(t, srv, "/")
	do(t, srv, "/api/items")
	do(t, srv, "/")
	assert.Equal(t, int32(1), p.calls.Load())

	do(t, srv, "/api/items?refresh=true")
	assert.Equal(t, int32(2), p.calls.Load())

	// Expire the cache.
	srv.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	do(t, srv, "/")
	assert.Equal(t, int32(3), p.calls.Load())

	var data map[string]any
	decodeResponse(t, do(t, srv, "/healthz"), &data)
	assert.Equal(t, "run-3", data["last_run"])
}

func TestHealthAnswersDuringRun(t *testing.T) {
	p := newGatedPipeline()
	srv := testServer(t, p)

	done := make(chan int, 1)
	go func() { done <- do(t, srv, "/").Code }()
	<-p.started
	defer p.abandon()

	rec := within(t, srv, "/healthz", time.Second)
	require.Equal(t, http.StatusOK, rec.Code)
	var data map[string]any
	decodeResponse(t, rec, &data)
	assert.NotContains(t, data, "last_run")

	p.unblock()
	assert.Equal(t, http.StatusOK, <-done)

	decodeResponse(t, do(t, srv, "/healthz"), &data)
	assert.Equal(t, "run-1", data["last_run"])
}

func TestCachedSnapshotServedDuringRefresh(t *testing.T) {
	p := newGatedPipeline()
	srv := testServer(t, p)

	done := make(chan int, 1)
	go func() { done <- do(t, srv, "/").Code }()
	<-p.started
	p.unblock()
	require.Equal(t, http.StatusOK, <-done)

	go func() { done <- do(t, srv, "/api/items?refresh=true").Code }()
	<-p.started
	defer p.abandon()

	var data ItemsResponse
	decodeResponse(t, within(t, srv, "/api/items", time.Second), &data)
	assert.Equal(t, "run-1", data.RunID)
	assert.Equal(t, http.StatusOK, within(t, srv, "/", time.Second).Code)

	p.unblock()
	assert.Equal(t, http.StatusOK, <-done)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestRunIgnoresClientCancellation(t *testing.T) {
	p := &fakePipeline{}
	srv := testServer(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/items", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.NotNil(t, p.lastCtx)
	assert.NoError(t, p.lastCtx.Err())
}

func TestHandleItems(t *testing.T) {
	srv := testServer(t, &fakePipeline{})

	rec := do(t, srv, "/api/items")
	require.Equal(t, http.StatusOK, rec.Code)

	var data ItemsResponse
	resp := decodeResponse(t, rec, &data)
	assert.True(t, resp.Success)
	assert.Equal(t, "run-1", data.RunID)
	assert.Equal(t, "2025-01-05 09:00:00", data.GeneratedAt)
	assert.False(t, data.Fallback)
	assert.Len(t, data.Items, 3)
	assert.Equal(t, map[models.Tier]int{models.TierRed: 1, models.TierAmber: 1, models.TierGreen: 1}, data.Counts)
	require.Len(t, data.Failed, 1)
	assert.Equal(t, "산업 재해", data.Failed[0].Keyword)
	assert.Equal(t, "http 503", data.Failed[0].Reason)
}

func TestHandleItemsFilters(t *testing.T) {
	srv := testServer(t, &fakePipeline{})

	var byKeyword ItemsResponse
	decodeResponse(t, do(t, srv, "/api/items?keyword=%ED%95%B4%ED%82%B9"), &byKeyword)
	assert.Len(t, byKeyword.Items, 2)

	var byRisk ItemsResponse
	decodeResponse(t, do(t, srv, "/api/items?risk=red"), &byRisk)
	require.Len(t, byRisk.Items, 1)
	assert.Equal(t, models.TierRed, byRisk.Items[0].Risk)

	var both ItemsResponse
	decodeResponse(t, do(t, srv, "/api/items?keyword=%EC%97%90%EC%8A%A4%EC%9B%90&risk=RED"), &both)
	assert.Empty(t, both.Items)
}

func TestHandleItemsBadRisk(t *testing.T) {
	p := &fakePipeline{}
	srv := testServer(t, p)

	rec := do(t, srv, "/api/items?risk=PURPLE")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec, nil)
	assert.False(t, resp.Success)
	assert.Equal(t, int32(0), p.calls.Load(), "invalid request must not trigger a run")
}

func TestPipelineErrorIs500(t *testing.T) {
	srv := testServer(t, &fakePipeline{err: collector.ErrNoKeywords})

	for _, path := range []string{"/", "/api/items"} {
		rec := do(t, srv, path)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		resp := decodeResponse(t, rec, nil)
		assert.Contains(t, resp.Error, "no keywords")
	}
}

func TestHandleClassify(t *testing.T) {
	srv := testServer(t, &fakePipeline{})

	tests := []struct {
		text    string
		risk    models.Tier
		trigger string
	}{
		{"해킹 공격으로 개인정보 유출", models.TierRed, "유출"},
		{"시스템 점검 안내", models.TierAmber, "점검"},
		{"신규 서비스 출시", models.TierGreen, ""},
	}
	for _, tt := range tests {
		rec := do(t, srv, "/api/classify?text="+url.QueryEscape(tt.text))
		require.Equal(t, http.StatusOK, rec.Code)
		var data ClassifyResponse
		decodeResponse(t, rec, &data)
		assert.Equal(t, tt.risk, data.Risk, tt.text)
		assert.Equal(t, tt.trigger, data.Trigger, tt.text)
	}

	rec := do(t, srv, "/api/classify")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	srv := testServer(t, &fakePipeline{})
	assert.Equal(t, http.StatusNotFound, do(t, srv, "/nope").Code)
}

func TestAddr(t *testing.T) {
	srv := testServer(t, &fakePipeline{})
	srv.cfg.API.Host = "0.0.0.0"
	srv.cfg.API.Port = 9090
	assert.Equal(t, "0.0.0.0:9090", srv.Addr())
}

// ════════════════════════════════════════════════════════════════════
// Lifecycle
// ════════════════════════════════════════════════════════════════════

func TestServeShutsDownOnCancel(t *testing.T) {
	srv := testServer(t, &fakePipeline{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeReportsListenerError(t *testing.T) {
	srv := testServer(t, &fakePipeline{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln.Close()

	err = srv.Serve(context.Background(), ln)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, http.ErrServerClosed))
}
