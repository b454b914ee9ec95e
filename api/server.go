// Package api provides the HTTP preview server for riskwatch.
//
// It renders the dashboard from a fresh (or recently cached) collection run
// and exposes the decoded dataset as JSON, so the report can be checked
// without writing it to disk.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/seenimoa/riskwatch/internal/collector"
	"github.com/seenimoa/riskwatch/internal/config"
	"github.com/seenimoa/riskwatch/internal/logging"
	"github.com/seenimoa/riskwatch/internal/report"
	"github.com/seenimoa/riskwatch/internal/severity"
	"github.com/seenimoa/riskwatch/pkg/models"
	"github.com/seenimoa/riskwatch/pkg/utils"
)

// Pipeline runs one collection. *collector.Aggregator satisfies it.
type Pipeline interface {
	Run(ctx context.Context, keywords []string) (*collector.Result, error)
}

// Server is the HTTP preview server.
type Server struct {
	router     chi.Router
	cfg        *config.Config
	pipeline   Pipeline
	classifier *severity.Classifier
	logger     *zap.Logger
	loc        *time.Location
	version    string
	now        func() time.Time

	runs     singleflight.Group // one collection run at a time; waiters share it
	mu       sync.RWMutex       // guards snapshot only, never held across a run
	snapshot *snapshot
}

// snapshot is one rendered run.
type snapshot struct {
	result *collector.Result
	page   []byte
	at     time.Time
}

// NewServer creates a server with all routes and middleware.
func NewServer(cfg *config.Config, pipeline Pipeline, logger *zap.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		pipeline:   pipeline,
		classifier: severity.FromLists(cfg.Severity.Red, cfg.Severity.Amber),
		logger:     logging.OrNop(logger).Named("api"),
		loc:        utils.LoadLocation(cfg.Timezone),
		version:    "dev",
		now:        time.Now,
	}
	s.router = s.buildRouter()
	return s
}

// SetVersion sets the version reported by /healthz.
func (s *Server) SetVersion(v string) {
	if v != "" {
		s.version = v
	}
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.API.Host, strconv.Itoa(s.cfg.API.Port))
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.runBudget() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()
	s.logger.Info("preview server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runBudget bounds a request that triggers a collection run.
func (s *Server) runBudget() time.Duration {
	if s.cfg.Collector.Deadline > 0 {
		return s.cfg.Collector.Deadline
	}
	return 2 * time.Minute
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.runBudget() + 15*time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/", s.handleIndex)

	r.Route("/api", func(r chi.Router) {
		r.Get("/items", s.handleItems)
		r.Get("/classify", s.handleClassify)
	})

	return r
}

// requestLogger logs one line per request with zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ItemsResponse is the body of GET /api/items.
type ItemsResponse struct {
	RunID       string                 `json:"run_id"`
	GeneratedAt string                 `json:"generated_at"`
	Fallback    bool                   `json:"fallback"`
	Keywords    []string               `json:"keywords"`
	Counts      map[models.Tier]int    `json:"counts"`
	Items       []models.NewsItem      `json:"items"`
	Failed      []report.FailedKeyword `json:"failed,omitempty"`
}

// ClassifyResponse is the body of GET /api/classify.
type ClassifyResponse struct {
	Text    string      `json:"text"`
	Risk    models.Tier `json:"risk"`
	Trigger string      `json:"trigger,omitempty"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"status":  "ok",
		"version": s.version,
		"time":    utils.FormatDateTime(s.now(), s.loc),
	}

	if snap := s.cached(); snap != nil {
		data["last_run"] = snap.result.RunID
		data["last_run_at"] = utils.FormatDateTime(snap.at, s.loc)
	}

	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap, err := s.current(r.Context(), wantsRefresh(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(snap.page)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	var risk models.Tier
	if v := r.URL.Query().Get("risk"); v != "" {
		t, err := models.ParseTier(strings.ToUpper(v))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		risk = t
	}
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))

	snap, err := s.current(r.Context(), wantsRefresh(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	res := snap.result
	items := make([]models.NewsItem, 0, len(res.Items))
	for _, it := range res.Items {
		if keyword != "" && it.Keyword != keyword {
			continue
		}
		if risk != "" && it.Risk != risk {
			continue
		}
		items = append(items, it)
	}

	resp := ItemsResponse{
		RunID:       res.RunID,
		GeneratedAt: utils.FormatDateTime(res.StartedAt, s.loc),
		Fallback:    res.Fallback,
		Keywords:    res.Keywords,
		Counts:      models.TierCounts(items),
		Items:       items,
	}
	for _, o := range res.Failed() {
		resp.Failed = append(resp.Failed, report.FailedKeyword{Keyword: o.Keyword, Reason: o.Reason()})
	}
	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if strings.TrimSpace(text) == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	tier, trigger := s.classifier.Match(text)
	s.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    ClassifyResponse{Text: text, Risk: tier, Trigger: trigger},
	})
}

// current returns the cached snapshot, running the pipeline when the cache
// is empty, expired or a refresh is forced. Requests arriving while a run is
// in flight wait for that run instead of starting another.
func (s *Server) current(ctx context.Context, refresh bool) (*snapshot, error) {
	if snap := s.cached(); snap != nil && !refresh && s.now().Sub(snap.at) < s.cfg.API.CacheTTL {
		return snap, nil
	}

	v, err, _ := s.runs.Do("run", func() (any, error) {
		// A client hanging up must not turn the shared run into a fallback.
		return s.collect(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot), nil
}

// cached returns the last published snapshot, or nil.
func (s *Server) cached() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// collect runs the pipeline, renders the page and publishes the snapshot.
func (s *Server) collect(ctx context.Context) (*snapshot, error) {
	res, err := s.pipeline.Run(ctx, s.cfg.Keywords)
	if err != nil {
		return nil, err
	}
	page, err := report.Generate(res, report.Options{Title: s.cfg.Report.Title, Location: s.loc})
	if err != nil {
		s.logger.Error("rendering report", zap.String("run_id", res.RunID), zap.Error(err))
		return nil, err
	}

	snap := &snapshot{result: res, page: page, at: s.now()}
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
	return snap, nil
}

func wantsRefresh(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return v
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write JSON response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
