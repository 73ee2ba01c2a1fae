// Package httpapi serves session datasets over the same JSON shapes the
// analysis backend speaks, so one datasage instance can act as the backend
// of another.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datasage-cli/internal/backend"
	"github.com/KaramelBytes/datasage-cli/internal/ingest"
	"github.com/KaramelBytes/datasage-cli/internal/logging"
	"github.com/KaramelBytes/datasage-cli/internal/profile"
	"github.com/KaramelBytes/datasage-cli/internal/session"
	"github.com/KaramelBytes/datasage-cli/internal/store"
)

// History is the snapshot lookup the server needs.
type History interface {
	ListSnapshots(ctx context.Context, sessionID string) ([]store.Snapshot, error)
}

// Config holds server dependencies.
type Config struct {
	Addr        string
	SessionsDir string
	Ingest      ingest.Options
	History     History
	Logger      *zap.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg    Config
	router *chi.Mux
	logger *zap.Logger
}

// New builds the router. History may be nil.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg, router: chi.NewRouter(), logger: logging.OrNop(cfg.Logger)}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/sessions", s.handleSessions)
	s.router.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/overview", s.handleOverview)
		r.Get("/preview", s.handlePreview)
		r.Get("/all_statistics", s.handleAllStatistics)
		r.Get("/columns/{column}/statistics", s.handleStatistics)
		r.Get("/columns/{column}/profile", s.handleColumnProfile)
		r.Get("/distribution/{column}", s.handleDistribution)
		r.Get("/correlation", s.handleCorrelation)
		r.Get("/history", s.handleHistory)
	})
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Run listens on cfg.Addr until ctx is cancelled, then shuts down gracefully.
// ready, when non-nil, receives the bound address once listening.
func (s *Server) Run(ctx context.Context, ready func(addr string)) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if ready != nil {
		ready(ln.Addr().String())
	}
	s.logger.Info("http api listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("http api stopped")
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	list, err := session.List(s.cfg.SessionsDir)
	if err != nil {
		s.fail(w, err)
		return
	}
	if list == nil {
		list = []*session.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ds, err := s.loadDataset(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := profile.ProfileDataset(ds)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// defaultPreviewRows is how many rows /preview returns without ?rows=.
const defaultPreviewRows = 10

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	limit := defaultPreviewRows
	if q := r.URL.Query().Get("rows"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "rows must be a non-negative integer")
			return
		}
		limit = n
	}
	ds, err := s.loadDataset(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	cols := ds.Header()
	n := min(limit, len(ds.Rows))
	data := make([][]any, n)
	for i, row := range ds.Rows[:n] {
		data[i] = make([]any, len(cols))
		for j, c := range cols {
			if v := row[c]; !v.IsMissing() {
				data[i][j] = v.Raw
			}
		}
	}
	if cols == nil {
		cols = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"columns":     cols,
		"data":        data,
		"totalRows":   len(ds.Rows),
		"previewRows": n,
	})
}

func (s *Server) handleAllStatistics(w http.ResponseWriter, r *http.Request) {
	ds, err := s.loadDataset(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := profile.ProfileDataset(ds)
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make(map[string]backend.ColumnStatistics, len(p.Fields))
	for _, f := range p.Fields {
		out[f.Name] = backend.StatisticsFromProfile(f)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	ds, err := s.loadDataset(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := profile.ProfileColumn(ds, pathParam(r, "column"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, backend.StatisticsFromProfile(p))
}

func (s *Server) handleColumnProfile(w http.ResponseWriter, r *http.Request) {
	ds, err := s.loadDataset(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := profile.ProfileColumn(ds, pathParam(r, "column"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":         p,
		"recommendations": profile.Recommend(p),
	})
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	ds, err := s.loadDataset(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	h, err := profile.HistogramFor(ds, pathParam(r, "column"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, backend.DistributionFromHistogram(h))
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	ds, err := s.loadDataset(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	m, err := profile.Correlations(ds)
	if err != nil {
		s.fail(w, err)
		return
	}
	if len(m.Columns) < 2 {
		writeError(w, http.StatusBadRequest, "need at least two numeric columns for correlation")
		return
	}
	writeJSON(w, http.StatusOK, backend.CorrelationFromMatrix(m))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, err := session.Find(s.cfg.SessionsDir, pathParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	snaps := []store.Snapshot{}
	if s.cfg.History != nil {
		list, err := s.cfg.History.ListSnapshots(r.Context(), sess.ID)
		if err != nil {
			s.fail(w, err)
			return
		}
		snaps = append(snaps, list...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sess.ID, "snapshots": snaps})
}

// loadDataset resolves the {id} session and reads its dataset from disk.
func (s *Server) loadDataset(r *http.Request) (*profile.Dataset, error) {
	sess, err := session.Find(s.cfg.SessionsDir, pathParam(r, "id"))
	if err != nil {
		return nil, err
	}
	path := sess.DatasetPath()
	if path == "" {
		return nil, fmt.Errorf("session %s has no dataset: %w", sess.ID, session.ErrNotFound)
	}
	res, err := ingest.Load(path, s.cfg.Ingest)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	return res.Dataset, nil
}

// fail maps domain errors to HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, profile.ErrUnknownColumn):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ingest.ErrUnsupportedFormat), errors.Is(err, profile.ErrDuplicateColumn):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// pathParam returns a route parameter as text. chi matches on RawPath when
// the request carried escapes the decoded Path cannot round-trip (such as
// %2F); only then is the value still escaped.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v
	}
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
