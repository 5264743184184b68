// Package api serves the index over HTTP as JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"maat-go/internal/maat"
	"maat-go/internal/model"
)

// Index is the subset of *maat.Service the handlers query.
type Index interface {
	Scenes(ctx context.Context, q maat.SceneQuery) ([]model.SceneEntry, error)
	SceneEntry(ctx context.Context, sid string) (model.SceneEntry, bool, error)
	KeywordHistogram(ctx context.Context) (model.KeywordHistogram, error)
	UserCollection(ctx context.Context, owner string) (model.CollectionIndex, error)
	Apps(ctx context.Context) ([]model.AppEntry, error)
	App(ctx context.Context, id string) (model.AppEntry, bool, error)
	Stats(ctx context.Context) (model.Stats, error)
}

var _ Index = (*maat.Service)(nil)

// Server holds the HTTP handlers.
type Server struct {
	index      Index
	logger     maat.Logger
	gatherer   prometheus.Gatherer
	retryAfter time.Duration
}

// NewServer creates a Server. gatherer may be nil, in which case /metrics
// is not mounted. retryAfter is advertised on 503 responses.
func NewServer(index Index, logger maat.Logger, gatherer prometheus.Gatherer, retryAfter time.Duration) *Server {
	if retryAfter <= 0 {
		retryAfter = maat.DefaultInterval
	}
	return &Server{index: index, logger: logger, gatherer: gatherer, retryAfter: retryAfter}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v2/scenes", s.handleScenes)
	mux.HandleFunc("GET /api/v2/scenes/{id...}", s.handleScene)
	mux.HandleFunc("GET /api/v2/keywords", s.handleKeywords)
	mux.HandleFunc("GET /api/v2/items/{owner}/{kind}", s.handleItems)
	mux.HandleFunc("GET /api/v2/apps", s.handleApps)
	mux.HandleFunc("GET /api/v2/apps/{id}", s.handleApp)
	mux.HandleFunc("GET /api/v2/stats", s.handleStats)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scenes, err := s.index.Scenes(r.Context(), maat.SceneQuery{
		Public:  truthy(q.Get("public")),
		Owner:   q.Get("owner"),
		Keyword: q.Get("kw"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, scenes, true)
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	entry, ok, err := s.index.SceneEntry(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		http.Error(w, "scene not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, r, entry, false)
}

func (s *Server) handleKeywords(w http.ResponseWriter, r *http.Request) {
	h, err := s.index.KeywordHistogram(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, h, true)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	kind := maat.AssetKind(r.PathValue("kind"))
	switch kind {
	case maat.KindModels, maat.KindPanoramas, maat.KindMedia:
	default:
		http.Error(w, "unknown item kind: "+string(kind), http.StatusBadRequest)
		return
	}

	c, err := s.index.UserCollection(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var items []string
	switch kind {
	case maat.KindModels:
		items = c.Models
	case maat.KindPanoramas:
		items = c.Panoramas
	case maat.KindMedia:
		items = c.Media
	}
	s.writeJSON(w, r, items, true)
}

func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	apps, err := s.index.Apps(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, apps, true)
}

func (s *Server) handleApp(w http.ResponseWriter, r *http.Request) {
	app, ok, err := s.index.App(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		http.Error(w, "app not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, r, app, false)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.index.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, st, false)
}

// writeJSON encodes v. Listings carry an ETag over the encoded body and
// answer a matching If-None-Match with 304.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v any, tagged bool) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encoding response", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if tagged {
		etag := `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("writing response", "path", r.URL.Path, "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case maat.IsScanError(err):
		s.logger.Warn("index unavailable", "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", strconv.Itoa(int(s.retryAfter.Seconds())))
		http.Error(w, "index unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, maat.ErrClosed):
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "request cancelled", http.StatusGatewayTimeout)
	default:
		s.logger.Error("query failed", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func truthy(v string) bool {
	switch v {
	case "1", "true", "yes":
		return true
	}
	return false
}
