package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/vectral/vectral/internal/collection"
	"github.com/vectral/vectral/internal/search"
	"github.com/vectral/vectral/internal/vectordb"
)

// Server exposes the database's in-memory API over HTTP, one handler per
// operation.
// No router dependency is wired here: nothing in the retrieved pack pulls
// in a third-party HTTP framework as a direct dependency (see DESIGN.md),
// so this follows the pack's own convention of a bare http.ServeMux
// (cuemby-warren's pkg/api/health.go).
type Server struct {
	db  *vectordb.DB
	mux *http.ServeMux
}

// NewServer builds the HTTP surface over db.
func NewServer(db *vectordb.DB) *Server {
	s := &Server{db: db, mux: http.NewServeMux()}

	s.mux.HandleFunc("POST /collections", s.createCollection)
	s.mux.HandleFunc("DELETE /collections/{name}", s.deleteCollection)
	s.mux.HandleFunc("PUT /collections/{name}/points/{id}", s.upsertPoint)
	s.mux.HandleFunc("GET /collections/{name}/points/{id}", s.getPoint)
	s.mux.HandleFunc("DELETE /collections/{name}/points/{id}", s.deletePoint)
	s.mux.HandleFunc("GET /collections/{name}/points", s.listIDs)
	s.mux.HandleFunc("POST /collections/{name}/search", s.search)
	s.mux.HandleFunc("GET /stats", s.stats)

	return s
}

// Handler returns the HTTP handler for embedding in an http.Server.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe blocks serving addr, mirroring the pack's bare
// http.ListenAndServe(addr, handler) convention with explicit timeouts
// (cuemby-warren's HealthServer.Start).
func (s *Server) ListenAndServe(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

type createCollectionRequest struct {
	Name         string `json:"name"`
	Dimension    int    `json:"dimension"`
	StrictFinite *bool  `json:"strict_finite,omitempty"`
}

func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, vectordb.KindInvalidArgument, err)
		return
	}

	stats, err := s.db.CreateCollection(req.Name, req.Dimension, req.StrictFinite)
	if err != nil {
		writeVectorDBError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, stats)
}

func (s *Server) deleteCollection(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.db.DeleteCollection(r.PathValue("name"))
	if err != nil {
		writeVectorDBError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

type upsertPointRequest struct {
	Values  []float32          `json:"values"`
	Payload collection.Payload `json:"payload,omitempty"`
}

func (s *Server) upsertPoint(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, vectordb.KindInvalidArgument, err)
		return
	}

	var req upsertPointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, vectordb.KindInvalidArgument, err)
		return
	}

	created, err := s.db.UpsertPoint(r.PathValue("name"), id, req.Values, req.Payload)
	if err != nil {
		writeVectorDBError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"created": created})
}

func (s *Server) getPoint(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, vectordb.KindInvalidArgument, err)
		return
	}

	values, payload, err := s.db.GetPoint(r.PathValue("name"), id)
	if err != nil {
		writeVectorDBError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Values  []float32          `json:"values"`
		Payload collection.Payload `json:"payload,omitempty"`
	}{values, payload})
}

func (s *Server) deletePoint(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, vectordb.KindInvalidArgument, err)
		return
	}

	deleted, err := s.db.DeletePoint(r.PathValue("name"), id)
	if err != nil {
		writeVectorDBError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (s *Server) listIDs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, vectordb.KindInvalidArgument, err)
			return
		}
		limit = parsed
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, vectordb.KindInvalidArgument, err)
			return
		}
		ids, err := s.db.ListIDsOffset(r.PathValue("name"), offset, limit)
		if err != nil {
			writeVectorDBError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			IDs []uint64 `json:"ids"`
		}{ids})
		return
	}

	var cursor *uint64
	if v := r.URL.Query().Get("cursor"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, vectordb.KindInvalidArgument, err)
			return
		}
		cursor = &parsed
	}

	ids, next, err := s.db.ListIDsPage(r.PathValue("name"), cursor, limit)
	if err != nil {
		writeVectorDBError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		IDs        []uint64 `json:"ids"`
		NextCursor *uint64  `json:"next_cursor,omitempty"`
	}{ids, next})
}

type searchRequest struct {
	Values         []float32      `json:"values"`
	Metric         string         `json:"metric"`
	Mode           string         `json:"mode"`
	K              int            `json:"k"`
	TargetRecall   *float64       `json:"target_recall,omitempty"`
	Filter         *search.Filter `json:"filter,omitempty"`
	IncludePayload bool           `json:"include_payload"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, vectordb.KindInvalidArgument, err)
		return
	}

	metric, err := parseMetricName(req.Metric)
	if err != nil {
		writeError(w, vectordb.KindInvalidArgument, err)
		return
	}

	mode, err := parseModeName(req.Mode)
	if err != nil {
		writeError(w, vectordb.KindInvalidArgument, err)
		return
	}

	result, err := s.db.Search(r.Context(), r.PathValue("name"), search.Request{
		Values:         req.Values,
		Metric:         metric,
		Mode:           mode,
		K:              req.K,
		TargetRecall:   req.TargetRecall,
		Filter:         req.Filter,
		IncludePayload: req.IncludePayload,
	})
	if err != nil {
		writeVectorDBError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.db.Stats())
}

var errUnknownName = errors.New("unknown metric or mode name")

func parseMetricName(s string) (search.Metric, error) {
	switch s {
	case "", "l2":
		return search.MetricL2, nil
	case "dot":
		return search.MetricDot, nil
	case "cosine":
		return search.MetricCosine, nil
	default:
		return 0, errUnknownName
	}
}

func parseModeName(s string) (search.Mode, error) {
	switch s {
	case "", "auto":
		return search.ModeAuto, nil
	case "exact":
		return search.ModeExact, nil
	case "ivf":
		return search.ModeIVF, nil
	default:
		return 0, errUnknownName
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeVectorDBError(w http.ResponseWriter, err error) {
	var vecErr *vectordb.Error
	if errors.As(err, &vecErr) {
		writeError(w, vecErr.Kind, err)
		return
	}
	writeError(w, vectordb.KindInternal, err)
}

func writeError(w http.ResponseWriter, kind vectordb.Kind, err error) {
	status := http.StatusInternalServerError
	switch kind {
	case vectordb.KindInvalidArgument:
		status = http.StatusBadRequest
	case vectordb.KindNotFound:
		status = http.StatusNotFound
	case vectordb.KindConflict:
		status = http.StatusConflict
	case vectordb.KindResourceExhausted:
		status = http.StatusTooManyRequests
	case vectordb.KindUnauthorized:
		status = http.StatusUnauthorized
	case vectordb.KindUnavailable:
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, struct {
		Kind  string `json:"kind"`
		Error string `json:"error"`
	}{kind.String(), err.Error()})
}
