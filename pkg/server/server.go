// Copyright 2025 The Scriptorium Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the archive over HTTP: corpus status, search
// submission and polling, and Prometheus metrics. Search processing is
// asynchronous; POST answers 202 with a Location to poll.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/scriptoriumhq/scriptorium/pkg/config"
	"github.com/scriptoriumhq/scriptorium/pkg/metrics"
	"github.com/scriptoriumhq/scriptorium/pkg/model"
	"github.com/scriptoriumhq/scriptorium/pkg/pipeline"
	"github.com/scriptoriumhq/scriptorium/pkg/search"
	"github.com/scriptoriumhq/scriptorium/pkg/store"
)

// Server serves the HTTP API.
type Server struct {
	store    *store.Store
	cfg      *config.Config
	pipeline *pipeline.Pipeline
}

// New returns a Server over the given store and pipeline.
func New(st *store.Store, cfg *config.Config, p *pipeline.Pipeline) *Server {
	return &Server{store: st, cfg: cfg, pipeline: p}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(s.cors)

	r.Get("/", s.handleRoot)
	r.Post("/search", s.handleCreateSearch)
	r.Get("/search", s.handleListSearches)
	r.Get("/search/{guid}", s.handleGetSearch)
	r.Delete("/search/{guid}", s.handleDeleteSearch)
	r.Get("/megadoc/{guid}", s.handleGetMegadoc)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/log", s.handleLog)

	return r
}

// ListenAndServe runs the API until ctx is cancelled, then drains for up to
// ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.App.ClientURL)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain errors onto HTTP statuses.
func (s *Server) mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		writeError(w, http.StatusServiceUnavailable, "import in progress, try again later")
	case errors.Is(err, model.ErrBadInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, search.ErrNoCorpus):
		writeError(w, http.StatusConflict, "no corpus exists yet, run an import first")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		slog.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"apiVersion": s.cfg.App.Version,
		"name":       s.cfg.App.AppName,
		"loading":    s.pipeline.Loading(),
	}

	corpus, err := s.store.GetLatestCorpus(r.Context())
	switch {
	case err == nil:
		body["corpus"] = corpus.AsDict(true)
		body["checksum"] = corpus.Checksum
	case errors.Is(err, store.ErrNotFound):
		body["corpus"] = map[string]any{}
		body["checksum"] = ""
	default:
		s.mapError(w, err)
		return
	}

	if total, err := s.store.TotalDocuments(r.Context()); err == nil {
		body["totalDocuments"] = total
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCreateSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SearchStr      string `json:"searchStr"`
		SearchStrSnake string `json:"search_str"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SearchStr == "" {
		req.SearchStr = req.SearchStrSnake
	}

	sr, err := s.pipeline.StartSearch(r.Context(), req.SearchStr)
	if err != nil {
		s.mapError(w, err)
		return
	}

	// Processing outlives the request; poll the Location to follow it.
	go func() {
		if err := s.pipeline.ProcessSearch(context.Background(), sr); err != nil {
			slog.Error("Search processing failed", "guid", sr.GUID, "error", err)
		}
	}()

	w.Header().Set("Location", fmt.Sprintf("/search/%s", sr.GUID))
	writeJSON(w, http.StatusAccepted, sr.AsDict(true))
}

func (s *Server) handleListSearches(w http.ResponseWriter, r *http.Request) {
	searches, err := s.store.GetAllSearches(r.Context())
	if err != nil {
		s.mapError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(searches))
	for _, sr := range searches {
		out = append(out, sr.AsDict(true))
	}
	writeJSON(w, http.StatusOK, map[string]any{"searches": out})
}

func (s *Server) searchBody(r *http.Request, sr *model.Search) (map[string]any, error) {
	body := sr.AsDict(true)

	count, err := s.store.SearchDocumentCount(r.Context(), sr.GUID)
	if err != nil {
		return nil, err
	}
	body["resultCount"] = count

	mds, err := s.store.MegadocsForSearch(r.Context(), sr.GUID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(mds))
	for _, md := range mds {
		out = append(out, md.AsDict(true))
	}
	body["megadocs"] = out
	return body, nil
}

func (s *Server) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	sr, err := s.store.GetSearch(r.Context(), chi.URLParam(r, "guid"))
	if err != nil {
		s.mapError(w, err)
		return
	}
	body, err := s.searchBody(r, sr)
	if err != nil {
		s.mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleDeleteSearch(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSearch(r.Context(), nil, chi.URLParam(r, "guid")); err != nil {
		s.mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetMegadoc(w http.ResponseWriter, r *http.Request) {
	md, err := s.store.GetMegadoc(r.Context(), chi.URLParam(r, "guid"))
	if err != nil {
		s.mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, md.AsDict(true))
}
