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

// Package search runs user queries against the full-text index and records
// the hits as search result memberships.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/scriptoriumhq/scriptorium/pkg/config"
	"github.com/scriptoriumhq/scriptorium/pkg/index"
	"github.com/scriptoriumhq/scriptorium/pkg/metrics"
	"github.com/scriptoriumhq/scriptorium/pkg/model"
	"github.com/scriptoriumhq/scriptorium/pkg/store"
)

// ErrNoCorpus means no import has ever completed, so there is nothing to
// search against.
var ErrNoCorpus = errors.New("no corpus exists")

// ErrIndexOutOfSync means the index returned a document the database does not
// know. The index is stale; re-run the import to rebuild it.
var ErrIndexOutOfSync = errors.New("index out of sync with database")

// minSearchLen is the shortest accepted query. Shorter strings match too much
// of an OCR corpus to be useful.
const minSearchLen = 3

// Searcher creates and executes searches.
type Searcher struct {
	store *store.Store
	cfg   *config.Config
}

// New returns a Searcher over the given store.
func New(st *store.Store, cfg *config.Config) *Searcher {
	return &Searcher{store: st, cfg: cfg}
}

// Create validates the query and records a PENDING search bound to the
// current corpus. Execution happens separately; see Run.
func (s *Searcher) Create(ctx context.Context, searchStr string) (*model.Search, error) {
	searchStr = strings.TrimSpace(searchStr)
	if len(searchStr) < minSearchLen {
		return nil, fmt.Errorf("%w: search string must be at least %d characters",
			model.ErrBadInput, minSearchLen)
	}

	corpus, err := s.store.GetLatestCorpus(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoCorpus
	}
	if err != nil {
		return nil, err
	}

	sr := &model.Search{
		Rec:        model.NewRec(),
		SearchStr:  searchStr,
		CorpusGUID: corpus.GUID,
		Status:     model.StatusPending,
	}
	if err := s.store.CreateSearch(ctx, nil, sr); err != nil {
		return nil, err
	}
	metrics.SearchesStarted.Inc()
	return sr, nil
}

// Run executes a recorded search: queries the index, resolves each hit to its
// document, and attaches the results. The search moves to STARTED on the
// first attachment and to SUCCESS when every hit is recorded. A hit the
// database cannot resolve aborts with ErrIndexOutOfSync.
func (s *Searcher) Run(ctx context.Context, sr *model.Search) error {
	idx, err := index.Open(s.cfg.IndexPath())
	if err != nil {
		return err
	}
	defer idx.Close()

	guids, err := idx.Query(ctx, sr.SearchStr)
	if err != nil {
		return err
	}
	slog.Info("Search matched documents", "guid", sr.GUID,
		"search_str", sr.SearchStr, "hits", len(guids))

	started := false
	for _, docGUID := range guids {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := s.store.GetDocument(ctx, docGUID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: document %s", ErrIndexOutOfSync, docGUID)
			}
			return err
		}

		dup, err := s.store.HasDocument(ctx, sr.GUID, docGUID)
		if err != nil {
			return err
		}
		if dup {
			slog.Warn("Document already attached to search",
				"search", sr.GUID, "document", docGUID)
			continue
		}

		if err := s.store.AttachDocument(ctx, nil, sr.GUID, docGUID); err != nil {
			return err
		}
		if !started {
			if err := s.store.SetSearchStatus(ctx, nil, sr.GUID, model.StatusStarted); err != nil {
				return err
			}
			started = true
		}
	}

	return s.store.SetSearchStatus(ctx, nil, sr.GUID, model.StatusSuccess)
}
