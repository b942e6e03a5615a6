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

// Package pipeline orchestrates the two long-running flows: importing albums
// into a fresh corpus and index, and running a search through to uploaded
// megadocs. A process-wide loading latch keeps searches out while an import
// rebuilds the index under them.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/scriptoriumhq/scriptorium/pkg/config"
	"github.com/scriptoriumhq/scriptorium/pkg/index"
	"github.com/scriptoriumhq/scriptorium/pkg/ingest"
	"github.com/scriptoriumhq/scriptorium/pkg/megadoc"
	"github.com/scriptoriumhq/scriptorium/pkg/model"
	"github.com/scriptoriumhq/scriptorium/pkg/search"
	"github.com/scriptoriumhq/scriptorium/pkg/store"
)

// ErrBusy means an import holds the loading latch; searches bounce until it
// clears.
var ErrBusy = errors.New("import in progress")

// MegadocUploader sends a built megadoc to the object store. Nil disables
// uploads; artifacts then stay local in SENDING.
type MegadocUploader interface {
	UploadMegadoc(ctx context.Context, md *model.Megadoc) error
}

// Pipeline wires the importer, searcher, builder, and uploader together.
type Pipeline struct {
	store    *store.Store
	cfg      *config.Config
	importer *ingest.Importer
	searcher *search.Searcher
	builder  *megadoc.Builder
	uploader MegadocUploader

	loading atomic.Bool
}

// New returns a Pipeline. uploader may be nil to run without an object store.
func New(st *store.Store, cfg *config.Config, uploader MegadocUploader) *Pipeline {
	return &Pipeline{
		store:    st,
		cfg:      cfg,
		importer: ingest.New(st, cfg),
		searcher: search.New(st, cfg),
		builder:  megadoc.New(st, cfg),
		uploader: uploader,
	}
}

// Loading reports whether an import currently holds the latch.
func (p *Pipeline) Loading() bool {
	return p.loading.Load()
}

// TryLock takes the loading latch, or returns ErrBusy when an import already
// holds it.
func (p *Pipeline) TryLock() error {
	if !p.loading.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

// Unlock releases the loading latch.
func (p *Pipeline) Unlock() {
	p.loading.Store(false)
}

// StartLoad imports albums in parallel, then cuts a corpus snapshot and
// rebuilds the index. An empty albums list means every album found under the
// batch json path; a non-empty list restricts the import to the named albums.
// Any album failing means no snapshot and no rebuild; sibling albums still
// run to completion so their committed batches are consistent. Albums are
// validated before any work starts.
func (p *Pipeline) StartLoad(ctx context.Context, albums []string) error {
	if err := p.TryLock(); err != nil {
		return err
	}
	defer p.Unlock()

	if len(albums) == 0 {
		var err error
		if albums, err = p.importer.ListAlbums(); err != nil {
			return err
		}
	}
	for _, album := range albums {
		if err := p.importer.ValidateAlbum(album); err != nil {
			return err
		}
	}

	// A bare group, not WithContext: one album failing must not cancel its
	// siblings mid-batch.
	var g errgroup.Group
	if limit := p.cfg.OpenFileLimit / 2; limit > 0 {
		// Each album import holds a couple of files open at a time.
		g.SetLimit(limit)
	}
	for _, album := range albums {
		album := album
		g.Go(func() error {
			_, err := p.importer.ImportAlbum(ctx, album)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	corpus, err := p.importer.Snapshot(ctx)
	if err != nil {
		return err
	}

	docs, err := p.store.CorpusDocuments(ctx, corpus.GUID)
	if err != nil {
		return err
	}
	idx, err := index.Rebuild(ctx, p.cfg.IndexPath(), p.cfg.DataPath(), docs)
	if err != nil {
		return err
	}
	return idx.Close()
}

// StartSearch validates and records a new search. Processing happens in
// ProcessSearch, which callers may run synchronously or in the background.
func (p *Pipeline) StartSearch(ctx context.Context, searchStr string) (*model.Search, error) {
	if p.loading.Load() {
		return nil, ErrBusy
	}
	return p.searcher.Create(ctx, searchStr)
}

// ProcessSearch runs a recorded search and fans out one megadoc build and
// upload per configured filetype. Filetypes run in parallel; within one
// filetype the upload strictly follows the build. A search with no hits
// completes without artifacts.
func (p *Pipeline) ProcessSearch(ctx context.Context, sr *model.Search) error {
	if err := p.searcher.Run(ctx, sr); err != nil {
		return err
	}

	n, err := p.store.SearchDocumentCount(ctx, sr.GUID)
	if err != nil {
		return err
	}
	if n == 0 {
		slog.Info("Search matched nothing, skipping megadocs", "guid", sr.GUID)
		return nil
	}

	var g errgroup.Group
	for _, filetype := range p.cfg.App.MegadocTypes {
		filetype := filetype
		g.Go(func() error {
			md, err := p.builder.Build(ctx, sr, filetype)
			if err != nil {
				return err
			}
			if p.uploader == nil {
				slog.Info("No uploader configured, megadoc left on disk",
					"megadoc", md.GUID, "path", md.Path)
				return nil
			}
			if md.Status == model.StatusSuccess {
				return nil
			}
			return p.uploader.UploadMegadoc(ctx, md)
		})
	}
	return g.Wait()
}
