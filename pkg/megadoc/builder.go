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

// Package megadoc assembles a search's result documents into a single
// downloadable artifact, one per filetype. Builds are idempotent per
// (search, filetype): an existing record short-circuits.
package megadoc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/scriptoriumhq/scriptorium/pkg/config"
	"github.com/scriptoriumhq/scriptorium/pkg/metrics"
	"github.com/scriptoriumhq/scriptorium/pkg/model"
	"github.com/scriptoriumhq/scriptorium/pkg/store"
)

// ErrNotImplemented is returned for a filetype no renderer exists for.
var ErrNotImplemented = errors.New("filetype not implemented")

// section is one document's contribution to a megadoc, resolved against its
// scan for provenance.
type section struct {
	doc  *model.Document
	scan *model.Scan
	text string
}

// Builder assembles megadocs.
type Builder struct {
	store *store.Store
	cfg   *config.Config
}

// New returns a Builder over the given store.
func New(st *store.Store, cfg *config.Config) *Builder {
	return &Builder{store: st, cfg: cfg}
}

// Build assembles the megadoc of one filetype for a search. The record moves
// PENDING to STARTED while sections are written and lands in SENDING at 100%
// progress, ready for upload. A search with no result documents is an error.
func (b *Builder) Build(ctx context.Context, sr *model.Search, filetype string) (*model.Megadoc, error) {
	if !model.SupportedFiletype(filetype) {
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, filetype)
	}

	if existing, err := b.store.FindMegadoc(ctx, sr.GUID, filetype); err == nil {
		slog.Info("Megadoc already exists, skipping build",
			"search", sr.GUID, "filetype", filetype, "guid", existing.GUID)
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	docs, err := b.store.SearchDocuments(ctx, sr.GUID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: search %s has no documents", model.ErrBadInput, sr.GUID)
	}

	filename := model.MegadocFilename(sr.SearchStr, filetype, model.Now())
	relPath := path.Join(filepath.ToSlash(b.cfg.MegadocPath()), filename)
	md := &model.Megadoc{
		Rec:        model.NewRec(),
		SearchGUID: sr.GUID,
		Filetype:   filetype,
		Filename:   filename,
		Path:       relPath,
		URL:        b.cfg.S3.URL + "/" + relPath,
		Status:     model.StatusPending,
	}
	if err := b.store.CreateMegadoc(ctx, nil, md); err != nil {
		return nil, err
	}
	if err := b.store.SetMegadocStatus(ctx, nil, md.GUID, model.StatusStarted); err != nil {
		return nil, err
	}

	outPath := filepath.Join(b.cfg.DataPath(), filepath.FromSlash(md.Path))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create megadoc directory: %w", err)
	}

	sections, err := b.resolveSections(ctx, docs)
	if err != nil {
		return nil, err
	}

	// Progress tracks sections actually written, not sections resolved.
	tick := func(done int) error {
		progress := float64(done) / float64(len(sections)) * 100
		return b.store.SetMegadocProgress(ctx, nil, md.GUID, progress)
	}

	switch filetype {
	case ".txt", ".md":
		err = b.writeText(sections, outPath, tick)
	case ".docx":
		err = b.writeDocx(sections, outPath, tick)
	default:
		err = fmt.Errorf("%w: %s", ErrNotImplemented, filetype)
	}
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat megadoc file: %w", err)
	}
	if err := b.store.SetMegadocFilesize(ctx, nil, md.GUID, fi.Size()); err != nil {
		return nil, err
	}
	if err := b.store.SetMegadocProgress(ctx, nil, md.GUID, 100); err != nil {
		return nil, err
	}
	if err := b.store.SetMegadocStatus(ctx, nil, md.GUID, model.StatusSending); err != nil {
		return nil, err
	}
	md.Filesize = fi.Size()
	md.Progress = 100
	md.Status = model.StatusSending

	metrics.MegadocsBuilt.WithLabelValues(filetype).Inc()
	slog.Info("Megadoc built", "search", sr.GUID, "filetype", filetype,
		"filename", filename, "sections", len(sections))
	return md, nil
}

// resolveSections loads each document's text and scan.
func (b *Builder) resolveSections(ctx context.Context, docs []*model.Document) ([]section, error) {
	sections := make([]section, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scan, err := b.store.GetScan(ctx, doc.ScanGUID)
		if err != nil {
			return nil, err
		}
		sections = append(sections, section{
			doc:  doc,
			scan: scan,
			text: doc.Text(b.cfg.DataPath()),
		})
	}
	return sections, nil
}
