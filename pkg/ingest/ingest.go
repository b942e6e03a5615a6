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

// Package ingest walks album directories of OCR output and records them as
// scans and documents. A scan is keyed by (album, stem): re-importing a file
// the archive already holds in the current batch is a no-op.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maruel/natural"

	"github.com/scriptoriumhq/scriptorium/pkg/config"
	"github.com/scriptoriumhq/scriptorium/pkg/metrics"
	"github.com/scriptoriumhq/scriptorium/pkg/model"
	"github.com/scriptoriumhq/scriptorium/pkg/store"
)

// Stats summarizes one album import.
type Stats struct {
	Created int // documents written
	Reused  int // files already in the archive, skipped
	Skipped int // files with unparsable names
}

// Importer ingests albums of OCR output into the store.
type Importer struct {
	store *store.Store
	cfg   *config.Config
}

// New returns an Importer over the given store.
func New(st *store.Store, cfg *config.Config) *Importer {
	return &Importer{store: st, cfg: cfg}
}

// albumDir returns the JSON directory of an album within the current batch.
func (im *Importer) albumDir(album string) string {
	return filepath.Join(im.cfg.BatchPath(), "json", album)
}

// ValidateAlbum checks that the album directory exists before any work
// starts. Imports are all-or-nothing across albums, so a typo should fail
// the request up front.
func (im *Importer) ValidateAlbum(album string) error {
	info, err := os.Stat(im.albumDir(album))
	if err != nil {
		return fmt.Errorf("%w: album %q not found under %s", model.ErrBadInput, album, im.cfg.BatchPath())
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: album %q is not a directory", model.ErrBadInput, album)
	}
	return nil
}

// ListAlbums returns every album directory under the batch json path in
// natural sort order. A batch with no albums is an error.
func (im *Importer) ListAlbums() ([]string, error) {
	jsonDir := filepath.Join(im.cfg.BatchPath(), "json")
	entries, err := os.ReadDir(jsonDir)
	if err != nil {
		return nil, fmt.Errorf("%w: no albums under %s", model.ErrBadInput, jsonDir)
	}
	var albums []string
	for _, e := range entries {
		if e.IsDir() {
			albums = append(albums, e.Name())
		}
	}
	if len(albums) == 0 {
		return nil, fmt.Errorf("%w: no albums under %s", model.ErrBadInput, jsonDir)
	}
	sort.Sort(natural.StringSlice(albums))
	return albums, nil
}

// listAlbumFiles returns the album's JSON filenames in natural sort order,
// so image_2 lands before image_10.
func (im *Importer) listAlbumFiles(album string) ([]string, error) {
	entries, err := os.ReadDir(im.albumDir(album))
	if err != nil {
		return nil, fmt.Errorf("failed to read album %s: %w", album, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(natural.StringSlice(names))
	return names, nil
}

// ImportAlbum ingests one album. Files whose names don't parse are skipped
// and counted, never fatal. Writes are committed every db batch_size
// documents so a crash loses at most one batch.
func (im *Importer) ImportAlbum(ctx context.Context, album string) (Stats, error) {
	names, err := im.listAlbumFiles(album)
	if err != nil {
		return Stats{}, err
	}
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(im.albumDir(album), name)
	}
	return im.importPaths(ctx, album, paths)
}

// ImportFiles ingests an explicit list of OCR JSON files, in natural sort
// order. Each file's album is its parent directory name.
func (im *Importer) ImportFiles(ctx context.Context, paths []string) (Stats, error) {
	sorted := append([]string(nil), paths...)
	sort.Sort(natural.StringSlice(sorted))
	return im.importPaths(ctx, "explicit file list", sorted)
}

func (im *Importer) importPaths(ctx context.Context, label string, paths []string) (Stats, error) {
	var stats Stats
	slog.Info("Importing", "source", label, "files", len(paths))

	// Scans already created in this run, keyed by (album, stem). Saves a DB
	// probe per duplicate and keeps the run deterministic.
	seen := map[string]string{}

	pending := make([]func(*store.Session) error, 0, im.cfg.DB.BatchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		batch := pending
		pending = pending[len(pending):]
		err := im.store.RunSession(ctx, func(sess *store.Session) error {
			for _, fn := range batch {
				if err := fn(sess); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		slog.Info("Import progress", "source", label,
			"documents", stats.Created, "total", len(paths))
		return nil
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		info, err := model.ParseScanPath(p)
		if err != nil {
			slog.Warn("Skipping file with unparsable name", "file", p, "error", err)
			metrics.ScansSkipped.Inc()
			stats.Skipped++
			continue
		}

		// (album, stem) is the scan's identity; a scan already holding a
		// document in this batch was ingested before and is skipped.
		key := info.Album + "/" + info.Stem
		scanGUID, ok := seen[key]
		if ok {
			stats.Reused++
			continue
		}
		if existing, err := im.store.FindScan(ctx, info.Album, info.Stem); err == nil {
			scanGUID = existing.GUID
			if _, err := im.store.FindDocument(ctx, scanGUID, im.cfg.App.BatchName); err == nil {
				seen[key] = scanGUID
				stats.Reused++
				continue
			} else if !errors.Is(err, store.ErrNotFound) {
				return stats, err
			}
		} else if errors.Is(err, store.ErrNotFound) {
			scan := im.newScan(info)
			scanGUID = scan.GUID
			pending = append(pending, func(sess *store.Session) error {
				return im.store.CreateScan(ctx, sess, scan)
			})
		} else {
			return stats, err
		}
		seen[key] = scanGUID

		doc := im.newDocument(info, scanGUID)
		pending = append(pending, func(sess *store.Session) error {
			return im.store.CreateDocument(ctx, sess, doc)
		})
		metrics.DocumentsIngested.Inc()
		stats.Created++

		if stats.Created%im.cfg.DB.BatchSize == 0 {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}

	slog.Info("Import done", "source", label,
		"created", stats.Created, "reused", stats.Reused, "skipped", stats.Skipped)
	return stats, nil
}

// cdnURL joins a relative archive path onto the public CDN base.
func (im *Importer) cdnURL(relPath string) string {
	return im.cfg.S3.URL + "/" + path.Clean(filepath.ToSlash(relPath))
}

func (im *Importer) newScan(info model.ScanInfo) *model.Scan {
	imgPath := path.Join("img", info.Album, info.Stem+".webp")
	thumbPath := path.Join("thumbs", info.Album, info.Stem+".webp")
	return &model.Scan{
		Rec:            model.NewRec(),
		Stem:           info.Stem,
		Album:          info.Album,
		AlbumIndex:     info.AlbumIndex,
		Title:          info.Title,
		Path:           imgPath,
		URL:            im.cdnURL(imgPath),
		ThumbURL:       im.cdnURL(thumbPath),
		ScannedAt:      info.ScannedAt,
		MediaCreatedAt: model.Epoch,
	}
}

func (im *Importer) newDocument(info model.ScanInfo, scanGUID string) *model.Document {
	batch := im.cfg.App.BatchName
	jsonPath := path.Join(batch, "json", info.Album, info.Stem+".json")
	textPath := path.Join(batch, "text", info.Album, info.Stem+".txt")
	return &model.Document{
		Rec:       model.NewRec(),
		ScanGUID:  scanGUID,
		BatchName: batch,
		JSONPath:  jsonPath,
		JSONURL:   im.cdnURL(jsonPath),
		TextPath:  textPath,
		TextURL:   im.cdnURL(textPath),
	}
}
