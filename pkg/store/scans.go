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

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scriptoriumhq/scriptorium/pkg/model"
)

const scanColumns = `guid, created_at, updated_at, tags, comment,
	stem, album, album_index, title, path, url, thumb_url, scanned_at,
	media_archive, media_collection, media_box, media_folder, media_type,
	media_created_at`

// CreateScan inserts a scan. Pass a nil session to commit immediately.
func (s *Store) CreateScan(ctx context.Context, sess *Session, scan *model.Scan) error {
	return s.withSession(ctx, sess, func(sess *Session) error {
		_, err := sess.tx.ExecContext(ctx, `
			INSERT INTO scans (`+scanColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			scan.GUID, scan.CreatedAt, scan.UpdatedAt, scan.Tags, scan.Comment,
			scan.Stem, scan.Album, scan.AlbumIndex, scan.Title, scan.Path,
			scan.URL, scan.ThumbURL, scan.ScannedAt,
			scan.MediaArchive, scan.MediaCollection, scan.MediaBox,
			scan.MediaFolder, scan.MediaType, scan.MediaCreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert scan %s: %w", scan.GUID, err)
		}
		return nil
	})
}

func scanScanRow(row interface{ Scan(...any) error }) (*model.Scan, error) {
	var sc model.Scan
	err := row.Scan(&sc.GUID, &sc.CreatedAt, &sc.UpdatedAt, &sc.Tags, &sc.Comment,
		&sc.Stem, &sc.Album, &sc.AlbumIndex, &sc.Title, &sc.Path,
		&sc.URL, &sc.ThumbURL, &sc.ScannedAt,
		&sc.MediaArchive, &sc.MediaCollection, &sc.MediaBox,
		&sc.MediaFolder, &sc.MediaType, &sc.MediaCreatedAt)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

// GetScan fetches a scan by GUID.
func (s *Store) GetScan(ctx context.Context, guid string) (*model.Scan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+scanColumns+` FROM scans WHERE guid = ?`, guid)
	sc, err := scanScanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %s: %w", guid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan %s: %w", guid, err)
	}
	return sc, nil
}

// FindScan looks a scan up by its (album, stem) identity. Returns ErrNotFound
// when the archive has never seen this file.
func (s *Store) FindScan(ctx context.Context, album, stem string) (*model.Scan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+scanColumns+` FROM scans WHERE album = ? AND stem = ?`, album, stem)
	sc, err := scanScanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %s/%s: %w", album, stem, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find scan %s/%s: %w", album, stem, err)
	}
	return sc, nil
}

// DeleteScan removes a scan and its documents.
func (s *Store) DeleteScan(ctx context.Context, sess *Session, guid string) error {
	return s.withSession(ctx, sess, func(sess *Session) error {
		for _, q := range []string{
			`DELETE FROM corpus_documents WHERE document_guid IN
				(SELECT guid FROM documents WHERE scan_guid = ?)`,
			`DELETE FROM search_documents WHERE document_guid IN
				(SELECT guid FROM documents WHERE scan_guid = ?)`,
			`DELETE FROM documents WHERE scan_guid = ?`,
		} {
			if _, err := sess.tx.ExecContext(ctx, q, guid); err != nil {
				return fmt.Errorf("failed to delete documents of scan %s: %w", guid, err)
			}
		}
		res, err := sess.tx.ExecContext(ctx, `DELETE FROM scans WHERE guid = ?`, guid)
		if err != nil {
			return fmt.Errorf("failed to delete scan %s: %w", guid, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("scan %s: %w", guid, ErrNotFound)
		}
		return nil
	})
}

// TotalScans counts all scans.
func (s *Store) TotalScans(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return n, nil
}
