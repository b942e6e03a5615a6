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

const megadocColumns = `guid, created_at, updated_at, tags, comment,
	search_guid, filetype, filename, path, url, status, progress, filesize`

// CreateMegadoc inserts a megadoc record. The unique index on
// (search_guid, filetype) rejects duplicates.
func (s *Store) CreateMegadoc(ctx context.Context, sess *Session, md *model.Megadoc) error {
	return s.withSession(ctx, sess, func(sess *Session) error {
		_, err := sess.tx.ExecContext(ctx, `
			INSERT INTO megadocs (`+megadocColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			md.GUID, md.CreatedAt, md.UpdatedAt, md.Tags, md.Comment,
			md.SearchGUID, md.Filetype, md.Filename, md.Path, md.URL,
			string(md.Status), md.Progress, md.Filesize)
		if err != nil {
			return fmt.Errorf("failed to insert megadoc %s: %w", md.GUID, err)
		}
		return nil
	})
}

func scanMegadocRow(row interface{ Scan(...any) error }) (*model.Megadoc, error) {
	var md model.Megadoc
	var status string
	err := row.Scan(&md.GUID, &md.CreatedAt, &md.UpdatedAt, &md.Tags, &md.Comment,
		&md.SearchGUID, &md.Filetype, &md.Filename, &md.Path, &md.URL,
		&status, &md.Progress, &md.Filesize)
	if err != nil {
		return nil, err
	}
	md.Status = model.Status(status)
	return &md, nil
}

// GetMegadoc fetches a megadoc by GUID.
func (s *Store) GetMegadoc(ctx context.Context, guid string) (*model.Megadoc, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+megadocColumns+` FROM megadocs WHERE guid = ?`, guid)
	md, err := scanMegadocRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("megadoc %s: %w", guid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get megadoc %s: %w", guid, err)
	}
	return md, nil
}

// FindMegadoc looks up the megadoc of one filetype for a search. Used for
// idempotent builds: an existing record means the artifact was already made.
func (s *Store) FindMegadoc(ctx context.Context, searchGUID, filetype string) (*model.Megadoc, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+megadocColumns+` FROM megadocs
		WHERE search_guid = ? AND filetype = ?`, searchGUID, filetype)
	md, err := scanMegadocRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("megadoc %s%s: %w", searchGUID, filetype, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find megadoc %s%s: %w", searchGUID, filetype, err)
	}
	return md, nil
}

// MegadocsForSearch returns a search's megadocs ordered by filetype.
func (s *Store) MegadocsForSearch(ctx context.Context, searchGUID string) ([]*model.Megadoc, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+megadocColumns+` FROM megadocs
		WHERE search_guid = ? ORDER BY filetype`, searchGUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list megadocs of search %s: %w", searchGUID, err)
	}
	defer rows.Close()

	var mds []*model.Megadoc
	for rows.Next() {
		md, err := scanMegadocRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list megadocs of search %s: %w", searchGUID, err)
		}
		mds = append(mds, md)
	}
	return mds, rows.Err()
}

// SetMegadocStatus advances a megadoc through its lifecycle. Setting the
// current status again is a no-op; moving backwards is an error.
func (s *Store) SetMegadocStatus(ctx context.Context, sess *Session, guid string, next model.Status) error {
	return s.withSession(ctx, sess, func(sess *Session) error {
		var current string
		err := sess.tx.QueryRowContext(ctx,
			`SELECT status FROM megadocs WHERE guid = ?`, guid).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("megadoc %s: %w", guid, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read status of megadoc %s: %w", guid, err)
		}
		cur := model.Status(current)
		if cur == next {
			return nil
		}
		if !cur.CanTransition(next) {
			return fmt.Errorf("megadoc %s: invalid status transition %s -> %s", guid, cur, next)
		}
		if _, err := sess.tx.ExecContext(ctx, `
			UPDATE megadocs SET status = ?, updated_at = ? WHERE guid = ?`,
			string(next), model.Now(), guid); err != nil {
			return fmt.Errorf("failed to update status of megadoc %s: %w", guid, err)
		}
		return nil
	})
}

// SetMegadocProgress records build progress. Progress only moves forward; a
// stale write below the stored value is ignored.
func (s *Store) SetMegadocProgress(ctx context.Context, sess *Session, guid string, progress float64) error {
	return s.withSession(ctx, sess, func(sess *Session) error {
		res, err := sess.tx.ExecContext(ctx, `
			UPDATE megadocs SET progress = MAX(progress, ?), updated_at = ?
			WHERE guid = ?`, progress, model.Now(), guid)
		if err != nil {
			return fmt.Errorf("failed to update progress of megadoc %s: %w", guid, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("megadoc %s: %w", guid, ErrNotFound)
		}
		return nil
	})
}

// SetMegadocFilesize records the artifact's size once the file is written.
func (s *Store) SetMegadocFilesize(ctx context.Context, sess *Session, guid string, filesize int64) error {
	return s.withSession(ctx, sess, func(sess *Session) error {
		res, err := sess.tx.ExecContext(ctx, `
			UPDATE megadocs SET filesize = ?, updated_at = ? WHERE guid = ?`,
			filesize, model.Now(), guid)
		if err != nil {
			return fmt.Errorf("failed to update filesize of megadoc %s: %w", guid, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("megadoc %s: %w", guid, ErrNotFound)
		}
		return nil
	})
}

