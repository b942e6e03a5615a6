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

const searchColumns = `guid, created_at, updated_at, tags, comment,
	search_str, corpus_guid, status`

// CreateSearch inserts a search. Pass a nil session to commit immediately.
func (s *Store) CreateSearch(ctx context.Context, sess *Session, search *model.Search) error {
	return s.withSession(ctx, sess, func(sess *Session) error {
		_, err := sess.tx.ExecContext(ctx, `
			INSERT INTO searches (`+searchColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			search.GUID, search.CreatedAt, search.UpdatedAt, search.Tags,
			search.Comment, search.SearchStr, search.CorpusGUID,
			string(search.Status))
		if err != nil {
			return fmt.Errorf("failed to insert search %s: %w", search.GUID, err)
		}
		return nil
	})
}

func scanSearchRow(row interface{ Scan(...any) error }) (*model.Search, error) {
	var sr model.Search
	var status string
	err := row.Scan(&sr.GUID, &sr.CreatedAt, &sr.UpdatedAt, &sr.Tags, &sr.Comment,
		&sr.SearchStr, &sr.CorpusGUID, &status)
	if err != nil {
		return nil, err
	}
	sr.Status = model.Status(status)
	return &sr, nil
}

// GetSearch fetches a search by GUID.
func (s *Store) GetSearch(ctx context.Context, guid string) (*model.Search, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+searchColumns+` FROM searches WHERE guid = ?`, guid)
	sr, err := scanSearchRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("search %s: %w", guid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get search %s: %w", guid, err)
	}
	return sr, nil
}

// GetAllSearches returns every search, newest first.
func (s *Store) GetAllSearches(ctx context.Context) ([]*model.Search, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+searchColumns+` FROM searches
		ORDER BY created_at DESC, guid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	defer rows.Close()

	var searches []*model.Search
	for rows.Next() {
		sr, err := scanSearchRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list searches: %w", err)
		}
		searches = append(searches, sr)
	}
	return searches, rows.Err()
}

// SetSearchStatus advances a search through its lifecycle. Setting the current
// status again is a no-op; moving backwards is an error.
func (s *Store) SetSearchStatus(ctx context.Context, sess *Session, guid string, next model.Status) error {
	return s.withSession(ctx, sess, func(sess *Session) error {
		var current string
		err := sess.tx.QueryRowContext(ctx,
			`SELECT status FROM searches WHERE guid = ?`, guid).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("search %s: %w", guid, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read status of search %s: %w", guid, err)
		}
		cur := model.Status(current)
		if cur == next {
			return nil
		}
		if !cur.CanTransition(next) {
			return fmt.Errorf("search %s: invalid status transition %s -> %s", guid, cur, next)
		}
		if _, err := sess.tx.ExecContext(ctx, `
			UPDATE searches SET status = ?, updated_at = ? WHERE guid = ?`,
			string(next), model.Now(), guid); err != nil {
			return fmt.Errorf("failed to update status of search %s: %w", guid, err)
		}
		return nil
	})
}

// AttachDocument links a result document to a search. Attaching the same
// document twice is an error; check HasDocument first.
func (s *Store) AttachDocument(ctx context.Context, sess *Session, searchGUID, documentGUID string) error {
	return s.withSession(ctx, sess, func(sess *Session) error {
		if _, err := sess.tx.ExecContext(ctx, `
			INSERT INTO search_documents (search_guid, document_guid)
			VALUES (?, ?)`, searchGUID, documentGUID); err != nil {
			return fmt.Errorf("failed to attach document %s to search %s: %w",
				documentGUID, searchGUID, err)
		}
		return nil
	})
}

// HasDocument reports whether the search already carries the document.
func (s *Store) HasDocument(ctx context.Context, searchGUID, documentGUID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM search_documents
		WHERE search_guid = ? AND document_guid = ?`, searchGUID, documentGUID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check search membership: %w", err)
	}
	return n > 0, nil
}

// SearchDocuments returns a search's result documents, oldest first. Result
// order follows document creation, not index relevance.
func (s *Store) SearchDocuments(ctx context.Context, searchGUID string) ([]*model.Document, error) {
	docs, err := s.queryDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents
		JOIN search_documents sd ON sd.document_guid = documents.guid
		WHERE sd.search_guid = ?
		ORDER BY documents.created_at, documents.guid`, searchGUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents of search %s: %w", searchGUID, err)
	}
	return docs, nil
}

// SearchDocumentCount counts a search's result documents.
func (s *Store) SearchDocumentCount(ctx context.Context, searchGUID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM search_documents WHERE search_guid = ?`, searchGUID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents of search %s: %w", searchGUID, err)
	}
	return n, nil
}

// DeleteSearch removes a search, its result links, and its megadoc records.
// Megadoc files on disk are not touched.
func (s *Store) DeleteSearch(ctx context.Context, sess *Session, guid string) error {
	return s.withSession(ctx, sess, func(sess *Session) error {
		for _, q := range []string{
			`DELETE FROM search_documents WHERE search_guid = ?`,
			`DELETE FROM megadocs WHERE search_guid = ?`,
		} {
			if _, err := sess.tx.ExecContext(ctx, q, guid); err != nil {
				return fmt.Errorf("failed to delete children of search %s: %w", guid, err)
			}
		}
		res, err := sess.tx.ExecContext(ctx, `DELETE FROM searches WHERE guid = ?`, guid)
		if err != nil {
			return fmt.Errorf("failed to delete search %s: %w", guid, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("search %s: %w", guid, ErrNotFound)
		}
		return nil
	})
}
