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

const documentColumns = `guid, created_at, updated_at, tags, comment,
	scan_guid, batch_name, json_path, json_url, text_path, text_url`

// CreateDocument inserts a document. Pass a nil session to commit immediately.
func (s *Store) CreateDocument(ctx context.Context, sess *Session, doc *model.Document) error {
	return s.withSession(ctx, sess, func(sess *Session) error {
		_, err := sess.tx.ExecContext(ctx, `
			INSERT INTO documents (`+documentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			doc.GUID, doc.CreatedAt, doc.UpdatedAt, doc.Tags, doc.Comment,
			doc.ScanGUID, doc.BatchName, doc.JSONPath, doc.JSONURL,
			doc.TextPath, doc.TextURL)
		if err != nil {
			return fmt.Errorf("failed to insert document %s: %w", doc.GUID, err)
		}
		return nil
	})
}

func scanDocumentRow(row interface{ Scan(...any) error }) (*model.Document, error) {
	var d model.Document
	err := row.Scan(&d.GUID, &d.CreatedAt, &d.UpdatedAt, &d.Tags, &d.Comment,
		&d.ScanGUID, &d.BatchName, &d.JSONPath, &d.JSONURL,
		&d.TextPath, &d.TextURL)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDocument fetches a document by GUID.
func (s *Store) GetDocument(ctx context.Context, guid string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE guid = ?`, guid)
	d, err := scanDocumentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", guid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", guid, err)
	}
	return d, nil
}

// FindDocument looks a document up by its scan and batch. Returns ErrNotFound
// when the scan has no document in that batch; used by the importer to keep
// re-ingests free of duplicates.
func (s *Store) FindDocument(ctx context.Context, scanGUID, batchName string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE scan_guid = ? AND batch_name = ?
		ORDER BY created_at, guid LIMIT 1`, scanGUID, batchName)
	d, err := scanDocumentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s/%s: %w", scanGUID, batchName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document %s/%s: %w", scanGUID, batchName, err)
	}
	return d, nil
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]*model.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		d, err := scanDocumentRow(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetAllDocuments returns every document, oldest first. Creation order is the
// canonical document order throughout the archive.
func (s *Store) GetAllDocuments(ctx context.Context) ([]*model.Document, error) {
	docs, err := s.queryDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents ORDER BY created_at, guid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// DocumentsForScan returns the documents derived from one scan, oldest first.
func (s *Store) DocumentsForScan(ctx context.Context, scanGUID string) ([]*model.Document, error) {
	docs, err := s.queryDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE scan_guid = ? ORDER BY created_at, guid`, scanGUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents for scan %s: %w", scanGUID, err)
	}
	return docs, nil
}

// TotalDocuments counts all documents.
func (s *Store) TotalDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// DeleteDocument removes a document and its corpus and search memberships.
func (s *Store) DeleteDocument(ctx context.Context, sess *Session, guid string) error {
	return s.withSession(ctx, sess, func(sess *Session) error {
		for _, q := range []string{
			`DELETE FROM corpus_documents WHERE document_guid = ?`,
			`DELETE FROM search_documents WHERE document_guid = ?`,
		} {
			if _, err := sess.tx.ExecContext(ctx, q, guid); err != nil {
				return fmt.Errorf("failed to detach document %s: %w", guid, err)
			}
		}
		res, err := sess.tx.ExecContext(ctx, `DELETE FROM documents WHERE guid = ?`, guid)
		if err != nil {
			return fmt.Errorf("failed to delete document %s: %w", guid, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("document %s: %w", guid, ErrNotFound)
		}
		return nil
	})
}
