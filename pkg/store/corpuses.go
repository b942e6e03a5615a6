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

const corpusColumns = `guid, created_at, updated_at, tags, comment,
	checksum, document_count`

// CreateCorpus inserts a corpus snapshot together with its membership rows.
// The snapshot is immutable once committed.
func (s *Store) CreateCorpus(ctx context.Context, sess *Session, corpus *model.Corpus, documentGUIDs []string) error {
	return s.withSession(ctx, sess, func(sess *Session) error {
		_, err := sess.tx.ExecContext(ctx, `
			INSERT INTO corpuses (`+corpusColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			corpus.GUID, corpus.CreatedAt, corpus.UpdatedAt, corpus.Tags,
			corpus.Comment, corpus.Checksum, corpus.DocumentCount)
		if err != nil {
			return fmt.Errorf("failed to insert corpus %s: %w", corpus.GUID, err)
		}
		for _, docGUID := range documentGUIDs {
			if _, err := sess.tx.ExecContext(ctx, `
				INSERT INTO corpus_documents (corpus_guid, document_guid)
				VALUES (?, ?)`, corpus.GUID, docGUID); err != nil {
				return fmt.Errorf("failed to attach document %s to corpus %s: %w",
					docGUID, corpus.GUID, err)
			}
		}
		return nil
	})
}

func scanCorpusRow(row interface{ Scan(...any) error }) (*model.Corpus, error) {
	var c model.Corpus
	err := row.Scan(&c.GUID, &c.CreatedAt, &c.UpdatedAt, &c.Tags, &c.Comment,
		&c.Checksum, &c.DocumentCount)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCorpus fetches a corpus by GUID.
func (s *Store) GetCorpus(ctx context.Context, guid string) (*model.Corpus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+corpusColumns+` FROM corpuses WHERE guid = ?`, guid)
	c, err := scanCorpusRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("corpus %s: %w", guid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get corpus %s: %w", guid, err)
	}
	return c, nil
}

// GetLatestCorpus returns the most recently created corpus, or ErrNotFound
// when no import has ever completed.
func (s *Store) GetLatestCorpus(ctx context.Context) (*model.Corpus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+corpusColumns+` FROM corpuses
		ORDER BY created_at DESC, guid DESC LIMIT 1`)
	c, err := scanCorpusRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest corpus: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest corpus: %w", err)
	}
	return c, nil
}

// CorpusDocuments returns the snapshot's members, oldest first.
func (s *Store) CorpusDocuments(ctx context.Context, corpusGUID string) ([]*model.Document, error) {
	docs, err := s.queryDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents
		JOIN corpus_documents cd ON cd.document_guid = documents.guid
		WHERE cd.corpus_guid = ?
		ORDER BY documents.created_at, documents.guid`, corpusGUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents of corpus %s: %w", corpusGUID, err)
	}
	return docs, nil
}

// TotalCorpuses counts all corpus snapshots.
func (s *Store) TotalCorpuses(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM corpuses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count corpuses: %w", err)
	}
	return n, nil
}
