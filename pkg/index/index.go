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

// Package index maintains the on-disk full-text index over document text.
// The index is derived data: it is rebuilt from scratch after every import
// and never patched incrementally, so it can always be thrown away.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/scriptoriumhq/scriptorium/pkg/model"
)

// indexBatchSize is how many documents are flushed to the index at once.
const indexBatchSize = 1000

// queryPageSize is how many hits are pulled per page when collecting results.
const queryPageSize = 1000

// entry is what gets indexed per document. The text is stored so the index
// can serve highlights without a disk read.
type entry struct {
	Text string `json:"text"`
}

func buildMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()
	textField.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("text", textField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Index wraps a bleve index keyed by document GUID.
type Index struct {
	idx bleve.Index
}

// Open opens an existing index directory.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index at %s: %w", path, err)
	}
	return &Index{idx: idx}, nil
}

// Close releases the index.
func (ix *Index) Close() error {
	return ix.idx.Close()
}

// DocCount returns the number of indexed documents.
func (ix *Index) DocCount() (uint64, error) {
	return ix.idx.DocCount()
}

// Rebuild wipes any index at path and indexes every document's text in
// creation order. Documents whose text file is missing index as empty; they
// stay queryable by GUID count but match nothing.
func Rebuild(ctx context.Context, path, dataPath string, docs []*model.Document) (*Index, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("failed to clear index at %s: %w", path, err)
	}

	idx, err := bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index at %s: %w", path, err)
	}

	start := time.Now()
	batch := idx.NewBatch()
	indexed := 0
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			idx.Close()
			return nil, err
		}
		if err := batch.Index(doc.GUID, entry{Text: doc.Text(dataPath)}); err != nil {
			idx.Close()
			return nil, fmt.Errorf("failed to index document %s: %w", doc.GUID, err)
		}
		indexed++
		if batch.Size() >= indexBatchSize || i == len(docs)-1 {
			if err := idx.Batch(batch); err != nil {
				idx.Close()
				return nil, fmt.Errorf("failed to flush index batch: %w", err)
			}
			batch.Reset()
			slog.Info("Indexing documents", "indexed", indexed, "total", len(docs))
		}
	}

	slog.Info("Index rebuilt", "documents", indexed, "took", time.Since(start))
	return &Index{idx: idx}, nil
}

// Query runs a query-string search and returns the GUIDs of every matching
// document. The syntax supports quoted phrases and fuzzy terms ("term~1").
// Results are paged internally; callers get the complete hit set.
func (ix *Index) Query(ctx context.Context, queryStr string) ([]string, error) {
	var guids []string
	for from := 0; ; from += queryPageSize {
		req := bleve.NewSearchRequestOptions(
			bleve.NewQueryStringQuery(queryStr), queryPageSize, from, false)
		res, err := ix.idx.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to run query %q: %w", queryStr, err)
		}
		for _, hit := range res.Hits {
			guids = append(guids, hit.ID)
		}
		if uint64(from+len(res.Hits)) >= res.Total || len(res.Hits) == 0 {
			break
		}
	}
	return guids, nil
}
