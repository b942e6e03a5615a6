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

package ingest

import (
	"context"
	"fmt"
	"hash/crc32"
	"log/slog"

	"github.com/scriptoriumhq/scriptorium/pkg/model"
)

// Snapshot freezes the current document set as a new corpus. The checksum is
// CRC32 over every document's text concatenated in creation order, so two
// corpuses with identical content carry identical checksums regardless of
// when they were cut.
func (im *Importer) Snapshot(ctx context.Context) (*model.Corpus, error) {
	docs, err := im.store.GetAllDocuments(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents to snapshot", model.ErrBadInput)
	}

	sum := uint32(0)
	guids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sum = crc32.Update(sum, crc32.IEEETable, []byte(doc.Text(im.cfg.DataPath())))
		guids = append(guids, doc.GUID)
	}

	corpus := &model.Corpus{
		Rec:           model.NewRec(),
		Checksum:      fmt.Sprintf("%08x", sum),
		DocumentCount: len(docs),
	}
	if err := im.store.CreateCorpus(ctx, nil, corpus, guids); err != nil {
		return nil, err
	}

	slog.Info("Corpus snapshot created", "guid", corpus.GUID,
		"documents", corpus.DocumentCount, "checksum", corpus.Checksum)
	return corpus, nil
}
