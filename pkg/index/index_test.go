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

package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptoriumhq/scriptorium/pkg/model"
)

// writeDoc lays a text file on disk and returns a document pointing at it.
func writeDoc(t *testing.T, dataPath, name, text string) *model.Document {
	t.Helper()
	rel := filepath.Join("00", "text", "album", name+".txt")
	full := filepath.Join(dataPath, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(text), 0o644))
	return &model.Document{Rec: model.NewRec(), TextPath: rel}
}

func TestRebuildAndQuery(t *testing.T) {
	dataPath := t.TempDir()
	indexPath := filepath.Join(dataPath, "00", "index")
	ctx := context.Background()

	docA := writeDoc(t, dataPath, "a", "the quick brown fox")
	docB := writeDoc(t, dataPath, "b", "liberation and solidarity")
	docC := writeDoc(t, dataPath, "c", "a quick note on solidarity")

	idx, err := Rebuild(ctx, indexPath, dataPath, []*model.Document{docA, docB, docC})
	require.NoError(t, err)
	defer idx.Close()

	n, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	guids, err := idx.Query(ctx, "quick")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{docA.GUID, docC.GUID}, guids)

	guids, err = idx.Query(ctx, "solidarity")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{docB.GUID, docC.GUID}, guids)

	guids, err = idx.Query(ctx, "missingword")
	require.NoError(t, err)
	assert.Empty(t, guids)
}

func TestQueryFuzzy(t *testing.T) {
	dataPath := t.TempDir()
	indexPath := filepath.Join(dataPath, "00", "index")
	ctx := context.Background()

	// OCR noise: "liberation" read as "liberatlon".
	doc := writeDoc(t, dataPath, "noisy", "the liberatlon archive")

	idx, err := Rebuild(ctx, indexPath, dataPath, []*model.Document{doc})
	require.NoError(t, err)
	defer idx.Close()

	guids, err := idx.Query(ctx, "liberation~1")
	require.NoError(t, err)
	assert.Equal(t, []string{doc.GUID}, guids)
}

func TestRebuildReplacesExistingIndex(t *testing.T) {
	dataPath := t.TempDir()
	indexPath := filepath.Join(dataPath, "00", "index")
	ctx := context.Background()

	docA := writeDoc(t, dataPath, "a", "first generation")
	idx, err := Rebuild(ctx, indexPath, dataPath, []*model.Document{docA})
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	docB := writeDoc(t, dataPath, "b", "second generation")
	idx, err = Rebuild(ctx, indexPath, dataPath, []*model.Document{docB})
	require.NoError(t, err)
	defer idx.Close()

	guids, err := idx.Query(ctx, "generation")
	require.NoError(t, err)
	assert.Equal(t, []string{docB.GUID}, guids)
}

func TestRebuildMissingTextIndexesEmpty(t *testing.T) {
	dataPath := t.TempDir()
	indexPath := filepath.Join(dataPath, "00", "index")
	ctx := context.Background()

	ghost := &model.Document{Rec: model.NewRec(), TextPath: "00/text/album/ghost.txt"}
	idx, err := Rebuild(ctx, indexPath, dataPath, []*model.Document{ghost})
	require.NoError(t, err)
	defer idx.Close()

	n, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestOpenMissingIndex(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "no-index"))
	assert.Error(t, err)
}
