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

package megadoc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptoriumhq/scriptorium/pkg/config"
	"github.com/scriptoriumhq/scriptorium/pkg/model"
	"github.com/scriptoriumhq/scriptorium/pkg/store"
)

func newTestEnv(t *testing.T) (*config.Config, *store.Store) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		App: config.AppConfig{
			Version:   "test",
			ClientURL: "https://example.com",
			RootPath:  root,
			BatchName: "00",
		},
		DB: config.DBConfig{
			SQLPath: filepath.Join(root, "test.db"),
			Retries: 1,
		},
		S3: config.S3Config{URL: "https://cdn.example.com"},
	}
	st, err := store.Open(cfg.DB.SQLPath, cfg.DB.Retries)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return cfg, st
}

// seedSearch creates a search with n attached result documents, each backed
// by a text file on disk.
func seedSearch(t *testing.T, cfg *config.Config, st *store.Store, n int) *model.Search {
	t.Helper()
	ctx := context.Background()

	var guids []string
	for i := 1; i <= n; i++ {
		stem := fmt.Sprintf("%06d_2022-09-27_13-12-%02d_page_%d", i, i%60, i)
		scan := &model.Scan{
			Rec:            model.NewRec(),
			Stem:           stem,
			Album:          "album",
			AlbumIndex:     i,
			Title:          fmt.Sprintf("page_%d", i),
			URL:            fmt.Sprintf("https://cdn.example.com/img/album/%s.webp", stem),
			ScannedAt:      model.Now(),
			MediaCreatedAt: model.Epoch,
		}
		require.NoError(t, st.CreateScan(ctx, nil, scan))

		textPath := filepath.Join("00", "text", "album", stem+".txt")
		full := filepath.Join(cfg.DataPath(), textPath)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(fmt.Sprintf("text of page %d", i)), 0o644))

		doc := &model.Document{Rec: model.NewRec(), ScanGUID: scan.GUID, BatchName: "00", TextPath: textPath}
		require.NoError(t, st.CreateDocument(ctx, nil, doc))
		guids = append(guids, doc.GUID)
	}

	corpus := &model.Corpus{Rec: model.NewRec(), Checksum: "deadbeef", DocumentCount: n}
	require.NoError(t, st.CreateCorpus(ctx, nil, corpus, guids))

	sr := &model.Search{
		Rec:        model.NewRec(),
		SearchStr:  "page text",
		CorpusGUID: corpus.GUID,
		Status:     model.StatusPending,
	}
	require.NoError(t, st.CreateSearch(ctx, nil, sr))
	for _, guid := range guids {
		require.NoError(t, st.AttachDocument(ctx, nil, sr.GUID, guid))
	}
	return sr
}

func TestBuildTxt(t *testing.T) {
	cfg, st := newTestEnv(t)
	sr := seedSearch(t, cfg, st, 3)
	ctx := context.Background()

	b := New(st, cfg)
	md, err := b.Build(ctx, sr, ".txt")
	require.NoError(t, err)

	assert.Equal(t, model.StatusSending, md.Status)
	assert.Equal(t, 100.0, md.Progress)
	assert.True(t, strings.HasPrefix(md.Filename, "page-text_"))
	assert.True(t, strings.HasSuffix(md.Filename, ".txt"))
	assert.Equal(t, "https://cdn.example.com/"+md.Path, md.URL)

	raw, err := os.ReadFile(filepath.Join(cfg.DataPath(), md.Path))
	require.NoError(t, err)
	body := string(raw)
	assert.Equal(t, int64(len(raw)), md.Filesize)

	assert.Contains(t, body, "text of page 1")
	assert.Contains(t, body, "text of page 3")
	assert.Contains(t, body, "page_2")
	// Three blank lines between sections, none trailing.
	assert.Equal(t, 2, strings.Count(body, "\n\n\n\n"))
	assert.False(t, strings.HasSuffix(body, "\n\n"))
}

func TestWriteTicksPerSection(t *testing.T) {
	cfg, st := newTestEnv(t)
	b := New(st, cfg)

	var secs []section
	for i := 1; i <= 3; i++ {
		secs = append(secs, section{
			scan: &model.Scan{Stem: fmt.Sprintf("s%d", i), Album: "album", AlbumIndex: i, ScannedAt: model.Now()},
			text: fmt.Sprintf("text %d", i),
		})
	}

	var ticks []int
	tick := func(done int) error {
		ticks = append(ticks, done)
		return nil
	}

	dir := t.TempDir()
	require.NoError(t, b.writeText(secs, filepath.Join(dir, "out.txt"), tick))
	assert.Equal(t, []int{1, 2, 3}, ticks)

	ticks = nil
	require.NoError(t, b.writeDocx(secs, filepath.Join(dir, "out.docx"), tick))
	assert.Equal(t, []int{1, 2, 3}, ticks)
}

func TestBuildMarkdown(t *testing.T) {
	cfg, st := newTestEnv(t)
	sr := seedSearch(t, cfg, st, 2)
	ctx := context.Background()

	b := New(st, cfg)
	md, err := b.Build(ctx, sr, ".md")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(cfg.DataPath(), md.Path))
	require.NoError(t, err)
	body := string(raw)

	assert.Contains(t, body, "---\ndate: ")
	assert.Contains(t, body, "album: page_2 - 2 of album\n")
	assert.Contains(t, body, "image: https://cdn.example.com/img/album/")
	assert.Contains(t, body, "text of page 2")
}

func TestBuildDocx(t *testing.T) {
	cfg, st := newTestEnv(t)
	sr := seedSearch(t, cfg, st, 2)
	ctx := context.Background()

	b := New(st, cfg)
	md, err := b.Build(ctx, sr, ".docx")
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(cfg.DataPath(), md.Path))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// docx is a zip container.
	raw, err := os.ReadFile(filepath.Join(cfg.DataPath(), md.Path))
	require.NoError(t, err)
	assert.Equal(t, "PK", string(raw[:2]))
}

func TestBuildIsIdempotent(t *testing.T) {
	cfg, st := newTestEnv(t)
	sr := seedSearch(t, cfg, st, 1)
	ctx := context.Background()

	b := New(st, cfg)
	first, err := b.Build(ctx, sr, ".txt")
	require.NoError(t, err)

	second, err := b.Build(ctx, sr, ".txt")
	require.NoError(t, err)
	assert.Equal(t, first.GUID, second.GUID)

	mds, err := st.MegadocsForSearch(ctx, sr.GUID)
	require.NoError(t, err)
	assert.Len(t, mds, 1)
}

func TestBuildUnknownFiletype(t *testing.T) {
	cfg, st := newTestEnv(t)
	sr := seedSearch(t, cfg, st, 1)

	b := New(st, cfg)
	_, err := b.Build(context.Background(), sr, ".pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestBuildRequiresDocuments(t *testing.T) {
	cfg, st := newTestEnv(t)
	ctx := context.Background()

	corpus := &model.Corpus{Rec: model.NewRec(), Checksum: "deadbeef"}
	require.NoError(t, st.CreateCorpus(ctx, nil, corpus, nil))
	sr := &model.Search{
		Rec:        model.NewRec(),
		SearchStr:  "nothing here",
		CorpusGUID: corpus.GUID,
		Status:     model.StatusPending,
	}
	require.NoError(t, st.CreateSearch(ctx, nil, sr))

	b := New(st, cfg)
	_, err := b.Build(ctx, sr, ".txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrBadInput)
}
