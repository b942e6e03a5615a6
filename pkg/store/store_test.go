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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptoriumhq/scriptorium/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"), 1)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestScan(album, stem string) *model.Scan {
	return &model.Scan{
		Rec:            model.NewRec(),
		Stem:           stem,
		Album:          album,
		AlbumIndex:     1,
		ScannedAt:      model.Now(),
		MediaCreatedAt: model.Epoch,
	}
}

func newTestDocument(scanGUID string) *model.Document {
	return &model.Document{
		Rec:       model.NewRec(),
		ScanGUID:  scanGUID,
		BatchName: "00",
		TextPath:  "00/text/album/doc.txt",
	}
}

func TestScanRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	scan := newTestScan("september", "000001_2022-09-27_13-12-42_test")
	require.NoError(t, st.CreateScan(ctx, nil, scan))

	got, err := st.GetScan(ctx, scan.GUID)
	require.NoError(t, err)
	assert.Equal(t, scan.GUID, got.GUID)
	assert.Equal(t, scan.Album, got.Album)
	assert.Equal(t, scan.Stem, got.Stem)
	assert.True(t, scan.ScannedAt.Equal(got.ScannedAt))

	found, err := st.FindScan(ctx, "september", scan.Stem)
	require.NoError(t, err)
	assert.Equal(t, scan.GUID, found.GUID)

	_, err = st.FindScan(ctx, "september", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetScanNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetScan(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteScanCascades(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	scan := newTestScan("album", "000001_2022-09-27_13-12-42_x")
	require.NoError(t, st.CreateScan(ctx, nil, scan))
	doc := newTestDocument(scan.GUID)
	require.NoError(t, st.CreateDocument(ctx, nil, doc))

	require.NoError(t, st.DeleteScan(ctx, nil, scan.GUID))

	_, err := st.GetScan(ctx, scan.GUID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.GetDocument(ctx, doc.GUID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentOrdering(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	scan := newTestScan("album", "000001_2022-09-27_13-12-42_x")
	require.NoError(t, st.CreateScan(ctx, nil, scan))

	var guids []string
	base := model.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		doc := newTestDocument(scan.GUID)
		doc.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, st.CreateDocument(ctx, nil, doc))
		guids = append(guids, doc.GUID)
	}

	docs, err := st.GetAllDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 5)
	for i, doc := range docs {
		assert.Equal(t, guids[i], doc.GUID)
	}

	total, err := st.TotalDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
}

func TestSessionBatching(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	scan := newTestScan("album", "000001_2022-09-27_13-12-42_x")
	err := st.RunSession(ctx, func(sess *Session) error {
		if err := st.CreateScan(ctx, sess, scan); err != nil {
			return err
		}
		return st.CreateDocument(ctx, sess, newTestDocument(scan.GUID))
	})
	require.NoError(t, err)

	total, err := st.TotalDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestSessionRollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	scan := newTestScan("album", "000001_2022-09-27_13-12-42_x")
	err := st.RunSession(ctx, func(sess *Session) error {
		if err := st.CreateScan(ctx, sess, scan); err != nil {
			return err
		}
		// Duplicate primary key forces the whole unit back out.
		return st.CreateScan(ctx, sess, scan)
	})
	require.Error(t, err)

	_, err = st.GetScan(ctx, scan.GUID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCorpusLatest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.GetLatestCorpus(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	scan := newTestScan("album", "000001_2022-09-27_13-12-42_x")
	require.NoError(t, st.CreateScan(ctx, nil, scan))
	doc := newTestDocument(scan.GUID)
	require.NoError(t, st.CreateDocument(ctx, nil, doc))

	older := &model.Corpus{Rec: model.NewRec(), Checksum: "11111111", DocumentCount: 1}
	older.CreatedAt = model.Now().Add(-time.Hour)
	require.NoError(t, st.CreateCorpus(ctx, nil, older, []string{doc.GUID}))

	newer := &model.Corpus{Rec: model.NewRec(), Checksum: "22222222", DocumentCount: 1}
	require.NoError(t, st.CreateCorpus(ctx, nil, newer, []string{doc.GUID}))

	latest, err := st.GetLatestCorpus(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.GUID, latest.GUID)

	docs, err := st.CorpusDocuments(ctx, newer.GUID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.GUID, docs[0].GUID)
}

func newTestSearch(t *testing.T, st *Store, ctx context.Context) (*model.Search, *model.Document) {
	t.Helper()
	scan := newTestScan("album", "000001_2022-09-27_13-12-42_x")
	require.NoError(t, st.CreateScan(ctx, nil, scan))
	doc := newTestDocument(scan.GUID)
	require.NoError(t, st.CreateDocument(ctx, nil, doc))
	corpus := &model.Corpus{Rec: model.NewRec(), Checksum: "deadbeef", DocumentCount: 1}
	require.NoError(t, st.CreateCorpus(ctx, nil, corpus, []string{doc.GUID}))

	sr := &model.Search{
		Rec:        model.NewRec(),
		SearchStr:  "attica",
		CorpusGUID: corpus.GUID,
		Status:     model.StatusPending,
	}
	require.NoError(t, st.CreateSearch(ctx, nil, sr))
	return sr, doc
}

func TestSearchLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sr, doc := newTestSearch(t, st, ctx)

	got, err := st.GetSearch(ctx, sr.GUID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	has, err := st.HasDocument(ctx, sr.GUID, doc.GUID)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, st.AttachDocument(ctx, nil, sr.GUID, doc.GUID))
	has, err = st.HasDocument(ctx, sr.GUID, doc.GUID)
	require.NoError(t, err)
	assert.True(t, has)

	count, err := st.SearchDocumentCount(ctx, sr.GUID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, st.SetSearchStatus(ctx, nil, sr.GUID, model.StatusStarted))
	require.NoError(t, st.SetSearchStatus(ctx, nil, sr.GUID, model.StatusSuccess))

	// Repeating the current status is a no-op; going backwards is not.
	require.NoError(t, st.SetSearchStatus(ctx, nil, sr.GUID, model.StatusSuccess))
	err = st.SetSearchStatus(ctx, nil, sr.GUID, model.StatusPending)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status transition")
}

func TestDeleteSearchCascades(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sr, doc := newTestSearch(t, st, ctx)

	require.NoError(t, st.AttachDocument(ctx, nil, sr.GUID, doc.GUID))
	md := &model.Megadoc{
		Rec:        model.NewRec(),
		SearchGUID: sr.GUID,
		Filetype:   ".txt",
		Status:     model.StatusPending,
	}
	require.NoError(t, st.CreateMegadoc(ctx, nil, md))

	require.NoError(t, st.DeleteSearch(ctx, nil, sr.GUID))

	_, err := st.GetSearch(ctx, sr.GUID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.GetMegadoc(ctx, md.GUID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The result document itself survives.
	_, err = st.GetDocument(ctx, doc.GUID)
	assert.NoError(t, err)
}

func TestMegadocUniquePerSearchAndType(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sr, _ := newTestSearch(t, st, ctx)

	first := &model.Megadoc{Rec: model.NewRec(), SearchGUID: sr.GUID, Filetype: ".txt", Status: model.StatusPending}
	require.NoError(t, st.CreateMegadoc(ctx, nil, first))

	dup := &model.Megadoc{Rec: model.NewRec(), SearchGUID: sr.GUID, Filetype: ".txt", Status: model.StatusPending}
	assert.Error(t, st.CreateMegadoc(ctx, nil, dup))

	other := &model.Megadoc{Rec: model.NewRec(), SearchGUID: sr.GUID, Filetype: ".docx", Status: model.StatusPending}
	assert.NoError(t, st.CreateMegadoc(ctx, nil, other))

	found, err := st.FindMegadoc(ctx, sr.GUID, ".txt")
	require.NoError(t, err)
	assert.Equal(t, first.GUID, found.GUID)
}

func TestMegadocProgressOnlyMovesForward(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sr, _ := newTestSearch(t, st, ctx)

	md := &model.Megadoc{Rec: model.NewRec(), SearchGUID: sr.GUID, Filetype: ".txt", Status: model.StatusPending}
	require.NoError(t, st.CreateMegadoc(ctx, nil, md))

	require.NoError(t, st.SetMegadocProgress(ctx, nil, md.GUID, 60))
	require.NoError(t, st.SetMegadocProgress(ctx, nil, md.GUID, 30))

	got, err := st.GetMegadoc(ctx, md.GUID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, got.Progress)
}

func TestMegadocStatusTransitions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sr, _ := newTestSearch(t, st, ctx)

	md := &model.Megadoc{
		Rec:        model.NewRec(),
		SearchGUID: sr.GUID,
		Filetype:   ".txt",
		URL:        "https://cdn.example.com/x.txt",
		Status:     model.StatusPending,
	}
	require.NoError(t, st.CreateMegadoc(ctx, nil, md))

	require.NoError(t, st.SetMegadocStatus(ctx, nil, md.GUID, model.StatusStarted))
	require.NoError(t, st.SetMegadocStatus(ctx, nil, md.GUID, model.StatusSending))
	require.NoError(t, st.SetMegadocFilesize(ctx, nil, md.GUID, 4096))
	require.NoError(t, st.SetMegadocStatus(ctx, nil, md.GUID, model.StatusSuccess))

	got, err := st.GetMegadoc(ctx, md.GUID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, got.Status)
	assert.Equal(t, "https://cdn.example.com/x.txt", got.URL)
	assert.Equal(t, int64(4096), got.Filesize)

	err = st.SetMegadocStatus(ctx, nil, md.GUID, model.StatusPending)
	assert.Error(t, err)
}
