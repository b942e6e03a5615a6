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

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGUID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		guid := NewGUID()
		assert.Len(t, guid, 22)
		assert.NotContains(t, guid, "=")
		assert.NotContains(t, guid, "+")
		assert.NotContains(t, guid, "/")
		assert.False(t, seen[guid], "guid collision")
		seen[guid] = true
	}
}

func TestNewChecksum(t *testing.T) {
	sum := NewChecksum([]byte("hello world"))
	assert.Len(t, sum, 8)
	assert.Equal(t, sum, NewChecksum([]byte("hello world")))
	assert.NotEqual(t, sum, NewChecksum([]byte("hello worlds")))

	// Leading zeros are kept.
	assert.Len(t, NewChecksum([]byte{}), 8)
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusStarted, true},
		{StatusPending, StatusSuccess, true},
		{StatusStarted, StatusSending, true},
		{StatusSending, StatusSuccess, true},
		{StatusStarted, StatusPending, false},
		{StatusSuccess, StatusPending, false},
		{StatusSuccess, StatusSending, false},
		{StatusPending, StatusPending, false},
		{Status("BOGUS"), StatusStarted, false},
		{StatusPending, Status("BOGUS"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusSuccess.Valid())
	assert.False(t, Status("FAILURE").Valid())
	assert.False(t, Status("").Valid())
}

func TestParseScanPath(t *testing.T) {
	info, err := ParseScanPath("/data/00/json/september/000001_2022-09-27_13-12-42_image_5992.json")
	require.NoError(t, err)
	assert.Equal(t, "000001_2022-09-27_13-12-42_image_5992", info.Stem)
	assert.Equal(t, "september", info.Album)
	assert.Equal(t, 1, info.AlbumIndex)
	assert.Equal(t, "image_5992", info.Title)
	assert.Equal(t, time.Date(2022, 9, 27, 13, 12, 42, 0, time.UTC), info.ScannedAt)
}

func TestParseScanPathNoTitle(t *testing.T) {
	info, err := ParseScanPath("/data/album/000002_2022-09-27_13-12-42.json")
	require.NoError(t, err)
	assert.Equal(t, "", info.Title)
	assert.Equal(t, 2, info.AlbumIndex)
}

func TestParseScanPathBadInput(t *testing.T) {
	for _, path := range []string{
		"/data/album/notascan.json",
		"/data/album/x_2022-09-27_13-12-42.json",
		"/data/album/000001_2022-99-99_13-12-42.json",
		"000001_2022-09-27_13-12-42.json", // no album directory
	} {
		_, err := ParseScanPath(path)
		require.Error(t, err, path)
		assert.ErrorIs(t, err, ErrBadInput, path)
	}
}

func TestMegadocFilename(t *testing.T) {
	at := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	name := MegadocFilename("Attica! Attica!", ".docx", at)
	assert.Equal(t, "attica-attica_20230102-030405Z.docx", name)
}

func TestSupportedFiletype(t *testing.T) {
	assert.True(t, SupportedFiletype(".txt"))
	assert.True(t, SupportedFiletype(".md"))
	assert.True(t, SupportedFiletype(".docx"))
	assert.False(t, SupportedFiletype(".pdf"))
}
