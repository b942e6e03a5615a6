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

func TestISO(t *testing.T) {
	at := time.Date(2022, 9, 27, 13, 12, 42, 123456000, time.UTC)
	assert.Equal(t, "2022-09-27T13:12:42.123456+00:00", ISO(at))

	// Round trip.
	assert.Equal(t, at, ParseISO(ISO(at)))
}

func TestParseISOFallbacks(t *testing.T) {
	assert.Equal(t, time.Date(2022, 9, 27, 0, 0, 0, 0, time.UTC), ParseISO("2022-09-27"))
	assert.Equal(t, Epoch, ParseISO("not a date"))
}

func TestSnakeCamelRoundTrip(t *testing.T) {
	tests := map[string]string{
		"created_at":       "createdAt",
		"media_created_at": "mediaCreatedAt",
		"guid":             "guid",
		"search_str":       "searchStr",
	}
	for snake, camel := range tests {
		assert.Equal(t, camel, SnakeToCamel(snake))
		assert.Equal(t, snake, CamelToSnake(camel))
	}
}

func TestSerialize(t *testing.T) {
	at := time.Date(2022, 9, 27, 13, 12, 42, 0, time.UTC)
	data := map[string]any{
		"created_at": at,
		"status":     StatusPending,
		"secret":     "hide me",
		"nested":     map[string]any{"updated_at": at},
	}
	out := Serialize(data, map[string]bool{"secret": true}, true)

	assert.Equal(t, "2022-09-27T13:12:42+00:00", out["createdAt"])
	assert.Equal(t, "PENDING", out["status"])
	assert.NotContains(t, out, "secret")
	nested, ok := out["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2022-09-27T13:12:42+00:00", nested["updatedAt"])
}

func TestDeserialize(t *testing.T) {
	out := Deserialize(map[string]any{
		"createdAt": "2022-09-27T13:12:42+00:00",
		"searchStr": "attica",
	}, nil, true)

	assert.Equal(t, time.Date(2022, 9, 27, 13, 12, 42, 0, time.UTC), out["created_at"])
	assert.Equal(t, "attica", out["search_str"])
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(map[string]any{"guid": "abc", "title": "x"})
	require.Contains(t, a, "checksum")
	assert.Len(t, a["checksum"], 8)

	// Same content, same checksum.
	b := Fingerprint(map[string]any{"title": "x", "guid": "abc"})
	assert.Equal(t, a["checksum"], b["checksum"])

	// An existing checksum is left alone.
	c := Fingerprint(map[string]any{"checksum": "deadbeef"})
	assert.Equal(t, "deadbeef", c["checksum"])
}

func TestScanAsDict(t *testing.T) {
	scan := &Scan{
		Rec:            NewRec(),
		Stem:           "000001_2022-09-27_13-12-42_test",
		Album:          "september",
		AlbumIndex:     1,
		ScannedAt:      Now(),
		MediaCreatedAt: Epoch,
	}
	d := scan.AsDict(true)
	assert.Equal(t, scan.GUID, d["guid"])
	assert.Equal(t, "september", d["album"])
	assert.Contains(t, d, "checksum")
	assert.IsType(t, "", d["createdAt"])
}

func TestMegadocAsDictHidesInternalPaths(t *testing.T) {
	md := &Megadoc{
		Rec:      NewRec(),
		Filetype: ".txt",
		Filename: "attica_20230102-030405Z.txt",
		Path:     "00/megadocs/attica_20230102-030405Z.txt",
		URL:      "https://cdn.example.com/00/megadocs/attica_20230102-030405Z.txt",
		Status:   StatusSuccess,
		Progress: 100,
		Filesize: 2048,
	}
	d := md.AsDict(true)
	assert.Contains(t, d, "url")
	assert.Contains(t, d, "progress")
	assert.Equal(t, int64(2048), d["filesize"])
	assert.NotContains(t, d, "path")
	assert.NotContains(t, d, "filename")
}
