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
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// scanStampLayout matches the timestamp segments of a scan filename, e.g.
// "000001_2022-09-27_13-12-42_image_5992.json".
const scanStampLayout = "2006-01-02 15-04-05"

// ScanInfo carries the fields parsed out of a scan filename. The parent
// directory name is the album; the title is everything past the timestamp,
// underscores preserved.
type ScanInfo struct {
	Stem       string
	Album      string
	AlbumIndex int
	Title      string
	ScannedAt  time.Time
}

// ParseScanPath parses a scan file path of the form
// ".../album/INDEX_YYYY-MM-DD_HH-MM-SS_TITLE.EXT". The file does not need to
// exist; only the path text is inspected. Failures wrap ErrBadInput.
func ParseScanPath(path string) (ScanInfo, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	album := filepath.Base(filepath.Dir(path))
	if album == "." || album == string(filepath.Separator) {
		album = ""
	}

	parts := strings.Split(stem, "_")
	if len(parts) < 3 || album == "" {
		return ScanInfo{}, fmt.Errorf("%w: cannot parse filename %q", ErrBadInput, path)
	}

	index, err := strconv.Atoi(parts[0])
	if err != nil {
		return ScanInfo{}, fmt.Errorf("%w: cannot parse album index from filename %q", ErrBadInput, path)
	}

	scannedAt, err := time.ParseInLocation(scanStampLayout, parts[1]+" "+parts[2], time.UTC)
	if err != nil {
		return ScanInfo{}, fmt.Errorf("%w: cannot parse timestamp from filename %q", ErrBadInput, path)
	}

	return ScanInfo{
		Stem:       stem,
		Album:      album,
		AlbumIndex: index,
		Title:      strings.Join(parts[3:], "_"),
		ScannedAt:  scannedAt,
	}, nil
}

// MegadocFilename derives the on-disk artifact name for a megadoc: a slug of
// the search string, a compact UTC timestamp, and the filetype extension.
func MegadocFilename(searchStr, filetype string, at time.Time) string {
	stamp := at.UTC().Format("20060102-150405")
	return fmt.Sprintf("%s_%sZ%s", slug.Make(searchStr), stamp, filetype)
}
