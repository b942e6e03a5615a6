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

// Package model defines the persistent entities of the archive: scans,
// documents, corpus snapshots, searches, and megadocs. Every entity embeds a
// common record (GUID, timestamps, tags, comment); the GUID is a stable,
// URL-safe 22-character identifier chosen over sequential integers because of
// the archival nature of the project.
package model

import (
	"encoding/base64"
	"errors"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/google/uuid"
)

// ErrBadInput marks malformed caller input: unparsable filenames, empty or
// too-short search strings, missing required fields.
var ErrBadInput = errors.New("bad input")

// Epoch is the arbitrary "old" timestamp used when a real one is unknown.
var Epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// NewGUID returns a URL-safe, 22-character, base64-encoded GUID built from
// 128 random bits. Padding is stripped.
func NewGUID() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// NewChecksum returns an unsigned CRC32 checksum of data as an 8-character
// hexadecimal string.
func NewChecksum(data []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}

// Now returns the current time in UTC truncated to microseconds, the finest
// resolution SQLite round-trips reliably.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Rec holds the columns shared by every entity.
type Rec struct {
	GUID      string    `json:"guid"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Tags      string    `json:"tags"`
	Comment   string    `json:"comment"`
}

// NewRec returns a fresh record with a new GUID and both timestamps set to
// the current UTC time.
func NewRec() Rec {
	now := Now()
	return Rec{GUID: NewGUID(), CreatedAt: now, UpdatedAt: now}
}

// Touch bumps the updated_at timestamp. Call before persisting a mutation.
func (r *Rec) Touch() {
	r.UpdatedAt = Now()
}

// Status tracks an entity through its lifecycle. STOPPED and FAILURE are
// reserved for future use and are never persisted.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusStarted Status = "STARTED"
	StatusSending Status = "SENDING"
	StatusSuccess Status = "SUCCESS"
)

var statusRank = map[Status]int{
	StatusPending: 0,
	StatusStarted: 1,
	StatusSending: 2,
	StatusSuccess: 3,
}

// Valid reports whether s is one of the accepted status values.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether moving from s to next follows the lifecycle.
// Transitions are strictly monotone; SUCCESS is terminal.
func (s Status) CanTransition(next Status) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Scan is an immutable record of a source image file, parsed from its
// filename. Optional media_* fields carry archival provenance.
type Scan struct {
	Rec
	Stem            string    `json:"stem"`
	Album           string    `json:"album"`
	AlbumIndex      int       `json:"album_index"`
	Title           string    `json:"title"`
	Path            string    `json:"path"`
	URL             string    `json:"url"`
	ThumbURL        string    `json:"thumb_url"`
	ScannedAt       time.Time `json:"scanned_at"`
	MediaArchive    string    `json:"media_archive"`
	MediaCollection string    `json:"media_collection"`
	MediaBox        string    `json:"media_box"`
	MediaFolder     string    `json:"media_folder"`
	MediaType       string    `json:"media_type"`
	MediaCreatedAt  time.Time `json:"media_created_at"`
}

// Document is one revision of OCR output for a Scan: a JSON metadata file and
// a plain-text file on disk, referenced by relative path.
type Document struct {
	Rec
	ScanGUID  string `json:"scan_guid"`
	BatchName string `json:"batch_name"`
	JSONPath  string `json:"json_path"`
	JSONURL   string `json:"json_url"`
	TextPath  string `json:"text_path"`
	TextURL   string `json:"text_url"`
}

// Corpus is an immutable snapshot of the document set at creation time.
// Membership and checksum never change once written.
type Corpus struct {
	Rec
	Checksum      string `json:"checksum"`
	DocumentCount int    `json:"document_count"`
}

// Search is a user query bound to the corpus that was latest at creation.
// Later corpus snapshots do not retroactively alter it.
type Search struct {
	Rec
	SearchStr  string `json:"search_str"`
	CorpusGUID string `json:"corpus_guid"`
	Status     Status `json:"status"`
}

// Megadoc is a generated composite artifact of one file type for a Search.
// At most one exists per (search, filetype).
type Megadoc struct {
	Rec
	SearchGUID string  `json:"search_guid"`
	Filetype   string  `json:"filetype"`
	Filename   string  `json:"filename"`
	Path       string  `json:"path"`
	URL        string  `json:"url"`
	Status     Status  `json:"status"`
	Progress   float64 `json:"progress"`
	Filesize   int64   `json:"filesize"`
}

// MegadocFiletypes lists the artifact types the builder can produce.
var MegadocFiletypes = []string{".txt", ".md", ".docx"}

// SupportedFiletype reports whether the builder knows how to produce ft.
func SupportedFiletype(ft string) bool {
	for _, t := range MegadocFiletypes {
		if t == ft {
			return true
		}
	}
	return false
}
