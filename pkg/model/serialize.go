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
	"encoding/json"
	"strings"
	"time"
	"unicode"
)

// isoLayout renders UTC times with an explicit +00:00 offset rather than Z,
// matching what the web client expects.
const isoLayout = "2006-01-02T15:04:05.999999-07:00"

// ISO formats t as an ISO-8601 string in UTC.
func ISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseISO parses an ISO-8601 string, defaulting to UTC when no zone is
// given. Unparsable input falls back to Epoch.
func ParseISO(s string) time.Time {
	for _, layout := range []string{isoLayout, time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return Epoch
}

// SnakeToCamel converts a snake_case key to camelCase for JavaScript export.
func SnakeToCamel(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// CamelToSnake converts a camelCase key back to snake_case.
func CamelToSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (i > 0 && nextLower) {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Serialize normalizes a mapping for export: timestamps become ISO-8601
// strings, nested maps and slices are handled recursively, excluded keys are
// dropped, and keys are optionally camelized for a JavaScript client.
func Serialize(data map[string]any, excl map[string]bool, toJS bool) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if excl[k] {
			continue
		}
		key := k
		if toJS {
			key = SnakeToCamel(k)
		}
		out[key] = serializeValue(v, excl, toJS)
	}
	return out
}

func serializeValue(v any, excl map[string]bool, toJS bool) any {
	switch t := v.(type) {
	case time.Time:
		return ISO(t)
	case Status:
		return string(t)
	case map[string]any:
		return Serialize(t, excl, toJS)
	case []map[string]any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, Serialize(item, excl, toJS))
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, serializeValue(item, excl, toJS))
		}
		return out
	default:
		return v
	}
}

// Deserialize reverses Serialize: keys are optionally snake-cased from a
// camelCase JavaScript client and values for keys ending "_at" are parsed
// back into timestamps.
func Deserialize(data map[string]any, excl map[string]bool, fromJS bool) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		key := k
		if fromJS {
			key = CamelToSnake(k)
		}
		if excl[key] {
			continue
		}
		if s, ok := v.(string); ok && strings.HasSuffix(key, "_at") {
			out[key] = ParseISO(s)
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			out[key] = Deserialize(t, excl, fromJS)
		case []any:
			items := make([]any, 0, len(t))
			for _, item := range t {
				if m, ok := item.(map[string]any); ok {
					items = append(items, Deserialize(m, excl, fromJS))
				} else {
					items = append(items, item)
				}
			}
			out[key] = items
		default:
			out[key] = v
		}
	}
	return out
}

// Fingerprint appends an 8-hex CRC32 checksum of the canonical (sorted-key)
// JSON encoding under "checksum", unless the mapping already carries one.
func Fingerprint(data map[string]any) map[string]any {
	if _, ok := data["checksum"]; ok {
		return data
	}
	raw, err := json.Marshal(data) // map keys marshal in sorted order
	if err != nil {
		return data
	}
	data["checksum"] = NewChecksum(raw)
	return data
}

func (r Rec) dict() map[string]any {
	return map[string]any{
		"guid":       r.GUID,
		"created_at": r.CreatedAt,
		"updated_at": r.UpdatedAt,
		"tags":       r.Tags,
		"comment":    r.Comment,
	}
}

// AsDict serializes the scan to a plain mapping with an appended checksum.
func (s *Scan) AsDict(toJS bool) map[string]any {
	d := s.dict()
	d["stem"] = s.Stem
	d["album"] = s.Album
	d["album_index"] = s.AlbumIndex
	d["title"] = s.Title
	d["path"] = s.Path
	d["url"] = s.URL
	d["thumb_url"] = s.ThumbURL
	d["scanned_at"] = s.ScannedAt
	d["media_archive"] = s.MediaArchive
	d["media_collection"] = s.MediaCollection
	d["media_box"] = s.MediaBox
	d["media_folder"] = s.MediaFolder
	d["media_type"] = s.MediaType
	d["media_created_at"] = s.MediaCreatedAt
	return Fingerprint(Serialize(d, nil, toJS))
}

// AsDict serializes the document to a plain mapping with an appended
// checksum.
func (d *Document) AsDict(toJS bool) map[string]any {
	m := d.dict()
	m["scan_guid"] = d.ScanGUID
	m["batch_name"] = d.BatchName
	m["json_path"] = d.JSONPath
	m["json_url"] = d.JSONURL
	m["text_path"] = d.TextPath
	m["text_url"] = d.TextURL
	return Fingerprint(Serialize(m, nil, toJS))
}

// AsDict serializes the corpus. The corpus carries its own content checksum,
// so no canonical-JSON checksum is appended.
func (c *Corpus) AsDict(toJS bool) map[string]any {
	m := c.dict()
	m["checksum"] = c.Checksum
	m["document_count"] = c.DocumentCount
	return Serialize(m, nil, toJS)
}

// AsDict serializes the search. The corpus binding travels as a GUID; callers
// attach megadocs and result counts before export.
func (s *Search) AsDict(toJS bool) map[string]any {
	m := s.dict()
	m["search_str"] = s.SearchStr
	m["corpus_guid"] = s.CorpusGUID
	m["status"] = s.Status
	return Fingerprint(Serialize(m, nil, toJS))
}

// AsDict serializes the megadoc. Internal paths stay private; the public URL
// is what clients download from.
func (m *Megadoc) AsDict(toJS bool) map[string]any {
	d := m.dict()
	d["filetype"] = m.Filetype
	d["url"] = m.URL
	d["status"] = m.Status
	d["progress"] = m.Progress
	d["filesize"] = m.Filesize
	return Fingerprint(Serialize(d, nil, toJS))
}
