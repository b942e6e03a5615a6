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
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// Text reads the document's OCR text from disk, transliterated to ASCII and
// trimmed. A missing or unreadable file logs a warning and yields the empty
// string so corpus and megadoc assembly keep moving.
func (d *Document) Text(dataPath string) string {
	raw, err := os.ReadFile(filepath.Join(dataPath, d.TextPath))
	if err != nil {
		slog.Warn("Could not read document text", "guid", d.GUID, "path", d.TextPath, "error", err)
		return ""
	}
	return strings.TrimSpace(unidecode.Unidecode(string(raw)))
}

// JSON reads the document's OCR metadata from disk. A missing or malformed
// file logs a warning and yields an empty mapping.
func (d *Document) JSON(dataPath string) map[string]any {
	raw, err := os.ReadFile(filepath.Join(dataPath, d.JSONPath))
	if err != nil {
		slog.Warn("Could not read document metadata", "guid", d.GUID, "path", d.JSONPath, "error", err)
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		slog.Warn("Could not parse document metadata", "guid", d.GUID, "path", d.JSONPath, "error", err)
		return map[string]any{}
	}
	return out
}
