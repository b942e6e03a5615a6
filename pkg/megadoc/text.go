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
	"bufio"
	"fmt"
	"os"

	"github.com/scriptoriumhq/scriptorium/pkg/model"
)

const sectionStampLayout = "2006-01-02 15:04:05"

// sectionSeparator keeps three blank lines between sections.
const sectionSeparator = "\n\n\n\n"

// writeText renders sections as plain text or markdown, calling tick with
// the count of sections written so far. Both filetypes share the same
// layout: a front-matter block with the scan's provenance, a blank line, and
// the OCR text.
func (b *Builder) writeText(sections []section, outPath string, tick func(done int) error) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create megadoc file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i, sec := range sections {
		writeSection(w, sec)
		if i < len(sections)-1 {
			w.WriteString(sectionSeparator)
		}
		if err := tick(i + 1); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write megadoc file: %w", err)
	}
	return f.Close()
}

func writeSection(w *bufio.Writer, sec section) {
	w.WriteString("---\n")
	fmt.Fprintf(w, "date: %s\n", model.ISO(sec.scan.ScannedAt))
	fmt.Fprintf(w, "album: %s\n", sectionAlbum(sec.scan))
	fmt.Fprintf(w, "image: %s\n", sec.scan.URL)
	w.WriteString("---\n\n")
	w.WriteString(sec.text)
	w.WriteString("\n")
}

// sectionAlbum labels a section's provenance, e.g. "image_5992 - 1 of 2022-09".
func sectionAlbum(sc *model.Scan) string {
	title := sc.Title
	if title == "" {
		title = sc.Stem
	}
	return fmt.Sprintf("%s - %d of %s", title, sc.AlbumIndex, sc.Album)
}
