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
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"
)

// linkColor matches the conventional Office hyperlink blue.
const linkColor = "0563C1"

// writeDocx renders sections as a Word document, calling tick with the count
// of sections written so far. Each section carries a timestamp heading, a
// bold title, a styled link back to the source image, a rule, and the OCR
// text; a page break separates sections.
func (b *Builder) writeDocx(sections []section, outPath string, tick func(done int) error) error {
	w := docx.New().WithDefaultTheme()

	for i, sec := range sections {
		heading := w.AddParagraph()
		heading.AddText(sec.scan.ScannedAt.Format(sectionStampLayout)).Size("32")

		title := sec.scan.Title
		if title == "" {
			title = sec.scan.Stem
		}
		w.AddParagraph().AddText(title).Bold()

		link := w.AddParagraph()
		link.AddText(sec.scan.URL).Color(linkColor).Underline("single").Bold()

		w.AddParagraph().AddText("-----")

		// Word paragraphs cannot hold raw newlines.
		for _, line := range strings.Split(sec.text, "\n") {
			w.AddParagraph().AddText(line)
		}

		if i < len(sections)-1 {
			w.AddParagraph().AddPageBreaks()
		}
		if err := tick(i + 1); err != nil {
			return err
		}
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create megadoc file: %w", err)
	}
	defer f.Close()

	if _, err := w.WriteTo(f); err != nil {
		return fmt.Errorf("failed to write megadoc file: %w", err)
	}
	return f.Close()
}
