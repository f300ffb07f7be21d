// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package section splits article text into named character ranges
// (abstract, methods, results, ...) so annotations can be attributed to the
// part of the paper they were found in.
package section

import (
	"strings"
	"unicode"

	"github.com/pdiddy/pubrun/pkg/types"
)

// Names of the ranges produced without a sectioner.
const (
	Unknown    = "unknown"
	Supplement = "supplement"
)

// Sectioner computes section ranges for a text. ok is false when no
// sectioning is available for it.
type Sectioner interface {
	Sections(text string) (sections []types.Section, ok bool)
}

// Ranges applies the sectioning policy for one file: supplementary files are
// a single "supplement" range; otherwise the sectioner is used when enabled,
// and any failure falls back to a single "unknown" range over the whole text.
func Ranges(text string, fileType types.FileType, enabled bool, s Sectioner) []types.Section {
	whole := func(name string) []types.Section {
		return []types.Section{{Name: name, Start: 0, End: len(text)}}
	}
	if fileType == types.FileSupp {
		return whole(Supplement)
	}
	if !enabled || s == nil {
		return whole(Unknown)
	}
	secs, ok := s.Sections(text)
	if !ok || len(secs) == 0 {
		return whole(Unknown)
	}
	return secs
}

// canonical maps normalized heading text to section names.
var canonical = map[string]string{
	"abstract":                  "abstract",
	"summary":                   "abstract",
	"introduction":              "intro",
	"background":                "intro",
	"methods":                   "methods",
	"method":                    "methods",
	"materials and methods":     "methods",
	"methods and materials":     "methods",
	"material and methods":      "methods",
	"experimental procedures":   "methods",
	"patients and methods":      "methods",
	"results":                   "results",
	"results and discussion":    "results",
	"discussion":                "discussion",
	"conclusion":                "conclusions",
	"conclusions":               "conclusions",
	"acknowledgements":          "ack",
	"acknowledgments":           "ack",
	"acknowledgement":           "ack",
	"acknowledgment":            "ack",
	"references":                "refs",
	"bibliography":              "refs",
	"literature cited":          "refs",
	"references and notes":      "refs",
	"supplementary material":    "supplement",
	"supplementary information": "supplement",
}

// maxHeadingLen bounds the length of a line considered as a heading.
const maxHeadingLen = 60

// Headings is a Sectioner that recognizes well-known section headings
// standing on their own line, in plain, numbered ("2. Methods") or Markdown
// ("## Methods") form.
type Headings struct {
	// MinSections is the number of distinct headings required before the
	// text counts as sectioned (default 2).
	MinSections int
}

// Sections returns contiguous ranges covering the whole text, ordered by
// start. Text before the first heading is "unknown". A heading name seen a
// second time does not open a new section.
func (h Headings) Sections(text string) ([]types.Section, bool) {
	minSections := h.MinSections
	if minSections <= 0 {
		minSections = 2
	}

	type mark struct {
		name  string
		start int
	}
	var marks []mark
	seen := make(map[string]bool)

	pos := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		if name, ok := headingName(line); ok && !seen[name] {
			seen[name] = true
			marks = append(marks, mark{name: name, start: pos})
		}
		pos += len(line)
	}

	if len(marks) < minSections {
		return nil, false
	}

	var secs []types.Section
	if marks[0].start > 0 {
		secs = append(secs, types.Section{Name: Unknown, Start: 0, End: marks[0].start})
	}
	for i, m := range marks {
		end := len(text)
		if i+1 < len(marks) {
			end = marks[i+1].start
		}
		secs = append(secs, types.Section{Name: m.name, Start: m.start, End: end})
	}
	return secs, true
}

// headingName returns the canonical section name if line is a heading.
func headingName(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len(trimmed) > maxHeadingLen {
		return "", false
	}
	trimmed = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
	trimmed = stripNumbering(trimmed)
	trimmed = strings.TrimRight(trimmed, ":. ")
	name, ok := canonical[strings.ToLower(strings.Join(strings.Fields(trimmed), " "))]
	return name, ok
}

// stripNumbering removes a leading "2.", "2", "II." or "IV " from a heading.
func stripNumbering(s string) string {
	i := 0
	for i < len(s) && (unicode.IsDigit(rune(s[i])) || strings.ContainsRune("IVX", rune(s[i]))) {
		i++
	}
	if i == 0 || i == len(s) {
		return s
	}
	if s[i] == '.' {
		i++
	}
	if i < len(s) && s[i] != ' ' {
		return s
	}
	return strings.TrimSpace(s[i:])
}
