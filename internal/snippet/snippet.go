// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package snippet builds human-readable context strings around an annotated
// span, trimmed to sentence boundaries.
package snippet

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMinContext and DefaultMaxContext bound the context on each side.
	DefaultMinContext = 0
	DefaultMaxContext = 250

	// searchWindow is the most characters scanned for a right-hand sentence
	// end, independent of the maximum context.
	searchWindow = 250

	openMark  = "<<<"
	closeMark = ">>>"
)

// Extract returns left<<<match>>>right for text[start:end] with the default
// context bounds.
func Extract(text string, start, end int) string {
	return ExtractContext(text, start, end, DefaultMinContext, DefaultMaxContext)
}

// ExtractContext returns left<<<match>>>right where left and right are cut at
// sentence boundaries. The left boundary is searched between minContext and
// maxContext characters before the match, the right one in the 250
// characters following minContext after it. Offsets are byte offsets and are clamped to the
// text. Newlines and tabs are replaced by spaces.
func ExtractContext(text string, start, end, minContext, maxContext int) string {
	n := len(text)
	start = clamp(start, 0, n)
	end = clamp(end, start, n)
	if maxContext < minContext {
		maxContext = minContext
	}

	left := leftBoundary(text, start, minContext, maxContext)
	right := rightBoundary(text, end, minContext, maxContext)

	var b strings.Builder
	b.Grow(right - left + len(openMark) + len(closeMark))
	b.WriteString(text[left:start])
	b.WriteString(openMark)
	b.WriteString(text[start:end])
	b.WriteString(closeMark)
	b.WriteString(text[end:right])
	return clean(b.String())
}

// rightBoundary returns the end of the right context: just after the first
// ". " that is followed by an uppercase letter or the end of the scanned
// window, searched from end+minContext. Abbreviation dots like "E. coli"
// are followed by a lowercase continuation and are skipped. Without a
// boundary the context is minContext long, or maxContext when that would
// leave it empty. A zero maxContext means no right context at all.
func rightBoundary(text string, end, minContext, maxContext int) int {
	if maxContext == 0 {
		return end
	}
	n := len(text)
	lo := clamp(end+minContext, 0, n)
	hi := clamp(end+maxContext, 0, n)

	window := text[lo:min(n, lo+searchWindow)]
	if i := sentenceEnd(window); i >= 0 {
		return lo + i + 1
	}
	if lo == end {
		return max(runeFloor(text, hi), end)
	}
	return max(runeFloor(text, lo), end)
}

func sentenceEnd(s string) int {
	for i := 0; i+1 < len(s); i++ {
		if s[i] != '.' || s[i+1] != ' ' {
			continue
		}
		if i+2 == len(s) || isUpper(s[i+2]) {
			return i
		}
	}
	return -1
}

// leftBoundary returns the start of the left context: just after the last
// ". " between start-maxContext and start-minContext. Without one the
// context is minContext long, or maxContext when that would leave it empty.
func leftBoundary(text string, start, minContext, maxContext int) int {
	lo := max(start-maxContext, 0)
	hi := max(start-minContext, 0)
	if lo > hi {
		lo = hi
	}

	if i := strings.LastIndex(text[lo:hi], ". "); i >= 0 {
		return lo + i + 2
	}
	if hi == start {
		return runeCeil(text, lo, start)
	}
	return runeCeil(text, hi, start)
}

func isUpper(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

// clean removes characters that would break the tab-separated output.
func clean(s string) string {
	return strings.NewReplacer("\n", " ", "\t", " ", "\r", " ").Replace(s)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// runeFloor moves i back to the start of the rune it falls into.
func runeFloor(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeCeil moves i forward to the next rune start, not past limit.
func runeCeil(s string, i, limit int) int {
	for i < limit && i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
