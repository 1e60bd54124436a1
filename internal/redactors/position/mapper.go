// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package position

import (
	"strings"
	"unicode"

	"obscura/internal/keywords"
)

// Word is one positioned token of page text, from the native text layer or
// from OCR.
type Word struct {
	// Text is the raw token text as extracted
	Text string

	// Rect is the token's bounding box in user space
	Rect Rect

	// RuneRects holds one box per rune of Text when the producer knows glyph
	// positions. It is nil for OCR words.
	RuneRects []Rect

	// Block groups lines into a text block
	Block int

	// Line identifies the line within the block
	Line int

	// Confidence is the OCR confidence in [0,100], zero for native words
	Confidence float64
}

// WordSpan ties a rectangle to a half-open rune range [Start, End) of a
// reconstructed line string.
type WordSpan struct {
	Rect  Rect
	Start int
	End   int

	// runeRects, when set, has exactly End-Start entries.
	runeRects []Rect
}

// Line is a reconstructed line of text together with the spans of its words.
type Line struct {
	Text  string
	Spans []WordSpan
}

// inTokenPunctuation never splits a token.
const inTokenPunctuation = `'-@.,+&/\`

// footnoteMarks are split out of tokens even though they are not in a
// separator category.
var footnoteMarks = map[rune]bool{
	'*': true, '†': true, '‡': true, '§': true, '¶': true, '※': true, '⁂': true,
}

func isSuperOrSubscript(r rune) bool {
	switch {
	case r == '¹' || r == '²' || r == '³':
		return true
	case r >= 0x2070 && r <= 0x209F:
		return true
	}
	return false
}

// separatorKind classifies a rune for token splitting.
type separatorKind int

const (
	keepInToken separatorKind = iota
	splitAsMark
	splitAndDrop
)

func classifyRune(r rune) separatorKind {
	if strings.ContainsRune(inTokenPunctuation, r) {
		return keepInToken
	}
	if isSuperOrSubscript(r) || footnoteMarks[r] {
		return splitAsMark
	}
	if unicode.IsSpace(r) || unicode.Is(unicode.Zs, r) || unicode.Is(unicode.Cc, r) || unicode.Is(unicode.Cf, r) {
		return splitAndDrop
	}
	return keepInToken
}

// SplitFused splits a word whose text fuses real words with superscripts,
// footnote marks, unusual whitespace or control characters. Marks become
// tokens of their own; whitespace and controls are dropped.
func SplitFused(w Word) []Word {
	runes := []rune(w.Text)
	aligned := len(w.RuneRects) == len(runes)

	needsSplit := false
	for _, r := range runes {
		if classifyRune(r) != keepInToken {
			needsSplit = true
			break
		}
	}
	if !needsSplit {
		return []Word{w}
	}

	var out []Word
	start := 0
	emit := func(from, to int) {
		if from >= to {
			return
		}
		sub := w
		sub.Text = string(runes[from:to])
		if aligned {
			sub.RuneRects = w.RuneRects[from:to]
			sub.Rect = unionRects(sub.RuneRects)
		} else {
			sub.RuneRects = nil
			sub.Rect = proportionalRect(w.Rect, len(runes), from, to)
		}
		out = append(out, sub)
	}

	for i, r := range runes {
		switch classifyRune(r) {
		case splitAsMark:
			emit(start, i)
			emit(i, i+1)
			start = i + 1
		case splitAndDrop:
			emit(start, i)
			start = i + 1
		}
	}
	emit(start, len(runes))
	return out
}

// BuildLines groups words by (Block, Line) in first-appearance order and
// reconstructs each line by joining normalized tokens with a single space.
func BuildLines(words []Word) []Line {
	type key struct{ block, line int }
	index := make(map[key]int)
	var grouped [][]Word
	for _, w := range words {
		k := key{w.Block, w.Line}
		i, ok := index[k]
		if !ok {
			i = len(grouped)
			index[k] = i
			grouped = append(grouped, nil)
		}
		grouped[i] = append(grouped[i], w)
	}

	lines := make([]Line, 0, len(grouped))
	for _, group := range grouped {
		var b strings.Builder
		var spans []WordSpan
		offset := 0
		for _, w := range group {
			for _, tok := range SplitFused(w) {
				text := keywords.Normalize(tok.Text)
				n := len([]rune(text))
				if n == 0 {
					continue
				}
				if len(spans) > 0 {
					b.WriteByte(' ')
					offset++
				}
				span := WordSpan{Rect: tok.Rect, Start: offset, End: offset + n}
				if len(tok.RuneRects) == n && n == len([]rune(tok.Text)) {
					span.runeRects = tok.RuneRects
				}
				spans = append(spans, span)
				b.WriteString(text)
				offset += n
			}
		}
		if len(spans) == 0 {
			continue
		}
		lines = append(lines, Line{Text: b.String(), Spans: spans})
	}
	return lines
}

// RectsForMatch returns one rectangle per word whose span overlaps the rune
// range [start, end). When glyph boxes are known for a word the rectangle is
// clipped to the covered runes.
func RectsForMatch(spans []WordSpan, start, end int) []Rect {
	var rects []Rect
	for _, s := range spans {
		if !(s.Start < end && s.End > start) {
			continue
		}
		r := s.Rect
		if s.runeRects != nil {
			from := max(start, s.Start) - s.Start
			to := min(end, s.End) - s.Start
			r = unionRects(s.runeRects[from:to])
		}
		if r.IsEmpty() {
			continue
		}
		rects = append(rects, r)
	}
	return rects
}

// PageText joins reconstructed lines with newlines.
func PageText(lines []Line) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.Text
	}
	return strings.Join(parts, "\n")
}

func unionRects(rects []Rect) Rect {
	var u Rect
	for _, r := range rects {
		u = u.Union(r)
	}
	return u
}

// proportionalRect slices a word box horizontally assuming evenly wide runes.
func proportionalRect(r Rect, n, from, to int) Rect {
	if n <= 0 {
		return r
	}
	step := r.Width() / float64(n)
	return Rect{X0: r.X0 + step*float64(from), Y0: r.Y0, X1: r.X0 + step*float64(to), Y1: r.Y1}
}
