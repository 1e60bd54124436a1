// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package textextractpdftextlib

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"obscura/internal/redactors/position"
)

const (
	// wordGapFactor is the gap, as a fraction of the font size, that starts a
	// new word when no space glyph was drawn
	wordGapFactor = 0.2

	// lineToleranceFactor is the baseline distance, as a fraction of the font
	// size, within which glyphs share a line
	lineToleranceFactor = 0.5

	// baselineShiftFactor splits raised or lowered runs (footnote marks) off
	// the preceding word
	baselineShiftFactor = 0.15
)

type placedGlyph struct {
	g        Glyph
	along    float64
	alongEnd float64
	perp     float64
	size     float64
}

// GroupWords assembles glyphs into words and lines. Glyphs are grouped by
// writing direction, then by baseline top to bottom, then ordered along the
// baseline. Words break at whitespace glyphs, at horizontal gaps wider than a
// fifth of the font size, and where the baseline or font size jumps.
func GroupWords(glyphs []Glyph) []position.Word {
	type direction struct {
		ux, uy float64
		items  []placedGlyph
	}
	var dirs []*direction
	byAngle := make(map[int]*direction)

	for _, g := range glyphs {
		if g.Text == "" {
			continue
		}
		dx, dy := g.EndX-g.X, g.EndY-g.Y
		length := math.Hypot(dx, dy)
		ux, uy := 1.0, 0.0
		if length > 1e-9 {
			ux, uy = dx/length, dy/length
		}
		angle := int(math.Round(math.Atan2(uy, ux) * 180 / math.Pi))
		d, ok := byAngle[angle]
		if !ok {
			d = &direction{ux: ux, uy: uy}
			byAngle[angle] = d
			dirs = append(dirs, d)
		}
		along := g.X*d.ux + g.Y*d.uy
		d.items = append(d.items, placedGlyph{
			g:        g,
			along:    along,
			alongEnd: along + length,
			perp:     -g.X*d.uy + g.Y*d.ux,
			size:     math.Max(g.Size, 1),
		})
	}

	var words []position.Word
	lineNo := 0
	for block, d := range dirs {
		for _, line := range splitLines(d.items) {
			words = append(words, lineWords(line, block, lineNo)...)
			lineNo++
		}
	}
	return words
}

func splitLines(items []placedGlyph) [][]placedGlyph {
	sort.SliceStable(items, func(i, j int) bool { return items[i].perp > items[j].perp })

	var lines [][]placedGlyph
	var current []placedGlyph
	var ref placedGlyph
	for _, it := range items {
		if len(current) > 0 && math.Abs(ref.perp-it.perp) > lineToleranceFactor*math.Max(ref.size, it.size) {
			lines = append(lines, current)
			current = nil
		}
		if len(current) == 0 {
			ref = it
		}
		current = append(current, it)
	}
	if len(current) > 0 {
		lines = append(lines, current)
	}

	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool { return line[i].along < line[j].along })
	}
	return lines
}

func lineWords(line []placedGlyph, block, lineNo int) []position.Word {
	var words []position.Word
	var text strings.Builder
	var runeRects []position.Rect
	var prev *placedGlyph

	flush := func() {
		if text.Len() > 0 {
			var rect position.Rect
			for _, r := range runeRects {
				rect = rect.Union(r)
			}
			words = append(words, position.Word{
				Text:      text.String(),
				Rect:      rect,
				RuneRects: runeRects,
				Block:     block,
				Line:      lineNo,
			})
		}
		text.Reset()
		runeRects = nil
	}

	for i := range line {
		it := &line[i]
		if strings.TrimFunc(it.g.Text, unicode.IsSpace) == "" {
			flush()
			prev = nil
			continue
		}
		if prev != nil {
			if isOverprint(*prev, *it) {
				continue
			}
			size := math.Max(prev.size, it.size)
			gap := it.along - prev.alongEnd
			shifted := math.Abs(it.perp-prev.perp) > baselineShiftFactor*size
			resized := math.Min(prev.size, it.size)/size < 0.8
			if gap > wordGapFactor*size || shifted || resized {
				flush()
			}
		}
		runes := []rune(it.g.Text)
		for k := range runes {
			runeRects = append(runeRects, sliceRect(it.g.Rect, len(runes), k))
		}
		text.WriteString(it.g.Text)
		prev = it
	}
	flush()
	return words
}

// isOverprint detects the same glyph drawn twice at nearly the same spot, as
// done for simulated bold text.
func isOverprint(prev, cur placedGlyph) bool {
	tol := baselineShiftFactor * cur.size
	return prev.g.Text == cur.g.Text &&
		math.Abs(cur.along-prev.along) < tol &&
		math.Abs(cur.perp-prev.perp) < tol
}

func sliceRect(r position.Rect, n, k int) position.Rect {
	if n <= 1 {
		return r
	}
	step := r.Width() / float64(n)
	return position.Rect{X0: r.X0 + step*float64(k), Y0: r.Y0, X1: r.X0 + step*float64(k+1), Y1: r.Y1}
}
