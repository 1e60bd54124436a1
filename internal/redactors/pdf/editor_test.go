// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pdf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdftext "obscura/internal/preprocessors/text-extractors/text-extract-pdftextlib"
	"obscura/internal/redactors/position"
	"obscura/internal/testutil/pdftest"
)

func stringOp(operator string, s string) pdftext.Operation {
	return pdftext.Operation{
		Operator: operator,
		Operands: []pdftext.Operand{{Kind: pdftext.OperandString, Str: []byte(s)}},
	}
}

func glyphsOf(s string, tfs, tc float64) []pdftext.Glyph {
	glyphs := make([]pdftext.Glyph, len(s))
	for i := range s {
		glyphs[i] = pdftext.Glyph{Offset: i, Code: []byte{s[i]}, Text: s[i : i+1], Width: 500, Tfs: tfs, Tc: tc}
	}
	return glyphs
}

func TestRewriteShow(t *testing.T) {
	tests := []struct {
		name    string
		op      pdftext.Operation
		glyphs  []pdftext.Glyph
		removed []int
		want    string
	}{
		{
			name:    "Tj leading glyph",
			op:      stringOp("Tj", "ab"),
			glyphs:  glyphsOf("ab", 10, 0),
			removed: []int{0},
			want:    "[-500 <62>] TJ",
		},
		{
			name:    "character spacing is compensated",
			op:      stringOp("Tj", "abc"),
			glyphs:  glyphsOf("abc", 10, 2),
			removed: []int{1},
			want:    "[<61> -700 <63>] TJ",
		},
		{
			name:    "adjacent removals merge",
			op:      stringOp("Tj", "abcd"),
			glyphs:  glyphsOf("abcd", 10, 0),
			removed: []int{1, 2},
			want:    "[<61> -1000 <64>] TJ",
		},
		{
			name:    "quote moves to the next line",
			op:      stringOp("'", "ab"),
			glyphs:  glyphsOf("ab", 10, 0),
			removed: []int{1},
			want:    "T* [<61> -500] TJ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			removed := make(map[glyphKey]bool)
			for _, i := range tt.removed {
				g := tt.glyphs[i]
				removed[glyphKey{g.Op, g.Elem, g.Offset}] = true
			}
			assert.Equal(t, tt.want, rewriteShow(tt.op, tt.glyphs, removed))
		})
	}
}

func TestRewriteShowTJKeepsNumbers(t *testing.T) {
	op := pdftext.Operation{
		Operator: "TJ",
		Operands: []pdftext.Operand{{Kind: pdftext.OperandArray, Array: []pdftext.Operand{
			{Kind: pdftext.OperandString, Str: []byte("a")},
			{Kind: pdftext.OperandNumber, Num: -250},
			{Kind: pdftext.OperandString, Str: []byte("bc")},
		}}},
	}
	glyphs := []pdftext.Glyph{
		{Elem: 0, Offset: 0, Code: []byte("a"), Width: 500, Tfs: 10},
		{Elem: 1, Offset: 0, Code: []byte("b"), Width: 500, Tfs: 10},
		{Elem: 1, Offset: 1, Code: []byte("c"), Width: 500, Tfs: 10},
	}
	removed := map[glyphKey]bool{{0, 1, 0}: true}
	assert.Equal(t, "[<61> -750 <63>] TJ", rewriteShow(op, glyphs, removed))
}

func TestRewriteShowDoubleQuote(t *testing.T) {
	op := pdftext.Operation{
		Operator: "\"",
		Operands: []pdftext.Operand{
			{Kind: pdftext.OperandNumber, Num: 3},
			{Kind: pdftext.OperandNumber, Num: 1.5},
			{Kind: pdftext.OperandString, Str: []byte("a ")},
		},
	}
	glyphs := glyphsOf("a ", 10, 1.5)
	glyphs[1].Tw = 3
	removed := map[glyphKey]bool{{0, 0, 1}: true}
	assert.Equal(t, "3 Tw 1.5 Tc T* [<61> -950] TJ", rewriteShow(op, glyphs, removed))
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "12", formatNumber(12))
	assert.Equal(t, "-0.5", formatNumber(-0.5))
	assert.Equal(t, "0", formatNumber(-0.00001))
	assert.Equal(t, "697.6", formatNumber(697.6))
}

type placed struct {
	text string
	x, y float64
}

func placedGlyphs(trace *pdftext.Trace) []placed {
	var out []placed
	for _, g := range trace.AllGlyphs() {
		out = append(out, placed{g.Text, g.X, g.Y})
	}
	return out
}

func TestApplyKeepsRemainingTextInPlace(t *testing.T) {
	content := `BT /F1 10 Tf 1.5 Tc 2 Tw 12 TL 72 700 Td (keep secret keep) Tj (secret tail) ' 3 1 (a secret b) " [(x) -300 (secret) -300 (y)] TJ ET`
	doc := openTestDocument(t, pdftest.Doc{Pages: []pdftest.Page{{Content: content}}})
	page, err := doc.Page(1)
	require.NoError(t, err)

	var rects []position.Rect
	for _, w := range page.Words() {
		if w.Text == "secret" {
			rects = append(rects, w.Rect)
		}
	}
	require.Len(t, rects, 4)

	var want []placed
	for _, g := range page.Trace().AllGlyphs() {
		cx, cy := g.Rect.Center()
		hit := false
		for _, r := range rects {
			hit = hit || r.Contains(cx, cy)
		}
		if !hit {
			want = append(want, placed{g.Text, g.X, g.Y})
		}
	}

	stats, err := page.Apply(doc.Ctx, rects)
	require.NoError(t, err)
	assert.Equal(t, 24, stats.GlyphsRemoved)

	got := placedGlyphs(page.Trace())
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].text, got[i].text)
		assert.InDelta(t, want[i].x, got[i].x, 1e-6, "glyph %d %q", i, want[i].text)
		assert.InDelta(t, want[i].y, got[i].y, 1e-6, "glyph %d %q", i, want[i].text)
	}

	var text strings.Builder
	for _, p := range got {
		text.WriteString(p.text)
	}
	assert.NotContains(t, text.String(), "secret")
	assert.Contains(t, string(page.content), "re f Q")
}

func TestApplyRemovesInlineImagesUnderRects(t *testing.T) {
	content := "q 10 0 0 10 100 100 cm BI /W 1 /H 1 /CS /G /BPC 8 ID \x00EI Q q 10 0 0 10 300 300 cm BI /W 1 /H 1 /CS /G /BPC 8 ID \x00EI Q"
	doc := openTestDocument(t, pdftest.Doc{Pages: []pdftest.Page{{Content: content}}})
	page, err := doc.Page(1)
	require.NoError(t, err)
	require.Len(t, page.Trace().Images, 2)

	stats, err := page.Apply(doc.Ctx, []position.Rect{{X0: 95, Y0: 95, X1: 115, Y1: 115}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.InlineRemoved)
	require.Len(t, page.Trace().Images, 1)
	assert.InDelta(t, 300.0, page.Trace().Images[0].Bounds().X0, 1e-9)
}

func TestPixelRect(t *testing.T) {
	pl := pdftext.Placement{
		XObject: &pdftext.XObject{Width: 4, Height: 2},
		CTM:     position.Matrix{200, 0, 0, 100, 72, 600},
	}
	r, ok := pixelRect(pl, position.Rect{X0: 80, Y0: 647.6, X1: 116, Y1: 659.6})
	require.True(t, ok)
	assert.Equal(t, 0, r.Min.X)
	assert.Equal(t, 1, r.Max.X)
	assert.Equal(t, 0, r.Min.Y)
	assert.Equal(t, 2, r.Max.Y)
}
