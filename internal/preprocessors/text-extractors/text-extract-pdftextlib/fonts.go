// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package textextractpdftextlib

import (
	"strings"

	"github.com/ledongthuc/pdf"
	pdffont "github.com/pdfcpu/pdfcpu/pkg/font"
)

const (
	defaultGlyphWidth = 500.0
	defaultCIDWidth   = 1000.0
)

// Font holds what the tracer needs from a font dictionary: how many bytes a
// character code takes, how wide each glyph is, and how to decode codes to
// text.
type Font struct {
	BaseFont string
	Subtype  string

	twoByte      bool
	firstChar    int
	widths       []float64
	cidWidths    map[int]float64
	defaultWidth float64
	missingWidth float64
	scale        float64
	coreFont     string
	enc          pdf.TextEncoding
}

// newFont reads a font dictionary.
func newFont(v pdf.Value) *Font {
	f := &Font{
		BaseFont:     stripSubsetPrefix(v.Key("BaseFont").Name()),
		Subtype:      v.Key("Subtype").Name(),
		scale:        1,
		defaultWidth: defaultCIDWidth,
	}

	if f.Subtype == "Type0" {
		f.twoByte = true
		descendant := v.Key("DescendantFonts").Index(0)
		if dw := descendant.Key("DW"); dw.Kind() == pdf.Integer || dw.Kind() == pdf.Real {
			f.defaultWidth = dw.Float64()
		}
		f.cidWidths = parseCIDWidths(descendant.Key("W"))
		f.missingWidth = f.defaultWidth
	} else {
		f.firstChar = int(v.Key("FirstChar").Int64())
		widths := v.Key("Widths")
		for i := 0; i < widths.Len(); i++ {
			f.widths = append(f.widths, widths.Index(i).Float64())
		}
		f.missingWidth = v.Key("FontDescriptor").Key("MissingWidth").Float64()
		if len(f.widths) == 0 && pdffont.IsCoreFont(f.BaseFont) {
			f.coreFont = f.BaseFont
		}
		if f.missingWidth == 0 {
			f.missingWidth = defaultGlyphWidth
		}
	}

	if f.Subtype == "Type3" {
		if m := v.Key("FontMatrix"); m.Len() == 6 {
			f.scale = m.Index(0).Float64() * 1000
		}
	}

	f.enc = safeEncoder(pdf.Font{V: v})
	return f
}

// safeEncoder builds the font's text decoder; malformed CMaps make the
// reader panic, in which case codes decode to nothing.
func safeEncoder(font pdf.Font) (enc pdf.TextEncoding) {
	defer func() {
		if r := recover(); r != nil {
			enc = nil
		}
	}()
	return font.Encoder()
}

func parseCIDWidths(w pdf.Value) map[int]float64 {
	widths := make(map[int]float64)
	for i := 0; i < w.Len(); {
		first := int(w.Index(i).Int64())
		next := w.Index(i + 1)
		if next.Kind() == pdf.Array {
			for k := 0; k < next.Len(); k++ {
				widths[first+k] = next.Index(k).Float64()
			}
			i += 2
			continue
		}
		if i+2 >= w.Len() {
			break
		}
		last := int(next.Int64())
		width := w.Index(i + 2).Float64()
		for c := first; c <= last && c-first < 65536; c++ {
			widths[c] = width
		}
		i += 3
	}
	return widths
}

func stripSubsetPrefix(name string) string {
	if i := strings.IndexByte(name, '+'); i == 6 {
		return name[i+1:]
	}
	return name
}

// CodeLength returns the number of bytes per character code.
func (f *Font) CodeLength() int {
	if f.twoByte {
		return 2
	}
	return 1
}

// Simple reports whether the font uses single-byte codes.
func (f *Font) Simple() bool {
	return !f.twoByte
}

// Width returns the glyph width for a code in thousandths of text space.
func (f *Font) Width(code int, text string) float64 {
	if f.twoByte {
		if w, ok := f.cidWidths[code]; ok {
			return w
		}
		return f.defaultWidth
	}
	if i := code - f.firstChar; i >= 0 && i < len(f.widths) {
		return f.widths[i] * f.scale
	}
	if f.coreFont != "" && text != "" {
		if w := pdffont.TextWidth(text, f.coreFont, 1000); w > 0 {
			return w
		}
	}
	return f.missingWidth * f.scale
}

// Decode converts one character code to text.
func (f *Font) Decode(code []byte) (text string) {
	if f.enc == nil {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()
	return f.enc.Decode(string(code))
}

// codeValue returns the integer value of a character code.
func codeValue(code []byte) int {
	v := 0
	for _, b := range code {
		v = v<<8 | int(b)
	}
	return v
}
