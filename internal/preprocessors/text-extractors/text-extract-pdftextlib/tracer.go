// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package textextractpdftextlib

import (
	"math"

	"obscura/internal/redactors/position"
)

const (
	// maxFormDepth bounds Form XObject recursion.
	maxFormDepth = 8

	glyphAscent  = 0.8
	glyphDescent = -0.2
)

// Resources resolves the named resources used by a content stream.
type Resources interface {
	Font(name string) *Font
	XObject(name string) (*XObject, bool)
}

// XObject describes a named external object.
type XObject struct {
	Name    string
	Subtype string // "Image" or "Form"

	// ObjectNumber and Generation identify the stream object when the
	// resolver knows it
	ObjectNumber int
	Generation   int

	// Matrix is the form matrix, identity for images
	Matrix position.Matrix

	// Content is the decoded content stream of a form
	Content []byte

	// Resources resolves names used inside a form
	Resources Resources

	// Width and Height are the image dimensions in pixels
	Width, Height int
}

// Glyph is one shown character code and where it landed on the page.
type Glyph struct {
	// Op is the index of the show operation in Trace.Ops
	Op int

	// Elem is the index of the string among the operation's string operands;
	// for TJ it counts only string elements of the array
	Elem int

	// Offset is the byte offset of Code within that string
	Offset int

	Code []byte
	Text string

	// Rect is the glyph box in user space
	Rect position.Rect

	// X, Y is the glyph origin and EndX, EndY the origin advanced by the
	// glyph width, both in user space
	X, Y, EndX, EndY float64

	// Size is the rendered font size in user space units
	Size float64

	// Width is the glyph width in thousandths of text space
	Width float64

	// Tfs, Tc and Tw are the text state the glyph was shown with; Tw is zero
	// when word spacing did not apply to this code
	Tfs, Tc, Tw float64
}

// Placement is an image drawn by the content stream: an image XObject or an
// inline image.
type Placement struct {
	Op      int
	Name    string
	Inline  bool
	XObject *XObject

	// CTM maps the unit square onto the page
	CTM position.Matrix
}

// Bounds returns the user-space box covered by the image.
func (p Placement) Bounds() position.Rect {
	return p.CTM.TransformRect(position.Rect{X0: 0, Y0: 0, X1: 1, Y1: 1})
}

// FormTrace is a Form XObject drawn by a content stream.
type FormTrace struct {
	Op      int
	Name    string
	XObject *XObject
	Trace   *Trace
}

// Trace is the result of interpreting one content stream.
type Trace struct {
	Ops       []Operation
	Glyphs    []Glyph
	Images    []Placement
	Forms     []FormTrace
	Resources Resources

	// Err holds a syntax error that stopped interpretation early
	Err error
}

// AllGlyphs returns the glyphs of the trace and its forms in drawing order.
func (t *Trace) AllGlyphs() []Glyph {
	if len(t.Forms) == 0 {
		return t.Glyphs
	}
	out := make([]Glyph, 0, len(t.Glyphs))
	gi := 0
	for _, f := range t.Forms {
		for gi < len(t.Glyphs) && t.Glyphs[gi].Op < f.Op {
			out = append(out, t.Glyphs[gi])
			gi++
		}
		out = append(out, f.Trace.AllGlyphs()...)
	}
	return append(out, t.Glyphs[gi:]...)
}

// HasImages reports whether any image is drawn, including inside forms.
func (t *Trace) HasImages() bool {
	if len(t.Images) > 0 {
		return true
	}
	for _, f := range t.Forms {
		if f.Trace.HasImages() {
			return true
		}
	}
	return false
}

// Incomplete reports whether this trace or a nested form stopped early.
func (t *Trace) Incomplete() bool {
	if t.Err != nil {
		return true
	}
	for _, f := range t.Forms {
		if f.Trace.Incomplete() {
			return true
		}
	}
	return false
}

type textState struct {
	font  *Font
	tfs   float64
	tc    float64
	tw    float64
	th    float64
	tl    float64
	trise float64
}

type graphicsState struct {
	ctm  position.Matrix
	text textState
}

type tracer struct {
	res   Resources
	trace *Trace
	depth int

	gs    graphicsState
	stack []graphicsState
	tm    position.Matrix
	tlm   position.Matrix
}

// TraceContent interprets a content stream starting from the given CTM.
func TraceContent(content []byte, res Resources, ctm position.Matrix) *Trace {
	return traceContent(content, res, ctm, 0)
}

func traceContent(content []byte, res Resources, ctm position.Matrix, depth int) *Trace {
	ops, err := Tokenize(content)
	tr := &tracer{
		res:   res,
		trace: &Trace{Ops: ops, Resources: res, Err: err},
		depth: depth,
		gs:    graphicsState{ctm: ctm, text: textState{th: 1}},
		tm:    position.Identity,
		tlm:   position.Identity,
	}
	for i, op := range ops {
		tr.apply(i, op)
	}
	return tr.trace
}

func (tr *tracer) apply(i int, op Operation) {
	ts := &tr.gs.text
	switch op.Operator {
	case "q":
		tr.stack = append(tr.stack, tr.gs)
	case "Q":
		if n := len(tr.stack); n > 0 {
			tr.gs = tr.stack[n-1]
			tr.stack = tr.stack[:n-1]
		}
	case "cm":
		if len(op.Operands) == 6 {
			m := position.Matrix{op.Float(0), op.Float(1), op.Float(2), op.Float(3), op.Float(4), op.Float(5)}
			tr.gs.ctm = m.Multiply(tr.gs.ctm)
		}
	case "BT":
		tr.tm = position.Identity
		tr.tlm = position.Identity
	case "Tf":
		if tr.res != nil {
			ts.font = tr.res.Font(op.NameAt(0))
		}
		ts.tfs = op.Float(1)
	case "Tc":
		ts.tc = op.Float(0)
	case "Tw":
		ts.tw = op.Float(0)
	case "Tz":
		ts.th = op.Float(0) / 100
	case "TL":
		ts.tl = op.Float(0)
	case "Ts":
		ts.trise = op.Float(0)
	case "Td":
		tr.moveLine(op.Float(0), op.Float(1))
	case "TD":
		ts.tl = -op.Float(1)
		tr.moveLine(op.Float(0), op.Float(1))
	case "T*":
		tr.moveLine(0, -ts.tl)
	case "Tm":
		if len(op.Operands) == 6 {
			tr.tlm = position.Matrix{op.Float(0), op.Float(1), op.Float(2), op.Float(3), op.Float(4), op.Float(5)}
			tr.tm = tr.tlm
		}
	case "Tj":
		if len(op.Operands) > 0 && op.Operands[0].Kind == OperandString {
			tr.show(i, 0, op.Operands[0].Str)
		}
	case "'":
		tr.moveLine(0, -ts.tl)
		if len(op.Operands) > 0 && op.Operands[0].Kind == OperandString {
			tr.show(i, 0, op.Operands[0].Str)
		}
	case "\"":
		if len(op.Operands) == 3 {
			ts.tw = op.Float(0)
			ts.tc = op.Float(1)
			tr.moveLine(0, -ts.tl)
			if op.Operands[2].Kind == OperandString {
				tr.show(i, 0, op.Operands[2].Str)
			}
		}
	case "TJ":
		if len(op.Operands) > 0 && op.Operands[0].Kind == OperandArray {
			elem := 0
			for _, item := range op.Operands[0].Array {
				switch item.Kind {
				case OperandString:
					tr.show(i, elem, item.Str)
					elem++
				case OperandNumber:
					tx := -item.Num / 1000 * ts.tfs * ts.th
					tr.tm = position.Matrix{1, 0, 0, 1, tx, 0}.Multiply(tr.tm)
				}
			}
		}
	case "Do":
		tr.drawXObject(i, op.NameAt(0))
	case "BI":
		tr.trace.Images = append(tr.trace.Images, Placement{Op: i, Inline: true, CTM: tr.gs.ctm})
	}
}

func (tr *tracer) moveLine(tx, ty float64) {
	tr.tlm = position.Matrix{1, 0, 0, 1, tx, ty}.Multiply(tr.tlm)
	tr.tm = tr.tlm
}

func (tr *tracer) show(op, elem int, s []byte) {
	ts := &tr.gs.text
	font := ts.font
	if font == nil {
		return
	}
	n := font.CodeLength()
	for off := 0; off+n <= len(s); off += n {
		code := s[off : off+n]
		text := font.Decode(code)
		w0 := font.Width(codeValue(code), text)

		tw := 0.0
		if font.Simple() && code[0] == ' ' {
			tw = ts.tw
		}

		trm := position.Matrix{ts.tfs * ts.th, 0, 0, ts.tfs, 0, ts.trise}.Multiply(tr.tm).Multiply(tr.gs.ctm)
		x, y := trm.Apply(0, 0)
		ex, ey := trm.Apply(w0/1000, 0)
		box := trm.TransformRect(position.Rect{X0: 0, Y0: glyphDescent, X1: w0 / 1000, Y1: glyphAscent})

		tr.trace.Glyphs = append(tr.trace.Glyphs, Glyph{
			Op:     op,
			Elem:   elem,
			Offset: off,
			Code:   code,
			Text:   text,
			Rect:   box,
			X:      x,
			Y:      y,
			EndX:   ex,
			EndY:   ey,
			Size:   math.Hypot(trm[2], trm[3]),
			Width:  w0,
			Tfs:    ts.tfs,
			Tc:     ts.tc,
			Tw:     tw,
		})

		tx := (w0/1000*ts.tfs + ts.tc + tw) * ts.th
		tr.tm = position.Matrix{1, 0, 0, 1, tx, 0}.Multiply(tr.tm)
	}
}

func (tr *tracer) drawXObject(op int, name string) {
	if tr.res == nil {
		return
	}
	xo, ok := tr.res.XObject(name)
	if !ok {
		return
	}
	switch xo.Subtype {
	case "Image":
		tr.trace.Images = append(tr.trace.Images, Placement{Op: op, Name: name, XObject: xo, CTM: tr.gs.ctm})
	case "Form":
		if tr.depth >= maxFormDepth {
			return
		}
		res := xo.Resources
		if res == nil {
			res = tr.res
		}
		ctm := xo.Matrix.Multiply(tr.gs.ctm)
		tr.trace.Forms = append(tr.trace.Forms, FormTrace{
			Op:      op,
			Name:    name,
			XObject: xo,
			Trace:   traceContent(xo.Content, res, ctm, tr.depth+1),
		})
	}
}
