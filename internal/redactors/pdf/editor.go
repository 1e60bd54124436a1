// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pdf

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/filter"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	pdftext "obscura/internal/preprocessors/text-extractors/text-extract-pdftextlib"
	"obscura/internal/redactors/position"
)

// pageStream keys the page's own content among the edited streams.
const pageStream = 0

type glyphKey struct {
	op, elem, offset int
}

// streamEdit collects the changes to one content stream.
type streamEdit struct {
	trace   *pdftext.Trace
	content []byte
	glyphs  map[glyphKey]bool
	dropOps map[int]bool
}

func (s *streamEdit) changed() bool {
	return len(s.glyphs) > 0 || len(s.dropOps) > 0
}

// imageEdit collects the pixel areas to blank in one image XObject.
type imageEdit struct {
	ref    types.IndirectRef
	pixels []image.Rectangle
}

// EditStats summarizes what an Apply call changed.
type EditStats struct {
	GlyphsRemoved  int
	ImagesBlanked  int
	ImagesReplaced int
	InlineRemoved  int
	StreamsWritten int
}

// Apply destructively redacts rects on the page: every glyph whose centre
// lies inside a rect is removed from the content, including inside forms;
// images under a rect have the covered pixels blacked, or are replaced by a
// black image when their encoding cannot be edited; finally the rects are
// painted opaque black on top of the page.
func (p *Page) Apply(ctx *model.Context, rects []position.Rect) (EditStats, error) {
	var stats EditStats
	if len(rects) == 0 {
		return stats, nil
	}

	e := &editor{
		ctx:     ctx,
		rects:   rects,
		streams: make(map[int]*streamEdit),
		forms:   make(map[int]types.IndirectRef),
		images:  make(map[int]*imageEdit),
	}
	e.collect(pageStream, p.trace, p.content, 0)

	for _, nr := range sortedKeys(e.images) {
		ie := e.images[nr]
		err := blankImage(ctx, ie.ref, ie.pixels)
		if errors.Is(err, errUnsupportedImage) {
			err = replaceWithBlank(ctx, ie.ref)
			if err == nil {
				stats.ImagesReplaced++
				continue
			}
		}
		if err != nil {
			return stats, fmt.Errorf("failed to redact image object %d: %w", nr, err)
		}
		stats.ImagesBlanked++
	}

	for _, nr := range sortedKeys(e.streams) {
		s := e.streams[nr]
		stats.GlyphsRemoved += len(s.glyphs)
		for op := range s.dropOps {
			if s.trace.Ops[op].Operator == "BI" {
				stats.InlineRemoved++
			}
		}
		if nr == pageStream || !s.changed() {
			continue
		}
		if err := writeFormContent(ctx, e.forms[nr], rewriteContent(s)); err != nil {
			return stats, fmt.Errorf("failed to rewrite form object %d: %w", nr, err)
		}
		stats.StreamsWritten++
	}

	page := e.streams[pageStream]
	var buf bytes.Buffer
	buf.WriteString("q\n")
	buf.Write(rewriteContent(page))
	buf.WriteString("\nQ\n")
	for _, r := range rects {
		fmt.Fprintf(&buf, "q 0 g %s %s %s %s re f Q\n",
			formatNumber(r.X0), formatNumber(r.Y0), formatNumber(r.Width()), formatNumber(r.Height()))
	}
	if err := p.writeContent(ctx, buf.Bytes()); err != nil {
		return stats, err
	}
	stats.StreamsWritten++

	// forms may have changed, so resolve them afresh
	p.res = newEditResources(ctx, p.res.dict, p.res.fonts)
	p.content = buf.Bytes()
	p.trace = pdftext.TraceContent(p.content, p.res, position.Identity)
	return stats, nil
}

type editor struct {
	ctx     *model.Context
	rects   []position.Rect
	streams map[int]*streamEdit
	forms   map[int]types.IndirectRef
	images  map[int]*imageEdit
}

func (e *editor) collect(key int, trace *pdftext.Trace, content []byte, depth int) {
	s, ok := e.streams[key]
	if !ok {
		s = &streamEdit{
			trace:   trace,
			content: content,
			glyphs:  make(map[glyphKey]bool),
			dropOps: make(map[int]bool),
		}
		e.streams[key] = s
	}

	for _, g := range trace.Glyphs {
		if e.centreHit(g.Rect) {
			s.glyphs[glyphKey{g.Op, g.Elem, g.Offset}] = true
		}
	}

	for _, pl := range trace.Images {
		bounds := pl.Bounds()
		var pixels []image.Rectangle
		for _, r := range e.rects {
			if overlap := r.Intersect(bounds); overlap.Area() > 0 {
				if px, ok := pixelRect(pl, overlap); ok {
					pixels = append(pixels, px)
				}
			}
		}
		if len(pixels) == 0 {
			continue
		}
		if pl.Inline || pl.XObject == nil || pl.XObject.ObjectNumber == 0 {
			s.dropOps[pl.Op] = true
			continue
		}
		nr := pl.XObject.ObjectNumber
		ie, ok := e.images[nr]
		if !ok {
			ie = &imageEdit{ref: xobjectRef(pl.XObject)}
			e.images[nr] = ie
		}
		ie.pixels = append(ie.pixels, pixels...)
	}

	for _, f := range trace.Forms {
		if f.XObject == nil || f.XObject.ObjectNumber == 0 || depth >= maxEditDepth {
			continue
		}
		e.forms[f.XObject.ObjectNumber] = xobjectRef(f.XObject)
		e.collect(f.XObject.ObjectNumber, f.Trace, f.XObject.Content, depth+1)
	}
}

func xobjectRef(xo *pdftext.XObject) types.IndirectRef {
	return *types.NewIndirectRef(xo.ObjectNumber, xo.Generation)
}

// maxEditDepth bounds nested form editing.
const maxEditDepth = 8

func (e *editor) centreHit(r position.Rect) bool {
	cx, cy := r.Center()
	for _, rect := range e.rects {
		if rect.Contains(cx, cy) {
			return true
		}
	}
	return false
}

// pixelRect maps a user-space area over a placed image to the image's pixel
// grid. Row 0 of an image is drawn at the top of the unit square.
func pixelRect(pl pdftext.Placement, area position.Rect) (image.Rectangle, bool) {
	if pl.XObject == nil || pl.XObject.Width <= 0 || pl.XObject.Height <= 0 {
		// inline images are removed whole
		return image.Rect(0, 0, 1, 1), true
	}
	inv, ok := pl.CTM.Invert()
	if !ok {
		return image.Rectangle{}, false
	}
	unit := inv.TransformRect(area)
	w, h := float64(pl.XObject.Width), float64(pl.XObject.Height)
	r := image.Rect(
		int(math.Floor(unit.X0*w)),
		int(math.Floor((1-unit.Y1)*h)),
		int(math.Ceil(unit.X1*w)),
		int(math.Ceil((1-unit.Y0)*h)),
	).Intersect(image.Rect(0, 0, pl.XObject.Width, pl.XObject.Height))
	return r, !r.Empty()
}

// rewriteContent returns the stream content with the collected glyphs and
// operations removed. Bytes between operations are kept verbatim.
func rewriteContent(s *streamEdit) []byte {
	if !s.changed() {
		return s.content
	}

	byOp := make(map[int][]pdftext.Glyph)
	for _, g := range s.trace.Glyphs {
		if s.glyphs[glyphKey{g.Op, g.Elem, g.Offset}] {
			byOp[g.Op] = nil
		}
	}
	for _, g := range s.trace.Glyphs {
		if _, ok := byOp[g.Op]; ok {
			byOp[g.Op] = append(byOp[g.Op], g)
		}
	}

	var out bytes.Buffer
	prev := 0
	for i, op := range s.trace.Ops {
		glyphs, showChanged := byOp[i]
		if !showChanged && !s.dropOps[i] {
			continue
		}
		out.Write(s.content[prev:op.Start])
		if !s.dropOps[i] {
			out.WriteString(rewriteShow(op, glyphs, s.glyphs))
		}
		prev = op.End
	}
	out.Write(s.content[prev:])
	return out.Bytes()
}

// rewriteShow re-expresses a text-showing operation as TJ with the removed
// codes replaced by kerning that advances by the same amount, so the text
// that stays keeps its position.
func rewriteShow(op pdftext.Operation, glyphs []pdftext.Glyph, removed map[glyphKey]bool) string {
	var b tjBuilder
	elem := 0
	showString := func(str []byte) {
		consumed := 0
		for _, g := range glyphs {
			if g.Elem != elem {
				continue
			}
			if removed[glyphKey{g.Op, g.Elem, g.Offset}] {
				b.addKern(glyphAdvance(g))
			} else {
				b.addCode(g.Code)
			}
			consumed = g.Offset + len(g.Code)
		}
		if consumed < len(str) {
			b.addCode(str[consumed:])
		}
		elem++
	}

	var prefix string
	switch op.Operator {
	case "Tj":
		showString(op.Operands[0].Str)
	case "'":
		prefix = "T* "
		showString(op.Operands[0].Str)
	case "\"":
		prefix = fmt.Sprintf("%s Tw %s Tc T* ", formatNumber(op.Float(0)), formatNumber(op.Float(1)))
		showString(op.Operands[2].Str)
	case "TJ":
		for _, item := range op.Operands[0].Array {
			switch item.Kind {
			case pdftext.OperandString:
				showString(item.Str)
			case pdftext.OperandNumber:
				b.addKern(item.Num)
			}
		}
	}
	return prefix + b.String() + " TJ"
}

// glyphAdvance is the TJ adjustment that moves as far as showing g did.
func glyphAdvance(g pdftext.Glyph) float64 {
	if g.Tfs == 0 {
		return -g.Width
	}
	return -(g.Width + (g.Tc+g.Tw)*1000/g.Tfs)
}

type tjBuilder struct {
	parts  []string
	str    []byte
	kern   float64
	inKern bool
}

func (b *tjBuilder) addCode(code []byte) {
	if b.inKern {
		b.flushKern()
	}
	b.str = append(b.str, code...)
}

func (b *tjBuilder) addKern(n float64) {
	if len(b.str) > 0 {
		b.flushString()
	}
	b.kern += n
	b.inKern = true
}

func (b *tjBuilder) flushString() {
	b.parts = append(b.parts, "<"+hex.EncodeToString(b.str)+">")
	b.str = nil
}

func (b *tjBuilder) flushKern() {
	if b.kern != 0 {
		b.parts = append(b.parts, formatNumber(b.kern))
	}
	b.kern = 0
	b.inKern = false
}

func (b *tjBuilder) String() string {
	if len(b.str) > 0 {
		b.flushString()
	}
	if b.inKern {
		b.flushKern()
	}
	var out bytes.Buffer
	out.WriteByte('[')
	for i, p := range b.parts {
		if i > 0 {
			out.WriteByte(' ')
		}
		out.WriteString(p)
	}
	out.WriteByte(']')
	return out.String()
}

func formatNumber(f float64) string {
	s := strconv.FormatFloat(f, 'f', 4, 64)
	s = trimZeros(s)
	if s == "-0" {
		return "0"
	}
	return s
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}

// writeContent replaces the page content: the first content stream gets the
// new data and every other content stream is emptied.
func (p *Page) writeContent(ctx *model.Context, content []byte) error {
	if len(p.contents) == 0 {
		sd, err := flateStream(types.NewDict(), content)
		if err != nil {
			return err
		}
		ref, err := ctx.IndRefForNewObject(*sd)
		if err != nil {
			return fmt.Errorf("failed to add page content: %w", err)
		}
		p.dict.Update("Contents", *ref)
		p.contents = []types.IndirectRef{*ref}
		return nil
	}

	for i, ref := range p.contents {
		data := content
		if i > 0 {
			data = nil
		}
		old, err := streamDict(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to read page content: %w", err)
		}
		sd, err := flateStream(old.Dict, data)
		if err != nil {
			return err
		}
		if err := replaceStream(ctx, ref, sd); err != nil {
			return err
		}
	}
	return nil
}

func writeFormContent(ctx *model.Context, ref types.IndirectRef, content []byte) error {
	old, err := streamDict(ctx, ref)
	if err != nil {
		return err
	}
	sd, err := flateStream(old.Dict, content)
	if err != nil {
		return err
	}
	return replaceStream(ctx, ref, sd)
}

// flateStream builds a Flate-encoded stream carrying the entries of dict
// except the ones describing the previous encoding.
func flateStream(dict types.Dict, content []byte) (*types.StreamDict, error) {
	d := types.NewDict()
	for k, v := range dict {
		switch k {
		case "Filter", "DecodeParms", "Length", "DL":
			continue
		}
		d[k] = v
	}
	d.InsertName("Filter", filter.Flate)

	sd := &types.StreamDict{
		Dict:           d,
		Content:        content,
		FilterPipeline: []types.PDFFilter{{Name: filter.Flate}},
	}
	if err := sd.Encode(); err != nil {
		return nil, fmt.Errorf("failed to encode stream: %w", err)
	}
	setLength(sd)
	return sd, nil
}

func setLength(sd *types.StreamDict) {
	n := int64(len(sd.Raw))
	sd.StreamLength = &n
	sd.Dict.Update("Length", types.Integer(n))
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
