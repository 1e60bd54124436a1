// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	pdftext "obscura/internal/preprocessors/text-extractors/text-extract-pdftextlib"
	"obscura/internal/redactors/position"
)

var (
	// ErrEncrypted is returned for documents protected by a security handler.
	ErrEncrypted = errors.New("document is encrypted")

	// ErrCorrupt is returned for documents that cannot be parsed.
	ErrCorrupt = errors.New("document cannot be parsed")

	encryptEntry = regexp.MustCompile(`/Encrypt\s*(<<|\d+\s+\d+\s+R)`)

	configOnce sync.Once
)

// NewConfiguration returns the pdfcpu configuration used for reading and
// writing. pdfcpu's on-disk configuration directory is disabled.
func NewConfiguration() *model.Configuration {
	configOnce.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Document is a PDF opened twice: as a pdfcpu context for editing and as a
// text view that resolves fonts for the glyph tracer.
type Document struct {
	Ctx  *model.Context
	Text *pdftext.Document

	// DeclaredPages is the /Count the file stated before the page tree was
	// walked; it differs from PageCount when that entry was wrong
	DeclaredPages int
}

// OpenDocument parses data. It fails with ErrEncrypted or ErrCorrupt.
func OpenDocument(data []byte, conf *model.Configuration) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		if encryptEntry.Match(data) {
			return nil, fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if ctx.Encrypt != nil {
		return nil, ErrEncrypted
	}
	declared, err := RepairPageTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if ctx.PageCount == 0 {
		return nil, fmt.Errorf("%w: page tree holds no pages", ErrCorrupt)
	}

	text, err := pdftext.OpenBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if text.NumPages() != ctx.PageCount {
		return nil, fmt.Errorf("%w: page tree readers disagree on %d and %d pages", ErrCorrupt, ctx.PageCount, text.NumPages())
	}
	return &Document{Ctx: ctx, Text: text, DeclaredPages: declared}, nil
}

// PageCount returns the number of pages reachable through the page tree.
func (d *Document) PageCount() int {
	return d.Ctx.PageCount
}

// Write serializes the document.
func (d *Document) Write(w io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error writing PDF: %v", r)
		}
	}()
	return api.WriteContext(d.Ctx, w)
}

// Page is one page prepared for editing.
type Page struct {
	Number   int
	Geometry position.PageGeometry

	dict     types.Dict
	contents []types.IndirectRef
	content  []byte
	res      *editResources
	trace    *pdftext.Trace
}

// Page loads page n (1-based), traces its current content and keeps the
// trace for editing.
func (d *Document) Page(n int) (page *Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			page, err = nil, fmt.Errorf("error reading page %d: %v", n, r)
		}
	}()

	textPage, err := d.Text.Page(n)
	if err != nil {
		return nil, err
	}
	dict, _, inh, err := d.Ctx.PageDict(n, true)
	if err != nil {
		return nil, fmt.Errorf("error reading page %d: %w", n, err)
	}
	if dict == nil {
		return nil, fmt.Errorf("page %d not found", n)
	}

	refs, err := contentRefs(d.Ctx, dict)
	if err != nil {
		return nil, fmt.Errorf("error reading page %d content: %w", n, err)
	}
	var content bytes.Buffer
	for _, ref := range refs {
		data, err := decodedStream(d.Ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("error reading page %d content: %w", n, err)
		}
		content.Write(data)
		content.WriteByte('\n')
	}

	var resDict types.Dict
	if inh != nil {
		resDict = inh.Resources
	}
	res := newEditResources(d.Ctx, resDict, textPage.Resources)
	p := &Page{
		Number:   n,
		Geometry: textPage.Geometry,
		dict:     dict,
		contents: refs,
		content:  content.Bytes(),
		res:      res,
	}
	p.trace = pdftext.TraceContent(p.content, res, position.Identity)
	return p, nil
}

// Trace returns the interpreted page content.
func (p *Page) Trace() *pdftext.Trace {
	return p.trace
}

// Words returns the positioned words of the page's text layer.
func (p *Page) Words() []position.Word {
	return pdftext.GroupWords(p.trace.AllGlyphs())
}

// contentRefs lists the content streams of a page dictionary.
func contentRefs(ctx *model.Context, dict types.Dict) ([]types.IndirectRef, error) {
	obj, found := dict.Find("Contents")
	if !found || obj == nil {
		return nil, nil
	}
	if ref, ok := obj.(types.IndirectRef); ok {
		target, err := ctx.Dereference(ref)
		if err != nil {
			return nil, err
		}
		if arr, ok := target.(types.Array); ok {
			return refsOf(arr), nil
		}
		return []types.IndirectRef{ref}, nil
	}
	if arr, ok := obj.(types.Array); ok {
		return refsOf(arr), nil
	}
	return nil, fmt.Errorf("unsupported /Contents entry %T", obj)
}

func refsOf(arr types.Array) []types.IndirectRef {
	refs := make([]types.IndirectRef, 0, len(arr))
	for _, o := range arr {
		if ref, ok := o.(types.IndirectRef); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// streamDict resolves ref to a stream. The flag DereferenceStreamDict
// returns only tells whether the object had been validated before.
func streamDict(ctx *model.Context, ref types.IndirectRef) (*types.StreamDict, error) {
	sd, _, err := ctx.DereferenceStreamDict(ref)
	if err != nil {
		return nil, err
	}
	if sd == nil {
		return nil, fmt.Errorf("object %d is not a stream", ref.ObjectNumber.Value())
	}
	return sd, nil
}

func decodedStream(ctx *model.Context, ref types.IndirectRef) ([]byte, error) {
	sd, err := streamDict(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(sd.FilterPipeline) == 0 {
		return sd.Raw, nil
	}
	if err := sd.Decode(); err != nil {
		return nil, err
	}
	return sd.Content, nil
}

// replaceStream stores sd as the object ref points to.
func replaceStream(ctx *model.Context, ref types.IndirectRef, sd *types.StreamDict) error {
	entry, found := ctx.FindTableEntryForIndRef(&ref)
	if !found || entry == nil {
		return fmt.Errorf("object %d not found", ref.ObjectNumber.Value())
	}
	entry.Object = *sd
	return nil
}

func number(o types.Object) (float64, bool) {
	switch v := o.(type) {
	case types.Integer:
		return float64(v.Value()), true
	case types.Float:
		return v.Value(), true
	}
	return 0, false
}

// editResources resolves fonts through the text view and XObjects through
// the pdfcpu context, so forms are traced with their current content.
type editResources struct {
	ctx   *model.Context
	dict  types.Dict
	fonts pdftext.Resources

	mu       sync.Mutex
	xobjects map[string]*pdftext.XObject
}

func newEditResources(ctx *model.Context, dict types.Dict, fonts pdftext.Resources) *editResources {
	return &editResources{
		ctx:      ctx,
		dict:     dict,
		fonts:    fonts,
		xobjects: make(map[string]*pdftext.XObject),
	}
}

func (r *editResources) Font(name string) *pdftext.Font {
	if r.fonts == nil {
		return nil
	}
	return r.fonts.Font(name)
}

func (r *editResources) XObject(name string) (*pdftext.XObject, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if xo, found := r.xobjects[name]; found {
		return xo, xo != nil
	}
	xo := r.loadXObject(name)
	r.xobjects[name] = xo
	return xo, xo != nil
}

func (r *editResources) loadXObject(name string) *pdftext.XObject {
	if r.dict == nil {
		return nil
	}
	entry, found := r.dict.Find("XObject")
	if !found {
		return nil
	}
	xobjects, err := r.ctx.DereferenceDict(entry)
	if err != nil || xobjects == nil {
		return nil
	}
	obj, found := xobjects.Find(name)
	if !found {
		return nil
	}
	ref, ok := obj.(types.IndirectRef)
	if !ok {
		return nil
	}
	sd, err := streamDict(r.ctx, ref)
	if err != nil {
		return nil
	}

	xo := &pdftext.XObject{
		Name:         name,
		ObjectNumber: ref.ObjectNumber.Value(),
		Generation:   ref.GenerationNumber.Value(),
		Matrix:       position.Identity,
	}
	if st := sd.Dict.NameEntry("Subtype"); st != nil {
		xo.Subtype = *st
	}
	switch xo.Subtype {
	case "Image":
		if w := sd.Dict.IntEntry("Width"); w != nil {
			xo.Width = *w
		}
		if h := sd.Dict.IntEntry("Height"); h != nil {
			xo.Height = *h
		}
	case "Form":
		if m, found := sd.Dict.Find("Matrix"); found {
			if arr, err := r.ctx.DereferenceArray(m); err == nil && len(arr) == 6 {
				for i, o := range arr {
					xo.Matrix[i], _ = number(o)
				}
			}
		}
		content, err := decodedStream(r.ctx, ref)
		if err != nil {
			return nil
		}
		xo.Content = content

		dict := r.dict
		if res, found := sd.Dict.Find("Resources"); found {
			if d, err := r.ctx.DereferenceDict(res); err == nil && d != nil {
				dict = d
			}
		}
		fonts := r.fonts
		if r.fonts != nil {
			if textForm, ok := r.fonts.XObject(name); ok && textForm.Resources != nil {
				fonts = textForm.Resources
			}
		}
		xo.Resources = newEditResources(r.ctx, dict, fonts)
	default:
		return nil
	}
	return xo
}
