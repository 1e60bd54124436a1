// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package textextractpdftextlib

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ledongthuc/pdf"

	"obscura/internal/redactors/position"
)

// Document is a read-only view of a PDF used to recover its native text
// layer with glyph positions.
type Document struct {
	Filename string

	reader *pdf.Reader
	pages  []pdf.Value
}

// Page is one page of a Document.
type Page struct {
	// Number is the 1-based page number
	Number int

	// Geometry is the visible page area and rotation
	Geometry position.PageGeometry

	// Content is the decoded, concatenated page content stream
	Content []byte

	// Resources resolves fonts and XObjects of the page
	Resources Resources
}

// Open reads a PDF file into memory and parses its cross-reference table.
func Open(filePath string) (*Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading PDF: %w", err)
	}
	doc, err := OpenBytes(data)
	if err != nil {
		return nil, err
	}
	doc.Filename = filepath.Base(filePath)
	return doc, nil
}

// OpenBytes parses an in-memory PDF.
func OpenBytes(data []byte) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("error opening PDF: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("error opening PDF: %w", err)
	}
	doc = &Document{reader: r}
	doc.pages = collectPages(r.Trailer().Key("Root").Key("Pages"))
	return doc, nil
}

// Page tree walk limits. The tree has no object identities at this level,
// so cycles are cut by depth and node count.
const (
	maxPageTreeDepth = 64
	maxPageTreeNodes = 1 << 20
)

// collectPages lists the leaves of the page tree in document order. /Count
// entries are ignored.
func collectPages(root pdf.Value) []pdf.Value {
	var pages []pdf.Value
	visited := 0
	var walk func(node pdf.Value, depth int)
	walk = func(node pdf.Value, depth int) {
		visited++
		if node.IsNull() || depth > maxPageTreeDepth || visited > maxPageTreeNodes {
			return
		}
		kids := node.Key("Kids")
		if kids.Kind() != pdf.Array {
			if depth > 0 && node.Kind() == pdf.Dict {
				pages = append(pages, node)
			}
			return
		}
		for i := 0; i < kids.Len(); i++ {
			walk(kids.Index(i), depth+1)
		}
	}
	func() {
		defer func() { _ = recover() }()
		walk(root, 0)
	}()
	return pages
}

// NumPages returns the number of pages reachable through the page tree.
func (d *Document) NumPages() int {
	return len(d.pages)
}

// DeclaredPages returns the /Count of the page tree root, which may
// disagree with NumPages in damaged or hostile files.
func (d *Document) DeclaredPages() (n int) {
	defer func() {
		if r := recover(); r != nil {
			n = 0
		}
	}()
	return d.reader.NumPage()
}

// Page loads page n (1-based).
func (d *Document) Page(n int) (page *Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			page, err = nil, fmt.Errorf("error reading page %d: %v", n, r)
		}
	}()

	if n < 1 || n > len(d.pages) {
		return nil, fmt.Errorf("page %d not found", n)
	}
	v := d.pages[n-1]

	content, err := pageContent(v.Key("Contents"))
	if err != nil {
		return nil, fmt.Errorf("error reading page %d content: %w", n, err)
	}

	return &Page{
		Number:    n,
		Geometry:  pageGeometry(v),
		Content:   content,
		Resources: newResources(inherited(v, "Resources")),
	}, nil
}

// Trace interprets the page content.
func (p *Page) Trace() *Trace {
	return TraceContent(p.Content, p.Resources, position.Identity)
}

// Words returns the positioned words of the page's native text layer.
func (p *Page) Words() []position.Word {
	return GroupWords(p.Trace().AllGlyphs())
}

func inherited(v pdf.Value, key string) pdf.Value {
	for depth := 0; depth < 64 && !v.IsNull(); depth++ {
		if val := v.Key(key); !val.IsNull() {
			return val
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}

func rectFromValue(v pdf.Value) (position.Rect, bool) {
	if v.Kind() != pdf.Array || v.Len() != 4 {
		return position.Rect{}, false
	}
	r := position.NewRect(v.Index(0).Float64(), v.Index(1).Float64(), v.Index(2).Float64(), v.Index(3).Float64())
	return r, !r.IsEmpty()
}

func pageGeometry(v pdf.Value) position.PageGeometry {
	box, ok := rectFromValue(inherited(v, "CropBox"))
	if !ok {
		box, ok = rectFromValue(inherited(v, "MediaBox"))
	}
	if !ok {
		box = position.Rect{X0: 0, Y0: 0, X1: 612, Y1: 792}
	}
	return position.PageGeometry{
		Box:    box,
		Rotate: position.NormalizeRotation(int(inherited(v, "Rotate").Int64())),
	}
}

func pageContent(contents pdf.Value) ([]byte, error) {
	switch contents.Kind() {
	case pdf.Stream:
		return readStream(contents)
	case pdf.Array:
		var buf bytes.Buffer
		for i := 0; i < contents.Len(); i++ {
			data, err := readStream(contents.Index(i))
			if err != nil {
				return nil, err
			}
			buf.Write(data)
			buf.WriteByte('\n')
		}
		return buf.Bytes(), nil
	default:
		return nil, nil
	}
}

func readStream(v pdf.Value) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("undecodable stream: %v", r)
		}
	}()
	if v.Kind() != pdf.Stream {
		return nil, nil
	}
	rc := v.Reader()
	defer rc.Close()
	return io.ReadAll(rc)
}

// resources resolves names against a ledongthuc resource dictionary.
type resources struct {
	v pdf.Value

	mu       sync.Mutex
	fonts    map[string]*Font
	xobjects map[string]*XObject
}

func newResources(v pdf.Value) *resources {
	return &resources{
		v:        v,
		fonts:    make(map[string]*Font),
		xobjects: make(map[string]*XObject),
	}
}

func (r *resources) Font(name string) (font *Font) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.fonts[name]; ok {
		return f
	}
	defer func() {
		if rec := recover(); rec != nil {
			font = nil
		}
		r.fonts[name] = font
	}()
	v := r.v.Key("Font").Key(name)
	if v.IsNull() {
		return nil
	}
	return newFont(v)
}

func (r *resources) XObject(name string) (xobject *XObject, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if xo, found := r.xobjects[name]; found {
		return xo, xo != nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			xobject, ok = nil, false
		}
		r.xobjects[name] = xobject
	}()

	v := r.v.Key("XObject").Key(name)
	if v.Kind() != pdf.Stream {
		return nil, false
	}
	xo := &XObject{Name: name, Subtype: v.Key("Subtype").Name(), Matrix: position.Identity}
	switch xo.Subtype {
	case "Image":
		xo.Width = int(v.Key("Width").Int64())
		xo.Height = int(v.Key("Height").Int64())
	case "Form":
		if m := v.Key("Matrix"); m.Kind() == pdf.Array && m.Len() == 6 {
			for i := 0; i < 6; i++ {
				xo.Matrix[i] = m.Index(i).Float64()
			}
		}
		content, err := readStream(v)
		if err != nil {
			return nil, false
		}
		xo.Content = content
		if res := v.Key("Resources"); !res.IsNull() {
			xo.Resources = newResources(res)
		}
	default:
		return nil, false
	}
	return xo, true
}
