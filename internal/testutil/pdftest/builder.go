// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pdftest builds small, well-formed PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// GlyphWidth is the width, in thousandths of an em, of every glyph of the
// test font F1, so text geometry is easy to predict.
const GlyphWidth = 500

// Image is a raw 8-bit DeviceGray image XObject, or a JPEG when JPEG is set.
// Dict holds extra dictionary entries such as "/Decode [1 0]".
type Image struct {
	Width, Height int
	Gray          []byte
	JPEG          []byte
	Dict          string
}

// Form is a Form XObject drawing its own content with font F1 available.
type Form struct {
	Content string
	BBox    [4]float64
}

// Page describes one page.
type Page struct {
	Content  string
	Images   map[string]Image
	Forms    map[string]Form
	Annots   bool
	Rotate   int
	MediaBox [4]float64
	Metadata bool
	Thumb    bool
}

// Doc describes a whole document.
type Doc struct {
	Pages        []Page
	Info         map[string]string
	XMP          bool
	Encrypt      bool
	EmbeddedFile bool
	JavaScript   bool
	AcroForm     bool
	Outline      bool

	// Count, when set, replaces the page count the page tree declares
	Count *int
}

// TextContent returns a content stream that draws each line with F1 at 12pt,
// starting at (72, 700) and moving down 20pt per line.
func TextContent(lines ...string) string {
	var b strings.Builder
	b.WriteString("BT /F1 12 Tf 72 700 Td\n")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("0 -20 Td\n")
		}
		fmt.Fprintf(&b, "(%s) Tj\n", escape(line))
	}
	b.WriteString("ET\n")
	return b.String()
}

// TextPage is a page holding the given lines.
func TextPage(lines ...string) Page {
	return Page{Content: TextContent(lines...)}
}

// ImagePage draws a w×h gray image scaled to 200×100pt at (72, 600).
func ImagePage(w, h int, shade byte) Page {
	gray := bytes.Repeat([]byte{shade}, w*h)
	return Page{
		Content: "q 200 0 0 100 72 600 cm /Im1 Do Q\n",
		Images:  map[string]Image{"Im1": {Width: w, Height: h, Gray: gray}},
	}
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

type writer struct {
	objects []string
}

func (w *writer) add(body string) int {
	w.objects = append(w.objects, body)
	return len(w.objects)
}

func (w *writer) set(n int, body string) {
	w.objects[n-1] = body
}

func stream(dict string, data []byte) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

// Build renders the document to bytes.
func Build(doc Doc) []byte {
	w := &writer{}
	catalog := w.add("")
	pagesNr := w.add("")

	widths := strings.TrimSpace(strings.Repeat(fmt.Sprintf("%d ", GlyphWidth), 126-32+1))
	font := w.add(fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>", widths))

	var kids []string
	for _, p := range doc.Pages {
		var xobjects []string
		for _, name := range sortedKeys(p.Images) {
			img := p.Images[name]
			var nr int
			if img.JPEG != nil {
				nr = w.add(stream(fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode %s", img.Width, img.Height, img.Dict), img.JPEG))
			} else {
				nr = w.add(stream(fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 %s", img.Width, img.Height, img.Dict), img.Gray))
			}
			xobjects = append(xobjects, fmt.Sprintf("/%s %d 0 R", name, nr))
		}
		for _, name := range sortedKeys(p.Forms) {
			f := p.Forms[name]
			bbox := f.BBox
			if bbox == [4]float64{} {
				bbox = [4]float64{0, 0, 612, 792}
			}
			nr := w.add(stream(fmt.Sprintf("/Type /XObject /Subtype /Form /BBox [%g %g %g %g] /Resources << /Font << /F1 %d 0 R >> >>", bbox[0], bbox[1], bbox[2], bbox[3], font), []byte(f.Content)))
			xobjects = append(xobjects, fmt.Sprintf("/%s %d 0 R", name, nr))
		}

		content := w.add(stream("", []byte(p.Content)))
		box := p.MediaBox
		if box == [4]float64{} {
			box = [4]float64{0, 0, 612, 792}
		}
		var extra strings.Builder
		if p.Rotate != 0 {
			fmt.Fprintf(&extra, " /Rotate %d", p.Rotate)
		}
		if p.Annots {
			annot := w.add("<< /Type /Annot /Subtype /Text /Rect [10 10 30 30] /Contents (annotation secret) >>")
			fmt.Fprintf(&extra, " /Annots [%d 0 R]", annot)
		}
		if p.Metadata {
			md := w.add(stream("/Type /Metadata /Subtype /XML", []byte("<x:xmpmeta>page</x:xmpmeta>")))
			fmt.Fprintf(&extra, " /Metadata %d 0 R", md)
		}
		if p.Thumb {
			th := w.add(stream("/Width 1 /Height 1 /ColorSpace /DeviceGray /BitsPerComponent 8", []byte{0}))
			fmt.Fprintf(&extra, " /Thumb %d 0 R", th)
		}
		page := w.add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [%g %g %g %g] /Resources << /Font << /F1 %d 0 R >> /XObject << %s >> >> /Contents %d 0 R%s >>",
			pagesNr, box[0], box[1], box[2], box[3], font, strings.Join(xobjects, " "), content, extra.String()))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}
	count := len(kids)
	if doc.Count != nil {
		count = *doc.Count
	}
	w.set(pagesNr, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), count))

	var cat strings.Builder
	fmt.Fprintf(&cat, "<< /Type /Catalog /Pages %d 0 R", pagesNr)
	if doc.XMP {
		md := w.add(stream("/Type /Metadata /Subtype /XML", []byte("<x:xmpmeta><dc:creator>secret author</dc:creator></x:xmpmeta>")))
		fmt.Fprintf(&cat, " /Metadata %d 0 R", md)
	}
	var names []string
	if doc.EmbeddedFile {
		ef := w.add(stream("/Type /EmbeddedFile", []byte("embedded secret")))
		fileSpec := w.add(fmt.Sprintf("<< /Type /Filespec /F (a.txt) /EF << /F %d 0 R >> >>", ef))
		names = append(names, fmt.Sprintf("/EmbeddedFiles << /Names [(a.txt) %d 0 R] >>", fileSpec))
	}
	if doc.JavaScript {
		js := w.add("<< /S /JavaScript /JS (app.alert\\('secret'\\);) >>")
		names = append(names, fmt.Sprintf("/JavaScript << /Names [(init) %d 0 R] >>", js))
		fmt.Fprintf(&cat, " /OpenAction %d 0 R", js)
	}
	if len(names) > 0 {
		fmt.Fprintf(&cat, " /Names << %s >>", strings.Join(names, " "))
	}
	if doc.AcroForm {
		fmt.Fprintf(&cat, " /AcroForm << /Fields [] >>")
	}
	if doc.Outline {
		outlines := w.add("")
		item := w.add(fmt.Sprintf("<< /Title (secret chapter) /Parent %d 0 R >>", outlines))
		w.set(outlines, fmt.Sprintf("<< /Type /Outlines /First %d 0 R /Last %d 0 R /Count 1 >>", item, item))
		fmt.Fprintf(&cat, " /Outlines %d 0 R", outlines)
	}
	cat.WriteString(" >>")
	w.set(catalog, cat.String())

	info := 0
	if len(doc.Info) > 0 {
		var b strings.Builder
		b.WriteString("<<")
		for _, k := range sortedKeys(doc.Info) {
			fmt.Fprintf(&b, " /%s (%s)", k, escape(doc.Info[k]))
		}
		b.WriteString(" >>")
		info = w.add(b.String())
	}

	encrypt := 0
	if doc.Encrypt {
		encrypt = w.add("<< /Filter /Standard /V 1 /R 2 /O <00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff> /U <00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff> /P -4 >>")
	}

	var out bytes.Buffer
	out.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(w.objects))
	for i, body := range w.objects {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n0000000000 65535 f \n", len(w.objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root %d 0 R", len(w.objects)+1, catalog)
	if info > 0 {
		fmt.Fprintf(&out, " /Info %d 0 R", info)
	}
	if encrypt > 0 {
		fmt.Fprintf(&out, " /Encrypt %d 0 R /ID [<00112233445566778899aabbccddeeff> <00112233445566778899aabbccddeeff>]", encrypt)
	}
	fmt.Fprintf(&out, " >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return out.Bytes()
}

// BuildCompressed renders the document and passes it through pdfcpu's
// default writer, which stores the cross-reference table as a stream and
// packs objects into object streams.
func BuildCompressed(t testing.TB, doc Doc) []byte {
	t.Helper()
	api.DisableConfigDir()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if !conf.WriteXRefStream || !conf.WriteObjectStream {
		t.Fatalf("pdfcpu default configuration no longer writes xref and object streams")
	}

	ctx, err := api.ReadContext(bytes.NewReader(Build(doc)), conf)
	if err != nil {
		t.Fatalf("failed to read generated PDF: %v", err)
	}
	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		t.Fatalf("failed to rewrite generated PDF: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("/XRef")) {
		t.Fatalf("rewritten PDF has no cross-reference stream")
	}
	return out.Bytes()
}

// WriteCompressedFile is WriteFile for BuildCompressed output.
func WriteCompressedFile(t testing.TB, dir, name string, doc Doc) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, BuildCompressed(t, doc), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// WriteFile builds the document into dir/name and returns the path.
func WriteFile(t testing.TB, dir, name string, doc Doc) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(doc), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
