// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pdf

import (
	"context"
	"encoding/hex"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obscura/internal/keywords"
	"obscura/internal/preprocessors/rasterizer"
	tesseract "obscura/internal/preprocessors/text-extractors/tesseract-extractor-lib"
	pdftext "obscura/internal/preprocessors/text-extractors/text-extract-pdftextlib"
	"obscura/internal/redactors"
	"obscura/internal/redactors/position"
	"obscura/internal/testutil/pdftest"
)

type fakeEngine struct {
	words []tesseract.RecognizedWord
	calls int
}

func (f *fakeEngine) Recognize(_ context.Context, _ image.Image, _ int) ([]tesseract.RecognizedWord, error) {
	f.calls++
	return f.words, nil
}

func fakeOCR(engine *fakeEngine) *tesseract.PageRecognizer {
	raster := rasterizer.Func(func(_ context.Context, _ string, _, dpi int) (image.Image, error) {
		geom := position.PageGeometry{Box: position.Rect{X0: 0, Y0: 0, X1: 612, Y1: 792}}
		w, h := geom.PixelSize(dpi)
		return image.NewGray(image.Rect(0, 0, w, h)), nil
	})
	return tesseract.NewPageRecognizer(engine, raster, 0, nil)
}

func openTestDocument(t *testing.T, doc pdftest.Doc) *Document {
	t.Helper()
	d, err := OpenDocument(pdftest.Build(doc), NewConfiguration())
	require.NoError(t, err)
	return d
}

func openOutput(t *testing.T, path string) *Document {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	d, err := OpenDocument(data, NewConfiguration())
	require.NoError(t, err)
	return d
}

func mustKeywords(t *testing.T, text string) *keywords.KeywordSet {
	t.Helper()
	ks, err := keywords.Parse(text)
	require.NoError(t, err)
	return ks
}

func textOnly() Options {
	opts := DefaultOptions()
	opts.OCRPass = false
	return opts
}

func redact(t *testing.T, r *PDFRedactor, doc pdftest.Doc, ks string) (*redactors.RedactionResult, string) {
	t.Helper()
	dir := t.TempDir()
	in := pdftest.WriteFile(t, dir, "in.pdf", doc)
	out := filepath.Join(dir, "in_redacted.pdf")
	result, err := r.Redact(context.Background(), in, out, mustKeywords(t, ks))
	require.NoError(t, err)
	return result, out
}

func texts(words []position.Word) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w.Text
	}
	return out
}

func grayPixels(t *testing.T, d *Document, page int, name string) []byte {
	t.Helper()
	p, err := d.Page(page)
	require.NoError(t, err)
	xo, ok := p.res.XObject(name)
	require.True(t, ok)
	data, err := decodedStream(d.Ctx, xobjectRef(xo))
	require.NoError(t, err)
	return data
}

func TestRedactTextPage(t *testing.T) {
	r := NewPDFRedactor(textOnly(), nil, nil, nil)
	result, out := redact(t, r, pdftest.Doc{Pages: []pdftest.Page{pdftest.TextPage("Top secret here", "second line")}}, "secret")

	assert.Equal(t, redactors.StatusOK, result.Status)
	assert.Equal(t, "in.pdf", result.File)
	assert.Equal(t, 1, result.RedactionCount)
	assert.Equal(t, 0, result.OCRRedactionCount)
	assert.Equal(t, 1, result.PageCount)
	assert.Equal(t, []int{1}, result.PagesWithRedactions)
	assert.Empty(t, result.MissedKeywords)
	assert.Empty(t, result.SkippedPages)
	assert.False(t, result.OCRUsed)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, result.SourceHash)

	d := openOutput(t, out)
	page, err := d.Page(1)
	require.NoError(t, err)
	words := page.Words()
	assert.Equal(t, []string{"Top", "here", "second", "line"}, texts(words))
	assert.InDelta(t, 138.0, words[1].Rect.X0, 1e-6)

	assert.NotContains(t, string(page.content), "secret")
	assert.NotContains(t, string(page.content), hex.EncodeToString([]byte("secret")))
	assert.Contains(t, string(page.content), "0 g")
}

func TestRedactFormXObjectText(t *testing.T) {
	r := NewPDFRedactor(textOnly(), nil, nil, nil)
	doc := pdftest.Doc{Pages: []pdftest.Page{{
		Content: "BT /F1 12 Tf 72 700 Td (before) Tj ET q 1 0 0 1 0 -100 cm /Fm1 Do Q",
		Forms:   map[string]pdftest.Form{"Fm1": {Content: pdftest.TextContent("inside secret")}},
	}}}
	result, out := redact(t, r, doc, "secret")
	assert.Equal(t, 1, result.RedactionCount)

	d := openOutput(t, out)
	page, err := d.Page(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"before", "inside"}, texts(page.Words()))

	form, ok := page.res.XObject("Fm1")
	require.True(t, ok)
	assert.NotContains(t, string(form.Content), "secret")
}

func TestRedactBlanksImagePixelsUnderText(t *testing.T) {
	r := NewPDFRedactor(textOnly(), nil, nil, nil)
	p := pdftest.ImagePage(4, 2, 0x80)
	p.Content = "q 200 0 0 100 72 600 cm /Im1 Do Q BT /F1 12 Tf 80 650 Td (secret) Tj ET"
	result, out := redact(t, r, pdftest.Doc{Pages: []pdftest.Page{p}}, "secret")
	assert.Equal(t, 1, result.RedactionCount)

	d := openOutput(t, out)
	assert.Equal(t, []byte{0, 0x80, 0x80, 0x80, 0, 0x80, 0x80, 0x80}, grayPixels(t, d, 1, "Im1"))
}

func TestRedactReplacesUneditableImage(t *testing.T) {
	r := NewPDFRedactor(textOnly(), nil, nil, nil)
	doc := pdftest.Doc{Pages: []pdftest.Page{{
		Content: "q 200 0 0 100 72 600 cm /Im1 Do Q BT /F1 12 Tf 80 650 Td (secret) Tj ET",
		Images: map[string]pdftest.Image{
			"Im1": {Width: 4, Height: 3, Gray: []byte("PIXELPAYLOAD"), Dict: "/Decode [1 0]"},
		},
	}}}
	result, out := redact(t, r, doc, "secret")
	assert.Equal(t, 1, result.RedactionCount)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "PIXELPAYLOAD")

	d := openOutput(t, out)
	page, err := d.Page(1)
	require.NoError(t, err)
	require.Len(t, page.Trace().Images, 1)
	xo := page.Trace().Images[0].XObject
	assert.Equal(t, 1, xo.Width)
	assert.Equal(t, 1, xo.Height)
	assert.Equal(t, []byte{0}, grayPixels(t, d, 1, "Im1"))
}

func TestRedactCompressedInput(t *testing.T) {
	imagePage := pdftest.ImagePage(4, 2, 0x80)
	imagePage.Content = "q 200 0 0 100 72 600 cm /Im1 Do Q BT /F1 12 Tf 80 650 Td (secret) Tj ET"
	form := pdftest.Page{
		Content: "q 1 0 0 1 0 -100 cm /Fm1 Do Q",
		Forms:   map[string]pdftest.Form{"Fm1": {Content: pdftest.TextContent("inside secret")}},
	}

	r := NewPDFRedactor(textOnly(), nil, nil, nil)
	dir := t.TempDir()
	in := pdftest.WriteCompressedFile(t, dir, "in.pdf", pdftest.Doc{Pages: []pdftest.Page{
		pdftest.TextPage("Top secret here"), form, imagePage,
	}})
	out := filepath.Join(dir, "in_redacted.pdf")
	result, err := r.Redact(context.Background(), in, out, mustKeywords(t, "secret"))
	require.NoError(t, err)

	assert.Equal(t, redactors.StatusOK, result.Status)
	assert.Equal(t, 3, result.PageCount)
	assert.Empty(t, result.SkippedPages)
	assert.Equal(t, 3, result.RedactionCount)
	assert.Equal(t, []int{1, 2, 3}, result.PagesWithRedactions)

	d := openOutput(t, out)
	wants := [][]string{{"Top", "here"}, {"inside"}, nil}
	for n, want := range wants {
		page, err := d.Page(n + 1)
		require.NoError(t, err)
		assert.Equal(t, want, nonEmpty(texts(page.Words())), "page %d", n+1)
	}
	assert.Equal(t, []byte{0, 0x80, 0x80, 0x80, 0, 0x80, 0x80, 0x80}, grayPixels(t, d, 3, "Im1"))
}

func nonEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestOpenDocumentWalksPageTree(t *testing.T) {
	pages := []pdftest.Page{pdftest.TextPage("one secret"), pdftest.TextPage("two secret")}
	for _, declared := range []int{0, 1, 7} {
		d := openTestDocument(t, pdftest.Doc{Pages: pages, Count: &declared})
		assert.Equal(t, 2, d.PageCount(), "declared %d", declared)
		assert.Equal(t, declared, d.DeclaredPages)
	}

	_, err := OpenDocument(pdftest.Build(pdftest.Doc{}), NewConfiguration())
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestRedactIgnoresDeclaredPageCount(t *testing.T) {
	zero := 0
	r := NewPDFRedactor(textOnly(), nil, nil, nil)
	result, out := redact(t, r, pdftest.Doc{
		Pages: []pdftest.Page{pdftest.TextPage("The secret plan."), pdftest.TextPage("another secret")},
		Count: &zero,
	}, "secret")

	assert.Equal(t, redactors.StatusOK, result.Status)
	assert.Equal(t, 2, result.PageCount)
	assert.Equal(t, 2, result.RedactionCount)
	assert.Equal(t, []int{1, 2}, result.PagesWithRedactions)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	text, err := pdftext.OpenBytes(data)
	require.NoError(t, err)
	assert.Equal(t, 2, text.NumPages())
	assert.Equal(t, 2, text.DeclaredPages())
}

func TestRedactEmptyPageTree(t *testing.T) {
	r := NewPDFRedactor(textOnly(), nil, nil, nil)
	result, out := redact(t, r, pdftest.Doc{}, "secret")
	assert.Equal(t, redactors.StatusCorrupt, result.Status)
	assert.NoFileExists(t, out)
}

func TestRedactOCRsPageWithoutTextOrImages(t *testing.T) {
	engine := &fakeEngine{words: []tesseract.RecognizedWord{
		{Text: "secret", Box: image.Rect(100, 102, 160, 142), Confidence: 90, Line: 1},
	}}
	opts := textOnly()
	opts.OCRDPI = 72
	r := NewPDFRedactor(opts, fakeOCR(engine), nil, nil)

	// outlined glyphs are paths, not text
	result, _ := redact(t, r, pdftest.Doc{Pages: []pdftest.Page{{Content: "100 650 m 160 650 l 160 690 l f"}}}, "secret")
	assert.Equal(t, 1, engine.calls)
	assert.True(t, result.OCRUsed)
	assert.Equal(t, 1, result.RedactionCount)
	assert.Empty(t, result.SkippedPages)
}

func TestRedactEncryptedDocument(t *testing.T) {
	r := NewPDFRedactor(textOnly(), nil, nil, nil)
	result, out := redact(t, r, pdftest.Doc{Encrypt: true, Pages: []pdftest.Page{pdftest.TextPage("secret")}}, "secret")
	assert.Equal(t, redactors.StatusPasswordProtected, result.Status)
	assert.Equal(t, 0, result.RedactionCount)
	assert.NoFileExists(t, out)
}

func TestRedactCorruptDocument(t *testing.T) {
	r := NewPDFRedactor(textOnly(), nil, nil, nil)
	dir := t.TempDir()
	in := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(in, []byte("this is not a pdf"), 0o600))
	out := filepath.Join(dir, "broken_redacted.pdf")

	result, err := r.Redact(context.Background(), in, out, mustKeywords(t, "secret"))
	require.NoError(t, err)
	assert.Equal(t, redactors.StatusCorrupt, result.Status)
	assert.NotEmpty(t, result.SourceHash)
	assert.NoFileExists(t, out)
}

func TestRedactMissingInput(t *testing.T) {
	r := NewPDFRedactor(textOnly(), nil, nil, nil)
	dir := t.TempDir()
	_, err := r.Redact(context.Background(), filepath.Join(dir, "missing.pdf"), filepath.Join(dir, "out.pdf"), mustKeywords(t, "secret"))
	var redactionErr *redactors.RedactionError
	require.ErrorAs(t, err, &redactionErr)
	assert.Equal(t, redactors.ErrorFileSystem, redactionErr.Type)
}

func TestRedactImagePageWithoutOCR(t *testing.T) {
	r := NewPDFRedactor(textOnly(), nil, nil, nil)
	result, out := redact(t, r, pdftest.Doc{Pages: []pdftest.Page{pdftest.ImagePage(4, 2, 0x80)}}, "secret")
	assert.Equal(t, redactors.StatusOK, result.Status)
	assert.Equal(t, []int{1}, result.SkippedPages)
	assert.False(t, result.OCRUsed)
	assert.FileExists(t, out)
}

func TestRedactImagePageWithOCR(t *testing.T) {
	engine := &fakeEngine{words: []tesseract.RecognizedWord{
		{Text: "secret", Box: image.Rect(100, 102, 160, 142), Confidence: 90, Line: 1},
	}}
	opts := textOnly()
	opts.OCRDPI = 72
	r := NewPDFRedactor(opts, fakeOCR(engine), nil, nil)

	result, out := redact(t, r, pdftest.Doc{Pages: []pdftest.Page{pdftest.ImagePage(4, 2, 0x80)}}, "secret")
	assert.True(t, result.OCRUsed)
	assert.Equal(t, 1, result.RedactionCount)
	assert.Empty(t, result.SkippedPages)
	assert.Equal(t, 1, engine.calls)

	d := openOutput(t, out)
	assert.Equal(t, []byte{0, 0, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80}, grayPixels(t, d, 1, "Im1"))
}

func TestRedactImagePageOCRFindsNothing(t *testing.T) {
	r := NewPDFRedactor(textOnly(), fakeOCR(&fakeEngine{}), nil, nil)
	result, _ := redact(t, r, pdftest.Doc{Pages: []pdftest.Page{pdftest.ImagePage(4, 2, 0x80)}}, "secret")
	assert.Equal(t, []int{1}, result.SkippedPages)
}

func TestSecondPassCountsOnlyNewRectangles(t *testing.T) {
	// at 72 dpi a pixel is a point, with y measured from the top
	engine := &fakeEngine{words: []tesseract.RecognizedWord{
		{Text: "secret", Box: image.Rect(96, 82, 132, 95), Confidence: 80, Line: 1},
		{Text: "secret", Box: image.Rect(300, 300, 340, 320), Confidence: 80, Line: 2},
	}}
	opts := DefaultOptions()
	opts.OCRPassDPI = 72
	r := NewPDFRedactor(opts, fakeOCR(engine), nil, nil)

	result, out := redact(t, r, pdftest.Doc{Pages: []pdftest.Page{pdftest.TextPage("Top secret here")}}, "secret")
	assert.Equal(t, 1, result.RedactionCount)
	assert.Equal(t, 1, result.OCRRedactionCount)
	assert.Equal(t, []int{1}, result.PagesWithRedactions)
	assert.False(t, result.OCRUsed)
	assert.Equal(t, 1, engine.calls)

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "intermediate files are removed")
}

func TestRedactHonoursCancellation(t *testing.T) {
	r := NewPDFRedactor(textOnly(), nil, nil, nil)
	dir := t.TempDir()
	in := pdftest.WriteFile(t, dir, "in.pdf", pdftest.Doc{Pages: []pdftest.Page{pdftest.TextPage("secret")}})
	out := filepath.Join(dir, "in_redacted.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Redact(ctx, in, out, mustKeywords(t, "secret"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, out)
}

func TestRedactedOutputHasNoTextLayerMatches(t *testing.T) {
	r := NewPDFRedactor(textOnly(), nil, nil, nil)
	_, out := redact(t, r, pdftest.Doc{Pages: []pdftest.Page{
		pdftest.TextPage("alpha SECRET beta"),
		pdftest.TextPage("nothing here"),
	}}, "secret")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	text, err := pdftext.OpenBytes(data)
	require.NoError(t, err)
	for n := 1; n <= text.NumPages(); n++ {
		page, err := text.Page(n)
		require.NoError(t, err)
		for _, w := range page.Words() {
			assert.NotEqual(t, "SECRET", w.Text)
		}
	}
}
