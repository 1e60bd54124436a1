// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"obscura/internal/keywords"
	"obscura/internal/observability"
	tesseract "obscura/internal/preprocessors/text-extractors/tesseract-extractor-lib"
	"obscura/internal/redactors"
	"obscura/internal/redactors/position"
)

// Defaults for the OCR passes.
const (
	DefaultOCRDPI     = 300
	DefaultOCRPassDPI = 300
	DefaultOCRMargin  = 2.0

	// coveredFraction is the share of an OCR rect already covered by
	// first-pass rects above which the second pass skips it
	coveredFraction = 0.5
)

// Options configures the redaction engine.
type Options struct {
	// OCRDPI is the resolution used to read pages without a text layer
	OCRDPI int

	// OCRPass enables the second pass that OCRs the redacted pages and
	// redacts whatever text is still visible
	OCRPass bool

	// OCRPassDPI is the resolution of the second pass
	OCRPassDPI int

	// OCRMargin widens second-pass rectangles, in points
	OCRMargin float64
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		OCRDPI:     DefaultOCRDPI,
		OCRPass:    true,
		OCRPassDPI: DefaultOCRPassDPI,
		OCRMargin:  DefaultOCRMargin,
	}
}

// PDFRedactor removes keyword occurrences from PDF documents.
type PDFRedactor struct {
	options Options

	// ocr reads pages without a text layer; nil when OCR is unavailable
	ocr *tesseract.PageRecognizer

	// outputManager handles file system operations
	outputManager *redactors.OutputManager

	// observer handles observability and metrics
	observer *observability.StandardObserver

	// pdfConfig contains PDF-specific configuration
	pdfConfig *model.Configuration
}

// NewPDFRedactor creates a new PDFRedactor. ocr may be nil.
func NewPDFRedactor(options Options, ocr *tesseract.PageRecognizer, outputManager *redactors.OutputManager, observer *observability.StandardObserver) *PDFRedactor {
	if options.OCRDPI <= 0 {
		options.OCRDPI = DefaultOCRDPI
	}
	if options.OCRPassDPI <= 0 {
		options.OCRPassDPI = DefaultOCRPassDPI
	}
	if outputManager == nil {
		outputManager = redactors.NewOutputManager(observer)
	}
	return &PDFRedactor{
		options:       options,
		ocr:           ocr,
		outputManager: outputManager,
		observer:      observer,
		pdfConfig:     NewConfiguration(),
	}
}

// GetComponentName returns the component name for observability
func (pr *PDFRedactor) GetComponentName() string {
	return "pdf_redactor"
}

// Redact writes a redacted copy of inputPath to outputPath.
func (pr *PDFRedactor) Redact(ctx context.Context, inputPath, outputPath string, ks *keywords.KeywordSet) (result *redactors.RedactionResult, err error) {
	finishTiming := pr.observer.StartTiming(pr.GetComponentName(), "redact_document", inputPath)
	defer func() {
		meta := map[string]interface{}{"output_path": outputPath}
		if result != nil {
			meta["status"] = string(result.Status)
			meta["redaction_count"] = result.RedactionCount
			meta["ocr_redaction_count"] = result.OCRRedactionCount
		}
		finishTiming(err == nil, meta)
	}()
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, redactors.NewRedactionError(redactors.ErrorDocumentProcessing,
				fmt.Sprintf("unexpected failure: %v", r), inputPath, pr.GetComponentName(), nil)
		}
	}()

	sourceHash, err := redactors.FileHash(inputPath)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorFileSystem, "cannot read input", inputPath, pr.GetComponentName(), err)
	}
	result = &redactors.RedactionResult{
		File:                filepath.Base(inputPath),
		Status:              redactors.StatusOK,
		SourceHash:          sourceHash,
		PagesWithRedactions: []int{},
		MissedKeywords:      []redactors.MissedKeyword{},
		SkippedPages:        []int{},
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorFileSystem, "cannot read input", inputPath, pr.GetComponentName(), err)
	}
	doc, err := OpenDocument(data, pr.pdfConfig)
	switch {
	case errors.Is(err, ErrEncrypted):
		result.Status = redactors.StatusPasswordProtected
		return result, nil
	case err != nil:
		pr.observer.Warn(pr.GetComponentName(), "open_document", inputPath, err, nil)
		result.Status = redactors.StatusCorrupt
		return result, nil
	}
	result.PageCount = doc.PageCount()
	if doc.DeclaredPages != doc.PageCount() {
		pr.observer.Warn(pr.GetComponentName(), "page_count", inputPath,
			fmt.Errorf("page tree declares %d pages but holds %d", doc.DeclaredPages, doc.PageCount()), nil)
	}

	firstPass, err := pr.firstPass(ctx, inputPath, doc, ks, result)
	if err != nil {
		return nil, err
	}

	if pr.options.OCRPass && pr.ocr != nil {
		doc, err = pr.secondPass(ctx, outputPath, doc, ks, firstPass, result)
		if err != nil {
			return nil, err
		}
	}

	if len(result.MissedKeywords) > 0 {
		pr.observer.Warn(pr.GetComponentName(), "coverage_gaps", inputPath, nil, map[string]interface{}{
			"missed": len(result.MissedKeywords),
		})
	}

	if err := pr.outputManager.WriteAtomic(outputPath, doc.Write); err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorFileSystem, "cannot write output", outputPath, pr.GetComponentName(), err)
	}
	return result, nil
}

// firstPass redacts every match in the text layer of each page, reading
// pages without one through OCR. It returns the rectangles applied per page.
func (pr *PDFRedactor) firstPass(ctx context.Context, inputPath string, doc *Document, ks *keywords.KeywordSet, result *redactors.RedactionResult) (map[int][]position.Rect, error) {
	applied := make(map[int][]position.Rect)

	for n := 1; n <= doc.PageCount(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := doc.Page(n)
		if err != nil {
			pr.skipPage(result, inputPath, n, "read_page", err)
			continue
		}

		words := page.Words()
		if len(words) == 0 {
			if pr.ocr == nil {
				pr.skipPage(result, inputPath, n, "ocr_page", errors.New("page has no text layer and OCR is unavailable"))
				continue
			}
			layer, err := pr.ocr.RecognizePage(ctx, inputPath, n, page.Geometry, pr.options.OCRDPI)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				pr.skipPage(result, inputPath, n, "ocr_page", err)
				continue
			}
			if layer.Empty() {
				pr.skipPage(result, inputPath, n, "ocr_page", errors.New("no text recognized"))
				continue
			}
			result.OCRUsed = true
			words = layer.Words
		}

		search := position.Search(words, ks)
		for _, hit := range search.Hits {
			if len(hit.Rects) == 0 {
				result.MissedKeywords = append(result.MissedKeywords, redactors.MissedKeyword{
					Keyword: hit.Keyword, Page: n, Reason: redactors.MissNoRectangle,
				})
			}
		}
		for _, label := range search.TimedOut {
			result.MissedKeywords = append(result.MissedKeywords, redactors.MissedKeyword{
				Keyword: label, Page: n, Reason: redactors.MissRegexTimeout,
			})
		}
		for _, label := range search.Failed {
			result.MissedKeywords = append(result.MissedKeywords, redactors.MissedKeyword{
				Keyword: label, Page: n, Reason: redactors.MissSearchError,
			})
		}

		rects := search.Rects()
		if len(rects) == 0 {
			continue
		}
		stats, err := page.Apply(doc.Ctx, rects)
		if err != nil {
			return nil, redactors.NewRedactionError(redactors.ErrorDocumentProcessing,
				fmt.Sprintf("cannot redact page %d", n), inputPath, pr.GetComponentName(), err)
		}
		pr.logApply(inputPath, n, stats)

		applied[n] = rects
		result.RedactionCount += len(rects)
		result.PagesWithRedactions = append(result.PagesWithRedactions, n)
	}
	return applied, nil
}

// secondPass renders the first-pass result, OCRs it and redacts what is
// still legible. Rectangles mostly covered by the first pass are not counted
// again. It returns the document holding both passes.
func (pr *PDFRedactor) secondPass(ctx context.Context, outputPath string, doc *Document, ks *keywords.KeywordSet, firstPass map[int][]position.Rect, result *redactors.RedactionResult) (*Document, error) {
	tmp, err := pr.outputManager.TempFile(outputPath)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorFileSystem, "cannot create intermediate file", outputPath, pr.GetComponentName(), err)
	}
	defer os.Remove(tmp)

	if err := pr.outputManager.WriteAtomic(tmp, doc.Write); err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorDocumentProcessing, "cannot write intermediate file", tmp, pr.GetComponentName(), err)
	}
	data, err := os.ReadFile(tmp)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorFileSystem, "cannot read intermediate file", tmp, pr.GetComponentName(), err)
	}
	intermediate, err := OpenDocument(data, pr.pdfConfig)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorDocumentProcessing, "cannot reopen intermediate file", tmp, pr.GetComponentName(), err)
	}

	for n := 1; n <= intermediate.PageCount(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := intermediate.Page(n)
		if err != nil {
			pr.observer.Warn(pr.GetComponentName(), "ocr_pass_page", outputPath, err, map[string]interface{}{"page": n})
			continue
		}
		layer, err := pr.ocr.RecognizePage(ctx, tmp, n, page.Geometry, pr.options.OCRPassDPI)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			pr.observer.Warn(pr.GetComponentName(), "ocr_pass_page", outputPath, err, map[string]interface{}{"page": n})
			continue
		}
		if layer.Empty() {
			continue
		}

		var rects []position.Rect
		for _, r := range position.Search(layer.Words, ks).Rects() {
			r = r.Expand(pr.options.OCRMargin)
			if r.CoveredFraction(firstPass[n]) >= coveredFraction {
				continue
			}
			rects = append(rects, r)
		}
		if len(rects) == 0 {
			continue
		}

		stats, err := page.Apply(intermediate.Ctx, rects)
		if err != nil {
			return nil, redactors.NewRedactionError(redactors.ErrorDocumentProcessing,
				fmt.Sprintf("cannot redact page %d", n), outputPath, pr.GetComponentName(), err)
		}
		pr.logApply(outputPath, n, stats)

		result.OCRRedactionCount += len(rects)
		if !slices.Contains(result.PagesWithRedactions, n) {
			result.PagesWithRedactions = append(result.PagesWithRedactions, n)
			slices.Sort(result.PagesWithRedactions)
		}
	}
	return intermediate, nil
}

func (pr *PDFRedactor) skipPage(result *redactors.RedactionResult, inputPath string, page int, operation string, err error) {
	result.SkippedPages = append(result.SkippedPages, page)
	pr.observer.Warn(pr.GetComponentName(), operation, inputPath, err, map[string]interface{}{"page": page})
}

func (pr *PDFRedactor) logApply(path string, page int, stats EditStats) {
	if pr.observer == nil || pr.observer.DebugObserver == nil {
		return
	}
	pr.observer.DebugObserver.LogDetail(pr.GetComponentName(), fmt.Sprintf(
		"%s page %d: %d glyphs removed, %d images blanked, %d images replaced, %d inline images removed",
		filepath.Base(path), page, stats.GlyphsRemoved, stats.ImagesBlanked, stats.ImagesReplaced, stats.InlineRemoved))
}

var _ redactors.Redactor = (*PDFRedactor)(nil)
