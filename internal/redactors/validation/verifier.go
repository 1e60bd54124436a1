// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package validation re-scans redacted documents and certifies whether any
// targeted content is still legible.
package validation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"obscura/internal/keywords"
	"obscura/internal/observability"
	tesseract "obscura/internal/preprocessors/text-extractors/tesseract-extractor-lib"
	pdftext "obscura/internal/preprocessors/text-extractors/text-extract-pdftextlib"
	"obscura/internal/redactors"
	"obscura/internal/redactors/position"
	"obscura/internal/version"
)

// Residual sources. Native text-layer matches carry no source.
const (
	SourceOCR          = "ocr"
	SourceDeepVerify   = "deep_verify"
	SourceRegexTimeout = "regex_timeout"
	SourceSearchError  = "search_error"
)

// Defaults for verification.
const (
	DefaultConfidenceThreshold = 70
	DefaultDeepVerifyDPI       = 300
	DefaultOCRDPI              = 300
	MinDeepVerifyDPI           = 150
	MaxDeepVerifyDPI           = 600
)

// ErrDeepVerifyUnavailable is returned when deep verification is requested
// without an OCR engine.
var ErrDeepVerifyUnavailable = errors.New("deep verification requires OCR")

// ResidualMatch is a keyword still found in the output.
type ResidualMatch struct {
	Keyword string `json:"keyword"`
	Page    int    `json:"page"`
	Source  string `json:"source,omitempty"`
	Context string `json:"context,omitempty"`
}

// VerificationReport is the outcome of verifying one document.
type VerificationReport struct {
	File                string             `json:"file"`
	Status              VerificationStatus `json:"status"`
	SourceHash          string             `json:"source_hash"`
	OutputHash          string             `json:"output_hash"`
	ResidualMatches     []ResidualMatch    `json:"residual_matches"`
	LowConfidencePages  []int              `json:"low_confidence_pages"`
	UnreadablePages     []int              `json:"unreadable_pages"`
	CleanPages          []int              `json:"clean_pages"`
	DeepVerify          bool               `json:"deep_verify"`
	DeepVerifyDPI       *int               `json:"deep_verify_dpi"`
	EngineVersion       string             `json:"engine_version"`
	KeywordsHash        string             `json:"keywords_hash"`
	Language            string             `json:"language"`
	ConfidenceThreshold int                `json:"confidence_threshold"`
	Timestamp           string             `json:"timestamp"`
	UnverifiedWarning   string             `json:"unverified_warning,omitempty"`
}

// Options configures one verification.
type Options struct {
	// ConfidenceThreshold flags OCR pages whose average word confidence is
	// below it, on a 0-100 scale
	ConfidenceThreshold int
	Language            string
	DeepVerify          bool
	DeepVerifyDPI       int

	// OCRDPI is the resolution used to read pages without a text layer
	OCRDPI int

	// Verbose adds the matched text to residual matches
	Verbose bool

	// SourceHash is the hash of the document the output was made from; the
	// output's own hash is used when empty
	SourceHash string

	// ExpectedPages is the page count of the source document, 0 when unknown
	ExpectedPages int
}

// Verifier re-scans documents for residual keyword matches.
type Verifier struct {
	// ocr reads pages without a text layer; nil when OCR is unavailable
	ocr      *tesseract.PageRecognizer
	observer *observability.StandardObserver
	now      func() time.Time
}

// NewVerifier creates a Verifier. ocr may be nil.
func NewVerifier(ocr *tesseract.PageRecognizer, observer *observability.StandardObserver) *Verifier {
	return &Verifier{ocr: ocr, observer: observer, now: time.Now}
}

// GetComponentName returns the component name for observability
func (v *Verifier) GetComponentName() string {
	return "verifier"
}

// Verify scans path page by page and classifies every page as clean,
// holding residual matches, low-confidence or unreadable.
func (v *Verifier) Verify(ctx context.Context, path string, ks *keywords.KeywordSet, opts Options) (report *VerificationReport, err error) {
	finishTiming := v.observer.StartTiming(v.GetComponentName(), "verify_document", path)
	defer func() {
		meta := map[string]interface{}{"deep_verify": opts.DeepVerify}
		if report != nil {
			meta["status"] = string(report.Status)
			meta["residual_matches"] = len(report.ResidualMatches)
		}
		finishTiming(err == nil, meta)
	}()
	defer func() {
		if r := recover(); r != nil {
			report, err = nil, redactors.NewRedactionError(redactors.ErrorVerification,
				fmt.Sprintf("unexpected failure: %v", r), path, v.GetComponentName(), nil)
		}
	}()

	opts = withDefaults(opts)
	if opts.DeepVerify && v.ocr == nil {
		return nil, redactors.NewRedactionError(redactors.ErrorConfiguration, "cannot deep verify", path, v.GetComponentName(), ErrDeepVerifyUnavailable)
	}

	outputHash, err := redactors.FileHash(path)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorFileSystem, "cannot read output", path, v.GetComponentName(), err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorFileSystem, "cannot read output", path, v.GetComponentName(), err)
	}
	doc, err := pdftext.OpenBytes(data)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorVerification, "cannot open output", path, v.GetComponentName(), err)
	}

	report = &VerificationReport{
		File:                filepath.Base(path),
		SourceHash:          opts.SourceHash,
		OutputHash:          outputHash,
		ResidualMatches:     []ResidualMatch{},
		LowConfidencePages:  []int{},
		UnreadablePages:     []int{},
		CleanPages:          []int{},
		DeepVerify:          opts.DeepVerify,
		EngineVersion:       version.Short(),
		KeywordsHash:        ks.Hash(),
		Language:            opts.Language,
		ConfidenceThreshold: opts.ConfidenceThreshold,
	}
	if report.SourceHash == "" {
		report.SourceHash = outputHash
	}
	if opts.DeepVerify {
		dpi := opts.DeepVerifyDPI
		report.DeepVerifyDPI = &dpi
	}

	pages := doc.NumPages()
	geometries := make(map[int]position.PageGeometry, pages)
	for n := 1; n <= pages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		geom, err := v.verifyPage(ctx, path, doc, n, ks, opts, report)
		if err != nil {
			return nil, err
		}
		geometries[n] = geom
	}

	if opts.DeepVerify {
		if err := v.deepVerify(ctx, path, pages, geometries, ks, opts, report); err != nil {
			return nil, err
		}
	}

	// source pages the output's page tree does not reach
	for n := pages + 1; n <= opts.ExpectedPages; n++ {
		report.UnreadablePages = append(report.UnreadablePages, n)
	}

	report.Status = DeriveStatus(report.UnreadablePages, report.ResidualMatches, report.LowConfidencePages)
	report.UnverifiedWarning = UnverifiedWarning(report.UnreadablePages)
	if problem := PageCountProblem(pages, doc.DeclaredPages(), opts.ExpectedPages); problem != "" {
		v.observer.Warn(v.GetComponentName(), "page_count", path, errors.New(problem), map[string]interface{}{"pages": pages})
		switch {
		case pages == 0:
			report.Status = StatusUnreadable
		case report.Status == StatusClean:
			report.Status = StatusNeedsReview
		}
		report.UnverifiedWarning = strings.TrimSpace(report.UnverifiedWarning + " " + problem)
	}
	report.Timestamp = v.now().UTC().Format(time.RFC3339)
	return report, nil
}

func withDefaults(opts Options) Options {
	if opts.ConfidenceThreshold < 0 {
		opts.ConfidenceThreshold = 0
	}
	if opts.Language == "" {
		opts.Language = tesseract.DefaultLanguage
	}
	if opts.DeepVerifyDPI <= 0 {
		opts.DeepVerifyDPI = DefaultDeepVerifyDPI
	}
	if opts.OCRDPI <= 0 {
		opts.OCRDPI = DefaultOCRDPI
	}
	return opts
}

// verifyPage classifies one page. A page it cannot read is recorded as
// unreadable; only cancellation is returned as an error.
func (v *Verifier) verifyPage(ctx context.Context, path string, doc *pdftext.Document, n int, ks *keywords.KeywordSet, opts Options, report *VerificationReport) (position.PageGeometry, error) {
	page, err := doc.Page(n)
	if err != nil {
		v.observer.Warn(v.GetComponentName(), "read_page", path, err, map[string]interface{}{"page": n})
		report.UnreadablePages = append(report.UnreadablePages, n)
		return position.PageGeometry{}, nil
	}

	words := page.Words()
	source := ""
	if len(words) == 0 {
		if v.ocr == nil {
			report.UnreadablePages = append(report.UnreadablePages, n)
			return page.Geometry, nil
		}
		layer, err := v.ocr.RecognizePage(ctx, path, n, page.Geometry, opts.OCRDPI)
		if err != nil {
			if ctx.Err() != nil {
				return page.Geometry, ctx.Err()
			}
			v.observer.Warn(v.GetComponentName(), "ocr_page", path, err, map[string]interface{}{"page": n})
			report.UnreadablePages = append(report.UnreadablePages, n)
			return page.Geometry, nil
		}
		if layer.Empty() {
			report.UnreadablePages = append(report.UnreadablePages, n)
			return page.Geometry, nil
		}
		if layer.AverageConfidence < float64(opts.ConfidenceThreshold) {
			report.LowConfidencePages = append(report.LowConfidencePages, n)
		}
		words = layer.Words
		source = SourceOCR
	}

	found := residuals(words, ks, n, source, opts.Verbose)
	if len(found) == 0 {
		report.CleanPages = append(report.CleanPages, n)
		return page.Geometry, nil
	}
	report.ResidualMatches = append(report.ResidualMatches, found...)
	return page.Geometry, nil
}

// deepVerify OCRs a rendering of every page and adds matches for keyword
// and page pairs not already reported.
func (v *Verifier) deepVerify(ctx context.Context, path string, pages int, geometries map[int]position.PageGeometry, ks *keywords.KeywordSet, opts Options, report *VerificationReport) error {
	type key struct {
		keyword string
		page    int
	}
	seen := make(map[key]bool, len(report.ResidualMatches))
	for _, m := range report.ResidualMatches {
		seen[key{m.Keyword, m.Page}] = true
	}

	for n := 1; n <= pages; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if geometries[n].Box.IsEmpty() {
			continue
		}
		layer, err := v.ocr.RecognizePage(ctx, path, n, geometries[n], opts.DeepVerifyDPI)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			v.observer.Warn(v.GetComponentName(), "deep_verify_page", path, err, map[string]interface{}{"page": n})
			continue
		}

		added := false
		for _, m := range residuals(layer.Words, ks, n, SourceDeepVerify, opts.Verbose) {
			k := key{m.Keyword, m.Page}
			if seen[k] {
				continue
			}
			seen[k] = true
			report.ResidualMatches = append(report.ResidualMatches, m)
			added = true
		}
		if added {
			report.CleanPages = slices.DeleteFunc(report.CleanPages, func(p int) bool { return p == n })
		}
	}
	return nil
}

// residuals searches words and reports every match. Keywords that timed out
// or failed are residuals too: the page cannot be vouched for.
func residuals(words []position.Word, ks *keywords.KeywordSet, page int, source string, verbose bool) []ResidualMatch {
	search := position.Search(words, ks)
	var out []ResidualMatch
	for _, hit := range search.Hits {
		m := ResidualMatch{Keyword: hit.Keyword, Page: page, Source: source}
		if verbose {
			m.Context = hit.Text
		}
		out = append(out, m)
	}
	for _, label := range search.TimedOut {
		out = append(out, ResidualMatch{Keyword: label, Page: page, Source: SourceRegexTimeout})
	}
	for _, label := range search.Failed {
		out = append(out, ResidualMatch{Keyword: label, Page: page, Source: SourceSearchError})
	}
	return out
}
