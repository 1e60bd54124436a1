// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package sanitize strips metadata, interactive content and revision history
// from PDF documents.
package sanitize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/filter"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"obscura/internal/observability"
	"obscura/internal/redactors"
	"obscura/internal/redactors/pdf"
)

// infoFields are the document information entries that are kept, blanked.
var infoFields = []string{"Author", "Title", "Subject", "Keywords", "Creator", "Producer"}

// catalogEntries are removed from the document catalog.
var catalogEntries = []string{"Metadata", "AcroForm", "AA", "Outlines", "StructTreeRoot", "MarkInfo", "PieceInfo"}

// pageEntries are removed from every page.
var pageEntries = []string{"Metadata", "Thumb", "PieceInfo", "AA"}

// Result counts what was removed.
type Result struct {
	InfoEntriesRemoved int      `json:"info_entries_removed"`
	CatalogEntries     []string `json:"catalog_entries"`
	Annotations        int      `json:"annotations"`
	PageEntries        int      `json:"page_entries"`
	EmbeddedFiles      bool     `json:"embedded_files"`
	JavaScript         bool     `json:"javascript"`
	OpenAction         bool     `json:"open_action"`
	ImagesStripped     int      `json:"images_stripped"`
	ExifFields         int      `json:"exif_fields"`
	Optimized          bool     `json:"optimized"`
}

// Sanitizer rewrites documents without their non-content data.
type Sanitizer struct {
	outputManager *redactors.OutputManager
	observer      *observability.StandardObserver
	pdfConfig     *model.Configuration
}

// NewSanitizer creates a Sanitizer.
func NewSanitizer(outputManager *redactors.OutputManager, observer *observability.StandardObserver) *Sanitizer {
	if outputManager == nil {
		outputManager = redactors.NewOutputManager(observer)
	}
	return &Sanitizer{
		outputManager: outputManager,
		observer:      observer,
		pdfConfig:     pdf.NewConfiguration(),
	}
}

// GetComponentName returns the component name for observability
func (s *Sanitizer) GetComponentName() string {
	return "sanitizer"
}

// Sanitize writes a cleaned copy of inputPath to outputPath as a single
// revision. inputPath and outputPath may be the same file.
func (s *Sanitizer) Sanitize(ctx context.Context, inputPath, outputPath string) (result *Result, err error) {
	finishTiming := s.observer.StartTiming(s.GetComponentName(), "sanitize_document", inputPath)
	defer func() {
		meta := map[string]interface{}{"output_path": outputPath}
		if result != nil {
			meta["annotations"] = result.Annotations
			meta["images_stripped"] = result.ImagesStripped
		}
		finishTiming(err == nil, meta)
	}()
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, redactors.NewRedactionError(redactors.ErrorSanitization,
				fmt.Sprintf("unexpected failure: %v", r), inputPath, s.GetComponentName(), nil)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorFileSystem, "cannot read input", inputPath, s.GetComponentName(), err)
	}
	pdfCtx, err := api.ReadContext(bytes.NewReader(data), s.pdfConfig)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorSanitization, "cannot parse document", inputPath, s.GetComponentName(), err)
	}
	if _, err := pdf.RepairPageTree(pdfCtx); err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorSanitization, "cannot count pages", inputPath, s.GetComponentName(), err)
	}

	result = &Result{CatalogEntries: []string{}}
	if err := scrubInfo(pdfCtx, result); err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorSanitization, "cannot clean document information", inputPath, s.GetComponentName(), err)
	}
	if err := scrubCatalog(pdfCtx, result); err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorSanitization, "cannot clean catalog", inputPath, s.GetComponentName(), err)
	}
	for n := 1; n <= pdfCtx.PageCount; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := scrubPage(pdfCtx, n, result); err != nil {
			return nil, redactors.NewRedactionError(redactors.ErrorSanitization,
				fmt.Sprintf("cannot clean page %d", n), inputPath, s.GetComponentName(), err)
		}
	}
	s.scrubImages(pdfCtx, inputPath, result)

	if err := api.OptimizeContext(pdfCtx); err != nil {
		// the document is still written in full, just without deduplication
		s.observer.Warn(s.GetComponentName(), "optimize", inputPath, err, nil)
	} else {
		result.Optimized = true
	}

	write := func(w io.Writer) error {
		return api.WriteContext(pdfCtx, w)
	}
	if err := s.outputManager.WriteAtomic(outputPath, write); err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorFileSystem, "cannot write output", outputPath, s.GetComponentName(), err)
	}
	return result, nil
}

// scrubInfo blanks the standard information entries and drops every other.
func scrubInfo(ctx *model.Context, result *Result) error {
	if ctx.Info == nil {
		return nil
	}
	info, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil {
		return err
	}
	if info == nil {
		return nil
	}
	for key := range info {
		if !slices.Contains(infoFields, key) {
			info.Delete(key)
			result.InfoEntriesRemoved++
		}
	}
	for _, key := range infoFields {
		info.Update(key, types.StringLiteral(""))
	}
	return nil
}

func scrubCatalog(ctx *model.Context, result *Result) error {
	root, err := ctx.Catalog()
	if err != nil {
		return err
	}

	for _, key := range catalogEntries {
		if _, found := root.Find(key); found {
			root.Delete(key)
			result.CatalogEntries = append(result.CatalogEntries, key)
		}
	}

	// a destination array only jumps to a page; actions are dictionaries
	if obj, found := root.Find("OpenAction"); found {
		if target, err := ctx.Dereference(obj); err == nil {
			if _, isAction := target.(types.Dict); isAction {
				root.Delete("OpenAction")
				result.OpenAction = true
			}
		}
	}

	if mode := root.NameEntry("PageMode"); mode != nil && (*mode == "UseOutlines" || *mode == "UseAttachments") {
		root.Delete("PageMode")
	}

	if obj, found := root.Find("Names"); found {
		names, err := ctx.DereferenceDict(obj)
		if err != nil {
			return err
		}
		if names != nil {
			if _, found := names.Find("EmbeddedFiles"); found {
				names.Delete("EmbeddedFiles")
				result.EmbeddedFiles = true
			}
			if _, found := names.Find("JavaScript"); found {
				names.Delete("JavaScript")
				result.JavaScript = true
			}
			if len(names) == 0 {
				root.Delete("Names")
			}
		}
	}
	return nil
}

func scrubPage(ctx *model.Context, n int, result *Result) error {
	page, _, _, err := ctx.PageDict(n, false)
	if err != nil {
		return err
	}
	if page == nil {
		return fmt.Errorf("page %d not found", n)
	}

	if obj, found := page.Find("Annots"); found {
		if annots, err := ctx.DereferenceArray(obj); err == nil {
			result.Annotations += len(annots)
		}
		page.Delete("Annots")
	}
	for _, key := range pageEntries {
		if _, found := page.Find(key); found {
			page.Delete(key)
			result.PageEntries++
		}
	}
	return nil
}

// scrubImages removes metadata segments from embedded JPEG images.
func (s *Sanitizer) scrubImages(ctx *model.Context, inputPath string, result *Result) {
	for _, nr := range tableNumbers(ctx) {
		entry := ctx.Table[nr]
		if entry == nil || entry.Free {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok || !isJPEG(sd) {
			continue
		}

		fields := exifFieldNames(sd.Raw)
		stripped, removed, err := stripJPEGMetadata(sd.Raw)
		if err != nil {
			s.observer.Warn(s.GetComponentName(), "strip_image_metadata", inputPath, err, map[string]interface{}{"object": nr})
			continue
		}
		if removed == 0 {
			continue
		}

		sd.Raw = stripped
		length := int64(len(stripped))
		sd.StreamLength = &length
		sd.Dict.Update("Length", types.Integer(length))
		entry.Object = sd

		result.ImagesStripped++
		result.ExifFields += len(fields)
		if s.observer != nil && s.observer.DebugObserver != nil && len(fields) > 0 {
			s.observer.DebugObserver.LogDetail(s.GetComponentName(),
				fmt.Sprintf("object %d: removed EXIF fields %v", nr, fields))
		}
	}
}

func isJPEG(sd types.StreamDict) bool {
	if st := sd.Dict.NameEntry("Subtype"); st == nil || *st != "Image" {
		return false
	}
	return len(sd.FilterPipeline) == 1 && sd.FilterPipeline[0].Name == filter.DCT
}

func tableNumbers(ctx *model.Context) []int {
	nrs := make([]int, 0, len(ctx.Table))
	for nr := range ctx.Table {
		nrs = append(nrs, nr)
	}
	slices.Sort(nrs)
	return nrs
}
