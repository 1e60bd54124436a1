// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"fmt"
	"strings"

	"obscura/internal/config"
	"obscura/internal/observability"
	"obscura/internal/preprocessors/rasterizer"
	tesseract "obscura/internal/preprocessors/text-extractors/tesseract-extractor-lib"
	"obscura/internal/redactors"
	"obscura/internal/redactors/pdf"
	"obscura/internal/redactors/sanitize"
	"obscura/internal/redactors/validation"
)

// Capabilities describes what the built pipeline can do on this machine.
type Capabilities struct {
	OCR bool `json:"ocr" yaml:"ocr"`

	// TessdataDir and Languages describe the OCR language data in use
	TessdataDir string   `json:"tessdata_dir,omitempty" yaml:"tessdata_dir,omitempty"`
	Languages   []string `json:"languages,omitempty" yaml:"languages,omitempty"`

	// Warnings explain missing capabilities
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// BuildPipeline constructs the redactor, sanitizer and verifier from the
// application config for a project language. OCR is optional: when the
// rasterizer or language data is missing the pipeline still works on text
// layers and the reason is returned in the capabilities.
func BuildPipeline(cfg *config.Config, language string, outputManager *redactors.OutputManager, observer *observability.StandardObserver) (Pipeline, *Capabilities) {
	caps := &Capabilities{}
	ocr := buildOCR(cfg, language, observer, caps)

	options := pdf.Options{
		OCRDPI:     cfg.OCR.DPI,
		OCRPass:    cfg.OCR.RedactionPass,
		OCRPassDPI: cfg.OCR.PassDPI,
		OCRMargin:  cfg.OCR.Margin,
	}

	return Pipeline{
		Redactor:  pdf.NewPDFRedactor(options, ocr, outputManager, observer),
		Sanitizer: sanitize.NewSanitizer(outputManager, observer),
		Verifier:  validation.NewVerifier(ocr, observer),
	}, caps
}

func buildOCR(cfg *config.Config, language string, observer *observability.StandardObserver, caps *Capabilities) *tesseract.PageRecognizer {
	if !cfg.OCR.Enabled {
		caps.Warnings = append(caps.Warnings, "OCR is disabled in the configuration")
		return nil
	}

	raster := rasterizer.NewPoppler(rasterizer.Config{
		Command: cfg.Rasterizer.Command,
		Timeout: cfg.Rasterizer.Timeout,
	}, observer)
	if !raster.Available() {
		caps.Warnings = append(caps.Warnings, fmt.Sprintf("OCR unavailable: %s not found", cfg.Rasterizer.Command))
		return nil
	}

	engine, err := tesseract.NewTesseractEngine(tesseract.Config{
		SearchDirs: cfg.OCR.TessdataDirs,
		Languages:  tesseract.ParseLanguages(language),
	})
	if err != nil {
		caps.Warnings = append(caps.Warnings, fmt.Sprintf("OCR unavailable: %v", err))
		return nil
	}

	td := engine.Tessdata()
	if len(td.Missing) > 0 {
		caps.Warnings = append(caps.Warnings, fmt.Sprintf("OCR language data missing for %s; using %s from %s",
			strings.Join(td.Missing, ", "), strings.Join(td.Languages, "+"), td.Dir))
	}
	caps.OCR = true
	caps.TessdataDir = td.Dir
	caps.Languages = td.Languages
	return tesseract.NewPageRecognizer(engine, raster, cfg.OCR.FailureThreshold, observer)
}
