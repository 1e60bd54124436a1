// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package tesseractextractorlib

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultLanguage is used when no language is configured.
const DefaultLanguage = "eng"

// SystemTessdataDirs are searched after every configured location.
var SystemTessdataDirs = []string{
	"/opt/homebrew/share/tessdata",
	"/usr/local/share/tessdata",
	"/usr/share/tesseract-ocr/5/tessdata",
}

// ErrNoLanguageData is returned when no candidate directory holds data for
// any requested language.
var ErrNoLanguageData = errors.New("no tessdata directory with the requested language data")

// Config is the explicit OCR runtime configuration. Nothing here is read
// from or written to the process environment except TESSDATA_PREFIX, which is
// only read as a candidate location.
type Config struct {
	// TessdataDir, when set, is tried first
	TessdataDir string

	// SearchDirs are tried after TESSDATA_PREFIX and before the system dirs
	SearchDirs []string

	// Languages are tesseract language codes such as "eng" or "spa"
	Languages []string
}

// Tessdata is a resolved language data directory.
type Tessdata struct {
	Dir string

	// Languages holds the requested languages present in Dir
	Languages []string

	// Missing holds the requested languages absent from Dir
	Missing []string
}

// ParseLanguages splits a tesseract language string like "eng+spa". Empty
// input yields the default language.
func ParseLanguages(language string) []string {
	var langs []string
	for _, part := range strings.Split(language, "+") {
		if part = strings.TrimSpace(part); part != "" {
			langs = append(langs, part)
		}
	}
	if len(langs) == 0 {
		return []string{DefaultLanguage}
	}
	return langs
}

// CandidateDirs lists tessdata locations in preference order without
// duplicates.
func CandidateDirs(cfg Config) []string {
	var candidates []string
	if cfg.TessdataDir != "" {
		candidates = append(candidates, cfg.TessdataDir)
	}
	if env := os.Getenv("TESSDATA_PREFIX"); env != "" {
		candidates = append(candidates, env)
	}
	candidates = append(candidates, cfg.SearchDirs...)
	candidates = append(candidates, SystemTessdataDirs...)

	seen := make(map[string]bool)
	unique := make([]string, 0, len(candidates))
	for _, dir := range candidates {
		key := filepath.Clean(dir)
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			key = resolved
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, dir)
	}
	return unique
}

func availableLanguages(dir string, languages []string) []string {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}
	var found []string
	for _, lang := range languages {
		if _, err := os.Stat(filepath.Join(dir, lang+".traineddata")); err == nil {
			found = append(found, lang)
		}
	}
	return found
}

// ResolveTessdata picks the first directory holding every requested
// language, or else the directory covering the most of them.
func ResolveTessdata(cfg Config) (Tessdata, error) {
	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{DefaultLanguage}
	}

	var best Tessdata
	for _, dir := range CandidateDirs(cfg) {
		found := availableLanguages(dir, languages)
		if len(found) == len(languages) {
			return Tessdata{Dir: dir, Languages: found}, nil
		}
		if len(found) > len(best.Languages) {
			best = Tessdata{Dir: dir, Languages: found}
		}
	}

	if best.Dir == "" {
		return Tessdata{}, fmt.Errorf("%w: %s", ErrNoLanguageData, strings.Join(languages, ", "))
	}

	present := make(map[string]bool, len(best.Languages))
	for _, lang := range best.Languages {
		present[lang] = true
	}
	for _, lang := range languages {
		if !present[lang] {
			best.Missing = append(best.Missing, lang)
		}
	}
	return best, nil
}
