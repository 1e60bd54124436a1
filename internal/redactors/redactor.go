// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package redactors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"obscura/internal/keywords"
)

// RedactionStatus is the outcome of opening and redacting one document
type RedactionStatus string

const (
	StatusOK                RedactionStatus = "ok"
	StatusPasswordProtected RedactionStatus = "password_protected"
	StatusCorrupt           RedactionStatus = "corrupt"
)

// Miss reasons
const (
	// MissNoRectangle means text matched but no page area could be resolved
	MissNoRectangle = "no_rectangle"

	// MissRegexTimeout means a pattern ran out of time on the page
	MissRegexTimeout = "regex_timeout"

	// MissSearchError means matching a keyword failed on the page
	MissSearchError = "search_error"
)

// MissedKeyword is a match that could not be redacted
type MissedKeyword struct {
	Keyword string `json:"keyword"`
	Page    int    `json:"page"`
	Reason  string `json:"reason,omitempty"`
}

// RedactionResult is the structured result of redacting one document
type RedactionResult struct {
	File                string          `json:"file"`
	Status              RedactionStatus `json:"status"`
	SourceHash          string          `json:"source_hash"`
	RedactionCount      int             `json:"redaction_count"`
	OCRRedactionCount   int             `json:"ocr_redaction_count"`
	PageCount           int             `json:"page_count"`
	OCRUsed             bool            `json:"ocr_used"`
	PagesWithRedactions []int           `json:"pages_with_redactions"`
	MissedKeywords      []MissedKeyword `json:"missed_keywords"`
	SkippedPages        []int           `json:"skipped_pages"`
}

// Redactor creates a redacted copy of a document
type Redactor interface {
	// Redact writes the redacted copy of inputPath to outputPath. Unreadable
	// and encrypted inputs are reported through the result status; outputPath
	// is only written when the status is StatusOK.
	Redact(ctx context.Context, inputPath, outputPath string, ks *keywords.KeywordSet) (*RedactionResult, error)

	// GetComponentName returns the component name for observability
	GetComponentName() string
}

// FileHash returns "sha256:<hex>" of the file contents.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
