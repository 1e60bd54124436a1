// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package validation

import (
	"fmt"
	"strings"
)

// VerificationStatus is the overall outcome of verifying one document.
type VerificationStatus string

const (
	StatusClean       VerificationStatus = "clean"
	StatusNeedsReview VerificationStatus = "needs_review"
	StatusUnreadable  VerificationStatus = "unreadable"
)

// Severity orders statuses: a page that cannot be verified outranks a
// verified problem, which outranks a clean result.
func (s VerificationStatus) Severity() int {
	switch s {
	case StatusUnreadable:
		return 2
	case StatusNeedsReview:
		return 1
	default:
		return 0
	}
}

// DeriveStatus computes the document status from its page classifications.
func DeriveStatus(unreadablePages []int, residuals []ResidualMatch, lowConfidencePages []int) VerificationStatus {
	switch {
	case len(unreadablePages) > 0:
		return StatusUnreadable
	case len(residuals) > 0 || len(lowConfidencePages) > 0:
		return StatusNeedsReview
	default:
		return StatusClean
	}
}

// UnverifiedWarning describes pages that could not be verified, or returns
// "" when there are none.
func UnverifiedWarning(unreadablePages []int) string {
	if len(unreadablePages) == 0 {
		return ""
	}
	pages := make([]string, len(unreadablePages))
	for i, p := range unreadablePages {
		pages[i] = fmt.Sprint(p)
	}
	return fmt.Sprintf("Pages %s were not OCR-readable and could not be verified.", strings.Join(pages, ", "))
}

// PageCountProblem describes a page tree that cannot be trusted to have
// shown every page, or returns "" when found pages agree with the declared
// count and with the expected count when one is known.
func PageCountProblem(found, declared, expected int) string {
	switch {
	case found == 0:
		return "The document has no readable pages and could not be verified."
	case expected > 0 && found != expected:
		return fmt.Sprintf("The output has %d pages but the source had %d.", found, expected)
	case declared != found:
		return fmt.Sprintf("The page tree declares %d pages but holds %d.", declared, found)
	}
	return ""
}
