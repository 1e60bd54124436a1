// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package keywords

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ligatures maps typographic ligature code points to their letter sequences.
// NFKC already decomposes most of these; the explicit fold keeps the result
// identical when a font's ToUnicode map emits the presentation form directly.
var ligatures = strings.NewReplacer(
	"ﬀ", "ff",
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	"ﬅ", "st",
	"ﬆ", "st",
)

// Normalize applies NFKC and folds ligatures. Keywords and page text are both
// passed through it before comparison.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	return ligatures.Replace(norm.NFKC.String(s))
}
