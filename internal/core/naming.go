// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RedactedSuffix marks output file names
const RedactedSuffix = "_redacted"

// OutputFilename derives the output name for an input file name by
// appending "_redacted" before the extension. Names whose stem already ends
// with "_redacted" in any case are returned unchanged, so the mapping is
// idempotent.
func OutputFilename(input string) string {
	name := filepath.Base(input)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if strings.HasSuffix(strings.ToLower(stem), RedactedSuffix) {
		return name
	}
	return stem + RedactedSuffix + ext
}

// AssignOutputNames maps each input name to a distinct output name. Inputs
// are taken in the given order; the first claimant of a name keeps it and
// later ones get "-2", "-3", ... before the extension. Names are compared
// case-insensitively so outputs stay distinct on case-insensitive file
// systems.
func AssignOutputNames(inputs []string) []string {
	out := make([]string, len(inputs))
	taken := make(map[string]bool, len(inputs))
	for i, input := range inputs {
		name := OutputFilename(input)
		if taken[strings.ToLower(name)] {
			ext := filepath.Ext(name)
			stem := strings.TrimSuffix(name, ext)
			for n := 2; ; n++ {
				candidate := fmt.Sprintf("%s-%d%s", stem, n, ext)
				if !taken[strings.ToLower(candidate)] {
					name = candidate
					break
				}
			}
		}
		taken[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}
