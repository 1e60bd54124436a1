// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package position

import (
	"obscura/internal/keywords"
)

// Hit is one keyword match on a page and the rectangles that cover it. A hit
// without rectangles could not be located.
type Hit struct {
	Keyword string
	Text    string
	Rects   []Rect
}

// PageSearch is the result of matching a keyword set against one page.
type PageSearch struct {
	Lines []Line
	Hits  []Hit

	// TimedOut holds the labels of regex keywords that ran out of time on
	// some line of the page
	TimedOut []string

	// Failed holds the labels of keywords whose search failed for another
	// reason on some line of the page
	Failed []string
}

// Text returns the reconstructed page text.
func (s *PageSearch) Text() string {
	return PageText(s.Lines)
}

// Rects returns the rectangles of every located hit.
func (s *PageSearch) Rects() []Rect {
	var out []Rect
	for _, h := range s.Hits {
		out = append(out, h.Rects...)
	}
	return out
}

// Search reconstructs the lines of a page and matches each line against ks.
// Matches never span lines.
func Search(words []Word, ks *keywords.KeywordSet) *PageSearch {
	s := &PageSearch{Lines: BuildLines(words)}
	seen := make(map[string]bool)
	for _, line := range s.Lines {
		matches, err := ks.FindMatches(line.Text)
		for _, m := range matches {
			s.Hits = append(s.Hits, Hit{
				Keyword: m.Keyword,
				Text:    m.Text,
				Rects:   RectsForMatch(line.Spans, m.Start, m.End),
			})
		}
		s.addFailures(err, seen)
	}
	return s
}

// addFailures records the keywords err reports as timed out or failed, once
// per page.
func (s *PageSearch) addFailures(err error, seen map[string]bool) {
	for _, te := range keywords.TimedOut(err) {
		if label := te.Keyword(); !seen[label] {
			seen[label] = true
			s.TimedOut = append(s.TimedOut, label)
		}
	}
	for _, se := range keywords.Failed(err) {
		if !seen[se.Label] {
			seen[se.Label] = true
			s.Failed = append(s.Failed, se.Label)
		}
	}
}
