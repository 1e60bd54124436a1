// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package keywords classifies keyword files and finds their
// occurrences in normalized page text.
package keywords

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

const (
	// MatchVersion identifies the matching semantics. It is folded into Hash so
	// that reports produced under different semantics never compare equal.
	MatchVersion = 1

	// MaxPatternLength is the longest accepted regex pattern, in runes.
	MaxPatternLength = 500

	// RegexTimeout caps the time a single regex pattern may spend on one text.
	RegexTimeout = 5 * time.Second

	regexPrefix   = "regex:"
	commentPrefix = "#"
	prefixMarker  = "*"
)

// matcherKind is the closed set of keyword kinds.
type matcherKind int

const (
	kindPlain matcherKind = iota
	kindPrefix
	kindRegex
)

// String returns the string representation of the matcher kind
func (k matcherKind) String() string {
	switch k {
	case kindPlain:
		return "plain"
	case kindPrefix:
		return "prefix"
	case kindRegex:
		return "regex"
	default:
		return "unknown"
	}
}

// matcher is one compiled keyword.
type matcher struct {
	kind  matcherKind
	value string // lowered plain word, lowered stem, or raw regex
	label string
	re    *regexp2.Regexp
}

// Match is a single keyword hit inside normalized text. Start and End are
// rune offsets into the normalized text, End exclusive.
type Match struct {
	// Keyword is the label of the matcher: "word", "stem*" or "regex:<pattern>"
	Keyword string

	// Text is the matched substring of the normalized text
	Text string

	// Start is the rune offset of the first matched rune
	Start int

	// End is the rune offset after the last matched rune
	End int
}

// InvalidPatternError is returned by Parse for a regex keyword that is too
// long or does not compile.
type InvalidPatternError struct {
	Line    int
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid regex on line %d (%q): %v", e.Line, e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error {
	return e.Err
}

// PatternTimeoutError reports a regex keyword that exceeded RegexTimeout.
// It is recoverable: the matches found before the timeout are still returned.
type PatternTimeoutError struct {
	Pattern string
}

func (e *PatternTimeoutError) Error() string {
	return fmt.Sprintf("regex %q exceeded %s", e.Pattern, RegexTimeout)
}

// Keyword returns the label a timed-out pattern would have carried in a Match.
func (e *PatternTimeoutError) Keyword() string {
	return regexPrefix + e.Pattern
}

// SearchError reports a plain or prefix keyword whose search failed. The
// line cannot be vouched for, so callers treat it like a timeout.
type SearchError struct {
	Label string
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("keyword %q: %v", e.Label, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// KeywordSet is an immutable, classified set of keywords. It is safe for
// concurrent use once built.
type KeywordSet struct {
	plain    []matcher
	prefixes []matcher
	regexes  []matcher
	timeout  time.Duration
}

// Parse classifies every line of a keyword file.
func Parse(text string) (*KeywordSet, error) {
	ks := &KeywordSet{timeout: RegexTimeout}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}

		switch {
		case strings.HasPrefix(line, regexPrefix):
			m, err := compileRegex(line[len(regexPrefix):], lineNo)
			if err != nil {
				return nil, err
			}
			ks.regexes = append(ks.regexes, m)

		case strings.HasSuffix(line, prefixMarker):
			stem := strings.ToLower(Normalize(strings.TrimSuffix(line, prefixMarker)))
			if stem == "" {
				continue
			}
			pattern := `\b` + regexp2.Escape(stem) + `[\w-]*`
			ks.prefixes = append(ks.prefixes, matcher{
				kind:  kindPrefix,
				value: stem,
				label: stem + prefixMarker,
				re:    mustCompile(pattern),
			})

		default:
			word := strings.ToLower(Normalize(line))
			pattern := `\b` + regexp2.Escape(word) + `\b`
			ks.plain = append(ks.plain, matcher{
				kind:  kindPlain,
				value: word,
				label: word,
				re:    mustCompile(pattern),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keywords: %w", err)
	}

	return ks, nil
}

// ParseFile reads and parses a keyword file.
func ParseFile(path string) (*KeywordSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keywords file: %w", err)
	}
	return Parse(string(data))
}

// mustCompile compiles a pattern built from an escaped literal.
func mustCompile(pattern string) *regexp2.Regexp {
	re := regexp2.MustCompile(pattern, regexp2.IgnoreCase)
	re.MatchTimeout = RegexTimeout
	return re
}

func compileRegex(raw string, lineNo int) (matcher, error) {
	if raw == "" {
		return matcher{}, &InvalidPatternError{Line: lineNo, Pattern: raw, Err: errors.New("empty pattern")}
	}
	if n := len([]rune(raw)); n > MaxPatternLength {
		return matcher{}, &InvalidPatternError{
			Line:    lineNo,
			Pattern: raw,
			Err:     fmt.Errorf("pattern is %d characters, limit is %d", n, MaxPatternLength),
		}
	}
	re, err := regexp2.Compile(raw, regexp2.IgnoreCase)
	if err != nil {
		return matcher{}, &InvalidPatternError{Line: lineNo, Pattern: raw, Err: err}
	}
	re.MatchTimeout = RegexTimeout
	return matcher{kind: kindRegex, value: raw, label: regexPrefix + raw, re: re}, nil
}

// IsEmpty reports whether the set holds no matchers at all.
func (ks *KeywordSet) IsEmpty() bool {
	return ks == nil || len(ks.plain)+len(ks.prefixes)+len(ks.regexes) == 0
}

// Len returns the number of matchers.
func (ks *KeywordSet) Len() int {
	if ks == nil {
		return 0
	}
	return len(ks.plain) + len(ks.prefixes) + len(ks.regexes)
}

// Labels returns every matcher label in evaluation order.
func (ks *KeywordSet) Labels() []string {
	labels := make([]string, 0, ks.Len())
	for _, m := range ks.matchers() {
		labels = append(labels, m.label)
	}
	return labels
}

func (ks *KeywordSet) matchers() []matcher {
	all := make([]matcher, 0, ks.Len())
	all = append(all, ks.plain...)
	all = append(all, ks.prefixes...)
	all = append(all, ks.regexes...)
	return all
}

// Hash returns a stable fingerprint of the set's matching semantics. The
// result does not depend on the order keywords were listed in.
func (ks *KeywordSet) Hash() string {
	return ks.hashWithVersion(MatchVersion)
}

func (ks *KeywordSet) hashWithVersion(version int) string {
	plain := make([]string, 0, len(ks.plain))
	for _, m := range ks.plain {
		plain = append(plain, m.value)
	}
	prefixes := make([]string, 0, len(ks.prefixes))
	for _, m := range ks.prefixes {
		prefixes = append(prefixes, m.value+prefixMarker)
	}
	regexes := make([]string, 0, len(ks.regexes))
	for _, m := range ks.regexes {
		regexes = append(regexes, regexPrefix+m.value)
	}
	sort.Strings(plain)
	sort.Strings(prefixes)
	sort.Strings(regexes)

	parts := make([]string, 0, len(plain)+len(prefixes)+len(regexes))
	parts = append(parts, plain...)
	parts = append(parts, prefixes...)
	parts = append(parts, regexes...)

	sum := sha256.Sum256([]byte(fmt.Sprintf("v%d\n", version) + strings.Join(parts, "\n")))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// FindMatches normalizes text and returns every keyword occurrence in it.
// Matches carry rune offsets into Normalize(text). A regex that exceeds
// RegexTimeout contributes the matches found so far and a
// *PatternTimeoutError, and any other failing keyword a *SearchError; the
// returned error joins them all and never invalidates the returned matches.
func (ks *KeywordSet) FindMatches(text string) ([]Match, error) {
	if ks.IsEmpty() || text == "" {
		return nil, nil
	}
	normalized := Normalize(text)

	var matches []Match
	var failures []error
	for _, m := range ks.matchers() {
		found, err := ks.findAll(m, normalized)
		matches = append(matches, found...)
		if err != nil {
			failures = append(failures, err)
		}
	}
	return matches, errors.Join(failures...)
}

func (ks *KeywordSet) findAll(m matcher, text string) ([]Match, error) {
	deadline := time.Now().Add(ks.timeout)

	var out []Match
	match, err := m.re.FindStringMatch(text)
	for match != nil && err == nil {
		if match.Length > 0 {
			out = append(out, Match{
				Keyword: m.label,
				Text:    match.String(),
				Start:   match.Index,
				End:     match.Index + match.Length,
			})
		}
		if time.Now().After(deadline) {
			return out, &PatternTimeoutError{Pattern: m.value}
		}
		match, err = m.re.FindNextMatch(match)
	}
	if err != nil {
		if m.kind == kindRegex {
			return out, &PatternTimeoutError{Pattern: m.value}
		}
		return out, &SearchError{Label: m.label, Err: err}
	}
	return out, nil
}

// TimedOut returns every *PatternTimeoutError joined into err.
func TimedOut(err error) []*PatternTimeoutError {
	var out []*PatternTimeoutError
	for _, e := range flatten(err) {
		var pte *PatternTimeoutError
		if errors.As(e, &pte) {
			out = append(out, pte)
		}
	}
	return out
}

// Failed returns every *SearchError joined into err.
func Failed(err error) []*SearchError {
	var out []*SearchError
	for _, e := range flatten(err) {
		var se *SearchError
		if errors.As(e, &se) {
			out = append(out, se)
		}
	}
	return out
}

func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}
