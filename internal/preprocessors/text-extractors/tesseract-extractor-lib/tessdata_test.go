// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package tesseractextractorlib

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTraineddata(t *testing.T, dir string, langs ...string) {
	t.Helper()
	for _, lang := range langs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, lang+".traineddata"), []byte("x"), 0o600))
	}
}

func TestParseLanguages(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{"eng"}},
		{"eng", []string{"eng"}},
		{"eng+spa", []string{"eng", "spa"}},
		{" eng + + fra ", []string{"eng", "fra"}},
		{"+", []string{"eng"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLanguages(tt.in))
		})
	}
}

func TestResolveTessdataPrefersCompleteDirectory(t *testing.T) {
	t.Setenv("TESSDATA_PREFIX", "")
	partial := t.TempDir()
	complete := t.TempDir()
	writeTraineddata(t, partial, "eng")
	writeTraineddata(t, complete, "eng", "obscuratest")

	td, err := ResolveTessdata(Config{
		TessdataDir: partial,
		SearchDirs:  []string{complete},
		Languages:   []string{"eng", "obscuratest"},
	})
	require.NoError(t, err)
	assert.Equal(t, complete, td.Dir)
	assert.Empty(t, td.Missing)
}

func TestResolveTessdataFallsBackToBestPartial(t *testing.T) {
	t.Setenv("TESSDATA_PREFIX", "")
	dir := t.TempDir()
	writeTraineddata(t, dir, "obscuratest")

	td, err := ResolveTessdata(Config{TessdataDir: dir, Languages: []string{"obscuratest", "obscuramissing"}})
	require.NoError(t, err)
	assert.Equal(t, dir, td.Dir)
	assert.Equal(t, []string{"obscuratest"}, td.Languages)
	assert.Equal(t, []string{"obscuramissing"}, td.Missing)
}

func TestResolveTessdataReadsPrefixWithoutChangingIt(t *testing.T) {
	dir := t.TempDir()
	writeTraineddata(t, dir, "obscuratest")
	t.Setenv("TESSDATA_PREFIX", dir)

	td, err := ResolveTessdata(Config{Languages: []string{"obscuratest"}})
	require.NoError(t, err)
	assert.Equal(t, dir, td.Dir)
	assert.Equal(t, dir, os.Getenv("TESSDATA_PREFIX"))
}

func TestResolveTessdataNothingFound(t *testing.T) {
	t.Setenv("TESSDATA_PREFIX", "")
	_, err := ResolveTessdata(Config{TessdataDir: t.TempDir(), Languages: []string{"obscuramissing"}})
	assert.True(t, errors.Is(err, ErrNoLanguageData))
}

func TestCandidateDirsDeduplicates(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink(dir, link))
	t.Setenv("TESSDATA_PREFIX", dir)

	dirs := CandidateDirs(Config{TessdataDir: dir, SearchDirs: []string{link}})
	count := 0
	for _, d := range dirs {
		if d == dir || d == link {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, dir, dirs[0])
}
