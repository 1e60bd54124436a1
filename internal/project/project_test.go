// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"Case 2024", true},
		{"ünïcode", true},
		{"", false},
		{"   ", false},
		{"a/b", false},
		{`a\b`, false},
		{"a:b", false},
		{"what?", false},
		{".hidden", false},
		{"a..b", false},
		{strings.Repeat("x", MaxNameLength), true},
		{strings.Repeat("x", MaxNameLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidName)
			}
		})
	}
}

func TestCreate(t *testing.T) {
	root := t.TempDir()
	p, err := Create(root, "Case", "", DefaultConfidenceThreshold)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "Case"), p.Path)
	assert.Equal(t, DefaultLanguage, p.Language)
	assert.Nil(t, p.LastRun)
	for _, dir := range []string{p.InputDir(), p.OutputDir(), p.ReportsDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	kw, err := p.ReadKeywords()
	require.NoError(t, err)
	assert.Empty(t, kw)

	var raw map[string]any
	data, err := os.ReadFile(filepath.Join(p.Path, DescriptorFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, 1, raw["schema_version"])
	assert.Equal(t, "Case", raw["name"])
	assert.Contains(t, raw, "last_run")
	assert.Nil(t, raw["last_run"])

	_, err = Create(root, "Case", "eng", 70)
	assert.ErrorIs(t, err, ErrExists)

	_, err = Create(root, "../escape", "eng", 70)
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = Create(root, "Other", "eng", 101)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	created, err := Create(root, "Case", "deu", 55)
	require.NoError(t, err)
	require.NoError(t, created.MarkRun(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	p, err := Load(created.Path)
	require.NoError(t, err)
	assert.Equal(t, "Case", p.Name)
	assert.Equal(t, "deu", p.Language)
	assert.Equal(t, 55, p.ConfidenceThreshold)
	require.NotNil(t, p.LastRun)
	assert.Equal(t, "2026-01-02T03:04:05Z", *p.LastRun)

	t.Run("defaults for missing fields", func(t *testing.T) {
		dir := filepath.Join(root, "Sparse")
		require.NoError(t, os.Mkdir(dir, 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, DescriptorFile), []byte(`{"schema_version": 1, "name": "Sparse"}`), 0o600))
		p, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, DefaultLanguage, p.Language)
		assert.Equal(t, DefaultConfidenceThreshold, p.ConfidenceThreshold)
	})

	t.Run("wrong schema", func(t *testing.T) {
		dir := filepath.Join(root, "Future")
		require.NoError(t, os.Mkdir(dir, 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, DescriptorFile), []byte(`{"schema_version": 2, "name": "Future"}`), 0o600))
		_, err := Load(dir)
		assert.ErrorIs(t, err, ErrNotProject)
		assert.Contains(t, err.Error(), "schema_version 2")
	})

	t.Run("missing descriptor", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.ErrorIs(t, err, ErrNotProject)
	})
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"Beta", "Alpha"} {
		_, err := Create(root, name, "eng", 70)
		require.NoError(t, err)
	}
	require.NoError(t, os.Mkdir(filepath.Join(root, ".trash"), 0o750))
	require.NoError(t, os.Mkdir(filepath.Join(root, "NotAProject"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), nil, 0o600))

	projects, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "Alpha", projects[0].Name)
	assert.Equal(t, "Beta", projects[1].Name)

	none, err := Discover(filepath.Join(root, "missing"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAddAndListFiles(t *testing.T) {
	p, err := Create(t.TempDir(), "Case", "eng", 70)
	require.NoError(t, err)

	src := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(src, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}
	a := write("a.pdf", "%PDF-a")
	upper := write("B.PDF", "%PDF-b")
	txt := write("notes.txt", "text")
	link := filepath.Join(src, "link.pdf")
	require.NoError(t, os.Symlink(a, link))

	res, err := p.AddFiles([]string{a, upper, txt, link, filepath.Join(src, "missing.pdf")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "B.PDF"}, res.Added)
	assert.Len(t, res.Skipped, 3)

	// adding the same file twice keeps both copies
	res, err = p.AddFiles([]string{a, a})
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1.pdf", "a-2.pdf"}, res.Added)

	data, err := os.ReadFile(filepath.Join(p.InputDir(), "a-1.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-a", string(data))

	require.NoError(t, os.WriteFile(filepath.Join(p.InputDir(), ".hidden.pdf"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(p.InputDir(), "readme.md"), nil, 0o600))

	files, err := p.InputFiles()
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.Equal(t, []string{"B.PDF", "a-1.pdf", "a-2.pdf", "a.pdf"}, names)

	require.NoError(t, p.RemoveFile("a-2.pdf"))
	assert.Error(t, p.RemoveFile("../project.json"))
	assert.Error(t, p.RemoveFile("readme.md"))
	assert.Error(t, p.RemoveFile("gone.pdf"))
}

func TestKeywordsAndReports(t *testing.T) {
	p, err := Create(t.TempDir(), "Case", "eng", 70)
	require.NoError(t, err)

	require.NoError(t, p.WriteKeywords("secret\nregex:\\d+\n"))
	kw, err := p.ReadKeywords()
	require.NoError(t, err)
	assert.Equal(t, "secret\nregex:\\d+\n", kw)

	latest, err := p.LatestReport()
	require.NoError(t, err)
	assert.Empty(t, latest)

	for _, name := range []string{"2026-01-02T10-00-00-bbbbbbbb.json", "2026-01-01T10-00-00-aaaaaaaa.json", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(p.ReportsDir(), name), []byte("{}"), 0o600))
	}
	reports, err := p.Reports()
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "2026-01-01T10-00-00-aaaaaaaa.json", filepath.Base(reports[0]))

	latest, err = p.LatestReport()
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T10-00-00-bbbbbbbb.json", filepath.Base(latest))
}
