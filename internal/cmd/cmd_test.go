// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obscura/internal/core"
	"obscura/internal/testutil/pdftest"
)

type cli struct {
	t      *testing.T
	config string
	root   string
}

// newCLI writes a config file rooted in a temp dir with OCR off, so runs
// only depend on the text layer.
func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "projects")
	cfg := filepath.Join(dir, "obscura.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("project_root: "+root+"\nocr:\n  enabled: false\n"), 0o600))
	return &cli{t: t, config: cfg, root: root}
}

func (c *cli) exec(stdin string, args ...string) (string, string, error) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand(&stdout, &stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", c.config}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func (c *cli) mustExec(stdin string, args ...string) string {
	c.t.Helper()
	out, stderr, err := c.exec(stdin, args...)
	require.NoError(c.t, err, "stderr: %s", stderr)
	return out
}

func exitCode(err error) int {
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	if err != nil {
		return ExitError
	}
	return ExitOK
}

func TestProjectLifecycle(t *testing.T) {
	c := newCLI(t)

	out := c.mustExec("", "list")
	assert.Contains(t, out, "No projects")

	out = c.mustExec("", "create", "case-42", "--confidence", "80")
	assert.Contains(t, out, "Created project case-42")

	_, _, err := c.exec("", "create", "case-42")
	assert.Error(t, err)
	_, _, err = c.exec("", "create", "../escape")
	assert.Error(t, err)

	out = c.mustExec("", "list")
	assert.Contains(t, out, "case-42")
	assert.Contains(t, out, "never")
	assert.Regexp(t, `case-42\s+0\s+eng\s+80`, out)

	src := t.TempDir()
	memo := pdftest.WriteFile(t, src, "memo.pdf", pdftest.Doc{Pages: []pdftest.Page{pdftest.TextPage("Top secret here")}})
	notes := filepath.Join(src, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0o600))

	out = c.mustExec("", "add", "case-42", memo, notes, memo)
	assert.Contains(t, out, "added   memo.pdf")
	assert.Contains(t, out, "added   memo-1.pdf")
	assert.Contains(t, out, "skipped "+notes)
	assert.Contains(t, out, "2 added, 1 skipped")

	out = c.mustExec("", "remove", "case-42", "memo-1.pdf")
	assert.Contains(t, out, "removed memo-1.pdf")
	_, _, err = c.exec("", "remove", "case-42", "../memo.pdf")
	assert.Error(t, err)

	_, _, err = c.exec("", "add", "missing", memo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no project "missing"`)
}

func TestKeywordCommands(t *testing.T) {
	c := newCLI(t)
	c.mustExec("", "create", "p")

	_, _, err := c.exec("", "keywords")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a subcommand")

	_, _, err = c.exec("", "keywords", "validate", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no keywords defined")

	out := c.mustExec("# people\nSecret\nacme*\nregex:\\d{3}-\\d{4}\n", "keywords", "set", "p", "-")
	assert.Contains(t, out, "3 keywords saved")

	_, _, err = c.exec("regex:([\n", "keywords", "set", "p", "-")
	require.Error(t, err)

	out = c.mustExec("", "keywords", "show", "p")
	assert.Contains(t, out, "acme*", "an invalid set must leave the file untouched")

	out = c.mustExec("", "keywords", "validate", "p")
	assert.Contains(t, out, "  secret\n")
	assert.Contains(t, out, "  acme*\n")
	assert.Contains(t, out, `  regex:\d{3}-\d{4}`)
	assert.Contains(t, out, "OK 3 keywords, hash ")
}

func TestRunAndReport(t *testing.T) {
	c := newCLI(t)
	c.mustExec("", "create", "p")

	src := t.TempDir()
	memo := pdftest.WriteFile(t, src, "memo.pdf", pdftest.Doc{Pages: []pdftest.Page{pdftest.TextPage("Top secret here")}})
	c.mustExec("", "add", "p", memo)

	_, _, err := c.exec("", "run", "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNoKeywords)

	c.mustExec("secret\n", "keywords", "set", "p", "-")

	out, _, err := c.exec("", "run", "p", "--format", "json", "--quiet")
	require.NoError(t, err)

	var view struct {
		Summary core.RunSummary `json:"summary"`
		Report  core.Report     `json:"report"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, 1, view.Summary.FilesProcessed)
	assert.Equal(t, 1, view.Summary.TotalRedactions)
	require.Len(t, view.Report.Files, 1)
	assert.Equal(t, "clean", view.Report.Files[0].Status)
	assert.Equal(t, "memo_redacted.pdf", view.Report.Files[0].OutputFile)
	assert.FileExists(t, filepath.Join(c.root, "p", "output", "memo_redacted.pdf"))

	out = c.mustExec("", "report", "p", "--list")
	assert.Equal(t, view.Summary.RunID+"\n", out)

	out = c.mustExec("", "report", "p", view.Summary.RunID, "--format", "csv")
	assert.Contains(t, out, "memo.pdf,memo_redacted.pdf,clean,ok,1,")

	out = c.mustExec("", "report", "p", "--last", "--no-color")
	assert.Contains(t, out, "Run "+view.Summary.RunID)
	assert.Contains(t, out, "CLEAN")

	_, _, err = c.exec("", "report", "p", "2000-01-01T00-00-00-00000000")
	assert.Error(t, err)
	_, _, err = c.exec("", "report", "p", "--list", "--last")
	assert.Error(t, err)

	out = c.mustExec("", "list")
	assert.NotContains(t, out, "never")
}

func TestRunExitCodes(t *testing.T) {
	c := newCLI(t)
	c.mustExec("", "create", "p")
	c.mustExec("secret\n", "keywords", "set", "p", "-")

	broken := filepath.Join(c.root, "p", "input", "broken.pdf")
	require.NoError(t, os.WriteFile(broken, []byte("not a pdf"), 0o600))

	out, _, err := c.exec("", "run", "p", "--format", "text")
	assert.Equal(t, ExitNeedsReview, exitCode(err))
	assert.Contains(t, out, "CORRUPT")
	assert.Contains(t, out, "Needs review: 1")

	_, _, err = c.exec("", "run", "p", "--format", "sarif")
	assert.Equal(t, ExitError, exitCode(err))
	_, _, err = c.exec("", "run", "p", "--workers", "1000")
	assert.Equal(t, ExitError, exitCode(err))
	_, _, err = c.exec("", "run", "p", "--deep-verify-dpi", "90")
	assert.Equal(t, ExitError, exitCode(err))
}

func TestConfigAndVersion(t *testing.T) {
	c := newCLI(t)

	out := c.mustExec("", "version", "--short")
	assert.Regexp(t, `^\d+\.\d+\.\d+\n$`, out)

	out = c.mustExec("", "config", "show")
	assert.Contains(t, out, "# source: "+c.config)
	assert.Contains(t, out, "project_root: "+c.root)
	assert.Contains(t, out, "ocr: false")
	assert.Contains(t, out, "OCR is disabled")
	assert.Contains(t, out, "case_sensitive_paths:")

	path := filepath.Join(t.TempDir(), "config.yaml")
	out = c.mustExec("", "config", "init", path)
	assert.Contains(t, out, "Wrote "+path)
	_, _, err := c.exec("", "config", "init", path)
	assert.Error(t, err)
	c.mustExec("", "config", "init", path, "--force")

	_, _, err = c.exec("", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "list")
	assert.Error(t, err)
}
