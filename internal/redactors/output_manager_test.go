// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package redactors

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestWriteAtomicReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.pdf")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	om := NewOutputManager(nil)
	require.NoError(t, om.WriteAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "new")
		return err
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	assert.Equal(t, []string{"out.pdf"}, listDir(t, dir))
}

func TestWriteAtomicFailureLeavesNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "out.pdf")

	om := NewOutputManager(nil)
	err := om.WriteAtomic(path, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return errors.New("disk on fire")
	})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, listDir(t, filepath.Join(dir, "sub")))
}

func TestCreateExclusiveNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	om := NewOutputManager(nil)

	write := func(s string) func(io.Writer) error {
		return func(w io.Writer) error {
			_, err := io.WriteString(w, s)
			return err
		}
	}

	require.NoError(t, om.CreateExclusive(path, write("first")))
	err := om.CreateExclusive(path, write("second"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrExist))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	assert.Equal(t, []string{"report.json"}, listDir(t, dir))
}

func TestTempFileAndFileHash(t *testing.T) {
	dir := t.TempDir()
	om := NewOutputManager(nil)

	tmp, err := om.TempFile(filepath.Join(dir, "x.pdf"))
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(tmp))
	assert.True(t, strings.HasSuffix(tmp, ".tmp"))

	require.NoError(t, os.WriteFile(tmp, []byte("abc"), 0o600))
	hash, err := FileHash(tmp)
	require.NoError(t, err)
	assert.Equal(t, "sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", hash)
}

func TestRedactionErrorUnwraps(t *testing.T) {
	cause := os.ErrPermission
	err := NewRedactionError(ErrorFileSystem, "cannot write output", "a.pdf", "pdf_redactor", cause)
	assert.True(t, errors.Is(err, os.ErrPermission))
	assert.True(t, err.Recoverable)
	assert.Contains(t, err.Error(), "[file_system] cannot write output (file: a.pdf")
	assert.False(t, NewRedactionError(ErrorConfiguration, "bad", "", "cfg", nil).Recoverable)
}
