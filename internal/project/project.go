// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package project manages project folders: a project.json descriptor, an
// input folder of PDFs, an output folder of redacted copies, a reports
// folder, and a keyword file.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"obscura/internal/redactors"
)

// SchemaVersion is the project.json format version
const SchemaVersion = 1

// Folder layout
const (
	DescriptorFile = "project.json"
	KeywordsFile   = "keywords.txt"
	InputDir       = "input"
	OutputDir      = "output"
	ReportsDir     = "reports"
)

// Defaults for new projects
const (
	DefaultLanguage            = "eng"
	DefaultConfidenceThreshold = 70
	MaxNameLength              = 255

	// maxCopySuffix bounds the "-N" suffixes tried when an added file's name
	// is taken
	maxCopySuffix = 1000
)

const invalidNameChars = `/\:*?"<>|`

var (
	// ErrInvalidName is returned for names that are unsafe as folder names
	ErrInvalidName = errors.New("invalid project name")

	// ErrExists is returned when creating a project whose folder exists
	ErrExists = errors.New("project already exists")

	// ErrNotProject is returned when a folder has no usable project.json
	ErrNotProject = errors.New("not a valid project")
)

// Project is a project folder on disk.
type Project struct {
	Path                string  `json:"-"`
	Name                string  `json:"name"`
	Created             string  `json:"created"`
	LastRun             *string `json:"last_run"`
	Language            string  `json:"language"`
	ConfidenceThreshold int     `json:"confidence_threshold"`
}

// descriptor is the on-disk form of project.json
type descriptor struct {
	SchemaVersion int `json:"schema_version"`
	Project
}

func (p *Project) InputDir() string     { return filepath.Join(p.Path, InputDir) }
func (p *Project) OutputDir() string    { return filepath.Join(p.Path, OutputDir) }
func (p *Project) ReportsDir() string   { return filepath.Join(p.Path, ReportsDir) }
func (p *Project) KeywordsPath() string { return filepath.Join(p.Path, KeywordsFile) }

// ValidateName checks that name is usable as a single folder name.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, MaxNameLength)
	case strings.ContainsAny(name, invalidNameChars):
		return fmt.Errorf("%w: contains reserved characters", ErrInvalidName)
	case strings.HasPrefix(name, ".") || strings.Contains(name, ".."):
		return fmt.Errorf("%w: path traversal not allowed", ErrInvalidName)
	}
	return nil
}

// Create makes a new project folder under root with empty input, output and
// reports folders and an empty keyword file.
func Create(root, name, language string, confidenceThreshold int) (*Project, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if language == "" {
		language = DefaultLanguage
	}
	if confidenceThreshold < 0 || confidenceThreshold > 100 {
		return nil, fmt.Errorf("confidence threshold must be between 0 and 100, got %d", confidenceThreshold)
	}

	dir := filepath.Join(root, name)
	if _, err := os.Lstat(dir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, dir)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create project root: %w", err)
	}
	// Mkdir, not MkdirAll, so a concurrent create of the same name fails
	if err := os.Mkdir(dir, 0o750); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrExists, dir)
		}
		return nil, fmt.Errorf("failed to create project folder: %w", err)
	}

	for _, sub := range []string{InputDir, OutputDir, ReportsDir} {
		if err := os.Mkdir(filepath.Join(dir, sub), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create %s folder: %w", sub, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, KeywordsFile), nil, 0o600); err != nil {
		return nil, fmt.Errorf("failed to create keyword file: %w", err)
	}

	p := &Project{
		Path:                dir,
		Name:                name,
		Created:             time.Now().UTC().Format(time.RFC3339),
		Language:            language,
		ConfidenceThreshold: confidenceThreshold,
	}
	if err := p.Save(); err != nil {
		return nil, err
	}
	return p, nil
}

// Load reads the project in dir. Missing optional fields take their
// defaults; an unknown schema version is an error.
func Load(dir string) (*Project, error) {
	data, err := os.ReadFile(filepath.Join(dir, DescriptorFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w (missing %s): %s", ErrNotProject, DescriptorFile, dir)
		}
		return nil, fmt.Errorf("failed to read %s: %w", DescriptorFile, err)
	}

	d := descriptor{Project: Project{
		Language:            DefaultLanguage,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}}
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w (unreadable %s): %v", ErrNotProject, DescriptorFile, err)
	}
	if d.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema_version %d in %s, expected %d",
			ErrNotProject, d.SchemaVersion, filepath.Join(dir, DescriptorFile), SchemaVersion)
	}
	if d.Name == "" {
		return nil, fmt.Errorf("%w: %s has no name", ErrNotProject, DescriptorFile)
	}

	p := d.Project
	p.Path = dir
	return &p, nil
}

// Save writes project.json atomically.
func (p *Project) Save() error {
	data, err := json.MarshalIndent(descriptor{SchemaVersion: SchemaVersion, Project: *p}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", DescriptorFile, err)
	}
	data = append(data, '\n')

	om := redactors.NewOutputManager(nil)
	if err := om.WriteAtomic(filepath.Join(p.Path, DescriptorFile), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return fmt.Errorf("failed to save %s: %w", DescriptorFile, err)
	}
	return nil
}

// MarkRun records t as the last run time and saves the project.
func (p *Project) MarkRun(t time.Time) error {
	s := t.UTC().Format(time.RFC3339)
	p.LastRun = &s
	return p.Save()
}

// Discover returns every valid project directly under root, sorted by
// folder name. Hidden folders and folders that fail to load are skipped.
func Discover(root string) ([]*Project, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read project root: %w", err)
	}

	var projects []*Project
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		p, err := Load(filepath.Join(root, e.Name()))
		if err != nil {
			continue
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// Open loads the project called name under root.
func Open(root, name string) (*Project, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return Load(filepath.Join(root, name))
}

// ReadKeywords returns the keyword file contents. A missing file reads as
// empty.
func (p *Project) ReadKeywords() (string, error) {
	data, err := os.ReadFile(p.KeywordsPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read keyword file: %w", err)
	}
	return string(data), nil
}

// WriteKeywords replaces the keyword file atomically.
func (p *Project) WriteKeywords(text string) error {
	om := redactors.NewOutputManager(nil)
	return om.WriteAtomic(p.KeywordsPath(), func(w io.Writer) error {
		_, err := io.WriteString(w, text)
		return err
	})
}

// InputFiles lists the PDFs in the input folder sorted by name. The
// extension match is case-insensitive; hidden files and symlinks are ignored.
func (p *Project) InputFiles() ([]string, error) {
	entries, err := os.ReadDir(p.InputDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list input folder: %w", err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || !IsPDFName(name) {
			continue
		}
		files = append(files, filepath.Join(p.InputDir(), name))
	}
	sort.Strings(files)
	return files, nil
}

// IsPDFName reports whether name has a .pdf extension in any case.
func IsPDFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// AddResult lists what AddFiles copied and what it refused.
type AddResult struct {
	Added   []string `json:"added"`
	Skipped []string `json:"skipped"`
}

// AddFiles copies PDFs into the input folder. Non-PDFs, symlinks and
// non-regular files are skipped. A name already taken gets a "-N" suffix
// before the extension.
func (p *Project) AddFiles(srcs []string) (*AddResult, error) {
	result := &AddResult{Added: []string{}, Skipped: []string{}}
	om := redactors.NewOutputManager(nil)

	for _, src := range srcs {
		info, err := os.Lstat(src)
		if err != nil || !info.Mode().IsRegular() || !IsPDFName(src) {
			result.Skipped = append(result.Skipped, src)
			continue
		}

		dest, ok := freeName(p.InputDir(), filepath.Base(src))
		if !ok {
			result.Skipped = append(result.Skipped, src)
			continue
		}
		if err := om.CopyFile(src, dest); err != nil {
			return result, fmt.Errorf("failed to add %s: %w", src, err)
		}
		_ = os.Chtimes(dest, info.ModTime(), info.ModTime())
		result.Added = append(result.Added, filepath.Base(dest))
	}
	return result, nil
}

func freeName(dir, name string) (string, bool) {
	dest := filepath.Join(dir, name)
	if !exists(dest) {
		return dest, true
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; n < maxCopySuffix; n++ {
		dest = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
		if !exists(dest) {
			return dest, true
		}
	}
	return "", false
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// RemoveFile deletes a PDF from the input folder. name must be a bare file
// name.
func (p *Project) RemoveFile(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid file name: %q", name)
	}
	if !IsPDFName(name) {
		return fmt.Errorf("only PDF files can be removed: %q", name)
	}
	path := filepath.Join(p.InputDir(), name)
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("file not found: %s", name)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", name)
	}
	return os.Remove(path)
}

// Reports lists the report files, oldest first. Report names start with a
// sortable UTC timestamp, so name order is run order.
func (p *Project) Reports() ([]string, error) {
	entries, err := os.ReadDir(p.ReportsDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	var reports []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".json") && !strings.HasPrefix(e.Name(), ".") {
			reports = append(reports, filepath.Join(p.ReportsDir(), e.Name()))
		}
	}
	sort.Strings(reports)
	return reports, nil
}

// LatestReport returns the newest report path, or "" when there is none.
func (p *Project) LatestReport() (string, error) {
	reports, err := p.Reports()
	if err != nil || len(reports) == 0 {
		return "", err
	}
	return reports[len(reports)-1], nil
}
