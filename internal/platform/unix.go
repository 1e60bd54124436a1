// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"os"
	"path/filepath"
)

// UnixPlatform implements Platform interface for Unix-like systems (Linux, macOS, etc.)
type UnixPlatform struct {
	// GOOS distinguishes macOS, which keeps application data under Library
	GOOS string
}

// GetConfigDir returns the Unix-appropriate configuration directory
func (u *UnixPlatform) GetConfigDir() string {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return dir
	}

	home, _ := os.UserHomeDir()
	if u.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Obscura")
	}

	// XDG Base Directory specification
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "obscura")
	}
	return filepath.Join(home, ".config", "obscura")
}

// GetDefaultProjectRoot returns ~/Obscura
func (u *UnixPlatform) GetDefaultProjectRoot() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Obscura")
}

// GetTempDir returns the Unix temporary directory
func (u *UnixPlatform) GetTempDir() string {
	if tmpDir := os.Getenv("TMPDIR"); tmpDir != "" {
		return tmpDir
	}
	return "/tmp"
}

// NormalizePath normalizes a path for Unix
func (u *UnixPlatform) NormalizePath(path string) string {
	return filepath.Clean(path)
}

// SupportsCaseSensitivePaths reports false on macOS, whose default volumes
// are case-insensitive
func (u *UnixPlatform) SupportsCaseSensitivePaths() bool {
	return u.GOOS != "darwin"
}
