// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"os"
	"path/filepath"
	"strings"
)

// WindowsPlatform implements Platform interface for Windows systems
type WindowsPlatform struct{}

// GetConfigDir returns the Windows-appropriate configuration directory
func (w *WindowsPlatform) GetConfigDir() string {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return dir
	}

	// APPDATA is the recommended location for application settings
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "Obscura")
	}
	if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
		return filepath.Join(userProfile, "Obscura")
	}
	return "Obscura"
}

// GetDefaultProjectRoot returns %USERPROFILE%\Obscura
func (w *WindowsPlatform) GetDefaultProjectRoot() string {
	if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
		return filepath.Join(userProfile, "Obscura")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Obscura")
}

// GetTempDir returns the Windows temporary directory
func (w *WindowsPlatform) GetTempDir() string {
	if temp := os.Getenv("TEMP"); temp != "" {
		return temp
	}
	if tmp := os.Getenv("TMP"); tmp != "" {
		return tmp
	}
	return filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local", "Temp")
}

// NormalizePath normalizes a path for Windows
func (w *WindowsPlatform) NormalizePath(path string) string {
	normalized := filepath.Clean(path)

	// Handle UNC paths (\\server\share)
	if strings.HasPrefix(path, "\\\\") && !strings.HasPrefix(normalized, "\\\\") {
		normalized = "\\\\" + strings.TrimPrefix(normalized, "\\")
	}
	return normalized
}

// SupportsCaseSensitivePaths returns false for Windows (case-insensitive by default)
func (w *WindowsPlatform) SupportsCaseSensitivePaths() bool {
	return false
}
