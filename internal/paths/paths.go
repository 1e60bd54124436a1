// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package paths

import (
	"path/filepath"
	"strings"

	"obscura/internal/platform"
)

// GetConfigDir returns the obscura configuration directory.
// OBSCURA_CONFIG_DIR overrides the platform default.
func GetConfigDir() string {
	return platform.GetPlatform().GetConfigDir()
}

// GetConfigFile returns the path to the main config file
func GetConfigFile() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// GetDefaultProjectRoot returns the platform-appropriate projects folder
func GetDefaultProjectRoot() string {
	return platform.GetPlatform().GetDefaultProjectRoot()
}

// NormalizePath normalizes a file path for the current platform
func NormalizePath(path string) string {
	return platform.GetPlatform().NormalizePath(path)
}

// ResolvePath expands a leading ~ and returns the absolute, normalized path
func ResolvePath(path string, home string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" {
		path = home
	} else if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		path = filepath.Join(home, path[2:])
	}
	abs, err := filepath.Abs(NormalizePath(path))
	if err != nil {
		return "", err
	}
	return abs, nil
}
