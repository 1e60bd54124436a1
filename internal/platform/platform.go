// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"runtime"
)

// ConfigDirEnv overrides the configuration directory on every platform
const ConfigDirEnv = "OBSCURA_CONFIG_DIR"

// Platform defines the interface for platform-specific operations
type Platform interface {
	// GetConfigDir returns where the application config file lives
	GetConfigDir() string
	// GetDefaultProjectRoot returns the folder projects are created in when
	// the config does not name one
	GetDefaultProjectRoot() string
	// GetTempDir returns the system temporary directory
	GetTempDir() string
	NormalizePath(path string) string
	SupportsCaseSensitivePaths() bool
}

// Config holds platform-specific configuration
type Config struct {
	OS                 string `json:"os" yaml:"os"`
	Architecture       string `json:"architecture" yaml:"architecture"`
	ConfigDirectory    string `json:"config_directory" yaml:"config_directory"`
	ProjectRoot        string `json:"project_root" yaml:"project_root"`
	TempDirectory      string `json:"temp_directory" yaml:"temp_directory"`
	CaseSensitivePaths bool   `json:"case_sensitive_paths" yaml:"case_sensitive_paths"`
}

// GetPlatform returns the appropriate platform implementation for the current OS
func GetPlatform() Platform {
	switch runtime.GOOS {
	case "windows":
		return &WindowsPlatform{}
	default:
		return &UnixPlatform{GOOS: runtime.GOOS}
	}
}

// GetConfig returns platform configuration for the current system
func GetConfig() *Config {
	platform := GetPlatform()
	return &Config{
		OS:                 runtime.GOOS,
		Architecture:       runtime.GOARCH,
		ConfigDirectory:    platform.GetConfigDir(),
		ProjectRoot:        platform.GetDefaultProjectRoot(),
		TempDirectory:      platform.GetTempDir(),
		CaseSensitivePaths: platform.SupportsCaseSensitivePaths(),
	}
}
