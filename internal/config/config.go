// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"obscura/internal/paths"

	"gopkg.in/yaml.v3"
)

// Ranges accepted by ValidateConfig.
const (
	MinDPI           = 72
	MaxDPI           = 1200
	MinDeepVerifyDPI = 150
	MaxDeepVerifyDPI = 600
	MaxWorkers       = 64
)

// OutputFormats are the accepted values of defaults.format
var OutputFormats = []string{"text", "json", "yaml", "csv"}

// Config represents the application configuration
type Config struct {
	// ProjectRoot is the folder holding one sub-folder per project
	ProjectRoot string `yaml:"project_root"`

	// Default settings, used when a project does not set its own
	Defaults struct {
		Language            string `yaml:"language"`
		ConfidenceThreshold int    `yaml:"confidence_threshold"`
		DeepVerify          bool   `yaml:"deep_verify"`
		DeepVerifyDPI       int    `yaml:"deep_verify_dpi"`
		Workers             int    `yaml:"workers"`
		Verbose             bool   `yaml:"verbose"`
		Format              string `yaml:"format"`
		NoColor             bool   `yaml:"no_color"`
	} `yaml:"defaults"`

	// OCR settings
	OCR struct {
		Enabled          bool     `yaml:"enabled"`
		RedactionPass    bool     `yaml:"redaction_pass"`
		DPI              int      `yaml:"dpi"`
		PassDPI          int      `yaml:"pass_dpi"`
		Margin           float64  `yaml:"margin"`
		TessdataDirs     []string `yaml:"tessdata_dirs"`
		FailureThreshold int      `yaml:"failure_threshold"`
	} `yaml:"ocr"`

	// Rasterizer settings
	Rasterizer struct {
		Command string        `yaml:"command"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"rasterizer"`
}

// defaultConfig returns the built-in configuration
func defaultConfig() *Config {
	config := &Config{}

	config.ProjectRoot = paths.GetDefaultProjectRoot()

	config.Defaults.Language = "eng"
	config.Defaults.ConfidenceThreshold = 70
	config.Defaults.DeepVerify = false
	config.Defaults.DeepVerifyDPI = 300
	config.Defaults.Workers = defaultWorkers()
	config.Defaults.Verbose = false
	config.Defaults.Format = "text"
	config.Defaults.NoColor = false

	config.OCR.Enabled = true
	config.OCR.RedactionPass = true
	config.OCR.DPI = 300
	config.OCR.PassDPI = 300
	config.OCR.Margin = 2.0
	config.OCR.FailureThreshold = 3

	config.Rasterizer.Command = "pdftoppm"
	config.Rasterizer.Timeout = 2 * time.Minute

	return config
}

func defaultWorkers() int {
	return min(runtime.NumCPU(), 4)
}

// LoadConfig loads configuration from the specified file path. An empty path
// returns the defaults.
func LoadConfig(configPath string) (*Config, error) {
	config := defaultConfig()

	// If no config file specified, return default config
	if configPath == "" {
		return config, nil
	}

	// Read config file
	cleanPath := filepath.Clean(configPath)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Fields missing from the file keep their defaults, since yaml.v3 only
	// assigns keys that are present
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	ApplyPlatformDefaults(config)

	// Validate the configuration
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// FindConfigFile looks for a configuration file in standard locations using platform-aware paths
func FindConfigFile() string {
	// Check current directory first
	for _, name := range []string{"obscura.yaml", "obscura.yml", ".obscura.yaml", ".obscura.yml"} {
		if fileExists(name) {
			return name
		}
	}

	// Check standard location using platform-aware paths
	standardConfig := paths.GetConfigFile()
	if fileExists(standardConfig) {
		return standardConfig
	}

	return ""
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Save writes the configuration as YAML to path, creating its directory.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ValidateConfig checks that every setting is within its accepted range
func ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	d := config.Defaults
	if d.ConfidenceThreshold < 0 || d.ConfidenceThreshold > 100 {
		return fmt.Errorf("defaults.confidence_threshold must be between 0 and 100, got %d", d.ConfidenceThreshold)
	}
	if d.DeepVerifyDPI < MinDeepVerifyDPI || d.DeepVerifyDPI > MaxDeepVerifyDPI {
		return fmt.Errorf("defaults.deep_verify_dpi must be between %d and %d, got %d", MinDeepVerifyDPI, MaxDeepVerifyDPI, d.DeepVerifyDPI)
	}
	if d.Workers < 1 || d.Workers > MaxWorkers {
		return fmt.Errorf("defaults.workers must be between 1 and %d, got %d", MaxWorkers, d.Workers)
	}
	if d.Language == "" {
		return fmt.Errorf("defaults.language cannot be empty")
	}
	if !slices.Contains(OutputFormats, d.Format) {
		return fmt.Errorf("defaults.format must be one of %s, got %q", strings.Join(OutputFormats, ", "), d.Format)
	}

	o := config.OCR
	for name, dpi := range map[string]int{"ocr.dpi": o.DPI, "ocr.pass_dpi": o.PassDPI} {
		if dpi < MinDPI || dpi > MaxDPI {
			return fmt.Errorf("%s must be between %d and %d, got %d", name, MinDPI, MaxDPI, dpi)
		}
	}
	if o.Margin < 0 {
		return fmt.Errorf("ocr.margin cannot be negative")
	}
	if o.FailureThreshold < 0 {
		return fmt.Errorf("ocr.failure_threshold cannot be negative")
	}

	if config.Rasterizer.Command == "" {
		return fmt.Errorf("rasterizer.command cannot be empty")
	}
	if config.Rasterizer.Timeout <= 0 {
		return fmt.Errorf("rasterizer.timeout must be positive")
	}

	return nil
}

// ApplyPlatformDefaults normalizes the paths in the configuration for the
// current platform
func ApplyPlatformDefaults(config *Config) {
	if config == nil {
		return
	}

	home, _ := os.UserHomeDir()
	if config.ProjectRoot == "" {
		config.ProjectRoot = paths.GetDefaultProjectRoot()
	} else if resolved, err := paths.ResolvePath(config.ProjectRoot, home); err == nil {
		config.ProjectRoot = resolved
	}

	for i, dir := range config.OCR.TessdataDirs {
		if resolved, err := paths.ResolvePath(dir, home); err == nil {
			config.OCR.TessdataDirs[i] = resolved
		}
	}
}

// LoadConfigOrDefault loads configuration from configFile (or searches standard locations
// when configFile is empty). If loading fails, it returns a default configuration
// together with the error so the caller can report it.
func LoadConfigOrDefault(configFile string) (*Config, error) {
	configPath := configFile
	if configPath == "" {
		configPath = FindConfigFile()
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return defaultConfig(), err
	}
	return cfg, nil
}
