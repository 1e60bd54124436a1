// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package yaml

import (
	"encoding/json"
	"fmt"

	"obscura/internal/formatters"

	"gopkg.in/yaml.v3"
)

// Formatter implements YAML output formatting
type Formatter struct{}

// NewFormatter creates a new YAML formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

func (f *Formatter) Name() string {
	return "yaml"
}

func (f *Formatter) Description() string {
	return "YAML format output, same structure and key names as JSON"
}

func (f *Formatter) FileExtension() string {
	return ".yaml"
}

// Format goes through JSON so keys and omitted fields match the JSON
// output, then re-emits the node tree in block style.
func (f *Formatter) Format(view formatters.View, options formatters.FormatterOptions) (string, error) {
	var v any = view.Report
	if view.Summary != nil {
		v = view
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("error formatting YAML: %w", err)
	}

	// JSON is valid YAML; decoding into a node keeps key order
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return "", fmt.Errorf("error formatting YAML: %w", err)
	}
	blockStyle(&node)

	out, err := yaml.Marshal(&node)
	if err != nil {
		return "", fmt.Errorf("error formatting YAML: %w", err)
	}
	return string(out), nil
}

// blockStyle clears the flow and quoting styles picked up from JSON input.
// Empty collections stay in flow style so they render as [] and {}.
func blockStyle(n *yaml.Node) {
	switch n.Kind {
	case yaml.SequenceNode, yaml.MappingNode:
		if len(n.Content) > 0 {
			n.Style = 0
		}
	case yaml.ScalarNode:
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// Register the formatter during package initialization
func init() {
	formatters.Register(NewFormatter())
}
