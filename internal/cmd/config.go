// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"obscura/internal/config"
	"obscura/internal/core"
	"obscura/internal/paths"
	"obscura/internal/platform"
	"obscura/internal/redactors"
)

func (a *app) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
		RunE:  requireSubcommand,
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration to a file",
		Long: `Write the default configuration to a file, by default the platform
configuration file. An existing file is kept unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := paths.GetConfigFile()
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			cfg, err := config.LoadConfig("")
			if err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration and what this machine supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			source := a.configFile
			if source == "" {
				source = config.FindConfigFile()
			}
			if source == "" {
				source = "built-in defaults"
			}
			fmt.Fprintf(a.stdout, "# source: %s\n%s", source, data)

			_, caps := core.BuildPipeline(a.cfg, a.cfg.Defaults.Language, redactors.NewOutputManager(a.observer), a.observer)
			capData, err := yaml.Marshal(map[string]any{
				"capabilities": caps,
				"platform":     platform.GetConfig(),
			})
			if err != nil {
				return fmt.Errorf("failed to encode capabilities: %w", err)
			}
			fmt.Fprintf(a.stdout, "%s", capData)
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
