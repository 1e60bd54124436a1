// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"obscura/internal/project"
)

func (a *app) newCreateCommand() *cobra.Command {
	var (
		language   string
		confidence int
	)
	cmd := &cobra.Command{
		Use:     "create <name>",
		GroupID: groupProjects,
		Short:   "Create a project folder",
		Long: `Create a project folder with empty input, output and reports folders
and an empty keyword file.

Language and confidence threshold default to the configuration and are
stored with the project.

Examples:
  obscura create case-42
  obscura create contracts --language eng+spa --confidence 80`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("language") {
				language = a.cfg.Defaults.Language
			}
			if !cmd.Flags().Changed("confidence") {
				confidence = a.cfg.Defaults.ConfidenceThreshold
			}
			p, err := project.Create(a.cfg.ProjectRoot, args[0], language, confidence)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s project %s\n", a.paint(color.New(color.FgGreen), "Created"), p.Name)
			fmt.Fprintf(a.stdout, "  inputs:   %s\n", p.InputDir())
			fmt.Fprintf(a.stdout, "  keywords: %s\n", p.KeywordsPath())
			return nil
		},
	}
	cmd.Flags().StringVar(&language, "language", project.DefaultLanguage, "OCR language(s), e.g. eng or eng+spa")
	cmd.Flags().IntVar(&confidence, "confidence", project.DefaultConfidenceThreshold, "Minimum OCR word confidence (0-100)")
	return cmd
}

func (a *app) newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		GroupID: groupProjects,
		Short:   "List projects",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := project.Discover(a.cfg.ProjectRoot)
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Fprintf(a.stdout, "No projects in %s\n", a.cfg.ProjectRoot)
				return nil
			}

			width := len("NAME")
			for _, p := range projects {
				width = max(width, len(p.Name))
			}
			fmt.Fprint(a.stdout, a.paint(color.New(color.FgWhite, color.Bold),
				fmt.Sprintf("%-*s %-7s %-9s %-5s %s\n", width, "NAME", "INPUTS", "LANGUAGE", "CONF", "LAST RUN")))
			for _, p := range projects {
				inputs, err := p.InputFiles()
				if err != nil {
					a.observer.Warn("cli", "list_inputs", p.Path, err, nil)
				}
				lastRun := "never"
				if p.LastRun != nil {
					lastRun = *p.LastRun
				}
				fmt.Fprintf(a.stdout, "%-*s %-7d %-9s %-5d %s\n", width, p.Name, len(inputs), p.Language, p.ConfidenceThreshold, lastRun)
			}
			return nil
		},
	}
}

func (a *app) newAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "add <project> <file>...",
		GroupID: groupProjects,
		Short:   "Copy PDF files into a project's input folder",
		Long: `Copy PDF files into a project's input folder.

Files that are not PDFs, and symbolic links, are skipped. A file whose name
is already taken is stored as name-1.pdf, name-2.pdf and so on.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.openProject(args[0])
			if err != nil {
				return err
			}
			res, err := p.AddFiles(args[1:])
			if err != nil {
				return err
			}
			for _, name := range res.Added {
				fmt.Fprintf(a.stdout, "added   %s\n", name)
			}
			for _, src := range res.Skipped {
				fmt.Fprintf(a.stdout, "skipped %s\n", src)
			}
			fmt.Fprintf(a.stdout, "%d added, %d skipped\n", len(res.Added), len(res.Skipped))
			return nil
		},
	}
}

func (a *app) newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <project> <file>...",
		GroupID: groupProjects,
		Short:   "Delete PDF files from a project's input folder",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.openProject(args[0])
			if err != nil {
				return err
			}
			for _, name := range args[1:] {
				if err := p.RemoveFile(name); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "removed %s\n", name)
			}
			return nil
		},
	}
}
