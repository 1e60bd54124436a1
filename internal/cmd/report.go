// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"obscura/internal/core"
	"obscura/internal/formatters"
	"obscura/internal/project"
)

func (a *app) newReportCommand() *cobra.Command {
	var (
		list    bool
		last    bool
		format  string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:     "report <project> [run-id]",
		GroupID: groupRuns,
		Short:   "Show a run report",
		Long: `Show a run report of a project.

With --list, print the run IDs of every report, oldest first. Otherwise
print the report of the given run, or of the latest run with --last or
when no run ID is given.

Examples:
  obscura report case-42 --list
  obscura report case-42 --last --verbose
  obscura report case-42 2026-10-16T09-30-00-0a1b2c3d --format yaml`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("format") {
				format = a.cfg.Defaults.Format
			}
			if list && (last || len(args) == 2) {
				return fmt.Errorf("--list cannot be combined with --last or a run ID")
			}
			if last && len(args) == 2 {
				return fmt.Errorf("--last cannot be combined with a run ID")
			}

			p, err := a.openProject(args[0])
			if err != nil {
				return err
			}
			if list {
				return a.listReports(p)
			}

			path, err := a.findReport(p, args[1:])
			if err != nil {
				return err
			}
			report, err := core.ReadReport(path)
			if err != nil {
				return err
			}
			out, err := formatters.Export(format, formatters.View{Report: report},
				formatters.FormatterOptions{Verbose: verbose, NoColor: a.noColor})
			if err != nil {
				return err
			}
			fmt.Fprint(a.stdout, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "List the run IDs of all reports")
	cmd.Flags().BoolVar(&last, "last", false, "Show the latest report")
	cmd.Flags().StringVar(&format, "format", "", "Output format: "+strings.Join(formatters.List(), ", "))
	cmd.Flags().BoolVar(&verbose, "verbose", false, "List details per file")
	return cmd
}

func (a *app) listReports(p *project.Project) error {
	reports, err := p.Reports()
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Fprintf(a.stdout, "No reports for %s\n", p.Name)
		return nil
	}
	for _, path := range reports {
		fmt.Fprintln(a.stdout, strings.TrimSuffix(filepath.Base(path), ".json"))
	}
	return nil
}

// findReport resolves an optional run ID to a report path. Without one the
// latest report is used.
func (a *app) findReport(p *project.Project, args []string) (string, error) {
	if len(args) == 0 {
		path, err := p.LatestReport()
		if err != nil {
			return "", err
		}
		if path == "" {
			return "", fmt.Errorf("no reports for %s; run 'obscura run %s' first", p.Name, p.Name)
		}
		return path, nil
	}

	runID := strings.TrimSuffix(args[0], ".json")
	if runID == "" || runID != filepath.Base(runID) {
		return "", fmt.Errorf("invalid run ID %q", args[0])
	}
	reports, err := p.Reports()
	if err != nil {
		return "", err
	}
	for _, path := range reports {
		if filepath.Base(path) == runID+".json" {
			return path, nil
		}
	}
	return "", fmt.Errorf("no report %s for %s (see 'obscura report %s --list')", runID, p.Name, p.Name)
}
