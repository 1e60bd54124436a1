// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package cmd provides the obscura command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"obscura/internal/config"
	_ "obscura/internal/formatters/csv"
	_ "obscura/internal/formatters/json"
	_ "obscura/internal/formatters/text"
	_ "obscura/internal/formatters/yaml"
	"obscura/internal/observability"
	"obscura/internal/project"
	"obscura/internal/version"
)

// Exit codes
const (
	ExitOK          = 0
	ExitError       = 1
	ExitNeedsReview = 2
)

// exitError carries an exit code without printing anything further.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// app holds the state shared by every command of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configFile  string
	projectRoot string
	debug       bool
	noColor     bool
	interactive bool

	cfg      *config.Config
	observer *observability.StandardObserver
	debugObs *observability.DebugObserver
}

// Command group IDs
const (
	groupProjects = "projects"
	groupRuns     = "runs"
)

// NewRootCommand builds the command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:     "obscura",
		Short:   "Keyword redaction and verification for PDF documents",
		Version: version.Short(),
		Long: `Obscura removes every occurrence of a set of keywords from PDF documents.

Documents live in project folders. Each run redacts matching text in the
text layer and in scanned images, strips metadata and hidden content, then
re-reads every output to verify nothing was left behind. Every run writes a
JSON report that is never overwritten.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "Path to configuration file (YAML)")
	root.PersistentFlags().StringVar(&a.projectRoot, "project-root", "", "Folder holding the projects (overrides the configuration)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Trace every processing step on stderr")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddGroup(
		&cobra.Group{ID: groupProjects, Title: "Projects:"},
		&cobra.Group{ID: groupRuns, Title: "Runs:"},
	)

	root.AddCommand(
		a.newCreateCommand(),
		a.newListCommand(),
		a.newAddCommand(),
		a.newRemoveCommand(),
		a.newKeywordsCommand(),
		a.newRunCommand(),
		a.newReportCommand(),
		a.newConfigCommand(),
		a.newVersionCommand(),
	)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}
	return ExitOK
}

// setup loads the configuration and builds the observer before any command runs.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	a.interactive = isTerminal(a.stdout)
	if !a.interactive || os.Getenv("NO_COLOR") != "" {
		a.noColor = true
	}

	if a.debug {
		a.debugObs = observability.NewDebugObserver(a.stderr)
		a.observer = a.debugObs.StandardObserver
		a.debugObs.LogDetail("main", fmt.Sprintf("Command line arguments: %v", os.Args))
	} else {
		a.observer = observability.NewStandardObserver(observability.ObservabilityMetrics, a.stderr)
	}

	cfg, err := config.LoadConfigOrDefault(a.configFile)
	if err != nil {
		if a.configFile != "" {
			return err
		}
		fmt.Fprintf(a.stderr, "Warning: Error loading config file: %v\n", err)
		fmt.Fprintf(a.stderr, "Using default configuration\n")
	}
	if a.projectRoot != "" {
		cfg.ProjectRoot = a.projectRoot
	}
	config.ApplyPlatformDefaults(cfg)
	if cfg.Defaults.NoColor {
		a.noColor = true
	}
	a.cfg = cfg

	if a.debugObs != nil {
		a.debugObs.LogDetail("main", fmt.Sprintf("Project root: %s", cfg.ProjectRoot))
	}
	return nil
}

// openProject opens a project by name under the configured root.
func (a *app) openProject(name string) (*project.Project, error) {
	p, err := project.Open(a.cfg.ProjectRoot, name)
	if err != nil {
		if errors.Is(err, project.ErrNotProject) {
			return nil, fmt.Errorf("no project %q in %s (see 'obscura list')", name, a.cfg.ProjectRoot)
		}
		return nil, err
	}
	return p, nil
}

// paint colors s unless color is disabled
func (a *app) paint(c *color.Color, s string) string {
	if a.noColor {
		return s
	}
	return c.Sprint(s)
}

func (a *app) warnf(format string, args ...any) {
	fmt.Fprintf(a.stderr, a.paint(color.New(color.FgYellow), "Warning: ")+format+"\n", args...)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// requireSubcommand rejects a bare or unknown subcommand instead of
// silently printing help.
func requireSubcommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("requires a subcommand\n\nRun '%s --help' for usage", cmd.CommandPath())
	}
	return fmt.Errorf("unknown command %q for %q\n\nRun '%s --help' for available commands",
		args[0], cmd.CommandPath(), cmd.CommandPath())
}
