// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"obscura/internal/keywords"
)

func (a *app) newKeywordsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "keywords",
		GroupID: groupProjects,
		Short:   "Show, replace or check a project's keyword file",
		Long: `Show, replace or check a project's keyword file.

One keyword per line. Blank lines and lines starting with # are ignored.
A trailing * matches any word starting with the prefix; a line starting
with regex: is a regular expression. Everything else matches whole words,
ignoring case.`,
		RunE: requireSubcommand,
	}
	cmd.AddCommand(a.newKeywordsShowCommand(), a.newKeywordsSetCommand(), a.newKeywordsValidateCommand())
	return cmd
}

func (a *app) newKeywordsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project>",
		Short: "Print the keyword file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.openProject(args[0])
			if err != nil {
				return err
			}
			text, err := p.ReadKeywords()
			if err != nil {
				return err
			}
			fmt.Fprint(a.stdout, text)
			return nil
		},
	}
}

func (a *app) newKeywordsSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <project> <file|->",
		Short: "Replace the keyword file from a file or stdin",
		Long: `Replace the keyword file from a file, or from stdin when the file is "-".

The new keywords are checked first; an invalid regex leaves the current
file untouched.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.openProject(args[0])
			if err != nil {
				return err
			}
			var data []byte
			if args[1] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[1])
			}
			if err != nil {
				return fmt.Errorf("failed to read keywords: %w", err)
			}
			ks, err := keywords.Parse(string(data))
			if err != nil {
				return err
			}
			if err := p.WriteKeywords(string(data)); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%d keywords saved to %s\n", ks.Len(), p.KeywordsPath())
			if ks.IsEmpty() {
				a.warnf("the keyword file is empty; runs will refuse to start")
			}
			return nil
		},
	}
}

func (a *app) newKeywordsValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <project>",
		Short: "Check the keyword file and list how each line is matched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.openProject(args[0])
			if err != nil {
				return err
			}
			text, err := p.ReadKeywords()
			if err != nil {
				return err
			}
			ks, err := keywords.Parse(text)
			if err != nil {
				var invalid *keywords.InvalidPatternError
				if errors.As(err, &invalid) {
					return fmt.Errorf("%s line %d: %w", p.KeywordsPath(), invalid.Line, invalid.Err)
				}
				return err
			}
			if ks.IsEmpty() {
				return fmt.Errorf("no keywords defined in %s", p.KeywordsPath())
			}
			for _, label := range ks.Labels() {
				fmt.Fprintf(a.stdout, "  %s\n", label)
			}
			fmt.Fprintf(a.stdout, "%s %d keywords, hash %s\n", a.paint(color.New(color.FgGreen), "OK"), ks.Len(), ks.Hash())
			return nil
		},
	}
}
