package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"candy/internal/cst"
	"candy/internal/diag"
	"candy/internal/rcst"
	"candy/internal/source"
)

var tokenizeCmd = &cobra.Command{
	Use:   "tokenize <file.candy>",
	Short: "Parse a file and dump its lossless concrete syntax tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenize,
}

func runTokenize(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0]) // #nosec G304 -- path is a CLI argument, not attacker-controlled input
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	files := source.NewFileSet()
	fileID := files.Add(args[0], content)
	tree := rcst.Parse(fileID, content)

	bag := diag.NewBag(100)
	cst.Lower(tree, bag)
	if bag.Len() > 0 {
		diag.NewReporter(files, cmd.ErrOrStderr(), useColor(cmd, os.Stderr)).ReportAll(bag)
	}

	out := cmd.OutOrStdout()
	for i, n := range tree.Nodes {
		fmt.Fprintf(out, "%4d  %-24s %-14s %q\n", i, n.Kind, n.Span, previewText(n.Text))
	}
	return nil
}

func previewText(s string) string {
	const max = 40
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
