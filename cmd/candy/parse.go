package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"candy/internal/ast"
	"candy/internal/cst"
	"candy/internal/diag"
	"candy/internal/rcst"
	"candy/internal/source"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file.candy>",
	Short: "Lower a file to AST and dump its node tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runParse,
}

func runParse(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0]) // #nosec G304 -- path is a CLI argument, not attacker-controlled input
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	files := source.NewFileSet()
	fileID := files.Add(args[0], content)

	maxDiagnostics, _ := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	bag := diag.NewBag(maxDiagnostics)

	rc := rcst.Parse(fileID, content)
	cstTree := cst.Lower(rc, bag)
	astTree := ast.Lower(cstTree, bag)

	if bag.Len() > 0 {
		diag.NewReporter(files, cmd.ErrOrStderr(), useColor(cmd, os.Stderr)).ReportAll(bag)
	}

	out := cmd.OutOrStdout()
	for _, root := range astTree.Roots {
		dumpAstNode(out, astTree, root, 0)
	}
	return nil
}

// dumpAstNode prints one node and recurses into whichever of its
// Kind-specific ID slices/fields are populated (ast.Node's doc comment:
// "only the fields relevant to Kind are populated").
func dumpAstNode(out io.Writer, tree *ast.Tree, id ast.ID, depth int) {
	n := tree.Node(id)
	indent := strings.Repeat("  ", depth)
	label := n.Name
	if label == "" {
		label = n.Literal
	}
	fmt.Fprintf(out, "%s%-12s %-10s %q\n", indent, n.Kind, n.Span, label)

	children := func(ids ...ast.ID) {
		for _, c := range ids {
			dumpAstNode(out, tree, c, depth+1)
		}
	}
	// Every field below is only meaningful for the Kind that sets it
	// (ast.Node's own doc comment); a zero ast.ID is itself a valid node
	// (ids.Arena mints from 0), so which fields apply has to be decided
	// by Kind, not by a zero check.
	switch n.Kind {
	case ast.KindText:
		children(n.TextParts...)
	case ast.KindList:
		children(n.Items...)
	case ast.KindStruct:
		children(n.Keys...)
		children(n.Items...)
	case ast.KindStructAccess:
		children(n.Target)
	case ast.KindFunction:
		children(n.Params...)
		children(n.Body...)
	case ast.KindCall:
		children(n.Target)
		children(n.Items...)
	case ast.KindAssignment:
		children(n.LHS, n.RHS)
	case ast.KindMatch:
		children(n.Scrutinee)
		children(n.Cases...)
	case ast.KindMatchCase:
		children(n.LHS, n.RHS)
	case ast.KindOrPattern:
		children(n.Alternatives...)
	}
}
