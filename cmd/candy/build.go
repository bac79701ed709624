package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dumpLIR bool

func init() {
	buildCmd.Flags().BoolVar(&dumpLIR, "dump-lir", false, "print the compiled LIR's rich-IR text form")
}

var buildCmd = &cobra.Command{
	Use:   "build <file.candy>",
	Short: "Compile a module through the full pipeline to LIR",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prog, err := buildProgram(cmd, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "compiled %s: %d instructions, %d constant-heap objects\n",
			prog.EntryModule, len(prog.LIR.Instructions), prog.LIR.ConstantHeap.Len())
		if dumpLIR {
			return prog.LIR.DumpRich(cmd.OutOrStdout())
		}
		return nil
	},
}
