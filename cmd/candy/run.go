package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"candy/internal/tracer"
	"candy/internal/vm"
	"candy/runtime"
)

const instructionBudget = 10_000

var runCmd = &cobra.Command{
	Use:   "run <file.candy>",
	Short: "Build a module and execute its exported Main",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prog, err := buildProgram(cmd, args[0])
		if err != nil {
			return err
		}
		ins := runtime.New(prog)
		status := ins.Run(instructionBudget)
		return reportResult(cmd, ins, status)
	},
}

// reportResult renders run's terminal Status (spec.md section 7: "on
// Panic in the root fiber, the embedder prints the reason, the
// responsible HIR ID, and a stack trace").
func reportResult(cmd *cobra.Command, ins *runtime.Instance, status vm.Status) error {
	out := cmd.OutOrStdout()
	switch status {
	case vm.StatusDone:
		_, value, _, _ := ins.Result()
		root := ins.Scheduler.Fiber(ins.Scheduler.Root())
		fmt.Fprintf(out, "=> %s\n", tracer.Describe(root.Heap, value))
		return nil
	case vm.StatusPanicked:
		_, _, reason, responsible := ins.Result()
		root := ins.Scheduler.Fiber(ins.Scheduler.Root())
		fmt.Fprint(cmd.ErrOrStderr(), tracer.FormatPanic(root.Heap, reason, responsible, ins.Tracer.Stack()))
		return fmt.Errorf("run: module panicked")
	default:
		fmt.Fprintf(out, "run ended in status %s\n", status)
		return nil
	}
}
