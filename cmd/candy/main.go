package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"candy/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "candy",
	Short: "Candy language compiler and runtime",
	Long:  "Candy compiles and runs Candy source through rcst -> cst -> ast -> hir -> mir -> lir and an embedded fiber VM.",
}

var (
	timeoutCancel context.CancelFunc
	timeoutDur    time.Duration
)

func main() {
	rootCmd.Version = version.Version
	rootCmd.PersistentPreRunE = applyTimeout
	rootCmd.PersistentPostRun = func(*cobra.Command, []string) {
		if timeoutCancel != nil {
			timeoutCancel()
			timeoutCancel = nil
		}
	}

	rootCmd.AddCommand(tokenizeCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize diagnostics (auto|on|off)")
	rootCmd.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to collect per module")
	rootCmd.PersistentFlags().Int("inline-threshold", 8, "MIR optimizer inlining threshold")
	rootCmd.PersistentFlags().Int("timeout", 30, "command timeout in seconds")
	rootCmd.PersistentFlags().String("trace-calls", "off", "call tracing level (off|current|all|panics)")
	rootCmd.PersistentFlags().String("trace-values", "off", "evaluated-expression tracing level (off|current|all)")
	rootCmd.PersistentFlags().String("trace-fuzzables", "off", "fuzzable-function registration tracing level (off|current|all)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func applyTimeout(cmd *cobra.Command, _ []string) error {
	secs, err := cmd.Root().PersistentFlags().GetInt("timeout")
	if err != nil {
		return fmt.Errorf("reading timeout flag: %w", err)
	}
	if secs <= 0 {
		return fmt.Errorf("timeout must be greater than zero")
	}
	timeoutDur = time.Duration(secs) * time.Second
	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutDur)
	timeoutCancel = cancel
	cmd.SetContext(ctx)
	cmd.Root().SetContext(ctx)
	return nil
}

func useColor(cmd *cobra.Command, out *os.File) bool {
	mode, _ := cmd.Root().PersistentFlags().GetString("color")
	switch mode {
	case "on":
		return true
	case "off":
		return false
	default:
		return term.IsTerminal(int(out.Fd()))
	}
}
