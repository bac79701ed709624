package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"candy/internal/version"
)

var (
	versionShowHash bool
	versionColor    = color.New(color.FgMagenta, color.Bold)
)

func init() {
	versionCmd.Flags().BoolVar(&versionShowHash, "hash", false, "include git commit hash")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show candy build fingerprint",
	RunE: func(cmd *cobra.Command, _ []string) error {
		v := strings.TrimSpace(version.Version)
		if v == "" {
			v = "dev"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "candy %s\n", versionColor.Sprint(v))
		if versionShowHash {
			commit := strings.TrimSpace(version.GitCommit)
			if commit == "" {
				commit = "unknown"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", commit)
		}
		return nil
	},
}
