package main

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"candy/internal/fiber"
	"candy/internal/replui"
	"candy/internal/vm"
	"candy/runtime"
)

var replCmd = &cobra.Command{
	Use:   "repl <file.candy>",
	Short: "Run a module with a live fiber-status view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prog, err := buildProgram(cmd, args[0])
		if err != nil {
			return err
		}
		ins := runtime.New(prog)

		steps := make(chan fiber.Step, 256)
		result := make(chan vm.Status, 1)
		ins.Scheduler.WithProgress(fiber.ChannelSink{Ch: steps})

		go func() {
			result <- ins.Run(instructionBudget)
			close(steps)
		}()

		model := replui.New(args[0], steps, result)
		program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
		finalModel, uiErr := program.Run()
		if uiErr != nil {
			return uiErr
		}
		status, ok := finalModel.(*replui.Model).Result()
		if !ok {
			return nil
		}
		return reportResult(cmd, ins, status)
	},
}
