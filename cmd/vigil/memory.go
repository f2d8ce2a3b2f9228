package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voslund/vigil/internal/tui"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Print the agent's memory document",
	RunE:  runMemory,
}

func runMemory(cmd *cobra.Command, args []string) error {
	client := tui.NewClient(apiAddr)

	memoryMD, err := client.Memory()
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", apiAddr, err)
	}

	fmt.Println(memoryMD)
	return nil
}
