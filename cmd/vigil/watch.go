package main

import (
	"github.com/spf13/cobra"

	"github.com/voslund/vigil/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the agent's log stream live",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	return tui.New(apiAddr).Run()
}
