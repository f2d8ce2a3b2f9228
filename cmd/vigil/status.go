package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/voslund/vigil/internal/memory"
	"github.com/voslund/vigil/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := tui.NewClient(apiAddr)

	info, err := client.AgentInfo()
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", apiAddr, err)
	}

	memoryMD, err := client.Memory()
	if err != nil {
		return fmt.Errorf("fetch memory: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Agent:\t%s\n", info.Name)
	fmt.Fprintf(w, "Goal:\t%s\n", info.Goal)
	fmt.Fprintf(w, "Model:\t%s\n", info.Model)
	fmt.Fprintf(w, "Started:\t%s (%s ago)\n",
		info.StartTime.Local().Format(time.RFC1123),
		time.Since(info.StartTime).Round(time.Second))
	fmt.Fprintf(w, "Memory:\t~%d tokens\n", memory.EstimateTokens(memoryMD))
	w.Flush()

	if last, err := client.LatestInteraction(); err == nil && last != nil {
		fmt.Printf("\nLast interaction: %s\n", last.Response.Timestamp.Local().Format(time.RFC1123))
	}

	return nil
}
