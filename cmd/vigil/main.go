package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voslund/vigil/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Vigil - autonomous agent daemon",
	Long:  `Vigil runs an autonomous agent that pursues a long-running goal through periodic action and reflection cycles, keeping its working memory and a full interaction log on disk.`,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://"+config.DefaultListen, "Daemon API address")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
