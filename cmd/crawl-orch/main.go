package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "crawl-orch",
		Short: "Crawler run orchestrator",
		Long: `crawl-orch manages a directory of crawler programs: it launches them
on demand or on a schedule, captures their output to per-run log files,
tracks run history in sqlite, and serves a web UI and JSON API.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
