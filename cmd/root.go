// Package cmd implements the crawler's command-line interface: a cobra
// root command with persistent --config/--debug flags, godotenv loaded
// early, and subcommands doing their own dependency wiring rather than
// a shared DI container.
package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "crawler",
		Short: "A polite, bilingual breadth-first web crawler",
		Long:  `A breadth-first web crawler that indexes English and German HTML pages while respecting robots.txt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	_ = godotenv.Load()
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; defaults and environment variables are used otherwise)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable verbose, human-readable logging")

	rootCmd.AddCommand(newCrawlCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newVersionCommand())
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("crawler version 0.1.0")
		},
	}
}
