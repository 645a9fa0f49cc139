package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kdimtricp/vingest/internal/config"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "vingest",
	Short: "Video ingestion service",
	Long: `vingest accepts video uploads, transcodes them with ffmpeg, stores the
video and a thumbnail in object storage and keeps metadata in a database.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(serveCmd, sweepCmd, versionCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

func setupLogger(cfg *config.Config) {
	level := cfg.LogLevelValue()
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
