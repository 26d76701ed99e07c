package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/frozo/ambientscribe/cmd"
	"github.com/frozo/ambientscribe/internal/conf"
	"github.com/frozo/ambientscribe/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init()
	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	if settings.Main.Log.Enabled {
		if _, closeLog, err := logging.NewFileLogger(settings.Main.Log.Path, "main", slog.LevelInfo); err != nil {
			fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		} else {
			defer closeLog() //nolint:errcheck
		}
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command error: %v\n", err)
		os.Exit(1)
	}
}
