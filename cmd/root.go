package cmd

import (
	"github.com/spf13/cobra"

	"github.com/frozo/ambientscribe/cmd/devices"
	"github.com/frozo/ambientscribe/cmd/realtime"
	"github.com/frozo/ambientscribe/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ambientscribe",
		Short: "Ambient clinical scribe capture core",
		Long:  "Real-time audio capture, voice activity detection and two-speaker diarization for ambient clinical documentation.",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		realtime.Command(settings),
		devices.Command(),
	)

	return rootCmd
}

// setupFlags configures global flags available to all commands.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
}
