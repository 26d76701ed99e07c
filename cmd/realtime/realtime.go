// Package realtime implements the command that runs a live capture and
// diarization session until interrupted.
package realtime

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frozo/ambientscribe/internal/capture"
	"github.com/frozo/ambientscribe/internal/conf"
	"github.com/frozo/ambientscribe/internal/logging"
	"github.com/frozo/ambientscribe/internal/observability"
	"github.com/frozo/ambientscribe/internal/session"
)

// Command creates the realtime capture command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Capture and diarize audio in realtime",
		Long:  "Start capturing microphone audio, detecting voice activity and assigning speakers until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRealtime(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Capture.Source, "source", viper.GetString("capture.source"), "Audio capture source (\"default\", device name or ID substring)")
	cmd.Flags().IntVar(&settings.Capture.RetentionSeconds, "retention", viper.GetInt("capture.retentionseconds"), "Retained trailing audio window in seconds")
	cmd.Flags().BoolVar(&settings.Capture.PurgeOnStop, "purgeonstop", viper.GetBool("capture.purgeonstop"), "Purge retained audio automatically when capture stops")
	cmd.Flags().BoolVar(&settings.Capture.Autotune.Enabled, "autotune", viper.GetBool("capture.autotune.enabled"), "Enable capture chunk size autotuning")
	cmd.Flags().StringVar(&settings.Capture.Export.Path, "exportpath", viper.GetString("capture.export.path"), "Directory for WAV exports of the retained window")
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Enable Prometheus telemetry endpoint")
	cmd.Flags().StringVar(&settings.Telemetry.Listen, "listen", viper.GetString("telemetry.listen"), "Listen address and port of telemetry endpoint")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

// runRealtime runs a session until SIGINT or SIGTERM.
func runRealtime(settings *conf.Settings) error {
	logger := logging.ForService("realtime")

	source := capture.NewMalgoSource(capture.MalgoConfig{
		DeviceName: settings.Capture.Source,
		SampleRate: conf.SampleRate,
		Debug:      settings.Debug,
	})

	sess, err := session.New(settings, source)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if settings.Telemetry.Enabled {
		endpoint, err := observability.NewEndpoint(settings, sess.Metrics())
		if err != nil {
			return err
		}
		endpoint.Start(ctx)
		logger.Info("telemetry endpoint enabled", "listen", settings.Telemetry.Listen)
	}

	if err := sess.Start(ctx); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", "signal", sig.String())

	sess.Stop()
	return nil
}
