// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "AmbientScribe")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "ambientscribe.log")

	viper.SetDefault("capture.source", "default")
	viper.SetDefault("capture.retentionseconds", RetentionSeconds)
	viper.SetDefault("capture.chunkbytes", DefaultChunkBytes)
	viper.SetDefault("capture.purgeonstop", true)
	viper.SetDefault("capture.autotune.enabled", true)
	viper.SetDefault("capture.autotune.maxadjustments", 5)
	viper.SetDefault("capture.export.debug", false)
	viper.SetDefault("capture.export.path", "exports/")

	viper.SetDefault("vad.framedurationms", 30)
	viper.SetDefault("vad.threshold", 0.015)

	viper.SetDefault("diarization.minutterancems", 300)
	viper.SetDefault("diarization.switchhysteresisms", 750)
	viper.SetDefault("diarization.silencethresholdms", 500)
	viper.SetDefault("diarization.energyratio", 1.4)
	viper.SetDefault("diarization.rolealabel", "Doctor")
	viper.SetDefault("diarization.roleblabel", "Patient")

	viper.SetDefault("quality.windowms", 500)
	viper.SetDefault("quality.historysize", 100)
	viper.SetDefault("quality.minsamples", 20)
	viper.SetDefault("quality.goodthreshold", 0.18)
	viper.SetDefault("quality.moderatethreshold", 0.30)
	viper.SetDefault("quality.swapaccuracymin", 0.95)
	viper.SetDefault("quality.fallbacksamples", 50)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "localhost:8090")
}
