// conf/consts.go hard coded constants
package conf

const (
	SampleRate  = 16000 // Sample rate of the audio fed to the capture pipeline
	BitDepth    = 16    // Bit depth of captured audio
	NumChannels = 1     // Number of channels of captured audio

	// BytesPerSample is derived from BitDepth, kept as a named constant
	// because buffer math uses it everywhere.
	BytesPerSample = BitDepth / 8

	// RetentionSeconds is the default length of the trailing privacy
	// window kept in memory for export or purge.
	RetentionSeconds = 60

	// DefaultChunkBytes is the initial read size of the capture loop,
	// 2048 bytes is 64 ms of 16 kHz mono S16LE audio.
	DefaultChunkBytes = 2048
)
