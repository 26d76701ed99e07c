package capture

import (
	"io"
)

// SourceFormat describes the sample format a microphone source delivers.
type SourceFormat struct {
	SampleRate     int // sample rate in Hz
	Channels       int // 1 for mono
	BitDepth       int // bits per sample
	BytesPerSample int
}

// MicrophoneSource is the capability interface for platform audio capture.
// Implementations must deliver S16LE audio at the canonical rate; a source
// that cannot is expected to resample upstream before handing data over.
//
// Read blocks until at least one byte of audio is available, the source is
// stopped, or an error occurs. A stopped source returns io.EOF. The capture
// loop is the only Read caller.
type MicrophoneSource interface {
	// Start opens the underlying device and begins capture.
	Start() error

	// Stop halts capture and releases the device. Stop must be idempotent.
	Stop() error

	// Read fills buf with captured audio and returns the byte count.
	Read(buf []byte) (int, error)

	// Format reports the achieved sample format.
	Format() SourceFormat
}

// errStopped is what well behaved sources return from Read once stopped.
var errStopped = io.EOF
