// Package capture implements the real-time audio ingestion engine: a
// microphone read loop on a dedicated OS thread, a fixed-capacity retention
// buffer holding the trailing privacy window, energy based voice activity
// framing, read-cadence autotuning and the hand-off streams consumed by the
// diarizer and the external transcription collaborator.
//
// Data flow:
//
//	MicrophoneSource -> CaptureEngine -> RetentionBuffer (snapshot/purge/export)
//	                                  -> ASRFeed (transcription collaborator)
//	                                  -> Frame channel + VAD state channel
//
// The producer loop never blocks on a consumer: frames are dropped oldest
// first when the frame channel is full, and the VAD channel only ever holds
// the most recent state.
package capture
