package capture

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAVHeader(t *testing.T) {
	t.Parallel()

	pcm := pcmBytes(constantSamples(160, 1000))
	out, err := EncodeWAV(pcm, 16000)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(out), 44+len(pcm))

	// Canonical RIFF/WAVE layout for PCM mono 16-bit.
	assert.Equal(t, "RIFF", string(out[0:4]))
	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(out[4:8]))
	assert.Equal(t, "WAVE", string(out[8:12]))
	assert.Equal(t, "fmt ", string(out[12:16]))
	assert.Equal(t, uint32(16), binary.LittleEndian.Uint32(out[16:20]), "fmt chunk size")
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(out[20:22]), "PCM format tag")
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(out[22:24]), "mono")
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(out[24:28]), "sample rate")
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(out[28:32]), "byte rate")
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(out[32:34]), "block align")
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(out[34:36]), "bits per sample")
	assert.Equal(t, "data", string(out[36:40]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(out[40:44]), "data size")

	assert.Equal(t, pcm, out[44:44+len(pcm)], "sample payload preserved")
}

func TestEncodeWAVEmptyPayload(t *testing.T) {
	t.Parallel()

	out, err := EncodeWAV(nil, 16000)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(out[40:44]))
}

func TestSavePCMDataToWAV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "exports", "session.wav")
	pcm := pcmBytes(constantSamples(320, 2000))

	require.NoError(t, SavePCMDataToWAV(path, pcm, 16000))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, pcm, data[44:])
}
