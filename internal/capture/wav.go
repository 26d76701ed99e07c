// wav.go wraps retained PCM audio in a canonical uncompressed WAV container.
package capture

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/frozo/ambientscribe/internal/conf"
	"github.com/frozo/ambientscribe/internal/errors"
)

// seekableBuffer is an in-memory buffer with Seek support so the WAV
// encoder, which backpatches the header sizes, can write into memory.
type seekableBuffer struct {
	buf []byte
	pos int
}

func (b *seekableBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.buf) {
		grown := make([]byte, need)
		copy(grown, b.buf)
		b.buf = grown
	}
	n := copy(b.buf[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = b.pos + int(offset)
	case io.SeekEnd:
		next = len(b.buf) + int(offset)
	default:
		return 0, errors.Newf("invalid whence: %d", whence).
			Category(errors.CategoryValidation).
			Build()
	}
	if next < 0 {
		return 0, errors.Newf("negative seek position: %d", next).
			Category(errors.CategoryValidation).
			Build()
	}
	b.pos = next
	return int64(next), nil
}

// EncodeWAV wraps PCM data in a mono 16-bit WAV container at the given
// sample rate and returns the container bytes, 44-byte header included.
func EncodeWAV(pcmData []byte, sampleRate int) ([]byte, error) {
	out := &seekableBuffer{}
	enc := wav.NewEncoder(out, sampleRate, conf.BitDepth, conf.NumChannels, 1)

	if err := enc.Write(&audio.IntBuffer{
		Data:   byteSliceToInts(pcmData),
		Format: &audio.Format{SampleRate: sampleRate, NumChannels: conf.NumChannels},
	}); err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryExport).
			Context("operation", "wav_encode").
			Build()
	}

	if err := enc.Close(); err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryExport).
			Context("operation", "wav_finalize").
			Build()
	}

	return out.buf, nil
}

// SavePCMDataToWAV saves the given PCM data as a WAV file at filePath.
func SavePCMDataToWAV(filePath string, pcmData []byte, sampleRate int) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryFileIO).
			Context("path", filePath).
			Build()
	}

	data, err := EncodeWAV(pcmData, sampleRate)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryFileIO).
			Context("path", filePath).
			Build()
	}
	return nil
}

// byteSliceToInts converts S16LE bytes to integer samples.
func byteSliceToInts(pcmData []byte) []int {
	samples := make([]int, 0, len(pcmData)/2)
	buf := bytes.NewBuffer(pcmData)

	for {
		var sample int16
		if err := binary.Read(buf, binary.LittleEndian, &sample); err != nil {
			break
		}
		samples = append(samples, int(sample))
	}
	return samples
}
