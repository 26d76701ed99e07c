package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Capture.RetentionSeconds = 60
	s.Capture.ChunkBytes = DefaultChunkBytes
	s.VAD.FrameDurationMs = 30
	s.VAD.Threshold = 0.015
	s.Quality.GoodThreshold = 0.18
	s.Quality.ModerateThreshold = 0.30
	s.Quality.MinSamples = 20
	return s
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validSettings().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero retention", func(s *Settings) { s.Capture.RetentionSeconds = 0 }},
		{"odd chunk size", func(s *Settings) { s.Capture.ChunkBytes = 2047 }},
		{"zero chunk size", func(s *Settings) { s.Capture.ChunkBytes = 0 }},
		{"zero frame duration", func(s *Settings) { s.VAD.FrameDurationMs = 0 }},
		{"threshold above one", func(s *Settings) { s.VAD.Threshold = 1.5 }},
		{"inverted quality bands", func(s *Settings) { s.Quality.ModerateThreshold = 0.1 }},
		{"zero min samples", func(s *Settings) { s.Quality.MinSamples = 0 }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := validSettings()
			tc.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestSaveAsRoundTrip(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Main.Name = "clinic-room-2"
	s.Diarization.RoleALabel = "Doctor"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, s.SaveAs(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Settings
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	assert.Equal(t, "clinic-room-2", loaded.Main.Name)
	assert.Equal(t, "Doctor", loaded.Diarization.RoleALabel)
	assert.Equal(t, DefaultChunkBytes, loaded.Capture.ChunkBytes)
}
