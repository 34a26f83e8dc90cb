package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndProbeWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.wav")

	samples := make([]int16, SampleRate/2) // half a second of silence
	require.NoError(t, writeWavFile(path, samples))

	info, err := Probe(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(SampleRate), info.SampleRate)
	assert.Equal(t, uint16(Channels), info.NumChannels)
	assert.InDelta(t, 0.5, info.Duration.Seconds(), 0.01)
}

func TestUpdateWavHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.wav")

	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteWavHeader(file, 0))

	data := make([]byte, SampleRate*2) // one second of 16-bit silence
	_, err = file.Write(data)
	require.NoError(t, err)
	require.NoError(t, UpdateWavHeader(file, uint32(len(data))))
	require.NoError(t, file.Close())

	info, err := Probe(path)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, info.Duration.Seconds(), 0.01)
}

func TestProbeRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav file"), 0644))

	_, err := Probe(path)
	assert.Error(t, err)
}
