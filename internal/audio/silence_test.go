package audio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsSilentWAVDetectsDigitalSilence(t *testing.T) {
	t.Parallel()

	path := writeTestWAV(t, "silent.wav", makePCM16WAV(make([]int16, 16000), 16000, 1))

	silent, level, err := IsSilentWAV(path, -65)
	require.NoError(t, err)
	require.True(t, silent)
	require.True(t, level.Silent())
	require.EqualValues(t, 16000, level.Samples)
}

func TestIsSilentWAVKeepsTone(t *testing.T) {
	t.Parallel()

	path := writeTestWAV(t, "tone.wav", makePCM16WAV(sine(16000, 0.25), 16000, 1))

	silent, level, err := IsSilentWAV(path, -65)
	require.NoError(t, err)
	require.False(t, silent)
	require.InDelta(t, -15, level.RMSdBFS, 1)
	require.InDelta(t, -12, level.PeakdBFS, 1)
}

func TestIsSilentWAVRejectsNonWAV(t *testing.T) {
	t.Parallel()

	path := writeTestWAV(t, "not-wav.wav", []byte("hello"))

	_, _, err := IsSilentWAV(path, -65)
	require.ErrorIs(t, err, ErrInvalidWAV)
}

func TestMeasureWAVEmptyDataChunk(t *testing.T) {
	t.Parallel()

	path := writeTestWAV(t, "empty.wav", makePCM16WAV(nil, 16000, 1))

	level, err := MeasureWAV(path)
	require.NoError(t, err)
	require.True(t, level.Silent())
	require.Zero(t, level.Samples)
}

func TestMeasureWAVFloat32(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 4*100)
	for i := 0; i < 100; i++ {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(0.5))
	}
	path := writeTestWAV(t, "float.wav", buildWAV(formatFloat, 1, 16000, 32, payload))

	level, err := MeasureWAV(path)
	require.NoError(t, err)
	require.InDelta(t, -6.02, level.RMSdBFS, 0.01)
	require.InDelta(t, -6.02, level.PeakdBFS, 0.01)
}

func TestMeasureWAVSigned24Bit(t *testing.T) {
	t.Parallel()

	// -2^22 is half scale negative.
	payload := []byte{0x00, 0x00, 0xC0}
	path := writeTestWAV(t, "pcm24.wav", buildWAV(formatPCM, 1, 16000, 24, payload))

	level, err := MeasureWAV(path)
	require.NoError(t, err)
	require.EqualValues(t, 1, level.Samples)
	require.InDelta(t, -6.02, level.PeakdBFS, 0.01)
}

func TestMeasureWAVUnsupportedFormat(t *testing.T) {
	t.Parallel()

	path := writeTestWAV(t, "alaw.wav", buildWAV(6, 1, 8000, 8, []byte{1, 2, 3}))

	_, err := MeasureWAV(path)
	require.ErrorIs(t, err, ErrUnsupportedWAV)
}

func TestGateQuiet(t *testing.T) {
	t.Parallel()

	gate := Gate{ThresholdDBFS: -65, PeakHeadroomDB: DefaultPeakHeadroomDB}

	tests := []struct {
		name  string
		level Level
		want  bool
	}{
		{name: "no samples", level: Level{}, want: true},
		{name: "hiss", level: Level{RMSdBFS: -80, PeakdBFS: -70, Samples: 10}, want: true},
		{name: "click within headroom", level: Level{RMSdBFS: -70, PeakdBFS: -60, Samples: 10}, want: true},
		{name: "click over headroom", level: Level{RMSdBFS: -70, PeakdBFS: -50, Samples: 10}, want: false},
		{name: "speech", level: Level{RMSdBFS: -20, PeakdBFS: -6, Samples: 10}, want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, gate.Quiet(tc.level))
		})
	}
}

func writeTestWAV(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func sine(n int, amplitude float64) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return samples
}

func makePCM16WAV(samples []int16, sampleRate, channels int) []byte {
	payload := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(payload[i*2:], uint16(s))
	}
	return buildWAV(formatPCM, uint16(channels), uint32(sampleRate), 16, payload)
}

func buildWAV(audioFormat, channels uint16, sampleRate uint32, bits uint16, payload []byte) []byte {
	blockAlign := channels * bits / 8

	out := make([]byte, 0, 44+len(payload))
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(36+len(payload)))
	out = append(out, "WAVEfmt "...)
	out = binary.LittleEndian.AppendUint32(out, 16)
	out = binary.LittleEndian.AppendUint16(out, audioFormat)
	out = binary.LittleEndian.AppendUint16(out, channels)
	out = binary.LittleEndian.AppendUint32(out, sampleRate)
	out = binary.LittleEndian.AppendUint32(out, sampleRate*uint32(blockAlign))
	out = binary.LittleEndian.AppendUint16(out, blockAlign)
	out = binary.LittleEndian.AppendUint16(out, bits)
	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(payload)))
	return append(out, payload...)
}
