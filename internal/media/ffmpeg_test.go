package media

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fmueller/voxbatch/internal/audio"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (CommandLog, error)
}

func (f fakeRunner) Run(ctx context.Context, name string, args ...string) (CommandLog, error) {
	return f.run(ctx, name, args...)
}

func TestExtractWritesSpeechWAV(t *testing.T) {
	t.Parallel()

	dst := filepath.Join(t.TempDir(), "out.wav")
	var gotArgs []string
	ff := NewFFmpeg("ffmpeg-custom", nil)
	ff.run = fakeRunner{run: func(_ context.Context, name string, args ...string) (CommandLog, error) {
		require.Equal(t, "ffmpeg-custom", name)
		gotArgs = args
		require.NoError(t, os.WriteFile(args[len(args)-1], makePCM16WAV(make([]int16, 1600)), 0o644))
		return CommandLog{Command: name, Args: args}, nil
	}}

	require.NoError(t, ff.Extract(context.Background(), "clip.mp4", dst))
	require.Equal(t, BuildExtractArgs("clip.mp4", dst), gotArgs)
	require.Contains(t, gotArgs, "pcm_s16le")
	require.Contains(t, gotArgs, "16000")

	format, err := audio.ProbeWAV(dst)
	require.NoError(t, err)
	require.True(t, format.IsSpeechPCM())
}

func TestExtractSurfacesNonZeroExit(t *testing.T) {
	t.Parallel()

	ff := NewFFmpeg("ffmpeg", nil)
	ff.run = fakeRunner{run: func(_ context.Context, name string, args ...string) (CommandLog, error) {
		return CommandLog{Command: name, Args: args, ExitCode: 1, Stderr: "header\nclip.mp4: Invalid data found when processing input"}, errors.New("exit status 1")
	}}

	err := ff.Extract(context.Background(), "clip.mp4", filepath.Join(t.TempDir(), "out.wav"))
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, 1, cmdErr.Log.ExitCode)
	require.Contains(t, err.Error(), "Invalid data found when processing input")
	require.NotContains(t, err.Error(), "header")
}

func TestExtractRejectsMissingOutput(t *testing.T) {
	t.Parallel()

	ff := NewFFmpeg("ffmpeg", nil)
	ff.run = fakeRunner{run: func(_ context.Context, name string, args ...string) (CommandLog, error) {
		return CommandLog{Command: name, Args: args}, nil
	}}

	err := ff.Extract(context.Background(), "clip.mp4", filepath.Join(t.TempDir(), "never-written.wav"))
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Contains(t, err.Error(), "no usable output")
}

func TestExtractRejectsEmptyWaveform(t *testing.T) {
	t.Parallel()

	ff := NewFFmpeg("ffmpeg", nil)
	ff.run = fakeRunner{run: func(_ context.Context, name string, args ...string) (CommandLog, error) {
		require.NoError(t, os.WriteFile(args[len(args)-1], makePCM16WAV(nil), 0o644))
		return CommandLog{Command: name, Args: args}, nil
	}}

	err := ff.Extract(context.Background(), "clip.mp4", filepath.Join(t.TempDir(), "out.wav"))
	require.ErrorIs(t, err, audio.ErrEmptyWAV)
}

func TestExtractReturnsContextError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ff := NewFFmpeg("ffmpeg", nil)
	ff.run = fakeRunner{run: func(ctx context.Context, name string, args ...string) (CommandLog, error) {
		return CommandLog{Command: name, ExitCode: -1}, ctx.Err()
	}}

	err := ff.Extract(ctx, "clip.mp4", filepath.Join(t.TempDir(), "out.wav"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtractWithStubExecutable(t *testing.T) {
	tempDir := t.TempDir()
	fixture := filepath.Join(tempDir, "fixture.wav")
	require.NoError(t, os.WriteFile(fixture, makePCM16WAV(make([]int16, 3200)), 0o644))

	stub := "#!/bin/sh\nset -eu\nfor last; do :; done\ncp \"$FIXTURE_WAV\" \"$last\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "ffmpeg"), []byte(stub), 0o755))
	t.Setenv("PATH", tempDir+":"+os.Getenv("PATH"))
	t.Setenv("FIXTURE_WAV", fixture)

	ff := NewFFmpeg("", nil)
	require.True(t, ff.Available())

	dst := filepath.Join(t.TempDir(), "out.wav")
	require.NoError(t, ff.Extract(context.Background(), "movie.MKV", dst))

	format, err := audio.ProbeWAV(dst)
	require.NoError(t, err)
	require.EqualValues(t, 6400, format.DataSize)
}

func TestExtractWithFailingStubExecutable(t *testing.T) {
	tempDir := t.TempDir()
	stub := "#!/bin/sh\necho 'moov atom not found' >&2\nexit 183\n"
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "ffmpeg"), []byte(stub), 0o755))
	t.Setenv("PATH", tempDir+":"+os.Getenv("PATH"))

	err := NewFFmpeg("", nil).Extract(context.Background(), "broken.mp4", filepath.Join(t.TempDir(), "out.wav"))

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, 183, cmdErr.Log.ExitCode)
	require.Contains(t, err.Error(), "moov atom not found")
}

func makePCM16WAV(samples []int16) []byte {
	dataSize := len(samples) * 2
	out := make([]byte, 44+dataSize)

	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+dataSize))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], Channels)
	binary.LittleEndian.PutUint32(out[24:], SampleRate)
	binary.LittleEndian.PutUint32(out[28:], SampleRate*2)
	binary.LittleEndian.PutUint16(out[32:], 2)
	binary.LittleEndian.PutUint16(out[34:], 16)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[44+i*2:], uint16(s))
	}
	return out
}
