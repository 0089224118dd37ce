package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/fmueller/voxbatch/internal/audio"
	"go.uber.org/zap"
)

const (
	SampleRate = 16000
	Channels   = 1
	maxStderr  = 2048
)

// CommandLog captures one external command invocation.
type CommandLog struct {
	Command  string        `json:"command"`
	Args     []string      `json:"args"`
	ExitCode int           `json:"exitCode"`
	Stderr   string        `json:"stderr,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// CommandError is returned when ffmpeg exits non-zero or produces no usable
// waveform.
type CommandError struct {
	Log CommandLog
	Err error
}

func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s exited with code %d: %v", e.Log.Command, e.Log.ExitCode, e.Err)
	if tail := lastLine(e.Log.Stderr); tail != "" {
		msg += " (" + tail + ")"
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type runner interface {
	Run(ctx context.Context, name string, args ...string) (CommandLog, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (CommandLog, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	log := CommandLog{
		Command: name,
		Args:    args,
		Stderr:  tail(stderr.String(), maxStderr),
		Elapsed: time.Since(started),
	}
	if err != nil {
		log.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.ExitCode = exitErr.ExitCode()
		}
	}
	return log, err
}

// FFmpeg extracts speech-ready PCM audio from media containers.
type FFmpeg struct {
	Path   string
	Logger *zap.Logger
	run    runner
}

func NewFFmpeg(path string, logger *zap.Logger) *FFmpeg {
	if strings.TrimSpace(path) == "" {
		path = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpeg{Path: path, Logger: logger, run: execRunner{}}
}

// Available reports whether the ffmpeg executable can be found.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.Path)
	return err == nil
}

// Extract decodes src into a mono 16 kHz signed 16-bit little-endian WAV at
// dst. Both a failing exit status and an unusable output file are errors.
func (f *FFmpeg) Extract(ctx context.Context, src, dst string) error {
	if strings.TrimSpace(src) == "" {
		return errors.New("source path is required")
	}
	if strings.TrimSpace(dst) == "" {
		return errors.New("output path is required")
	}

	run := f.run
	if run == nil {
		run = execRunner{}
	}

	args := BuildExtractArgs(src, dst)
	f.log().Debug("running ffmpeg", zap.String("ffmpeg", f.Path), zap.Strings("args", args))

	log, err := run.Run(ctx, f.Path, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("extract audio: %w", ctxErr)
		}
		return &CommandError{Log: log, Err: err}
	}

	format, err := audio.ProbeWAV(dst)
	if err != nil {
		return &CommandError{Log: log, Err: fmt.Errorf("ffmpeg produced no usable output: %w", err)}
	}
	if format.DataSize == 0 {
		return &CommandError{Log: log, Err: audio.ErrEmptyWAV}
	}

	f.log().Debug("audio extracted",
		zap.String("source", src),
		zap.Duration("audio", format.Duration()),
		zap.Duration("elapsed", log.Elapsed),
	)
	return nil
}

func (f *FFmpeg) log() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// BuildExtractArgs returns the ffmpeg arguments for speech-ready PCM output.
func BuildExtractArgs(src, dst string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-y",
		"-i", src,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(SampleRate),
		"-ac", fmt.Sprint(Channels),
		dst,
	}
}

func tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
