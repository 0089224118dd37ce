package whisper

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fmueller/voxbatch/internal/download"
	"go.uber.org/zap"
)

// Loader turns a model name into a ready-to-use Session, downloading the
// weights on first use when AutoDownload is set.
type Loader struct {
	ModelDir     string
	EnginePath   string
	AutoDownload bool
	NoProgress   bool
	Logger       *zap.Logger

	downloadFn func(ctx context.Context, opts download.Options) error
	engineFn   func(override string, logger *zap.Logger) (Engine, error)
}

// Session is a loaded model bound to an engine. It is safe for concurrent use
// since each call runs its own whisper-cli process.
type Session struct {
	Model  ResolvedModel
	engine Engine
	logger *zap.Logger
}

func (l *Loader) Load(ctx context.Context, modelRef string) (*Session, error) {
	model, err := l.EnsureModel(ctx, modelRef)
	if err != nil {
		return nil, err
	}

	engineFn := l.engineFn
	if engineFn == nil {
		engineFn = func(override string, logger *zap.Logger) (Engine, error) {
			return NewBundledEngine(override, logger)
		}
	}

	engine, err := engineFn(l.EnginePath, l.log())
	if err != nil {
		return nil, err
	}

	return &Session{Model: model, engine: engine, logger: l.log()}, nil
}

// EnsureModel resolves modelRef inside ModelDir and downloads it if missing.
// Concurrent downloads of the same file are collapsed by the download package,
// so a present model never waits on another model's download.
func (l *Loader) EnsureModel(ctx context.Context, modelRef string) (ResolvedModel, error) {
	if err := os.MkdirAll(l.ModelDir, 0o755); err != nil {
		return ResolvedModel{}, fmt.Errorf("create model directory %s: %w", l.ModelDir, err)
	}

	resolved, err := ResolveModel(modelRef, l.ModelDir)
	if err != nil {
		return ResolvedModel{}, err
	}

	if !resolved.NeedsDownload {
		return resolved, nil
	}

	if !l.AutoDownload {
		return ResolvedModel{}, fmt.Errorf("model %q is missing at %s; run `voxbatch setup --model %s` or enable auto-download", resolved.Name, resolved.Path, resolved.Name)
	}

	downloadFn := l.downloadFn
	if downloadFn == nil {
		downloadFn = download.DownloadFile
	}

	l.log().Info("model not found, downloading", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))
	if err := downloadFn(ctx, download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		ExpectedSHA256: resolved.SHA256,
		ChecksumURL:    resolved.SHA256URL,
		NoProgress:     l.NoProgress,
		Description:    "downloading " + resolved.Name,
		Logger:         l.log(),
	}); err != nil {
		return ResolvedModel{}, fmt.Errorf("download model %q: %w", resolved.Name, err)
	}

	resolved.NeedsDownload = false
	return resolved, nil
}

func (l *Loader) log() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// Transcribe runs the bound model on a decoded waveform.
func (s *Session) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	started := time.Now()
	text, err := s.engine.Transcribe(ctx, TranscriptionRequest{
		AudioPath: audioPath,
		ModelPath: s.Model.Path,
		Language:  NormalizeLanguage(language),
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug("transcribed",
		zap.String("audio", audioPath),
		zap.String("model", s.Model.Name),
		zap.Duration("elapsed", time.Since(started)),
	)
	return text, nil
}
