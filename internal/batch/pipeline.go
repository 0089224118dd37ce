package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmueller/voxbatch/internal/audio"
	"github.com/fmueller/voxbatch/internal/media"
	"github.com/fmueller/voxbatch/internal/metrics"
	"github.com/fmueller/voxbatch/internal/whisper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultSilenceThresholdDBFS = -65.0

// Recognizer turns a decoded waveform into text.
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// Loader prepares a Recognizer for one model. It is called once per batch.
type Loader interface {
	Load(ctx context.Context, model string) (Recognizer, error)
}

type LoaderFunc func(ctx context.Context, model string) (Recognizer, error)

func (f LoaderFunc) Load(ctx context.Context, model string) (Recognizer, error) {
	return f(ctx, model)
}

// WhisperLoader adapts a whisper.Loader to the batch Loader interface.
func WhisperLoader(l *whisper.Loader) Loader {
	return LoaderFunc(func(ctx context.Context, model string) (Recognizer, error) {
		session, err := l.Load(ctx, model)
		if err != nil {
			return nil, err
		}
		return session, nil
	})
}

// Extractor writes a mono 16 kHz PCM WAV of src's audio track to dst.
type Extractor interface {
	Extract(ctx context.Context, src, dst string) error
}

// Pipeline processes batches. A zero Pipeline with a Loader set is usable:
// it runs items sequentially, extracts with ffmpeg from PATH and keeps
// temporary waveforms in the system temp dir.
type Pipeline struct {
	Loader    Loader
	Extractor Extractor

	// Workers > 1 processes that many items concurrently. Report order is
	// unaffected.
	Workers     int
	ItemTimeout time.Duration

	SilenceGate          bool
	SilenceThresholdDBFS float64

	TempDir string
	Logger  *zap.Logger

	// OnItemDone is called after each item's result is recorded. With
	// Workers > 1 it may be called concurrently.
	OnItemDone func(index int, result Result)
}

// Run transcribes items in order and returns one result per item. Item
// failures are recorded in the report; the returned error is only set when
// there was nothing to process.
func (p *Pipeline) Run(ctx context.Context, items []Item, model, language string) (Report, error) {
	if len(items) == 0 {
		return Report{}, ErrNoFiles
	}
	if p.Loader == nil {
		return Report{}, errors.New("batch pipeline has no model loader")
	}

	report := Report{
		Model:    model,
		Language: language,
		Results:  make([]Result, len(items)),
		Started:  time.Now(),
	}
	logger := p.log().With(zap.String("model", model), zap.String("language", language))
	logger.Info("batch started", zap.Int("items", len(items)))

	recognizer, err := p.Loader.Load(ctx, model)
	if err != nil {
		logger.Error("model load failed", zap.Error(err))
		for i, item := range items {
			report.Results[i] = Result{
				Name: item.Name,
				Path: item.Path,
				Kind: media.Classify(item.Path),
				Err:  newItemError(StageLoad, item.Name, err),
			}
			p.observe(report.Results[i])
			p.itemDone(i, report.Results[i])
		}
		return p.finish(logger, report), nil
	}

	if p.Workers <= 1 {
		for i, item := range items {
			report.Results[i] = p.ProcessOne(ctx, recognizer, item, language)
			p.itemDone(i, report.Results[i])
		}
		return p.finish(logger, report), nil
	}

	var g errgroup.Group
	g.SetLimit(p.Workers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			report.Results[i] = p.ProcessOne(ctx, recognizer, item, language)
			p.itemDone(i, report.Results[i])
			return nil
		})
	}
	_ = g.Wait()

	return p.finish(logger, report), nil
}

// RunFolder scans dir (non-recursively) and runs the media files found.
func (p *Pipeline) RunFolder(ctx context.Context, dir, model, language string) (Report, error) {
	items, err := ScanFolder(dir)
	if err != nil {
		return Report{}, err
	}
	return p.Run(ctx, items, model, language)
}

// ProcessOne extracts (for video), transcribes and cleans up a single item.
// It never panics and never returns without a result.
func (p *Pipeline) ProcessOne(ctx context.Context, recognizer Recognizer, item Item, language string) (result Result) {
	started := time.Now()
	kind := media.Classify(item.Path)
	result = Result{Name: item.Name, Path: item.Path, Kind: kind}
	logger := p.log().With(zap.String("item", item.Name))

	stage := StageTranscribe
	defer func() {
		if r := recover(); r != nil {
			logger.Error("item panicked", zap.Any("panic", r), zap.String("stage", string(stage)))
			result.Text = ""
			result.Err = newItemError(stage, item.Name, fmt.Errorf("panic: %v", r))
		}
		result.Elapsed = time.Since(started)
		p.observe(result)
		if result.Err != nil {
			logger.Warn("item failed", zap.Error(result.Err), zap.Duration("elapsed", result.Elapsed))
		} else {
			logger.Debug("item done", zap.Duration("elapsed", result.Elapsed))
		}
	}()

	if p.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.ItemTimeout)
		defer cancel()
	}

	audioPath := item.Path
	switch {
	case kind == media.KindVideo:
		stage = StageExtract
		wavPath, release, err := p.acquireWAV()
		if err != nil {
			result.Err = newItemError(StageExtract, item.Name, err)
			return result
		}
		defer release()

		extractStarted := time.Now()
		if err := p.extractor().Extract(ctx, item.Path, wavPath); err != nil {
			result.Err = newItemError(StageExtract, item.Name, err)
			return result
		}
		metrics.ExtractDuration.Observe(time.Since(extractStarted).Seconds())
		audioPath = wavPath
	case media.NeedsDecode(item.Path):
		// Decoding is part of recognition; failures count as transcription.
		wavPath, release, err := p.acquireWAV()
		if err != nil {
			result.Err = newItemError(StageTranscribe, item.Name, err)
			return result
		}
		defer release()

		if err := p.extractor().Extract(ctx, item.Path, wavPath); err != nil {
			result.Err = newItemError(StageTranscribe, item.Name, fmt.Errorf("decode audio: %w", err))
			return result
		}
		logger.Debug("decoded audio for engine", zap.String("wav", wavPath))
		audioPath = wavPath
	}

	stage = StageTranscribe
	if p.SilenceGate && strings.EqualFold(filepath.Ext(audioPath), ".wav") {
		silent, level, err := audio.IsSilentWAV(audioPath, p.threshold())
		switch {
		case err != nil:
			logger.Debug("silence check skipped", zap.Error(err))
		case silent:
			logger.Info("silent audio, skipping engine",
				zap.Float64("rms_dbfs", level.RMSdBFS),
				zap.Float64("peak_dbfs", level.PeakdBFS),
			)
			result.Text = BlankAudioToken
			return result
		}
	}

	text, err := recognizer.Transcribe(ctx, audioPath, language)
	if err != nil {
		result.Err = newItemError(StageTranscribe, item.Name, err)
		return result
	}
	result.Text = text
	return result
}

// acquireWAV reserves a collision-free temp path. release removes it and is
// safe to call when the file is already gone.
func (p *Pipeline) acquireWAV() (string, func(), error) {
	f, err := os.CreateTemp(p.TempDir, "voxbatch-audio-*.wav")
	if err != nil {
		return "", nil, fmt.Errorf("create temp waveform: %w", err)
	}
	path := f.Name()

	release := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.log().Warn("failed to remove temp waveform", zap.String("path", path), zap.Error(err))
		}
	}

	if err := f.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("close temp waveform: %w", err)
	}
	return path, release, nil
}

func (p *Pipeline) finish(logger *zap.Logger, report Report) Report {
	report.Elapsed = time.Since(report.Started)
	metrics.BatchDuration.Observe(report.Elapsed.Seconds())
	logger.Info("batch finished",
		zap.Int("total", len(report.Results)),
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", report.Failed()),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report
}

func (p *Pipeline) observe(result Result) {
	if result.Err != nil {
		metrics.ItemsTotal.WithLabelValues("failure").Inc()
		stage := "unknown"
		var itemErr *ItemError
		if errors.As(result.Err, &itemErr) {
			stage = string(itemErr.Stage)
		}
		metrics.ItemFailuresTotal.WithLabelValues(stage).Inc()
	} else {
		metrics.ItemsTotal.WithLabelValues("success").Inc()
	}
	metrics.ItemDuration.WithLabelValues(result.Kind.String()).Observe(result.Elapsed.Seconds())
}

func (p *Pipeline) itemDone(index int, result Result) {
	if p.OnItemDone != nil {
		p.OnItemDone(index, result)
	}
}

func (p *Pipeline) extractor() Extractor {
	if p.Extractor == nil {
		return media.NewFFmpeg("", p.log())
	}
	return p.Extractor
}

func (p *Pipeline) threshold() float64 {
	if p.SilenceThresholdDBFS == 0 {
		return DefaultSilenceThresholdDBFS
	}
	return p.SilenceThresholdDBFS
}

func (p *Pipeline) log() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
