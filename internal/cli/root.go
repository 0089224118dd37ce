package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/fmueller/voxbatch/internal/batch"
	"github.com/fmueller/voxbatch/internal/config"
	"github.com/fmueller/voxbatch/internal/logging"
	"github.com/fmueller/voxbatch/internal/media"
	"github.com/fmueller/voxbatch/internal/platform"
	"github.com/fmueller/voxbatch/internal/version"
	"github.com/fmueller/voxbatch/internal/whisper"
)

type appState struct {
	envFile      string
	addr         string
	verbose      bool
	jsonLogs     bool
	noProgress   bool
	model        string
	modelDir     string
	language     string
	autoDownload bool
	ffmpegPath   string
	whisperPath  string
	tempDir      string
	workers      int
	itemTimeout  time.Duration
	silenceGate  bool
	silenceDBFS  float64

	cfg    *config.Config
	logger *zap.Logger

	loaderFn  func(cfg *config.Config) batch.Loader
	extractor batch.Extractor
}

func NewRootCmd() *cobra.Command {
	app := &appState{
		model:        whisper.DefaultModel,
		language:     whisper.AutoLanguage,
		autoDownload: true,
		silenceGate:  true,
		silenceDBFS:  batch.DefaultSilenceThresholdDBFS,
	}

	cmd := &cobra.Command{
		Use:           "voxbatch",
		Short:         "Batch-transcribe audio and video files with whisper",
		Long:          "voxbatch transcribes batches of audio and video files with a whisper.cpp engine.\nWithout a subcommand it starts the web interface.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Describe(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.prepare(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(commandContext(cmd))
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd.PersistentFlags(), app)
	bindModelFlags(cmd.PersistentFlags(), app)
	bindPipelineFlags(cmd.PersistentFlags(), app)
	bindServeFlags(cmd.Flags(), app)

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newFolderCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newModelsCmd(app))
	cmd.AddCommand(newLanguagesCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(flags *pflag.FlagSet, app *appState) {
	flags.BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	flags.BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	flags.BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
	flags.StringVar(&app.envFile, "env-file", app.envFile, "Path to a .env file (default .env)")
}

func bindModelFlags(flags *pflag.FlagSet, app *appState) {
	flags.StringVar(&app.model, "model", app.model, "Model name (tiny|base|small|medium|large|large-v2|large-v3)")
	flags.StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where models are stored")
	flags.StringVar(&app.language, "language", app.language, "Language code (auto|en|de|...) for transcription")
	flags.BoolVar(&app.autoDownload, "auto-download", app.autoDownload, "Automatically download missing models")
	flags.StringVar(&app.whisperPath, "whisper-path", app.whisperPath, "Path to a whisper-cli binary")
}

func bindPipelineFlags(flags *pflag.FlagSet, app *appState) {
	flags.StringVar(&app.ffmpegPath, "ffmpeg-path", app.ffmpegPath, "Path to the ffmpeg binary")
	flags.StringVar(&app.tempDir, "temp-dir", app.tempDir, "Directory for temporary audio, uploads and reports")
	flags.IntVar(&app.workers, "workers", 1, "Number of items transcribed concurrently")
	flags.DurationVar(&app.itemTimeout, "item-timeout", 0, "Per-item time limit, e.g. 30m; 0 means none")
	flags.BoolVar(&app.silenceGate, "silence-gate", app.silenceGate, "Detect near-silent WAV audio and skip transcription")
	flags.Float64Var(&app.silenceDBFS, "silence-threshold-dbfs", app.silenceDBFS, "Silence gate threshold in dBFS")
}

// prepare resolves configuration (flags > env > .env > defaults) and builds
// the logger.
func (a *appState) prepare(flags *pflag.FlagSet) error {
	overrides := config.Overrides{EnvFile: a.envFile, JSON: a.jsonLogs, Verbose: a.verbose}
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("addr") {
		overrides.HTTPAddr = a.addr
	}
	if changed("model") {
		overrides.Model = a.model
	}
	if changed("model-dir") {
		overrides.ModelDir = a.modelDir
	}
	if changed("language") {
		overrides.Language = a.language
	}
	if changed("whisper-path") {
		overrides.WhisperPath = a.whisperPath
	}
	if changed("ffmpeg-path") {
		overrides.FFmpegPath = a.ffmpegPath
	}
	if changed("temp-dir") {
		overrides.TempDir = a.tempDir
	}
	if changed("workers") {
		overrides.Workers = &a.workers
	}
	if changed("auto-download") {
		overrides.AutoDownload = &a.autoDownload
	}
	if changed("silence-gate") {
		overrides.SilenceGate = &a.silenceGate
	}
	if changed("silence-threshold-dbfs") {
		overrides.SilenceThresholdDBFS = &a.silenceDBFS
	}
	if changed("item-timeout") {
		overrides.ItemTimeout = &a.itemTimeout
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Verbose: cfg.Verbose, JSON: cfg.LogJSON})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *appState) config() *config.Config {
	if a.cfg == nil {
		cfg, err := config.Load(config.Overrides{EnvFile: a.envFile})
		if err != nil {
			a.log().Warn("falling back to default configuration", zap.Error(err))
			cfg = &config.Config{
				DefaultModel:         whisper.DefaultModel,
				DefaultLanguage:      whisper.AutoLanguage,
				AutoDownload:         true,
				FFmpegPath:           "ffmpeg",
				Workers:              1,
				SilenceGate:          true,
				SilenceThresholdDBFS: batch.DefaultSilenceThresholdDBFS,
				MaxUploadMB:          2048,
				ReportMaxAge:         time.Hour,
			}
		}
		a.cfg = cfg
	}
	return a.cfg
}

func (a *appState) newPipeline(onItemDone func(int, batch.Result)) (*batch.Pipeline, error) {
	cfg := a.config()

	tempDir, err := platform.ResolveTempDir(cfg.TempDir)
	if err != nil {
		return nil, err
	}

	loaderFn := a.loaderFn
	if loaderFn == nil {
		loaderFn = a.whisperLoader
	}

	extractor := a.extractor
	if extractor == nil {
		extractor = media.NewFFmpeg(cfg.FFmpegPath, a.log())
	}

	return &batch.Pipeline{
		Loader:               loaderFn(cfg),
		Extractor:            extractor,
		Workers:              cfg.Workers,
		ItemTimeout:          cfg.ItemTimeout,
		SilenceGate:          cfg.SilenceGate,
		SilenceThresholdDBFS: cfg.SilenceThresholdDBFS,
		TempDir:              tempDir,
		Logger:               a.log().Named("batch"),
		OnItemDone:           onItemDone,
	}, nil
}

func (a *appState) whisperLoader(cfg *config.Config) batch.Loader {
	modelDir, err := platform.ResolveModelDir(cfg.ModelDir)
	if err != nil {
		return batch.LoaderFunc(func(context.Context, string) (batch.Recognizer, error) {
			return nil, err
		})
	}

	return batch.WhisperLoader(&whisper.Loader{
		ModelDir:     modelDir,
		EnginePath:   cfg.WhisperPath,
		AutoDownload: cfg.AutoDownload,
		NoProgress:   !a.progressEnabled(),
		Logger:       a.log().Named("whisper"),
	})
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.config().ModelDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
