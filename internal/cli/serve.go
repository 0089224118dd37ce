package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/fmueller/voxbatch/internal/media"
	"github.com/fmueller/voxbatch/internal/platform"
	"github.com/fmueller/voxbatch/internal/version"
	"github.com/fmueller/voxbatch/internal/web"
	"github.com/fmueller/voxbatch/internal/whisper"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(commandContext(cmd))
		},
	}

	bindServeFlags(cmd.Flags(), app)
	return cmd
}

func bindServeFlags(flags *pflag.FlagSet, app *appState) {
	flags.StringVar(&app.addr, "addr", app.addr, "Listen address (default 127.0.0.1:7860)")
}

func (a *appState) runServe(ctx context.Context) error {
	cfg := a.config()
	logger := a.log()

	if !media.NewFFmpeg(cfg.FFmpegPath, logger).Available() {
		logger.Warn("ffmpeg not found; video files will fail to transcribe", zap.String("ffmpeg", cfg.FFmpegPath))
	}
	if _, err := whisper.NewBundledEngine(cfg.WhisperPath, logger); err != nil {
		logger.Warn("whisper engine not available yet", zap.Error(err))
	}

	tempDir, err := platform.ResolveTempDir(cfg.TempDir)
	if err != nil {
		return err
	}

	pipeline, err := a.newPipeline(nil)
	if err != nil {
		return err
	}

	reports := web.NewReportStore(tempDir, cfg.ReportMaxAge, logger)
	defer func() {
		if err := reports.Close(); err != nil {
			logger.Warn("failed to remove reports", zap.Error(err))
		}
	}()

	server := web.NewServer(web.Options{
		Addr:            cfg.HTTPAddr,
		ReadTimeout:     cfg.ReadTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		Runner:          pipeline,
		Reports:         reports,
		DefaultModel:    cfg.DefaultModel,
		DefaultLanguage: cfg.DefaultLanguage,
		MaxUploadBytes:  cfg.MaxUploadBytes(),
		TempDir:         tempDir,
		CORSOrigins:     cfg.CORSOrigins,
		Version:         version.Describe(),
		Logger:          logger,
	})

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go reports.Run(janitorCtx, sweepInterval(cfg.ReportMaxAge))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}

func sweepInterval(maxAge time.Duration) time.Duration {
	interval := maxAge / 4
	if interval < time.Minute {
		return time.Minute
	}
	return interval
}
