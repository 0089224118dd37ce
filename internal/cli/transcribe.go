package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmueller/voxbatch/internal/batch"
	"github.com/fmueller/voxbatch/internal/platform"
)

// ErrItemsFailed is returned after the report is printed when at least one
// item could not be transcribed.
var ErrItemsFailed = errors.New("some items failed")

func newTranscribeCmd(app *appState) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "transcribe <media-file>...",
		Short: "Transcribe audio and video files into one report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items := make([]batch.Item, 0, len(args))
			for _, arg := range args {
				path := filepath.Clean(arg)
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("media file not found: %w", err)
				}
				items = append(items, batch.NewItem(path))
			}
			return app.runBatch(commandContext(cmd), cmd, items, output)
		},
	}

	bindOutputFlag(cmd, &output)
	return cmd
}

func newFolderCmd(app *appState) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "folder <directory>",
		Short: "Transcribe every audio and video file in a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := batch.ScanFolder(args[0])
			if err != nil {
				return err
			}
			return app.runBatch(commandContext(cmd), cmd, items, output)
		},
	}

	bindOutputFlag(cmd, &output)
	return cmd
}

func bindOutputFlag(cmd *cobra.Command, output *string) {
	cmd.Flags().StringVarP(output, "output", "o", "", "Write the report to this file instead of a temporary file")
}

func (a *appState) runBatch(ctx context.Context, cmd *cobra.Command, items []batch.Item, output string) error {
	cfg := a.config()

	progress := startItemProgress(a.progressEnabled(), len(items))
	pipeline, err := a.newPipeline(func(_ int, result batch.Result) {
		progress.advance(result.Name)
	})
	if err != nil {
		progress.stop()
		return err
	}

	report, err := pipeline.Run(ctx, items, cfg.DefaultModel, cfg.DefaultLanguage)
	progress.stop()
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), report.Text())

	path, err := a.writeReport(report, output)
	if err != nil {
		return err
	}
	a.log().Info("report saved",
		zap.String("path", path),
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", report.Failed()),
		zap.Duration("elapsed", report.Elapsed),
	)

	for _, result := range report.Results {
		if result.Blank() {
			a.log().Warn("no speech detected; check that the file has an audio track and is not muted", zap.String("item", result.Name))
		}
	}

	if failed := report.Failed(); failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrItemsFailed, failed, len(report.Results))
	}
	return nil
}

func (a *appState) writeReport(report batch.Report, output string) (string, error) {
	if strings.TrimSpace(output) == "" {
		dir, err := platform.ResolveTempDir(a.config().TempDir)
		if err != nil {
			return "", err
		}
		return batch.Persist(dir, report)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return "", &batch.PersistError{Path: output, Err: err}
	}
	if err := os.WriteFile(output, []byte(report.Text()), 0o644); err != nil {
		return "", &batch.PersistError{Path: output, Err: err}
	}
	return output, nil
}
