package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fmueller/voxbatch/internal/whisper"
)

func newModelsCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available models and which are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			modelDir, err := app.modelStorageDir()
			if err != nil {
				return err
			}
			defaultModel := app.config().DefaultModel

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range whisper.ModelNames() {
				resolved, err := whisper.ResolveModel(name, modelDir)
				if err != nil {
					return err
				}

				var notes []string
				if name == defaultModel {
					notes = append(notes, "default")
				}
				if !resolved.NeedsDownload {
					notes = append(notes, "installed")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, filepath.Base(resolved.Path), strings.Join(notes, ", "))
			}
			return w.Flush()
		},
	}
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported language codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "%s\t%s\n", whisper.AutoLanguage, "Detect automatically")
			for _, lang := range whisper.Languages() {
				fmt.Fprintf(w, "%s\t%s\n", lang.Code, lang.Name)
			}
			return w.Flush()
		},
	}
}
