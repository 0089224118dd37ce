package batch

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReportTextSingleEntryHasNoLeadingBlankLine(t *testing.T) {
	t.Parallel()

	report := Report{Results: []Result{{Name: "only.wav", Text: "hi"}}}
	require.Equal(t, "=== only.wav ===\nhi\n", report.Text())
}

func TestReportTextRendersFailures(t *testing.T) {
	t.Parallel()

	report := Report{Results: []Result{
		{Name: "x.mp4", Err: &ItemError{Stage: StageExtract, Item: "x.mp4", Err: errors.New("no audio stream")}},
		{Name: "y.mp3", Text: ""},
	}}
	require.Equal(t, "=== x.mp4 ===\nError: extracting failed: no audio stream\n\n=== y.mp3 ===\n\n", report.Text())
	require.Equal(t, 1, report.Succeeded())
	require.Equal(t, 1, report.Failed())
}

func TestPersistWritesReportText(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	report := Report{Results: []Result{
		{Name: "a.mp3", Text: "grüße"},
		{Name: "b.mp3", Err: errors.New("bad")},
	}}

	path, err := Persist(dir, report)
	require.NoError(t, err)
	require.Equal(t, dir, filepath.Dir(path))
	require.True(t, strings.HasSuffix(path, ".txt"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, report.Text(), string(content))

	other, err := Persist(dir, report)
	require.NoError(t, err)
	require.NotEqual(t, path, other)
}

func TestPersistFailureIsExplicit(t *testing.T) {
	t.Parallel()

	_, err := Persist(filepath.Join(t.TempDir(), "missing"), Report{})
	var persistErr *PersistError
	require.ErrorAs(t, err, &persistErr)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestResultBlank(t *testing.T) {
	t.Parallel()

	require.True(t, Result{}.Blank())
	require.True(t, Result{Text: "  \n\t"}.Blank())
	require.True(t, Result{Text: BlankAudioToken}.Blank())
	require.True(t, Result{Text: " [blank_audio] "}.Blank())
	require.False(t, Result{Text: "Hello world"}.Blank())
	require.False(t, Result{Err: errors.New("boom")}.Blank())
}
