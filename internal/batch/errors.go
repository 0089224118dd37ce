package batch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fmueller/voxbatch/internal/media"
)

// ErrEmptyInput is matched by every error signalling that a batch had
// nothing to process.
var ErrEmptyInput = errors.New("no input")

type emptyInputError string

func (e emptyInputError) Error() string { return string(e) }

func (e emptyInputError) Is(target error) bool { return target == ErrEmptyInput }

var (
	ErrNoFiles  error = emptyInputError("no files uploaded")
	ErrNoFolder error = emptyInputError("no folder selected")
	ErrNoMedia  error = emptyInputError("no audio/video files found in folder")
)

// Stage names the pipeline step an item failed in.
type Stage string

const (
	StageLoad       Stage = "loading"
	StageExtract    Stage = "extracting"
	StageTranscribe Stage = "transcribing"
)

// ItemError is the failure recorded for one item. It never escapes Run.
// Command holds the external command line when a subprocess failed.
type ItemError struct {
	Stage   Stage
	Item    string
	Command string
	Err     error
}

func newItemError(stage Stage, item string, err error) *ItemError {
	itemErr := &ItemError{Stage: stage, Item: item, Err: err}
	var cmdErr *media.CommandError
	if errors.As(err, &cmdErr) {
		itemErr.Command = strings.TrimSpace(cmdErr.Log.Command + " " + strings.Join(cmdErr.Log.Args, " "))
	}
	return itemErr
}

func (e *ItemError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *ItemError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PersistError means the report text could not be written to disk.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	if e == nil {
		return ""
	}
	if e.Path == "" {
		return fmt.Sprintf("persist report: %v", e.Err)
	}
	return fmt.Sprintf("persist report %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
