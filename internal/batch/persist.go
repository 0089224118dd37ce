package batch

import (
	"errors"
	"os"
)

// Persist writes the report text to a fresh temporary file in dir (the
// system temp dir when empty) and returns its path. The caller owns the file.
func Persist(dir string, report Report) (string, error) {
	f, err := os.CreateTemp(dir, "voxbatch-report-*.txt")
	if err != nil {
		return "", &PersistError{Err: err}
	}
	path := f.Name()

	_, writeErr := f.WriteString(report.Text())
	closeErr := f.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			err = errors.Join(err, removeErr)
		}
		return "", &PersistError{Path: path, Err: err}
	}

	return path, nil
}
