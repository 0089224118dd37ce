package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fmueller/voxbatch/internal/media"
)

// Item is one file submitted for transcription.
type Item struct {
	Path string
	Name string
}

// NewItem names the item after the final segment of path.
func NewItem(path string) Item {
	return Item{Path: path, Name: filepath.Base(path)}
}

// ItemsFromPaths keeps the order of paths.
func ItemsFromPaths(paths []string) []Item {
	items := make([]Item, 0, len(paths))
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		items = append(items, NewItem(path))
	}
	return items
}

// Request is the immutable unit of work for one item.
type Request struct {
	Item     Item
	Model    string
	Language string
}

// ScanFolder lists the audio and video files directly inside dir. Files are
// grouped by extension in media.MediaExtensions order and keep directory
// order inside each group. Extension matching ignores case.
func ScanFolder(dir string) ([]Item, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrNoFolder
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !media.IsMedia(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if entry.Type()&os.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
		} else if !entry.Type().IsRegular() {
			continue
		}
		paths = append(paths, path)
	}

	if len(paths) == 0 {
		return nil, ErrNoMedia
	}

	sort.SliceStable(paths, func(i, j int) bool {
		return media.ExtensionRank(paths[i]) < media.ExtensionRank(paths[j])
	})

	return ItemsFromPaths(paths), nil
}
