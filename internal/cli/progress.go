package cli

import (
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

type itemProgress struct {
	bar  *progressbar.ProgressBar
	once sync.Once
}

// startItemProgress shows one tick per finished batch item on stderr. The
// returned value is usable when disabled.
func startItemProgress(enabled bool, total int) *itemProgress {
	if !enabled || total <= 0 {
		return &itemProgress{}
	}

	bar := progressbar.NewOptions(
		total,
		progressbar.OptionSetDescription("Transcribing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return &itemProgress{bar: bar}
}

func (p *itemProgress) advance(name string) {
	if p == nil || p.bar == nil {
		return
	}
	p.bar.Describe(name)
	_ = p.bar.Add(1)
}

func (p *itemProgress) stop() {
	if p == nil || p.bar == nil {
		return
	}
	p.once.Do(func() {
		_ = p.bar.Finish()
	})
}
