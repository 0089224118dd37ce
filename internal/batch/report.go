package batch

import (
	"strings"
	"time"

	"github.com/fmueller/voxbatch/internal/media"
)

// BlankAudioToken is recorded instead of running the engine on silence.
const BlankAudioToken = "[BLANK_AUDIO]"

// Result is the outcome for one item. Exactly one of Text and Err is
// meaningful.
type Result struct {
	Name    string        `json:"name"`
	Path    string        `json:"-"`
	Kind    media.Kind    `json:"-"`
	Text    string        `json:"text,omitempty"`
	Err     error         `json:"-"`
	Elapsed time.Duration `json:"elapsed"`
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Blank is true for a successful result with no recognized speech.
func (r Result) Blank() bool {
	if r.Err != nil {
		return false
	}
	text := strings.TrimSpace(r.Text)
	return text == "" || strings.EqualFold(text, BlankAudioToken)
}

// Entry renders the result the way it appears in a report.
func (r Result) Entry() string {
	var b strings.Builder
	b.WriteString("=== ")
	b.WriteString(r.Name)
	b.WriteString(" ===\n")
	if r.Err != nil {
		b.WriteString("Error: ")
		b.WriteString(r.Err.Error())
	} else {
		b.WriteString(r.Text)
	}
	b.WriteString("\n")
	return b.String()
}

// Report holds one result per submitted item, in submission order.
type Report struct {
	Model    string
	Language string
	Results  []Result
	Started  time.Time
	Elapsed  time.Duration
}

// Text joins the rendered entries with a blank line between them.
func (r Report) Text() string {
	entries := make([]string, len(r.Results))
	for i, result := range r.Results {
		entries[i] = result.Entry()
	}
	return strings.Join(entries, "\n")
}

func (r Report) Succeeded() int {
	n := 0
	for _, result := range r.Results {
		if result.OK() {
			n++
		}
	}
	return n
}

func (r Report) Failed() int {
	return len(r.Results) - r.Succeeded()
}
