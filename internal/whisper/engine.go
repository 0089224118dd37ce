package whisper

import "context"

// AutoLanguage lets the engine detect the spoken language.
const AutoLanguage = "auto"

type TranscriptionRequest struct {
	AudioPath string
	ModelPath string
	Language  string
}

type Engine interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
}
