package media

import (
	"path/filepath"
	"strings"
)

// Kind is the coarse media class used to decide whether audio has to be
// extracted before transcription.
type Kind int

const (
	KindUnknown Kind = iota
	KindAudio
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// AudioExtensions and VideoExtensions are listed in folder scan order.
var (
	AudioExtensions = []string{".mp3", ".wav", ".ogg", ".aac", ".flac", ".m4a", ".wma"}
	VideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".flv", ".wmv"}
)

// engineExtensions are the containers whisper-cli decodes on its own. Other
// audio has to be converted to WAV first.
var engineExtensions = []string{".wav", ".mp3", ".ogg", ".flac"}

// MediaExtensions returns audio extensions followed by video extensions.
func MediaExtensions() []string {
	all := make([]string, 0, len(AudioExtensions)+len(VideoExtensions))
	all = append(all, AudioExtensions...)
	return append(all, VideoExtensions...)
}

// Classify inspects the extension of path, ignoring case.
func Classify(path string) Kind {
	ext := filepath.Ext(path)
	switch {
	case containsFold(VideoExtensions, ext):
		return KindVideo
	case containsFold(AudioExtensions, ext):
		return KindAudio
	default:
		return KindUnknown
	}
}

// IsVideo reports whether path needs audio extraction before transcription.
func IsVideo(path string) bool {
	return Classify(path) == KindVideo
}

// NeedsDecode reports whether path is audio the engine cannot read directly.
func NeedsDecode(path string) bool {
	return Classify(path) == KindAudio && !containsFold(engineExtensions, filepath.Ext(path))
}

// IsMedia reports whether path has a known audio or video extension.
func IsMedia(path string) bool {
	return Classify(path) != KindUnknown
}

// ExtensionRank returns the position of path's extension in MediaExtensions,
// or -1 when it is not a media file.
func ExtensionRank(path string) int {
	ext := filepath.Ext(path)
	for i, candidate := range MediaExtensions() {
		if strings.EqualFold(candidate, ext) {
			return i
		}
	}
	return -1
}

func containsFold(exts []string, ext string) bool {
	if ext == "" {
		return false
	}
	for _, candidate := range exts {
		if strings.EqualFold(candidate, ext) {
			return true
		}
	}
	return false
}
