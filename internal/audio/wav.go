package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	formatPCM   = 1
	formatFloat = 3
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
	ErrEmptyWAV       = errors.New("wav file has no audio data")
)

// Format describes the fmt and data chunks of a RIFF/WAVE file.
type Format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataOffset    int64
	DataSize      uint32
}

// Duration is the playback length implied by the data chunk size.
func (f Format) Duration() time.Duration {
	frameSize := int64(f.Channels) * int64(f.BitsPerSample/8)
	if frameSize <= 0 || f.SampleRate == 0 {
		return 0
	}
	frames := int64(f.DataSize) / frameSize
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// IsSpeechPCM reports whether the format is the mono 16 kHz 16-bit PCM layout
// whisper-cli expects.
func (f Format) IsSpeechPCM() bool {
	return f.AudioFormat == formatPCM && f.Channels == 1 && f.SampleRate == 16000 && f.BitsPerSample == 16
}

// ProbeWAV walks the RIFF chunks of path and returns the audio format.
func ProbeWAV(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	return probe(f)
}

func probe(r io.ReadSeeker) (Format, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Format{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return Format{}, fmt.Errorf("read wav header: %w", err)
	}

	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Format{}, ErrInvalidWAV
	}

	var (
		format  Format
		hasFmt  bool
		hasData bool
	)

	for !hasData {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(r, chunkHeader); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return Format{}, fmt.Errorf("read wav chunk header: %w", err)
		}

		chunkID := string(chunkHeader[:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		skip := int64(chunkSize)
		if chunkSize%2 != 0 {
			skip++
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return Format{}, ErrInvalidWAV
			}

			buf := make([]byte, 16)
			if _, err := io.ReadFull(r, buf); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					return Format{}, fmt.Errorf("%w: truncated fmt chunk", ErrInvalidWAV)
				}
				return Format{}, fmt.Errorf("read wav fmt chunk: %w", err)
			}

			format.AudioFormat = binary.LittleEndian.Uint16(buf[0:2])
			format.Channels = binary.LittleEndian.Uint16(buf[2:4])
			format.SampleRate = binary.LittleEndian.Uint32(buf[4:8])
			format.BitsPerSample = binary.LittleEndian.Uint16(buf[14:16])
			hasFmt = true

			// Skip extension bytes and padding.
			if _, err := r.Seek(skip-16, io.SeekCurrent); err != nil {
				return Format{}, fmt.Errorf("seek wav fmt extension: %w", err)
			}
		case "data":
			offset, err := r.Seek(0, io.SeekCurrent)
			if err != nil {
				return Format{}, fmt.Errorf("seek wav data chunk: %w", err)
			}
			format.DataOffset = offset
			format.DataSize = chunkSize
			hasData = true
		default:
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return Format{}, fmt.Errorf("seek wav chunk %s: %w", chunkID, err)
			}
		}
	}

	if !hasFmt || !hasData {
		return Format{}, ErrInvalidWAV
	}

	return format, nil
}
