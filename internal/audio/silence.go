package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// DefaultPeakHeadroomDB lets isolated clicks rise above the RMS threshold
// without the file counting as speech.
const DefaultPeakHeadroomDB = 6

// Level is the measured loudness of a decoded WAV file.
type Level struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
}

// Silent is true when there are no samples or nothing but digital zero.
func (l Level) Silent() bool {
	return l.Samples == 0 || (math.IsInf(l.RMSdBFS, -1) && math.IsInf(l.PeakdBFS, -1))
}

// Gate decides whether a level is quiet enough to skip recognition.
type Gate struct {
	ThresholdDBFS  float64
	PeakHeadroomDB float64
}

func (g Gate) Quiet(l Level) bool {
	if l.Silent() {
		return true
	}
	return l.RMSdBFS <= g.ThresholdDBFS && l.PeakdBFS <= g.ThresholdDBFS+g.PeakHeadroomDB
}

// IsSilentWAV measures path and applies a Gate with the default headroom.
func IsSilentWAV(path string, thresholdDBFS float64) (bool, Level, error) {
	level, err := MeasureWAV(path)
	if err != nil {
		return false, Level{}, err
	}
	gate := Gate{ThresholdDBFS: thresholdDBFS, PeakHeadroomDB: DefaultPeakHeadroomDB}
	return gate.Quiet(level), level, nil
}

// MeasureWAV reads every sample of the data chunk and returns RMS and peak
// in dBFS.
func MeasureWAV(path string) (Level, error) {
	f, err := os.Open(path)
	if err != nil {
		return Level{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	format, err := probe(f)
	if err != nil {
		return Level{}, err
	}

	decode, err := decoderFor(format)
	if err != nil {
		return Level{}, err
	}

	if _, err := f.Seek(format.DataOffset, io.SeekStart); err != nil {
		return Level{}, fmt.Errorf("seek wav data offset: %w", err)
	}

	var m meter
	data := bufio.NewReader(io.LimitReader(f, int64(format.DataSize)))
	if err := m.consume(data, int(format.BitsPerSample/8), decode); err != nil {
		return Level{}, err
	}
	return m.level(), nil
}

type meter struct {
	peak       float64
	sumSquares float64
	samples    int64
}

func (m *meter) add(v float64) {
	if a := math.Abs(v); a > m.peak {
		m.peak = a
	}
	m.sumSquares += v * v
	m.samples++
}

func (m *meter) consume(r io.Reader, width int, decode sampleDecoder) error {
	buf := make([]byte, width)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("read wav data: %w", err)
		}
		m.add(decode(buf))
	}
}

func (m *meter) level() Level {
	if m.samples == 0 {
		return Level{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1)}
	}
	return Level{
		RMSdBFS:  toDBFS(math.Sqrt(m.sumSquares / float64(m.samples))),
		PeakdBFS: toDBFS(m.peak),
		Samples:  m.samples,
	}
}

// sampleDecoder maps one little-endian sample to the range [-1, 1].
type sampleDecoder func([]byte) float64

func decoderFor(f Format) (sampleDecoder, error) {
	switch {
	case f.AudioFormat == formatPCM && f.BitsPerSample == 8:
		return func(b []byte) float64 { return (float64(b[0]) - 128) / 128 }, nil
	case f.AudioFormat == formatPCM && f.BitsPerSample == 16:
		return func(b []byte) float64 { return float64(int16(binary.LittleEndian.Uint16(b))) / (1 << 15) }, nil
	case f.AudioFormat == formatPCM && f.BitsPerSample == 24:
		return func(b []byte) float64 {
			v := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
			return float64(v) / (1 << 23)
		}, nil
	case f.AudioFormat == formatPCM && f.BitsPerSample == 32:
		return func(b []byte) float64 { return float64(int32(binary.LittleEndian.Uint32(b))) / (1 << 31) }, nil
	case f.AudioFormat == formatFloat && f.BitsPerSample == 32:
		return func(b []byte) float64 { return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))) }, nil
	case f.AudioFormat == formatFloat && f.BitsPerSample == 64:
		return func(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }, nil
	default:
		return nil, fmt.Errorf("%w: format %d, %d bits", ErrUnsupportedWAV, f.AudioFormat, f.BitsPerSample)
	}
}

func toDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(amplitude)
}
