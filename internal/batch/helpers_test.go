package batch

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, audioPath string) (string, error)
}

func (f *fakeRecognizer) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, audioPath)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, audioPath)
	}
	return "text of " + filepath.Base(audioPath), nil
}

func (f *fakeRecognizer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type countingLoader struct {
	mu         sync.Mutex
	loads      []string
	recognizer Recognizer
	err        error
}

func (l *countingLoader) Load(_ context.Context, model string) (Recognizer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads = append(l.loads, model)
	if l.err != nil {
		return nil, l.err
	}
	return l.recognizer, nil
}

type fakeExtractor struct {
	fn func(src, dst string) error
}

func (f fakeExtractor) Extract(_ context.Context, src, dst string) error {
	if f.fn != nil {
		return f.fn(src, dst)
	}
	return writeWAV(dst, toneSamples(1600))
}

var errBoom = errors.New("boom")

func toneSamples(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(0.25 * 32767 * math.Sin(2*math.Pi*440*float64(i)/16000.0))
	}
	return samples
}

func writeWAV(path string, samples []int16) error {
	dataSize := len(samples) * 2
	buf := make([]byte, 44+dataSize)
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+dataSize))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1)
	binary.LittleEndian.PutUint16(buf[22:], 1)
	binary.LittleEndian.PutUint32(buf[24:], 16000)
	binary.LittleEndian.PutUint32(buf[28:], 16000*2)
	binary.LittleEndian.PutUint16(buf[32:], 2)
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(s))
	}
	return os.WriteFile(path, buf, 0o644)
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o644))
	return path
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	require.Empty(t, names)
}
