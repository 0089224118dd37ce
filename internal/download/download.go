package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/term"

	"github.com/fmueller/voxbatch/internal/metrics"
)

const (
	userAgent      = "voxbatch/1"
	defaultRetries = 3
	retryStep      = 300 * time.Millisecond
)

var checksumPattern = regexp.MustCompile(`(?i)\b([a-f0-9]{64})\b`)

// ErrUnexpectedStatus is wrapped when the server answers with anything but 200.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// ChecksumError reports a payload whose sha256 does not match the pinned value.
type ChecksumError struct {
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
}

type Options struct {
	URL            string
	Destination    string
	ExpectedSHA256 string
	ChecksumURL    string
	Retries        int
	NoProgress     bool
	Description    string
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Retries <= 0 {
		o.Retries = defaultRetries
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Description == "" {
		o.Description = "downloading"
	}
	return o
}

// inflight collapses concurrent downloads of the same destination, which
// happens when two web batches ask for a missing model at once.
var inflight singleflight.Group

// DownloadFile fetches opts.URL into opts.Destination, verifying the sha256
// when one is pinned or published next to the artifact. The destination only
// appears once the payload is complete and verified.
func DownloadFile(ctx context.Context, opts Options) error {
	if opts.URL == "" {
		return errors.New("download URL is required")
	}
	if opts.Destination == "" {
		return errors.New("destination path is required")
	}
	opts = opts.withDefaults()

	key := filepath.Clean(opts.Destination)
	_, err, shared := inflight.Do(key, func() (any, error) {
		return nil, fetch(ctx, opts)
	})
	if shared {
		opts.Logger.Debug("joined in-flight download", zap.String("destination", key))
	}
	return err
}

func fetch(ctx context.Context, opts Options) error {
	expected := normalizeChecksum(opts.ExpectedSHA256)
	if expected == "" && opts.ChecksumURL != "" {
		resolved, err := ResolveExpectedChecksum(ctx, opts.ChecksumURL, filepath.Base(opts.Destination), opts.HTTPClient)
		if err != nil {
			return fmt.Errorf("fetch checksum: %w", err)
		}
		expected = resolved
	}

	if err := os.MkdirAll(filepath.Dir(opts.Destination), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		if attempt > 1 {
			opts.Logger.Warn("retrying download",
				zap.Int("attempt", attempt),
				zap.Int("max", opts.Retries),
				zap.String("url", opts.URL),
				zap.Error(lastErr),
			)
			if err := sleep(ctx, time.Duration(attempt)*retryStep); err != nil {
				break
			}
		}

		lastErr = downloadOnce(ctx, opts, expected)
		if lastErr == nil {
			metrics.DownloadsTotal.WithLabelValues("ok").Inc()
			return nil
		}

		var mismatch *ChecksumError
		if ctx.Err() != nil || errors.As(lastErr, &mismatch) {
			break
		}
	}

	metrics.DownloadsTotal.WithLabelValues("failed").Inc()
	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func ResolveExpectedChecksum(ctx context.Context, checksumURL, fileName string, client *http.Client) (string, error) {
	if strings.TrimSpace(checksumURL) == "" {
		return "", errors.New("checksum URL is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	body, err := get(ctx, client, checksumURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	content, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read checksum file: %w", err)
	}
	return ParseChecksum(content, fileName)
}

// ParseChecksum picks the sha256 for fileName out of a checksum listing,
// falling back to the first digest when no line names the file.
func ParseChecksum(content []byte, fileName string) (string, error) {
	lines := strings.Split(string(content), "\n")

	if fileName != "" {
		for _, line := range lines {
			if !strings.Contains(line, fileName) {
				continue
			}
			if sum := checksumIn(line); sum != "" {
				return sum, nil
			}
		}
	}

	for _, line := range lines {
		if sum := checksumIn(line); sum != "" {
			return sum, nil
		}
	}
	return "", errors.New("sha256 checksum not found")
}

// VerifyFileChecksum hashes path and compares it with expectedSHA256. An
// empty expectation always passes.
func VerifyFileChecksum(path, expectedSHA256 string) error {
	expected := normalizeChecksum(expectedSHA256)
	if expected == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash file: %w", err)
	}
	return compare(expected, h.Sum(nil))
}

func compare(expected string, sum []byte) error {
	actual := hex.EncodeToString(sum)
	if expected != "" && actual != expected {
		return &ChecksumError{Expected: expected, Actual: actual}
	}
	return nil
}

func normalizeChecksum(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func checksumIn(line string) string {
	match := checksumPattern.FindStringSubmatch(line)
	if len(match) < 2 {
		return ""
	}
	return strings.ToLower(match[1])
}

func get(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return resp.Body, nil
}

func downloadOnce(ctx context.Context, opts Options, expected string) (err error) {
	part, err := os.CreateTemp(filepath.Dir(opts.Destination), filepath.Base(opts.Destination)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = part.Close()
		if err != nil {
			_ = os.Remove(part.Name())
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	hash := sha256.New()
	sinks := []io.Writer{part, hash}
	bar := newBar(opts, resp.ContentLength)
	if bar != nil {
		sinks = append(sinks, bar)
	}

	n, err := io.Copy(io.MultiWriter(sinks...), resp.Body)
	metrics.DownloadBytes.Add(float64(n))
	if err != nil {
		return fmt.Errorf("download body: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if err := compare(expected, hash.Sum(nil)); err != nil {
		return err
	}
	if err := part.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := part.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(part.Name(), opts.Destination); err != nil {
		return fmt.Errorf("move temp file into destination: %w", err)
	}
	return nil
}

func newBar(opts Options, size int64) *progressbar.ProgressBar {
	if opts.NoProgress || size <= 0 || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return progressbar.NewOptions64(
		size,
		progressbar.OptionSetDescription(opts.Description),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
}
