package web

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fmueller/voxbatch/internal/batch"
	"github.com/fmueller/voxbatch/internal/metrics"
)

// ReportStore owns persisted report files handed out for download. Files
// older than MaxAge are removed by Sweep, and Close removes the rest.
type ReportStore struct {
	dir    string
	maxAge time.Duration
	log    *zap.Logger

	mu      sync.Mutex
	reports map[string]storedReport
	now     func() time.Time
}

type storedReport struct {
	path    string
	created time.Time
}

func NewReportStore(dir string, maxAge time.Duration, logger *zap.Logger) *ReportStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportStore{
		dir:     dir,
		maxAge:  maxAge,
		log:     logger.Named("reports"),
		reports: make(map[string]storedReport),
		now:     time.Now,
	}
}

// Save persists report and returns the id it can be downloaded under.
func (s *ReportStore) Save(report batch.Report) (string, error) {
	path, err := batch.Persist(s.dir, report)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.reports[id] = storedReport{path: path, created: s.now()}
	count := len(s.reports)
	s.mu.Unlock()

	metrics.ReportsStored.Set(float64(count))
	s.log.Debug("report stored", zap.String("id", id), zap.String("path", path))
	return id, nil
}

func (s *ReportStore) Path(id string) (string, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.reports[id]
	return report.path, ok
}

// Sweep removes reports created before now minus MaxAge and returns how
// many were dropped. A zero MaxAge keeps reports until Close.
func (s *ReportStore) Sweep() int {
	if s.maxAge <= 0 {
		return 0
	}

	cutoff := s.now().Add(-s.maxAge)
	var expired []storedReport

	s.mu.Lock()
	for id, report := range s.reports {
		if report.created.Before(cutoff) {
			expired = append(expired, report)
			delete(s.reports, id)
		}
	}
	count := len(s.reports)
	s.mu.Unlock()

	for _, report := range expired {
		if err := removeIfExists(report.path); err != nil {
			s.log.Warn("failed to remove expired report", zap.String("path", report.path), zap.Error(err))
		}
	}
	metrics.ReportsStored.Set(float64(count))
	return len(expired)
}

// Run sweeps on every interval tick until ctx is done.
func (s *ReportStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Info("expired reports removed", zap.Int("count", n))
			}
		}
	}
}

// Close removes every stored report file.
func (s *ReportStore) Close() error {
	s.mu.Lock()
	reports := s.reports
	s.reports = make(map[string]storedReport)
	s.mu.Unlock()

	var errs []error
	for _, report := range reports {
		if err := removeIfExists(report.path); err != nil {
			errs = append(errs, err)
		}
	}
	metrics.ReportsStored.Set(0)
	return errors.Join(errs...)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
