package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kibalert/internal/logs"
)

// Service resets the collected logs once a report has been produced and
// prunes report files older than the retention period.
type Service struct {
	logFiles  []string
	reportDir string
	retention time.Duration
	log       *slog.Logger
	now       func() time.Time
}

func NewService(logFiles []string, reportDir string, retention time.Duration, logger *slog.Logger) *Service {
	if retention <= 0 {
		retention = 14 * 24 * time.Hour
	}
	return &Service{logFiles: logFiles, reportDir: reportDir, retention: retention, log: logger, now: time.Now}
}

// Run truncates every log file and removes expired reports. Failures are
// joined so one bad file does not stop the rest of the cleanup.
func (s *Service) Run(ctx context.Context) error {
	var errs []error
	for _, f := range s.logFiles {
		if f == "" {
			continue
		}
		if err := logs.Truncate(f); err != nil {
			errs = append(errs, fmt.Errorf("truncate %s: %w", f, err))
		}
	}
	removed, err := s.pruneReports(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	err = errors.Join(errs...)
	if err != nil {
		s.log.Error("retention cleanup failed", "err", err)
	} else {
		s.log.Info("retention cleanup completed", "logs", len(s.logFiles), "reports_removed", removed)
	}
	return err
}

func (s *Service) pruneReports(ctx context.Context) (int, error) {
	if s.reportDir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(s.reportDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("list reports: %w", err)
	}
	cutoff := s.now().Add(-s.retention)
	removed := 0
	var errs []error
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "report_") || !strings.HasSuffix(name, ".md") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.reportDir, name)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
