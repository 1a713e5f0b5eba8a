package retention

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunTruncatesLogsAndPrunesReports(t *testing.T) {
	dir := t.TempDir()
	user := filepath.Join(dir, "user.log")
	app := filepath.Join(dir, "app.log")
	for _, p := range []string{user, app} {
		if err := os.WriteFile(p, []byte("something\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	reports := filepath.Join(dir, "reports")
	if err := os.MkdirAll(reports, 0o755); err != nil {
		t.Fatal(err)
	}
	old := filepath.Join(reports, "report_old.md")
	fresh := filepath.Join(reports, "report_fresh.md")
	other := filepath.Join(reports, "notes.md")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now()
	stale := now.Add(-48 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(other, stale, stale); err != nil {
		t.Fatal(err)
	}

	s := NewService([]string{user, app, filepath.Join(dir, "missing.log")}, reports, 24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return now }
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, p := range []string{user, app} {
		if st, err := os.Stat(p); err != nil || st.Size() != 0 {
			t.Fatalf("%s not truncated", p)
		}
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expired report should be removed")
	}
	for _, p := range []string{fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("%s should be kept: %v", p, err)
		}
	}
}

func TestRunMissingReportDir(t *testing.T) {
	s := NewService(nil, filepath.Join(t.TempDir(), "none"), 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}
