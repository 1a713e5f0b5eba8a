package schedule

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func at(day, hour, min int) time.Time {
	return time.Date(2024, time.May, day, hour, min, 0, 0, time.UTC)
}

func TestTrackerDueSatisfiedNextDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_run.json")
	tr, err := New(path, []string{"00:00"}, discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	key, ok := tr.IsDue(at(1, 0, 15))
	if !ok || key != "00:00" {
		t.Fatalf("expected 00:00 due, got %q %v", key, ok)
	}
	if err := tr.MarkRun(key, at(1, 0, 15)); err != nil {
		t.Fatalf("mark run: %v", err)
	}
	if key, ok := tr.IsDue(at(1, 0, 20)); ok {
		t.Fatalf("window should be satisfied, got %q", key)
	}
	if key, ok := tr.IsDue(at(2, 0, 15)); !ok || key != "00:00" {
		t.Fatalf("window should be due again next day, got %q %v", key, ok)
	}
}

func TestTrackerOutsideWindow(t *testing.T) {
	tr, err := New(filepath.Join(t.TempDir(), "s.json"), []string{"08:00"}, discard())
	if err != nil {
		t.Fatal(err)
	}
	for _, now := range []time.Time{at(1, 7, 59), at(1, 8, 31), at(1, 20, 0)} {
		if _, ok := tr.IsDue(now); ok {
			t.Fatalf("%s should not be due", now.Format(clockLayout))
		}
	}
	if _, ok := tr.IsDue(at(1, 8, 30)); !ok {
		t.Fatal("window end is inclusive")
	}
}

func TestTrackerMidnightWrap(t *testing.T) {
	tr, err := New(filepath.Join(t.TempDir(), "s.json"), []string{"23:50"}, discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.IsDue(at(2, 0, 10)); !ok {
		t.Fatal("window opened yesterday at 23:50 should still be due at 00:10")
	}
	if err := tr.MarkRun("23:50", at(1, 23, 55)); err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.IsDue(at(2, 0, 10)); ok {
		t.Fatal("run at 23:55 satisfies the occurrence that started at 23:50")
	}
	if tr.Snapshot()["23:50"].Stop != "00:20" {
		t.Fatalf("stop = %q", tr.Snapshot()["23:50"].Stop)
	}
}

func TestTrackerFirstDueWindowWins(t *testing.T) {
	tr, err := New(filepath.Join(t.TempDir(), "s.json"), []string{"12:10", "12:00"}, discard())
	if err != nil {
		t.Fatal(err)
	}
	if key, _ := tr.IsDue(at(1, 12, 15)); key != "12:10" {
		t.Fatalf("declared order should win, got %q", key)
	}
}

func TestTrackerPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "last_run.json")
	tr, err := New(path, []string{"06:00"}, discard())
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("missing file should be initialized: %v", err)
	}
	var initial State
	if err := json.Unmarshal(b, &initial); err != nil {
		t.Fatal(err)
	}
	if initial["06:00"] != (Window{Start: "06:00", Stop: "06:30"}) {
		t.Fatalf("unexpected initial state %+v", initial)
	}

	run := time.Date(2024, time.May, 1, 6, 5, 0, 123456000, time.UTC)
	if err := tr.MarkRun("06:00", run); err != nil {
		t.Fatal(err)
	}
	again, err := New(path, []string{"06:00"}, discard())
	if err != nil {
		t.Fatal(err)
	}
	if got := again.Snapshot()["06:00"].LastRun; got != "2024-05-01 06:05:00.123456" {
		t.Fatalf("last_run = %q", got)
	}
}

func TestTrackerCorruptFileReinitializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	tr, err := New(path, []string{"01:00"}, discard())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := tr.IsDue(at(1, 1, 0)); !ok {
		t.Fatal("reinitialized window should be due")
	}
}

func TestTrackerRejectsBadWindow(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "s.json"), []string{"25:99"}, discard()); err == nil {
		t.Fatal("expected error")
	}
	if err := (&Tracker{state: State{}}).MarkRun("nope", time.Now()); err == nil {
		t.Fatal("expected unknown window error")
	}
}
