// Package schedule tracks once-per-window runs of the report task.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LastRunLayout is the on-disk format of last_run.
const LastRunLayout = "2006-01-02 15:04:05.000000"

// WindowSpan is how long a window stays open after its start.
const WindowSpan = 30 * time.Minute

const clockLayout = "15:04"

type Window struct {
	Start   string `json:"start"`
	Stop    string `json:"stop"`
	LastRun string `json:"last_run"`
}

// State maps a window key ("HH:MM") to its window.
type State map[string]Window

type Tracker struct {
	path string
	keys []string
	log  *slog.Logger

	mu    sync.Mutex
	state State
}

// ParseWindow validates an "HH:MM" window start and returns its offset from midnight.
func ParseWindow(s string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("window %q: want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// New loads the state file at path, or initializes and writes it when it is
// absent or unreadable. Windows keep their declared order.
func New(path string, windows []string, logger *slog.Logger) (*Tracker, error) {
	t := &Tracker{path: path, log: logger, state: State{}}
	for _, w := range windows {
		off, err := ParseWindow(w)
		if err != nil {
			return nil, err
		}
		if _, dup := t.state[w]; dup {
			continue
		}
		stop := time.Time{}.Add(off + WindowSpan)
		t.keys = append(t.keys, w)
		t.state[w] = Window{Start: w, Stop: stop.Format(clockLayout)}
	}

	prev, err := load(path)
	switch {
	case err == nil:
		for k, w := range prev {
			if cur, ok := t.state[k]; ok {
				cur.LastRun = w.LastRun
				t.state[k] = cur
			}
		}
		return t, nil
	case errors.Is(err, os.ErrNotExist):
		logger.Info("initializing run schedule", "path", path, "windows", len(t.keys))
	default:
		logger.Warn("run schedule unreadable, reinitializing", "path", path, "err", err)
	}
	if err := t.persist(); err != nil {
		return nil, err
	}
	return t, nil
}

func load(path string) (State, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return s, nil
}

// IsDue returns the first window, in declared order, whose current
// occurrence contains now and has not run since that occurrence started.
func (t *Tracker) IsDue(now time.Time) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range t.keys {
		start := occurrence(k, now)
		if now.Before(start) || now.After(start.Add(WindowSpan)) {
			continue
		}
		w := t.state[k]
		if w.LastRun == "" {
			return k, true
		}
		last, err := time.ParseInLocation(LastRunLayout, w.LastRun, now.Location())
		if err != nil {
			t.log.Warn("bad last_run, treating window as not run", "window", k, "last_run", w.LastRun)
			return k, true
		}
		if last.Before(start) {
			return k, true
		}
	}
	return "", false
}

// occurrence is the latest start of window k at or before now. A window
// opened late yesterday is still current shortly after midnight.
func occurrence(k string, now time.Time) time.Time {
	off, _ := ParseWindow(k)
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Add(off)
	if start.After(now) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// MarkRun records now as the last run of window key and persists the state.
func (t *Tracker) MarkRun(key string, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.state[key]
	if !ok {
		return fmt.Errorf("unknown window %q", key)
	}
	w.LastRun = now.Format(LastRunLayout)
	t.state[key] = w
	return t.persist()
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(State, len(t.state))
	for k, v := range t.state {
		out[k] = v
	}
	return out
}

// persist writes the state via a temp file and rename. Callers hold mu or
// own t exclusively.
func (t *Tracker) persist() error {
	if t.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create schedule dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp schedule: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write schedule: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace schedule: %w", err)
	}
	return nil
}
