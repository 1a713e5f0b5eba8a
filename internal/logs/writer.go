package logs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"kibalert/internal/models"
)

// Writer appends affected records to the rolling log that is attached to
// full notifications and later fed to the report prompt.
type Writer struct {
	path string
	mu   sync.Mutex
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

func (w *Writer) Path() string {
	if w == nil {
		return ""
	}
	return w.path
}

// Append writes "\n{title}\n" followed by one line per entity. The file is
// closed before Append returns so readers see the complete batch.
func (w *Writer) Append(title string, entities []models.Entity) error {
	if w == nil || w.path == "" || len(entities) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open rolling log: %w", err)
	}
	bw := bufio.NewWriter(f)
	if title != "" {
		fmt.Fprintf(bw, "\n%s\n", title)
	}
	for _, e := range entities {
		bw.WriteString(sanitizeMessage(lineBreaks.Replace(e.Line())))
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write rolling log: %w", err)
	}
	return f.Close()
}

// lineBreaks flattens multi-line values so each record stays on one line.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Truncate empties the rolling log, keeping the file in place.
func (w *Writer) Truncate() error {
	if w == nil || w.path == "" {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return Truncate(w.path)
}

// Truncate empties path. A missing file is not an error.
func Truncate(path string) error {
	err := os.Truncate(path, 0)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
