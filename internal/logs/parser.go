package logs

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"regexp"
	"strings"
)

// Pattern groups log lines worth calling out to the report model.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

var CriticalPatterns = []Pattern{
	{"SSL Errors", regexp.MustCompile(`(?i)(OpenSSL error|SSL routines::wrong version number)`)},
	{"PHP Errors", regexp.MustCompile(`(?i)(PHP Fatal error|PHP Warning|Undefined variable|Attempt to read property on null)`)},
	{"Kubernetes Errors", regexp.MustCompile(`(?i)(Evicted|OOMKilled|CrashLoopBackOff|Pod is in failed state)`)},
	{"Network Issues", regexp.MustCompile(`(?i)(connection refused|timeout|failed to connect|network unreachable)`)},
}

// Categorize scans r and renders every line matching a critical pattern as a
// markdown section per pattern, in pattern order. A line matching several
// patterns is listed under each of them.
func Categorize(r io.Reader) (string, error) {
	buckets := make([][]string, len(CriticalPatterns))
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sanitizeMessage(sc.Text())
		if line == "" {
			continue
		}
		for i, p := range CriticalPatterns {
			if p.Re.MatchString(line) {
				buckets[i] = append(buckets[i], line)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	var sections []string
	for i, lines := range buckets {
		if len(lines) == 0 {
			continue
		}
		sections = append(sections, "## "+CriticalPatterns[i].Name+"\n- "+strings.Join(lines, "\n- "))
	}
	return strings.Join(sections, "\n"), nil
}

// CategorizeFile is Categorize over a file; a missing file yields "".
func CategorizeFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()
	return Categorize(f)
}

// Summarize keeps only WARN and ERROR lines of an application log.
func Summarize(r io.Reader) (string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sanitizeMessage(sc.Text())
		switch inferLevel(line) {
		case "ERROR", "WARN":
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), sc.Err()
}

// Tail returns at most max trailing bytes of path, cut at a line boundary
// when one is available. A missing file yields "".
func Tail(path string, max int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return "", err
	}
	off := int64(0)
	if max > 0 && st.Size() > max {
		off = st.Size() - max
	}
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return "", err
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	if off > 0 {
		if i := bytes.IndexByte(b, '\n'); i >= 0 && i+1 < len(b) {
			b = b[i+1:]
		}
	}
	return string(bytes.ToValidUTF8(b, []byte("?"))), nil
}

func inferLevel(msg string) string {
	u := strings.ToUpper(msg)
	switch {
	case strings.Contains(u, "ERROR"), strings.Contains(u, "FATAL"), strings.Contains(u, "PANIC"):
		return "ERROR"
	case strings.Contains(u, "WARN"):
		return "WARN"
	case strings.Contains(u, "DEBUG"):
		return "DEBUG"
	default:
		return "INFO"
	}
}

func sanitizeMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	msg = strings.ReplaceAll(msg, "\x00", "")
	if len(msg) > 4000 {
		msg = msg[:4000]
	}
	return strings.TrimSpace(string(bytes.ToValidUTF8([]byte(msg), []byte("?"))))
}
