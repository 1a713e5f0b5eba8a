package collector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"kibalert/internal/alerts"
	"kibalert/internal/compose"
	"kibalert/internal/logs"
	"kibalert/internal/metrics"
	"kibalert/internal/models"
	"kibalert/internal/search"
)

type fakeSearcher struct {
	byIndex map[string][]models.RawRecord
	errs    map[string]error
	calls   []string
}

func (f *fakeSearcher) Search(_ context.Context, index string, _ search.Query) ([]models.RawRecord, error) {
	f.calls = append(f.calls, index)
	if err := f.errs[index]; err != nil {
		return nil, err
	}
	return f.byIndex[index], nil
}

type countingNotifier struct{ brief, full int }

func (n *countingNotifier) SendBrief(context.Context, string)                   { n.brief++ }
func (n *countingNotifier) SendFull(context.Context, string, string, string) { n.full++ }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newService(t *testing.T, s Searcher, n *countingNotifier, m *metrics.Metrics, cats ...models.Category) *Service {
	t.Helper()
	th := models.Thresholds{CPUPct: 90, LatencyMs: 1000}
	engine := alerts.NewEngine(th, discard(), m)
	pub := compose.NewPublisher(n, logs.NewWriter(filepath.Join(t.TempDir(), "user.log")), 2, discard())
	return NewService(s, engine, pub, search.Params{Window: 60, Size: 10, HostRuleIDs: []string{"r1", "r2"}}, cats, discard(), m)
}

func cpuRecord(host string, usage float64) models.RawRecord {
	return models.RawRecord{"host": map[string]any{"name": host, "cpu": map[string]any{"usage": json.Number(jsonFloat(usage))}}}
}

func jsonFloat(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestTickPublishesAffected(t *testing.T) {
	fs := &fakeSearcher{byIndex: map[string][]models.RawRecord{
		"metricbeat-*": {cpuRecord("a", 0.95), cpuRecord("b", 0.2), cpuRecord("a", 0.99), cpuRecord("c", 97.5)},
	}}
	n := &countingNotifier{}
	svc := newService(t, fs, n, nil, models.CategoryCPU)

	if got := svc.Tick(context.Background()); got != 2 {
		t.Fatalf("affected = %d, want 2", got)
	}
	if n.brief != 2 || n.full != 1 {
		t.Fatalf("brief=%d full=%d", n.brief, n.full)
	}
}

func TestCollectRuleCategoryPerRule(t *testing.T) {
	fs := &fakeSearcher{byIndex: map[string][]models.RawRecord{
		".alerts-*": {{"host.hostname": "web-1", "kibana.alert.reason": "cpu above 95%"}},
	}}
	n := &countingNotifier{}
	svc := newService(t, fs, n, nil)

	if got := svc.Collect(context.Background(), models.CategoryHostAlert); got != 2 {
		t.Fatalf("affected = %d, want one per rule", got)
	}
	if len(fs.calls) != 2 || n.full != 2 {
		t.Fatalf("calls=%v full=%d", fs.calls, n.full)
	}
	if got := svc.Collect(context.Background(), models.CategoryServiceAlert); got != 0 || len(fs.calls) != 2 {
		t.Fatal("no service rule ids means no requests")
	}
}

func TestFetchErrorsAreCountedAndSkipped(t *testing.T) {
	m := metrics.New()
	fs := &fakeSearcher{
		byIndex: map[string][]models.RawRecord{"heartbeat-*": {{"monitor.name": "api", "url.full": "https://api"}}},
		errs: map[string]error{
			"metricbeat-*": &search.Error{Kind: search.KindStatus, Index: "metricbeat-*", Status: 500, Body: "boom"},
			"logs-*":       errors.New("weird"),
		},
	}
	n := &countingNotifier{}
	svc := newService(t, fs, n, m, models.CategoryCPU, models.CategoryLog, models.CategoryServiceDown)

	if got := svc.Tick(context.Background()); got != 1 {
		t.Fatalf("affected = %d, want 1 service down", got)
	}
	if v := testutil.ToFloat64(m.FetchErrorCounter("cpu", "status")); v != 1 {
		t.Fatalf("status errors = %v", v)
	}
	if v := testutil.ToFloat64(m.FetchErrorCounter("log", "unknown")); v != 1 {
		t.Fatalf("unknown errors = %v", v)
	}
}

func TestTickStopsOnCancel(t *testing.T) {
	fs := &fakeSearcher{}
	svc := newService(t, fs, &countingNotifier{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Tick(ctx)
	if len(fs.calls) != 0 {
		t.Fatalf("cancelled tick should not search, got %v", fs.calls)
	}
}

func TestCollectLogsKeepsEveryRecord(t *testing.T) {
	doc := func(msg string) models.RawRecord {
		return models.RawRecord{
			"@timestamp": "2026-10-15T10:00:00Z",
			"service":    map[string]any{"name": "billing"},
			"message":    msg,
		}
	}
	fs := &fakeSearcher{byIndex: map[string][]models.RawRecord{
		"logs-*": {
			doc("payment failed: card declined"),
			doc("db connection refused"),
			doc("PHP Fatal error: Allowed memory size exhausted"),
			doc(""),
		},
	}}
	path := filepath.Join(t.TempDir(), "user.log")
	n := &countingNotifier{}
	engine := alerts.NewEngine(models.Thresholds{}, discard(), nil)
	pub := compose.NewPublisher(n, logs.NewWriter(path), 2, discard())
	svc := NewService(fs, engine, pub, search.Params{Window: 60, Size: 10}, nil, discard(), nil)

	if got := svc.Collect(context.Background(), models.CategoryLog); got != 3 {
		t.Fatalf("affected = %d, want 3 logs with a message", got)
	}
	if n.brief != 2 || n.full != 1 {
		t.Fatalf("brief=%d full=%d, want 2 capped briefs and 1 summary", n.brief, n.full)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rolling log: %v", err)
	}
	for _, want := range []string{"card declined", "connection refused", "PHP Fatal error"} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("rolling log missing %q:\n%s", want, b)
		}
	}
	if got := strings.Count(string(b), "name: billing: Unknown"); got != 4 {
		t.Fatalf("rolling log has %d billing records, want all 4:\n%s", got, b)
	}
}
