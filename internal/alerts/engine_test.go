package alerts

import (
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"kibalert/internal/metrics"
	"kibalert/internal/models"
)

var th = models.Thresholds{CPUPct: 90, LatencyMs: 1000, HostDownCount: 2}

func newTestEngine(m *metrics.Metrics) *Engine {
	return NewEngine(th, slog.New(slog.NewTextHandler(io.Discard, nil)), m)
}

func cpuEntity(name string, pct float64) models.Entity {
	return models.Entity{Name: name, Category: models.CategoryCPU, CPUPct: models.Value(pct)}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		v, th float64
		op    string
		want  bool
	}{
		{91, 90, ">", true},
		{90, 90, ">=", true},
		{89, 90, ">", false},
		{90, 90, ">", false},
		{89, 90, ">=", false},
		{1, 1, "==", false},
	}
	for _, tc := range cases {
		if got := compare(tc.v, tc.op, tc.th); got != tc.want {
			t.Fatalf("compare(%v %s %v) got %v want %v", tc.v, tc.op, tc.th, got, tc.want)
		}
	}
}

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		name string
		e    models.Entity
		want bool
	}{
		{"cpu at threshold is inclusive", cpuEntity("h", 90.0), true},
		{"cpu below threshold", cpuEntity("h", 89.99), false},
		{"tcp at threshold is exclusive", models.Entity{Category: models.CategoryLatency, TCPMs: models.Value(1000.0)}, false},
		{"tls above threshold", models.Entity{Category: models.CategoryLatency, TCPMs: models.Value(10), TLSMs: models.Value(1000.001)}, true},
		{"http alone above threshold", models.Entity{Category: models.CategoryLatency, HTTPMs: models.Value(2500)}, true},
		{"host alert is categorical", models.Entity{Category: models.CategoryHostAlert}, true},
		{"log with message", models.Entity{Category: models.CategoryLog, Attrs: []models.Attr{{Key: "message", Value: "boom"}}}, true},
		{"log without content", models.Entity{Category: models.CategoryLog, Attrs: []models.Attr{{Key: "exception_message", Value: "No message"}}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Classify(tc.e, th)
			if v.Skipped {
				t.Fatalf("unexpected skip: %+v", v)
			}
			if v.Affected != tc.want {
				t.Fatalf("affected = %v, want %v (%+v)", v.Affected, tc.want, v)
			}
		})
	}
}

func TestClassifyLatencyReportsTriggeringMetric(t *testing.T) {
	v := Classify(models.Entity{Category: models.CategoryLatency, TCPMs: models.Value(5), TLSMs: models.Value(1200), HTTPMs: models.Value(3000)}, th)
	if !v.Affected || v.Metric != "tls_ms" || v.Value != 1200 {
		t.Fatalf("unexpected verdict: %+v", v)
	}
}

func TestClassifyMissingMetricIsSkipped(t *testing.T) {
	for _, e := range []models.Entity{
		{Name: "h", Category: models.CategoryCPU},
		{Name: "u", Category: models.CategoryLatency},
	} {
		if v := Classify(e, th); !v.Skipped || v.Affected {
			t.Fatalf("%s: expected skip, got %+v", e.Category, v)
		}
	}
}

func TestEvaluateFirstOccurrenceWins(t *testing.T) {
	engine := newTestEngine(nil)
	b := engine.Evaluate(models.CategoryCPU, []models.Entity{
		cpuEntity("web-1", 95),
		cpuEntity("web-2", 50),
		cpuEntity("web-1", 99.5),
		cpuEntity("web-3", 91),
	})
	if len(b.Affected) != 2 {
		t.Fatalf("affected len = %d, want 2", len(b.Affected))
	}
	if b.Affected[0].Name != "web-1" || b.Affected[0].Value != 95 {
		t.Fatalf("first affected = %+v, want web-1 at 95", b.Affected[0])
	}
	if b.Affected[1].Name != "web-3" {
		t.Fatalf("second affected = %s, want web-3", b.Affected[1].Name)
	}
	if b.Duplicates != 1 || b.Evaluated != 4 {
		t.Fatalf("duplicates=%d evaluated=%d", b.Duplicates, b.Evaluated)
	}
}

func TestEvaluateUnaffectedOccurrenceDoesNotSuppress(t *testing.T) {
	engine := newTestEngine(nil)
	b := engine.Evaluate(models.CategoryCPU, []models.Entity{cpuEntity("db", 10), cpuEntity("db", 97)})
	if len(b.Affected) != 1 || b.Affected[0].Value != 97 {
		t.Fatalf("unexpected batch: %+v", b)
	}
}

func TestEvaluateCountsSkipped(t *testing.T) {
	m := metrics.New()
	engine := newTestEngine(m)
	b := engine.Evaluate(models.CategoryCPU, []models.Entity{
		cpuEntity("a", 95),
		{Name: "b", Category: models.CategoryCPU},
		cpuEntity("c", 10),
		{Name: "d", Category: models.CategoryCPU},
	})
	if b.Skipped != 2 || b.Evaluated != 2 || len(b.Affected) != 1 {
		t.Fatalf("skipped=%d evaluated=%d affected=%d", b.Skipped, b.Evaluated, len(b.Affected))
	}
	if got := testutil.ToFloat64(m.SkippedCounter("cpu")); got != 2 {
		t.Fatalf("skipped counter = %v, want 2", got)
	}
}

func TestEvaluateDownGate(t *testing.T) {
	engine := newTestEngine(nil)
	down := func(name string) models.Entity { return models.Entity{Name: name, Category: models.CategoryHostDown} }

	b := engine.Evaluate(models.CategoryHostDown, []models.Entity{down("a")})
	if len(b.Affected) != 0 || !b.Gated {
		t.Fatalf("expected gated batch, got %+v", b)
	}
	b = engine.Evaluate(models.CategoryHostDown, []models.Entity{down("a"), down("b"), down("a")})
	if len(b.Affected) != 2 || b.Gated {
		t.Fatalf("expected two down hosts, got %+v", b)
	}
	b = engine.Evaluate(models.CategoryServiceDown, []models.Entity{{Name: "svc", Category: models.CategoryServiceDown}})
	if len(b.Affected) != 1 {
		t.Fatalf("service down default gate should be 1, got %+v", b)
	}
}

func TestDedupSet(t *testing.T) {
	d := NewDedupSet()
	if !d.Add("x") || d.Add("x") || !d.Add("y") || d.Len() != 2 {
		t.Fatal("unexpected dedup behaviour")
	}
}

func logEntity(id, msg string) models.Entity {
	return models.Entity{
		Name:     "billing: Unknown @ " + id,
		Category: models.CategoryLog,
		Attrs:    []models.Attr{{Key: "exception_message", Value: "No message"}, {Key: "message", Value: msg}},
	}
}

func TestEvaluateLogsKeepEveryRecord(t *testing.T) {
	engine := newTestEngine(nil)
	b := engine.Evaluate(models.CategoryLog, []models.Entity{
		logEntity("a", "payment failed"),
		logEntity("b", "db connection refused"),
		logEntity("c", ""),
		logEntity("a", "payment failed"),
	})
	if len(b.Affected) != 2 || b.Duplicates != 1 {
		t.Fatalf("affected=%d duplicates=%d, want 2 and 1", len(b.Affected), b.Duplicates)
	}
	if len(b.Logged) != 3 {
		t.Fatalf("logged = %d, want every distinct record", len(b.Logged))
	}
	if got := b.LogEntities(); len(got) != 3 || got[2].Name != "billing: Unknown @ c" {
		t.Fatalf("log entities = %+v", got)
	}
}

func TestBatchLogEntitiesDefaultsToAffected(t *testing.T) {
	b := newTestEngine(nil).Evaluate(models.CategoryCPU, []models.Entity{cpuEntity("a", 95), cpuEntity("b", 10)})
	got := b.LogEntities()
	if len(b.Logged) != 0 || len(got) != 1 || got[0].Name != "a" {
		t.Fatalf("log entities = %+v", got)
	}
}
