package alerts

import (
	"strings"

	"kibalert/internal/models"
)

// Verdict is the outcome of testing one entity against its threshold.
// Skipped entities carry no data for the monitored metric and are neither
// affected nor unaffected.
type Verdict struct {
	Affected bool
	Skipped  bool
	Metric   string
	Value    float64
}

// Classify applies the category threshold to e. CPU compares inclusively,
// latency exclusively, and latency sub-metrics are OR-combined.
func Classify(e models.Entity, th models.Thresholds) Verdict {
	switch e.Category {
	case models.CategoryCPU:
		if !e.CPUPct.Present {
			return Verdict{Skipped: true, Metric: "cpu_usage"}
		}
		return Verdict{
			Affected: compare(e.CPUPct.Value, ">=", th.CPUPct),
			Metric:   "cpu_usage",
			Value:    e.CPUPct.Value,
		}
	case models.CategoryLatency:
		subs := []struct {
			name string
			m    models.Metric
		}{{"tcp_ms", e.TCPMs}, {"tls_ms", e.TLSMs}, {"http_ms", e.HTTPMs}}
		seen := false
		worst := Verdict{Metric: "latency"}
		for _, s := range subs {
			if !s.m.Present {
				continue
			}
			seen = true
			if compare(s.m.Value, ">", th.LatencyMs) {
				return Verdict{Affected: true, Metric: s.name, Value: s.m.Value}
			}
			if s.m.Value > worst.Value {
				worst.Metric, worst.Value = s.name, s.m.Value
			}
		}
		if !seen {
			return Verdict{Skipped: true, Metric: "latency"}
		}
		return worst
	case models.CategoryLog:
		msg := strings.TrimSpace(e.Attr("message"))
		exc := strings.TrimSpace(e.Attr("exception_message"))
		if exc == "No message" {
			exc = ""
		}
		return Verdict{Affected: msg != "" || exc != "", Metric: "message"}
	case models.CategoryHostAlert, models.CategoryServiceAlert, models.CategoryHostDown, models.CategoryServiceDown:
		return Verdict{Affected: true, Metric: string(e.Category), Value: 1}
	default:
		return Verdict{Skipped: true}
	}
}

func compare(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	default:
		return false
	}
}
