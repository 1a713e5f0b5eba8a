package models

import "strings"

type Category string

const (
	CategoryCPU          Category = "cpu"
	CategoryLatency      Category = "latency"
	CategoryLog          Category = "log"
	CategoryHostAlert    Category = "host_alert"
	CategoryServiceAlert Category = "service_alert"
	CategoryHostDown     Category = "host_down"
	CategoryServiceDown  Category = "service_down"
)

// Categories lists every category in the order a polling iteration checks them.
var Categories = []Category{
	CategoryHostAlert,
	CategoryServiceAlert,
	CategoryLatency,
	CategoryCPU,
	CategoryHostDown,
	CategoryServiceDown,
	CategoryLog,
}

const Unknown = "unknown"

// RawRecord is the _source document of one search hit.
type RawRecord map[string]any

// Metric is a numeric reading that may be missing from the source document.
type Metric struct {
	Value   float64
	Present bool
}

func Value(v float64) Metric { return Metric{Value: v, Present: true} }

type Attr struct {
	Key   string
	Value string
}

type Entity struct {
	Name      string
	Timestamp string
	Category  Category
	CPUPct    Metric
	TCPMs     Metric
	TLSMs     Metric
	HTTPMs    Metric
	Attrs     []Attr
}

// Attr returns the descriptive attribute stored under key, or "" when absent.
func (e Entity) Attr(key string) string {
	for _, a := range e.Attrs {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

// Fields flattens the entity into ordered key/value pairs.
func (e Entity) Fields() []Attr {
	out := make([]Attr, 0, len(e.Attrs)+6)
	out = append(out, Attr{"name", e.Name}, Attr{"category", string(e.Category)}, Attr{"timestamp", e.Timestamp})
	switch e.Category {
	case CategoryCPU:
		out = append(out, metricAttr("cpu_usage", e.CPUPct))
	case CategoryLatency:
		out = append(out, metricAttr("tcp_ms", e.TCPMs), metricAttr("tls_ms", e.TLSMs), metricAttr("http_ms", e.HTTPMs))
	}
	return append(out, e.Attrs...)
}

// Line renders the flattened fields as "key: value, key: value".
func (e Entity) Line() string {
	fields := e.Fields()
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Key+": "+f.Value)
	}
	return strings.Join(parts, ", ")
}

func metricAttr(key string, m Metric) Attr {
	if !m.Present {
		return Attr{key, "n/a"}
	}
	return Attr{key, FormatFloat(m.Value)}
}

type Affected struct {
	Entity
	Metric string
	Value  float64
}

type Thresholds struct {
	CPUPct           float64
	LatencyMs        float64
	HostDownCount    int
	ServiceDownCount int
}
