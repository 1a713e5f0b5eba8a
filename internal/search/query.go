package search

import (
	"fmt"

	"kibalert/internal/models"
)

// Query is the JSON body of a _search request.
type Query struct {
	Size   int              `json:"size"`
	Source []string         `json:"_source,omitempty"`
	Query  map[string]any   `json:"query"`
	Sort   []map[string]any `json:"sort,omitempty"`
}

// Request pairs a query with the index pattern it targets.
type Request struct {
	Index string
	Query Query
	// RuleID is set for alert-rule requests.
	RuleID string
}

// Params carry the configured knobs the query builders depend on.
type Params struct {
	Window         int // seconds; one polling interval
	Size           int
	HostRuleIDs    []string
	ServiceRuleIDs []string
}

const (
	hostAlertWindow    = "now-1h"
	serviceAlertWindow = "now-20m"
	downWindow         = "now-5m"
	hostDownSize       = 200
	serviceDownSize    = 100
	alertSize          = 1000
)

// For returns the requests that fetch one category. Alert categories yield
// one request per configured rule id, and none when no ids are configured.
func For(c models.Category, p Params) []Request {
	switch c {
	case models.CategoryCPU:
		return []Request{CPU(p.Window, p.Size)}
	case models.CategoryLatency:
		return []Request{Latency(p.Window, p.Size)}
	case models.CategoryLog:
		return []Request{Logs(p.Window, p.Size)}
	case models.CategoryHostDown:
		return []Request{HostDown()}
	case models.CategoryServiceDown:
		return []Request{ServiceDown()}
	case models.CategoryHostAlert:
		out := make([]Request, 0, len(p.HostRuleIDs))
		for _, id := range p.HostRuleIDs {
			out = append(out, RuleAlerts(id, hostAlertWindow))
		}
		return out
	case models.CategoryServiceAlert:
		out := make([]Request, 0, len(p.ServiceRuleIDs))
		for _, id := range p.ServiceRuleIDs {
			out = append(out, RuleAlerts(id, serviceAlertWindow))
		}
		return out
	default:
		return nil
	}
}

func since(window int) map[string]any {
	return rangeFrom(fmt.Sprintf("now-%ds", window))
}

func rangeFrom(gte string) map[string]any {
	return map[string]any{"range": map[string]any{"@timestamp": map[string]any{"gte": gte, "lt": "now"}}}
}

func CPU(window, size int) Request {
	return Request{
		Index: "metricbeat-*",
		Query: Query{
			Size: size,
			Source: []string{
				"host.name", "@timestamp", "host.ip", "host.os.kernel", "host.os.platform",
				"host.hostname", "host.cpu.usage", "system.cpu.user.pct", "system.cpu.system.pct",
				"system.cpu.cores", "system.memory.actual.used.pct", "system.filesystem.used.pct",
				"system.load.cores", "system.load.1",
			},
			Query: map[string]any{"bool": map[string]any{"must": []any{
				since(window),
				map[string]any{"exists": map[string]any{"field": "host.cpu.usage"}},
			}}},
			Sort: newestFirst(),
		},
	}
}

func Latency(window, size int) Request {
	return Request{
		Query: Query{
			Size:   size,
			Source: []string{"@timestamp", "url.full", "tcp.rtt.connect.us", "tls.rtt.handshake.us", "http.rtt.total.us"},
			Query: map[string]any{"bool": map[string]any{
				"must":   []any{since(window)},
				"filter": []any{map[string]any{"term": map[string]any{"monitor.status": "up"}}},
			}},
			Sort: newestFirst(),
		},
	}
}

func Logs(window, size int) Request {
	return Request{
		Index: "logs-*",
		Query: Query{Size: size, Query: since(window), Sort: newestFirst()},
	}
}

func HostDown() Request {
	return Request{
		Index: "metricbeat-*",
		Query: Query{
			Size:   hostDownSize,
			Source: []string{"host.name", "@timestamp"},
			Query:  map[string]any{"bool": map[string]any{"must_not": []any{rangeFrom(downWindow)}}},
		},
	}
}

func ServiceDown() Request {
	return Request{
		Index: "heartbeat-*",
		Query: Query{
			Size:   serviceDownSize,
			Source: []string{"monitor.name", "monitor.id", "url.full", "@timestamp", "observer.geo.name"},
			Query: map[string]any{"bool": map[string]any{"must": []any{
				rangeFrom(downWindow),
				map[string]any{"match": map[string]any{"monitor.status": "down"}},
			}}},
		},
	}
}

// RuleAlerts selects alert documents raised by one Kibana rule.
func RuleAlerts(ruleID, gte string) Request {
	return Request{
		Index:  ".alerts-*",
		RuleID: ruleID,
		Query: Query{
			Size: alertSize,
			Query: map[string]any{"bool": map[string]any{
				"must":   []any{map[string]any{"term": map[string]any{"kibana.alert.rule.uuid": ruleID}}},
				"filter": []any{map[string]any{"range": map[string]any{"@timestamp": map[string]any{"gte": gte, "lte": "now"}}}},
			}},
		},
	}
}

func newestFirst() []map[string]any {
	return []map[string]any{{"@timestamp": map[string]any{"order": "desc"}}}
}
