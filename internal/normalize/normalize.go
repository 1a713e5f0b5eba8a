package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"kibalert/internal/models"
)

const notAvailable = "N/A"

// Record converts one raw search document into the canonical entity for
// its category. It never fails: unresolved fields fall back to sentinels.
func Record(raw models.RawRecord, c models.Category) models.Entity {
	src := map[string]any(raw)
	var e models.Entity
	switch c {
	case models.CategoryCPU:
		e = cpu(src)
	case models.CategoryLatency:
		e = latency(src)
	case models.CategoryLog:
		e = logEntry(src)
	case models.CategoryHostAlert:
		e = hostAlert(src)
	case models.CategoryServiceAlert:
		e = serviceAlert(src)
	case models.CategoryHostDown:
		e = hostDown(src)
	case models.CategoryServiceDown:
		e = serviceDown(src)
	default:
		e = models.Entity{Timestamp: str(src, "@timestamp", models.Unknown)}
	}
	e.Category = c
	if strings.TrimSpace(e.Name) == "" {
		e.Name = models.Unknown
	}
	return e
}

func Records(raws []models.RawRecord, c models.Category) []models.Entity {
	out := make([]models.Entity, 0, len(raws))
	for _, r := range raws {
		out = append(out, Record(r, c))
	}
	return out
}

// CPUPercent converts a raw host.cpu.usage reading to a percentage. Upstream
// agents report either a fraction or a percentage with no unit tag, so any
// value <= 1 is treated as a fraction.
func CPUPercent(raw float64) float64 {
	if raw <= 1 {
		raw *= 100
	}
	return round2(raw)
}

// Millis converts a microsecond reading to milliseconds.
func Millis(us float64) float64 { return us / 1000 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func cpu(src map[string]any) models.Entity {
	e := models.Entity{
		Name:      str(src, "host.name", models.Unknown),
		Timestamp: str(src, "@timestamp", models.Unknown),
	}
	if v, ok := floatNum(src, "host.cpu.usage"); ok {
		e.CPUPct = models.Value(CPUPercent(v))
	}
	e.Attrs = []models.Attr{
		{Key: "platform", Value: str(src, "host.os.platform", models.Unknown)},
		{Key: "kernel", Value: str(src, "host.os.kernel", models.Unknown)},
		{Key: "sys_cores", Value: str(src, "system.cpu.cores", "0")},
		{Key: "sys_cpu_usage", Value: str(src, "system.cpu.system.pct", "0.00")},
		{Key: "sys_user_usage", Value: str(src, "system.cpu.user.pct", "0.00")},
		{Key: "cpu_calc", Value: cpuCalc(src)},
		{Key: "sys_load", Value: str(src, "system.load.1", "unavailable")},
		{Key: "load_cores", Value: str(src, "system.load.cores", "unavailable")},
		{Key: "memory_usage", Value: str(src, "system.memory.actual.used.pct", models.Unknown)},
		{Key: "disk_usage", Value: str(src, "system.filesystem.used.pct", models.Unknown)},
	}
	return e
}

// cpuCalc derives usage from the system and user shares spread over cores.
func cpuCalc(src map[string]any) string {
	sys, err1 := strconv.ParseFloat(str(src, "system.cpu.system.pct", "0.00"), 64)
	user, err2 := strconv.ParseFloat(str(src, "system.cpu.user.pct", "0.00"), 64)
	cores, err3 := strconv.ParseFloat(str(src, "system.cpu.cores", "1"), 64)
	if err1 != nil || err2 != nil || err3 != nil || cores == 0 {
		return notAvailable
	}
	return models.FormatFloat(round2((sys + user) / cores * 100))
}

func latency(src map[string]any) models.Entity {
	e := models.Entity{
		Name:      str(src, "url.full", models.Unknown),
		Timestamp: str(src, "@timestamp", models.Unknown),
	}
	if v, ok := num(src, "tcp.rtt.connect.us"); ok {
		e.TCPMs = models.Value(Millis(v))
	}
	if v, ok := num(src, "tls.rtt.handshake.us"); ok {
		e.TLSMs = models.Value(Millis(v))
	}
	if v, ok := num(src, "http.rtt.total.us"); ok {
		e.HTTPMs = models.Value(Millis(v))
	}
	return e
}

func logEntry(src map[string]any) models.Entity {
	service := str(src, "service.name", "Unknown")
	culprit := str(src, "error.culprit", "Unknown")
	e := models.Entity{
		Timestamp: str(src, "@timestamp", notAvailable),
		Attrs: []models.Attr{
			{Key: "agent", Value: str(src, "agent.name", notAvailable)},
			{Key: "version", Value: str(src, "agent.version", notAvailable)},
			{Key: "culprit", Value: culprit},
			{Key: "exception_code", Value: first(src, "error.exception", "code", notAvailable)},
			{Key: "exception_message", Value: first(src, "error.exception", "message", "No message")},
			{Key: "service_name", Value: service},
			{Key: "service_env", Value: str(src, "service.environment", notAvailable)},
			{Key: "hostname", Value: str(src, "host.name", "Unknown")},
			{Key: "host_ip", Value: str(src, "host.ip", notAvailable)},
			{Key: "runtime", Value: str(src, "service.runtime.name", "Unknown")},
			{Key: "runtime_version", Value: str(src, "service.runtime.version", notAvailable)},
			{Key: "url", Value: str(src, "url.full", notAvailable)},
			{Key: "transaction", Value: str(src, "transaction.name", notAvailable)},
			{Key: "message", Value: str(src, "message", "")},
		},
	}
	// Many log lines share service and culprit, so the name carries a
	// per-record id to keep each line distinct within a batch.
	e.Name = service + ": " + culprit + " @ " + logID(src, e)
	return e
}

// logNamespace scopes the name-based ids derived for log documents.
var logNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("kibalert:log"))

// logID is the document _id when the search response carried one, else the
// first block of a name-based UUID over the fields that tell two log lines
// apart.
func logID(src map[string]any, e models.Entity) string {
	if id := str(src, "_id", ""); id != "" {
		return id
	}
	parts := []string{e.Attr("service_name"), e.Attr("culprit"), e.Timestamp, e.Attr("hostname"),
		e.Attr("exception_code"), e.Attr("exception_message"), e.Attr("message")}
	return uuid.NewSHA1(logNamespace, []byte(strings.Join(parts, "\x1f"))).String()[:8]
}

func hostAlert(src map[string]any) models.Entity {
	hostname := str(src, "host.hostname", "")
	name := str(src, "host.name", "")
	return models.Entity{
		Name:      firstNonEmpty(hostname, name, str(src, "kibana.alert.instance.id", "")),
		Timestamp: str(src, "@timestamp", ""),
		Attrs: []models.Attr{
			{Key: "host_name", Value: hostname},
			{Key: "platform", Value: str(src, "host.os.platform", "")},
			{Key: "version", Value: str(src, "host.os.version", "")},
			{Key: "rule_category", Value: str(src, "kibana.alert.rule.category", "")},
			{Key: "alert_reason", Value: str(src, "kibana.alert.reason", "")},
			{Key: "os", Value: str(src, "host.os.type", "")},
			{Key: "kernel", Value: str(src, "host.os.kernel", "")},
			{Key: "resource_type", Value: str(src, "kibana.alert.rule.producer", "")},
		},
	}
}

func serviceAlert(src map[string]any) models.Entity {
	service := str(src, "service.name", "")
	instance := str(src, "kibana.alert.instance.id", "")
	return models.Entity{
		Name:      firstNonEmpty(service, instance),
		Timestamp: str(src, "@timestamp", models.Unknown),
		Attrs: []models.Attr{
			{Key: "service_name", Value: service},
			{Key: "alert_reason", Value: str(src, "kibana.alert.reason", "")},
			{Key: "language", Value: str(src, "service.language.name", "")},
			{Key: "alert_instance", Value: instance},
			{Key: "processor_event", Value: str(src, "processor.event", "")},
			{Key: "service_environment", Value: str(src, "service.environment", "")},
			{Key: "transaction_type", Value: str(src, "transaction.type", "")},
			{Key: "rule_category", Value: str(src, "kibana.alert.rule.category", "")},
		},
	}
}

func hostDown(src map[string]any) models.Entity {
	return models.Entity{
		Name:      str(src, "host.name", models.Unknown),
		Timestamp: str(src, "@timestamp", models.Unknown),
	}
}

func serviceDown(src map[string]any) models.Entity {
	url := str(src, "url.full", notAvailable)
	return models.Entity{
		Name:      firstNonEmpty(str(src, "monitor.name", ""), url),
		Timestamp: str(src, "@timestamp", notAvailable),
		Attrs: []models.Attr{
			{Key: "monitor_id", Value: str(src, "monitor.id", notAvailable)},
			{Key: "url", Value: url},
			{Key: "location", Value: str(src, "observer.geo.name", "Unknown Location")},
		},
	}
}
