// Package compose turns evaluated batches into notifications.
package compose

import (
	"fmt"
	"strings"

	"kibalert/internal/models"
)

// Message formats the brief notification for one affected entity.
func Message(a models.Affected, th models.Thresholds) string {
	var b strings.Builder
	ts := a.Timestamp
	switch a.Category {
	case models.CategoryCPU:
		fmt.Fprintf(&b, "🔴 High CPU Usage Alert on %s! ❌\n\n", a.Name)
		fmt.Fprintf(&b, "CPU Usage: %s%%\n", metric(a.CPUPct))
		fmt.Fprintf(&b, "Threshold: %s%%\n", models.FormatFloat(th.CPUPct))
		fmt.Fprintf(&b, "System: %s | Kernel: %s\n", a.Attr("platform"), a.Attr("kernel"))
		fmt.Fprintf(&b, "Timestamp: %s\n\n", ts)
		fmt.Fprintf(&b, "# CPU Usage\nSystem CPU Cores: %s cores\nSystem User Usage: %s\nSystem CPU Usage: %s\nCPU Usage Calculation: %s\n\n",
			a.Attr("sys_cores"), a.Attr("sys_user_usage"), a.Attr("sys_cpu_usage"), a.Attr("cpu_calc"))
		fmt.Fprintf(&b, "# System Load\nSystem Load: %s\nSystem Load Cores: %s\n\n", a.Attr("sys_load"), a.Attr("load_cores"))
		fmt.Fprintf(&b, "# Memory\nMemory Usage: %s%%\n\n# Disk Usage\nDisk Usage: %s%%", a.Attr("memory_usage"), a.Attr("disk_usage"))
	case models.CategoryLatency:
		fmt.Fprintf(&b, "🔴 High Latency Alert On %s ❌\n\n", a.Name)
		fmt.Fprintf(&b, "Timestamp: %s\nExceeded threshold: %s ms\n\n", ts, models.FormatFloat(th.LatencyMs))
		fmt.Fprintf(&b, "TCP Latency: %s ms\nTLS Latency: %s ms\nHTTP Latency: %s ms", metric(a.TCPMs), metric(a.TLSMs), metric(a.HTTPMs))
	case models.CategoryLog:
		fmt.Fprintf(&b, "🔴 Log Alert! Issue detected:\n")
		fmt.Fprintf(&b, "📅 Timestamp: %s\n", ts)
		fmt.Fprintf(&b, "💻 Host: %s (%s)\n", a.Attr("hostname"), a.Attr("host_ip"))
		fmt.Fprintf(&b, "📌 Service: %s [%s]\n", a.Attr("service_name"), a.Attr("service_env"))
		fmt.Fprintf(&b, "⚙️ Runtime: %s v%s\n", a.Attr("runtime"), a.Attr("runtime_version"))
		fmt.Fprintf(&b, "🌐 URL: %s\n", a.Attr("url"))
		fmt.Fprintf(&b, "🛠️ Culprit: %s\n", a.Attr("culprit"))
		fmt.Fprintf(&b, "❗ Exception: %s - %s\n", a.Attr("exception_code"), a.Attr("exception_message"))
		fmt.Fprintf(&b, "📝 Log Message: %s", a.Attr("message"))
	case models.CategoryHostAlert:
		fmt.Fprintf(&b, "🔴 Host Alert on %s ❌\n\n", a.Name)
		fmt.Fprintf(&b, "Reason: %s\nRule Category: %s\n", a.Attr("alert_reason"), a.Attr("rule_category"))
		fmt.Fprintf(&b, "System: %s %s | Kernel: %s\nTimestamp: %s", a.Attr("platform"), a.Attr("version"), a.Attr("kernel"), ts)
	case models.CategoryServiceAlert:
		fmt.Fprintf(&b, "🔴 Service Alert on %s ❌\n\n", a.Name)
		fmt.Fprintf(&b, "Reason: %s\nEnvironment: %s\nTransaction: %s\nLanguage: %s\nTimestamp: %s",
			a.Attr("alert_reason"), a.Attr("service_environment"), a.Attr("transaction_type"), a.Attr("language"), ts)
	case models.CategoryHostDown:
		fmt.Fprintf(&b, "⚠️ Host %s has stopped reporting data\nLast seen: %s", a.Name, ts)
	case models.CategoryServiceDown:
		fmt.Fprintf(&b, "🔴 Service %s %s is DOWN!\n", a.Name, a.Attr("url"))
		fmt.Fprintf(&b, "🌍 Location: %s\n🕒 Timestamp: %s", a.Attr("location"), ts)
	default:
		return a.Line()
	}
	return b.String()
}

// Summary returns the subject and body of the batch-level full notification.
func Summary(c models.Category, count int, th models.Thresholds) (subject, body string) {
	switch c {
	case models.CategoryCPU:
		return fmt.Sprintf("🔴 High CPU Usage Detected on [%d] Hosts ❌", count),
			fmt.Sprintf("CPU usage on %d hosts exceeded %s%%. Check file attachment for logs.", count, models.FormatFloat(th.CPUPct))
	case models.CategoryLatency:
		return fmt.Sprintf("High Latency Detected on %d Hosts", count),
			fmt.Sprintf("Latency exceeded %s ms on %d hosts. Check attached log.", models.FormatFloat(th.LatencyMs), count)
	case models.CategoryLog:
		return "📌 Logs Collected for further Analysis",
			fmt.Sprintf("Attached log file contains %d logs for analysis.", count)
	case models.CategoryHostAlert:
		return fmt.Sprintf("Host Alerts Raised on %d Hosts", count),
			fmt.Sprintf("Alert rules fired on %d hosts. A file with the alert details has been attached.", count)
	case models.CategoryServiceAlert:
		return fmt.Sprintf("High Latency Detected on %d Services", count),
			fmt.Sprintf("Alert rules fired on %d services. A file with the alert details has been attached.", count)
	case models.CategoryHostDown:
		return fmt.Sprintf("⚠️ Host Downtime Alert: %d Hosts Not Reporting", count),
			fmt.Sprintf("%d hosts stopped reporting data (threshold %d). Check attached log.", count, max(th.HostDownCount, 1))
	case models.CategoryServiceDown:
		return fmt.Sprintf("⚠️ Service Downtime Alert: %d Services Are Down", count),
			fmt.Sprintf("%d services are down (threshold %d). Check attached log.", count, max(th.ServiceDownCount, 1))
	default:
		return fmt.Sprintf("%d affected %s entities", count, c), "Check attached log."
	}
}

func metric(m models.Metric) string {
	if !m.Present {
		return "n/a"
	}
	return models.FormatFloat(m.Value)
}
