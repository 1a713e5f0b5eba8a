package alerts

import (
	"log/slog"

	"kibalert/internal/metrics"
	"kibalert/internal/models"
)

type Engine struct {
	th      models.Thresholds
	log     *slog.Logger
	metrics *metrics.Metrics
}

// Batch is the result of evaluating one fetched result set.
type Batch struct {
	Category models.Category
	Affected []models.Affected
	// Logged holds every evaluated record for categories whose rolling log
	// keeps the full feed (logs). Empty means the affected entities are logged.
	Logged     []models.Entity
	Evaluated  int
	Skipped    int
	Duplicates int
	// Gated is set when a down check found fewer entities than its count threshold.
	Gated bool
}

func NewEngine(th models.Thresholds, logger *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{th: th, log: logger, metrics: m}
}

func (e *Engine) Thresholds() models.Thresholds { return e.th }

// LogEntities returns the entities to append to the rolling log.
func (b Batch) LogEntities() []models.Entity {
	if len(b.Logged) > 0 {
		return b.Logged
	}
	out := make([]models.Entity, len(b.Affected))
	for i, a := range b.Affected {
		out[i] = a.Entity
	}
	return out
}

// Evaluate classifies entities in arrival order and drops any entity whose
// name was already emitted earlier in the same batch. Log batches keep every
// distinct record in Logged; only the affected ones raise alerts.
func (e *Engine) Evaluate(c models.Category, entities []models.Entity) Batch {
	b := Batch{Category: c}
	keepAll := c == models.CategoryLog
	seen := NewDedupSet()
	for _, ent := range entities {
		v := Classify(ent, e.th)
		if v.Skipped {
			b.Skipped++
			e.log.Info("no data for monitored metric", "category", c, "entity", ent.Name, "metric", v.Metric)
			continue
		}
		b.Evaluated++
		if !v.Affected && !keepAll {
			continue
		}
		if !seen.Add(ent.Name) {
			b.Duplicates++
			continue
		}
		if keepAll {
			b.Logged = append(b.Logged, ent)
		}
		if !v.Affected {
			continue
		}
		b.Affected = append(b.Affected, models.Affected{Entity: ent, Metric: v.Metric, Value: v.Value})
		e.log.Info("affected", "category", c, "entity", ent.Name, "ts", ent.Timestamp, "metric", v.Metric, "value", v.Value)
	}

	if gate := e.downGate(c); gate > 0 && len(b.Affected) > 0 && len(b.Affected) < gate {
		e.log.Info("down count below threshold", "category", c, "count", len(b.Affected), "threshold", gate)
		b.Affected = nil
		b.Logged = nil
		b.Gated = true
	}

	e.metrics.ObserveBatch(string(c), b.Evaluated, b.Skipped, len(b.Affected), b.Duplicates)
	return b
}

func (e *Engine) downGate(c models.Category) int {
	switch c {
	case models.CategoryHostDown:
		return max(e.th.HostDownCount, 1)
	case models.CategoryServiceDown:
		return max(e.th.ServiceDownCount, 1)
	default:
		return 0
	}
}
