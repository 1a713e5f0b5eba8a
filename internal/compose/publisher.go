package compose

import (
	"context"
	"log/slog"

	"kibalert/internal/alerts"
	"kibalert/internal/logs"
	"kibalert/internal/models"
	"kibalert/internal/notifier"
)

// Outcome counts what one Publish call emitted.
type Outcome struct {
	Brief     int
	Summaries int
	Logged    int
}

type Publisher struct {
	notify  notifier.Notifier
	rolling *logs.Writer
	limit   int
	log     *slog.Logger
}

// NewPublisher caps brief notifications at limit per batch; a negative limit
// is treated as zero. rolling may be nil when no rolling log is configured.
func NewPublisher(n notifier.Notifier, rolling *logs.Writer, limit int, logger *slog.Logger) *Publisher {
	return &Publisher{notify: n, rolling: rolling, limit: max(limit, 0), log: logger}
}

// Publish sends up to limit brief notifications, appends the whole batch to
// the rolling log and then sends one summary with that log attached.
func (p *Publisher) Publish(ctx context.Context, b alerts.Batch, th models.Thresholds) Outcome {
	var out Outcome
	entities := b.LogEntities()
	if len(entities) == 0 {
		p.log.Info("batch complete, nothing affected", "category", b.Category, "evaluated", b.Evaluated, "skipped", b.Skipped)
		return out
	}

	for i, a := range b.Affected {
		if i >= p.limit {
			break
		}
		p.notify.SendBrief(ctx, Message(a, th))
		out.Brief++
	}

	subject, body := Summary(b.Category, len(entities), th)
	if err := p.rolling.Append(subject, entities); err != nil {
		p.log.Error("append rolling log", "category", b.Category, "err", err)
	} else if p.rolling.Path() != "" {
		out.Logged = len(entities)
	}

	p.notify.SendFull(ctx, subject, body, p.rolling.Path())
	out.Summaries++

	p.log.Info("batch published", "category", b.Category, "affected", len(b.Affected),
		"brief", out.Brief, "capped", len(b.Affected)-out.Brief, "logged", out.Logged)
	return out
}
