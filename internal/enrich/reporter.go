// Package enrich builds an incident narrative from the collected logs with
// one or more LLM providers and publishes it as a report file.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"

	"kibalert/internal/logs"
	"kibalert/internal/metrics"
	"kibalert/internal/notifier"
)

const reportSubject = "AI Analysis"

var reportTemplate = prompts.NewPromptTemplate(`Here is a summarized application log:
`+"```log"+`
{{.summary}}
`+"```"+`
Key errors detected:
`+"```log"+`
{{.critical}}
`+"```"+`
Alerts collected since the last report:
`+"```log"+`
{{.alerts}}
`+"```"+`
{{.instructions}}`, []string{"summary", "critical", "alerts", "instructions"})

type Options struct {
	Instructions   string
	SystemContext  string
	Temperature    float64
	UserLogFile    string
	AppLogFile     string
	ReportDir      string
	MaxPromptBytes int64
}

type Reporter struct {
	providers []Provider
	notify    notifier.Notifier
	opts      Options
	log       *slog.Logger
	metrics   *metrics.Metrics
	newID     func() string
}

func NewReporter(providers []Provider, n notifier.Notifier, opts Options, logger *slog.Logger, m *metrics.Metrics) *Reporter {
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.ReportDir == "" {
		opts.ReportDir = "."
	}
	return &Reporter{providers: providers, notify: n, opts: opts, log: logger, metrics: m, newID: uuid.NewString}
}

func (r *Reporter) Enabled() bool { return len(r.providers) > 0 }

// Prompt assembles the human message from the rolling and application logs.
func (r *Reporter) Prompt() (string, error) {
	alerts, err := logs.Tail(r.opts.UserLogFile, r.opts.MaxPromptBytes)
	if err != nil {
		return "", fmt.Errorf("read user log: %w", err)
	}
	critical, err := logs.CategorizeFile(r.opts.UserLogFile)
	if err != nil {
		return "", fmt.Errorf("categorize user log: %w", err)
	}
	appTail, err := logs.Tail(r.opts.AppLogFile, r.opts.MaxPromptBytes)
	if err != nil {
		return "", fmt.Errorf("read app log: %w", err)
	}
	summary, err := logs.Summarize(strings.NewReader(appTail))
	if err != nil {
		return "", fmt.Errorf("summarize app log: %w", err)
	}
	return reportTemplate.Format(map[string]any{
		"summary":      orNone(summary),
		"critical":     orNone(critical),
		"alerts":       orNone(alerts),
		"instructions": r.opts.Instructions,
	})
}

// Run asks every provider for a report, writes each non-empty answer to its
// own file and sends it as a full notification. It returns the written
// report paths and the joined provider errors.
func (r *Reporter) Run(ctx context.Context) ([]string, error) {
	if !r.Enabled() {
		r.log.Info("report skipped, no provider configured")
		return nil, nil
	}
	prompt, err := r.Prompt()
	if err != nil {
		return nil, err
	}
	var msgs []llms.MessageContent
	if sys := strings.TrimSpace(r.opts.SystemContext); sys != "" {
		msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeSystem, sys))
	}
	msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeHuman, prompt))

	var (
		paths []string
		errs  []error
	)
	for _, p := range r.providers {
		path, err := r.generate(ctx, p, msgs)
		r.metrics.Enrichment(p.Name, err)
		if err != nil {
			r.log.Warn("report generation failed", "provider", p.Name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
			continue
		}
		if path == "" {
			r.log.Info("provider returned an empty report", "provider", p.Name)
			continue
		}
		paths = append(paths, path)
		r.notify.SendFull(ctx, reportSubject, filepath.Base(path), path)
		r.log.Info("report published", "provider", p.Name, "path", path)
	}
	return paths, errors.Join(errs...)
}

func (r *Reporter) generate(ctx context.Context, p Provider, msgs []llms.MessageContent) (string, error) {
	resp, err := p.Model.GenerateContent(ctx, msgs, llms.WithTemperature(r.opts.Temperature))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", nil
	}
	if err := os.MkdirAll(r.opts.ReportDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(r.opts.ReportDir, "report_"+r.newID()+".md")
	if err := os.WriteFile(path, []byte(resp.Choices[0].Content), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
