package enrich

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

type fakeModel struct {
	reply string
	err   error
	got   []llms.MessageContent
}

func (f *fakeModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = msgs
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

type fullCall struct{ subject, body, attachment string }

type fakeNotifier struct{ full []fullCall }

func (f *fakeNotifier) SendBrief(context.Context, string) {}
func (f *fakeNotifier) SendFull(_ context.Context, subject, body, attachment string) {
	f.full = append(f.full, fullCall{subject, body, attachment})
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func setup(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	user := filepath.Join(dir, "user.log")
	app := filepath.Join(dir, "app.log")
	if err := os.WriteFile(user, []byte("\nHigh CPU\nname: web-1, category: cpu\nPHP Fatal error: Allowed memory size exhausted\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(app, []byte(`{"level":"INFO","msg":"tick"}`+"\n"+`{"level":"ERROR","msg":"search failed"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return Options{
		Instructions:  "Summarize the incidents.",
		SystemContext: "You are an SRE.",
		UserLogFile:   user,
		AppLogFile:    app,
		ReportDir:     filepath.Join(dir, "reports"),
	}
}

func TestPrompt(t *testing.T) {
	r := NewReporter(nil, &fakeNotifier{}, setup(t), discard(), nil)
	prompt, err := r.Prompt()
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	for _, want := range []string{"search failed", "## PHP Errors", "name: web-1", "Summarize the incidents."} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "tick") {
		t.Fatalf("info lines should be summarized away:\n%s", prompt)
	}
}

func TestRunWritesAndSendsReports(t *testing.T) {
	opts := setup(t)
	good := &fakeModel{reply: "# Incident report"}
	bad := &fakeModel{err: errors.New("quota exceeded")}
	empty := &fakeModel{reply: "  "}
	n := &fakeNotifier{}
	r := NewReporter([]Provider{{"gemini", bad}, {"openai", good}, {"deepseek", empty}}, n, opts, discard(), nil)
	r.newID = func() string { return "fixed" }

	paths, err := r.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "gemini: quota exceeded") {
		t.Fatalf("expected joined provider error, got %v", err)
	}
	want := filepath.Join(opts.ReportDir, "report_fixed.md")
	if len(paths) != 1 || paths[0] != want {
		t.Fatalf("paths = %v", paths)
	}
	b, err := os.ReadFile(want)
	if err != nil || string(b) != "# Incident report" {
		t.Fatalf("report = %q err %v", b, err)
	}
	if len(n.full) != 1 || n.full[0] != (fullCall{"AI Analysis", "report_fixed.md", want}) {
		t.Fatalf("notifications = %+v", n.full)
	}
	if len(good.got) != 2 || good.got[0].Role != schema.ChatMessageTypeSystem {
		t.Fatalf("expected system + human messages, got %+v", good.got)
	}
}

func TestRunWithoutProviders(t *testing.T) {
	n := &fakeNotifier{}
	paths, err := NewReporter(nil, n, setup(t), discard(), nil).Run(context.Background())
	if err != nil || paths != nil || len(n.full) != 0 {
		t.Fatalf("paths=%v err=%v", paths, err)
	}
}

func TestDeepSeekBaseURL(t *testing.T) {
	cases := map[string]string{
		"": "https://api.deepseek.com/v1",
		"https://api.deepseek.com/v1/chat/completions": "https://api.deepseek.com/v1",
		"https://proxy.local/v1/":                      "https://proxy.local/v1",
	}
	for in, want := range cases {
		if got := DeepSeekBaseURL(in); got != want {
			t.Fatalf("DeepSeekBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewProvidersSkipsMissingKeys(t *testing.T) {
	ps, err := NewProviders(context.Background(), ProviderConfig{})
	if err != nil || len(ps) != 0 {
		t.Fatalf("providers=%v err=%v", ps, err)
	}
	ps, err = NewProviders(context.Background(), ProviderConfig{OpenAIKey: "sk-test", OpenAIModel: "gpt-4o-mini", DeepSeekKey: "ds", DeepSeekModel: "deepseek-chat"})
	if err != nil {
		t.Fatalf("new providers: %v", err)
	}
	if len(ps) != 2 || ps[0].Name != "deepseek" || ps[1].Name != "openai" {
		t.Fatalf("unexpected providers %+v", ps)
	}
}
