package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider is one configured LLM backend.
type Provider struct {
	Name  string
	Model llms.Model
}

// ProviderConfig holds credentials; a provider with an empty key is skipped.
type ProviderConfig struct {
	GeminiKey     string
	GeminiModel   string
	DeepSeekKey   string
	DeepSeekURL   string
	DeepSeekModel string
	OpenAIKey     string
	OpenAIModel   string
}

// NewProviders builds every provider that has credentials, in the order
// Gemini, DeepSeek, OpenAI.
func NewProviders(ctx context.Context, cfg ProviderConfig) ([]Provider, error) {
	var out []Provider
	if cfg.GeminiKey != "" {
		m, err := googleai.New(ctx, googleai.WithAPIKey(cfg.GeminiKey), googleai.WithDefaultModel(cfg.GeminiModel))
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		out = append(out, Provider{Name: "gemini", Model: m})
	}
	if cfg.DeepSeekKey != "" {
		m, err := openai.New(
			openai.WithToken(cfg.DeepSeekKey),
			openai.WithModel(cfg.DeepSeekModel),
			openai.WithBaseURL(DeepSeekBaseURL(cfg.DeepSeekURL)),
		)
		if err != nil {
			return nil, fmt.Errorf("deepseek: %w", err)
		}
		out = append(out, Provider{Name: "deepseek", Model: m})
	}
	if cfg.OpenAIKey != "" {
		m, err := openai.New(openai.WithToken(cfg.OpenAIKey), openai.WithModel(cfg.OpenAIModel))
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		out = append(out, Provider{Name: "openai", Model: m})
	}
	return out, nil
}

// DeepSeekBaseURL accepts either the API base or the full chat completions
// endpoint and returns the base the OpenAI-compatible client expects.
func DeepSeekBaseURL(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if u == "" {
		return "https://api.deepseek.com/v1"
	}
	return strings.TrimSuffix(u, "/chat/completions")
}
