package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/medrag/internal/config"
	merrors "github.com/Aman-CERP/medrag/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOpenAI uses the OpenAI embeddings API (default)
	ProviderOpenAI ProviderType = "openai"

	// ProviderGemini uses the Gemini embedding API
	ProviderGemini ProviderType = "gemini"

	// ProviderOllama uses a local Ollama server
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings (offline, no semantics)
	ProviderStatic ProviderType = "static"
)

// ValidProviders returns the accepted provider names.
func ValidProviders() []string {
	return []string{string(ProviderOpenAI), string(ProviderGemini), string(ProviderOllama), string(ProviderStatic)}
}

// ParseProvider converts a config string to a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderOpenAI, ProviderGemini, ProviderOllama, ProviderStatic:
		return p, nil
	case "":
		return ProviderOpenAI, nil
	default:
		return "", merrors.ConfigError(fmt.Sprintf("unknown embedding provider %q", s), nil).
			WithSuggestion("Use one of: " + strings.Join(ValidProviders(), ", "))
	}
}

// NewEmbedder builds the configured provider once, wrapped as
// cache(guard(provider)). There is no silent fallback: an explicit provider
// that cannot be constructed is an error.
//
// Dimensions is honored by openai and static. Gemini uses its model's native
// size and Ollama probes the pulled model.
func NewEmbedder(ctx context.Context, cfg *config.Config) (Embedder, error) {
	ec := cfg.Embeddings

	provider, err := ParseProvider(ec.Provider)
	if err != nil {
		return nil, err
	}

	var inner Embedder
	switch provider {
	case ProviderOpenAI:
		if ec.OpenAIAPIKey == "" {
			return nil, merrors.New(merrors.ErrCodeMissingAPIKey, "OpenAI API key is not set", nil).
				WithSuggestion("Export OPENAI_API_KEY or choose another provider with embeddings.provider")
		}
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     ec.OpenAIAPIKey,
			BaseURL:    ec.OpenAIBaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
		})

	case ProviderGemini:
		if ec.GeminiAPIKey == "" {
			return nil, merrors.New(merrors.ErrCodeMissingAPIKey, "Gemini API key is not set", nil).
				WithSuggestion("Export GEMINI_API_KEY or choose another provider with embeddings.provider")
		}
		inner, err = NewGeminiEmbedder(ctx, GeminiConfig{
			APIKey: ec.GeminiAPIKey,
			Model:  ec.Model,
		})

	case ProviderOllama:
		inner, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:           ec.OllamaHost,
			Model:          ec.Model,
			ConnectTimeout: cfg.EmbedTimeout(),
		})

	case ProviderStatic:
		inner = NewStaticEmbedderWithDims(ec.Dimensions)
	}
	if err != nil {
		return nil, merrors.EmbeddingUnavailable(fmt.Sprintf("create %s embedder", provider), err)
	}

	slog.Info("embedder_ready",
		slog.String("provider", string(provider)),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))

	return Wrap(inner, cfg), nil
}

// Wrap applies the guard and cache layers configured in cfg to inner.
func Wrap(inner Embedder, cfg *config.Config) Embedder {
	ec := cfg.Embeddings

	guardCfg := DefaultGuardConfig()
	guardCfg.Timeout = cfg.EmbedTimeout()
	guardCfg.MaxInputChars = ec.MaxInputChars
	guardCfg.RequestsPerSecond = ec.RequestsPerSecond
	guardCfg.Retry.MaxRetries = ec.MaxRetries

	guarded := NewGuardedEmbedder(inner, guardCfg)
	if ec.CacheSize < 0 {
		return guarded
	}
	return NewCachedEmbedder(guarded, ec.CacheSize, cfg.CacheTTL())
}
