package embed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainEmbedder adapts a langchaingo embedder (OpenAI, Gemini) to Embedder.
type LangChainEmbedder struct {
	inner embeddings.Embedder
	model string
	dims  int

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*LangChainEmbedder)(nil)

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// GeminiConfig configures the Gemini embedder.
type GeminiConfig struct {
	APIKey     string
	Model      string
	Dimensions int
}

// NewOpenAIEmbedder creates an embedder backed by the OpenAI embeddings API.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*LangChainEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required (set OPENAI_API_KEY)")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultOpenAIDimensions
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai: create client: %w", err)
	}

	inner, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(DefaultBatchSize))
	if err != nil {
		return nil, fmt.Errorf("openai: create embedder: %w", err)
	}

	return newLangChainEmbedder(inner, cfg.Model, cfg.Dimensions), nil
}

// NewGeminiEmbedder creates an embedder backed by the Gemini embedding API.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig) (*LangChainEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required (set GEMINI_API_KEY)")
	}
	cfg.Model = GeminiModelName(cfg.Model)
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultGeminiDimensions
	}

	client, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultEmbeddingModel(cfg.Model))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	inner, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(DefaultBatchSize))
	if err != nil {
		return nil, fmt.Errorf("gemini: create embedder: %w", err)
	}

	return newLangChainEmbedder(inner, cfg.Model, cfg.Dimensions), nil
}

// GeminiModelName returns a model name the Gemini API accepts.
// Anything not under models/ or tunedModels/ falls back to the default model.
func GeminiModelName(model string) string {
	if strings.HasPrefix(model, "models/") || strings.HasPrefix(model, "tunedModels/") {
		return model
	}
	return DefaultGeminiModel
}

func newLangChainEmbedder(inner embeddings.Embedder, model string, dims int) *LangChainEmbedder {
	return &LangChainEmbedder{inner: inner, model: model, dims: dims}
}

// Embed generates embedding for a single text
func (e *LangChainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.isClosed() {
		return nil, fmt.Errorf("embedder is closed")
	}

	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return Normalize(vec), nil
}

// EmbedBatch generates embeddings for multiple texts
func (e *LangChainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.isClosed() {
		return nil, fmt.Errorf("embedder is closed")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vecs, err := e.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d inputs", len(vecs), len(texts))
	}

	for i := range vecs {
		vecs[i] = Normalize(vecs[i])
	}
	return vecs, nil
}

// Dimensions returns the configured dimensionality
func (e *LangChainEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier
func (e *LangChainEmbedder) ModelName() string {
	return e.model
}

// Available reports whether the embedder is open.
// Remote APIs are not probed; failures surface on the first call.
func (e *LangChainEmbedder) Available(_ context.Context) bool {
	return !e.isClosed()
}

// Close marks the embedder closed.
func (e *LangChainEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *LangChainEmbedder) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}
