package embed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaConfig configures the Ollama embedder
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434)
	Host string

	// Model is the embedding model to use (default: nomic-embed-text)
	Model string

	// FallbackModels are tried in order if Model is not pulled
	FallbackModels []string

	// Dimensions overrides auto-detection (0 = probe the model)
	Dimensions int

	// BatchSize caps texts per /api/embed request (default: 32)
	BatchSize int

	// ConnectTimeout bounds model discovery at construction (default: 10s)
	ConnectTimeout time.Duration

	// SkipHealthCheck skips model discovery and dimension probing
	SkipHealthCheck bool
}

// FallbackOllamaModels are tried in order if the configured model is missing.
var FallbackOllamaModels = []string{
	"mxbai-embed-large",
	"all-minilm",
}

// ollamaAPI is the subset of *api.Client the embedder uses.
type ollamaAPI interface {
	Embed(ctx context.Context, req *api.EmbedRequest) (*api.EmbedResponse, error)
	List(ctx context.Context) (*api.ListResponse, error)
	Heartbeat(ctx context.Context) error
}

// OllamaEmbedder generates embeddings through a local Ollama server.
type OllamaEmbedder struct {
	client    ollamaAPI
	http      *http.Client
	config    OllamaConfig
	modelName string
	dims      int

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder connects to Ollama, resolves a pulled embedding model and
// probes its dimensionality.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.FallbackModels == nil {
		cfg.FallbackModels = FallbackOllamaModels
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	base, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", cfg.Host, err)
	}

	// No client-level timeout: every call carries its own context deadline.
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     10 * time.Second,
		},
	}

	return newOllamaEmbedder(ctx, api.NewClient(base, httpClient), httpClient, cfg)
}

func newOllamaEmbedder(ctx context.Context, client ollamaAPI, httpClient *http.Client, cfg OllamaConfig) (*OllamaEmbedder, error) {
	e := &OllamaEmbedder{
		client:    client,
		http:      httpClient,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	if cfg.SkipHealthCheck {
		return e, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	model, err := e.findAvailableModel(checkCtx)
	if err != nil {
		e.closeIdle()
		return nil, fmt.Errorf("failed to connect to Ollama or find model: %w", err)
	}
	e.modelName = model

	if e.dims == 0 {
		vecs, err := e.embed(checkCtx, []string{"dimension probe"})
		if err != nil {
			e.closeIdle()
			return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
		}
		e.dims = len(vecs[0])
	}

	slog.Debug("ollama_embedder_ready",
		slog.String("host", cfg.Host),
		slog.String("model", e.modelName),
		slog.Int("dimensions", e.dims))

	return e, nil
}

// findAvailableModel matches the configured model (or a fallback) against
// the pulled models, with or without a ":tag" suffix.
func (e *OllamaEmbedder) findAvailableModel(ctx context.Context) (string, error) {
	resp, err := e.client.List(ctx)
	if err != nil {
		return "", err
	}

	available := make(map[string]string)
	for _, m := range resp.Models {
		name := strings.ToLower(m.Name)
		available[name] = m.Name
		base, _, _ := strings.Cut(name, ":")
		if _, exists := available[base]; !exists {
			available[base] = m.Name
		}
	}

	candidates := append([]string{e.config.Model}, e.config.FallbackModels...)
	for _, c := range candidates {
		name := strings.ToLower(c)
		if actual, ok := available[name]; ok {
			return actual, nil
		}
		base, _, _ := strings.Cut(name, ":")
		if actual, ok := available[base]; ok {
			return actual, nil
		}
	}

	return "", fmt.Errorf("no embedding model available (tried %s and %v)", e.config.Model, e.config.FallbackModels)
}

// Embed generates embedding for a single text
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings in requests of at most BatchSize texts.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.isClosed() {
		return nil, fmt.Errorf("embedder is closed")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(texts))

		vecs, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, vecs...)
	}

	return results, nil
}

func (e *OllamaEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.modelName,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, v := range resp.Embeddings {
		out[i] = Normalize(v)
	}
	return out, nil
}

// Dimensions returns the embedding dimension
func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the resolved model name
func (e *OllamaEmbedder) ModelName() string {
	return e.modelName
}

// Available checks that the Ollama server answers.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.isClosed() {
		return false
	}
	return e.client.Heartbeat(ctx) == nil
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.closeIdle()
	return nil
}

func (e *OllamaEmbedder) closeIdle() {
	if e.http != nil {
		e.http.CloseIdleConnections()
	}
}

func (e *OllamaEmbedder) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}
