package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants
const (
	// DefaultTimeout bounds a single provider call.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxInputChars truncates texts before they reach a provider.
	DefaultMaxInputChars = 8000

	// DefaultBatchSize is the number of texts sent per provider request.
	DefaultBatchSize = 32

	// DefaultMaxRetries is the default number of retries for transient failures.
	DefaultMaxRetries = 2
)

// Provider defaults
const (
	// DefaultOpenAIModel matches the 1536-dimension collection default.
	DefaultOpenAIModel = "text-embedding-ada-002"

	// DefaultOpenAIDimensions is the dimensionality of DefaultOpenAIModel.
	DefaultOpenAIDimensions = 1536

	// DefaultGeminiModel is the Gemini embedding model.
	DefaultGeminiModel = "models/embedding-001"

	// DefaultGeminiDimensions is the dimensionality of DefaultGeminiModel.
	DefaultGeminiDimensions = 768

	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is a general-purpose text embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	// StaticDimensions is the embedding dimension for the static embedder.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text.
// Every vector it returns is L2-normalized and has Dimensions() components.
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, index-aligned
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// Normalize scales v to unit length.
// A zero vector has no direction and is returned unchanged.
func Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// IsZero reports whether v is empty or has no non-zero component.
func IsZero(v []float32) bool {
	for _, val := range v {
		if val != 0 {
			return false
		}
	}
	return true
}

// Float64To32 converts provider output to the index's float32 representation.
func Float64To32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(val)
	}
	return out
}
