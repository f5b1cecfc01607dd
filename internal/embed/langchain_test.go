package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLangChain implements embeddings.Embedder.
type fakeLangChain struct {
	docs    [][]string
	queries []string
	short   bool
}

func (f *fakeLangChain) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.docs = append(f.docs, texts)
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{0, 5}
	}
	return out, nil
}

func (f *fakeLangChain) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.queries = append(f.queries, text)
	return []float32{5, 0}, nil
}

func TestLangChainEmbedder_Embed_UsesQueryPath(t *testing.T) {
	fake := &fakeLangChain{}
	e := newLangChainEmbedder(fake, "text-embedding-ada-002", 2)

	vec, err := e.Embed(context.Background(), "cholesterol")

	require.NoError(t, err)
	assert.Equal(t, []string{"cholesterol"}, fake.queries)
	assert.InDelta(t, 1.0, vec[0], 1e-6)
}

func TestLangChainEmbedder_EmbedBatch_UsesDocumentPath(t *testing.T) {
	fake := &fakeLangChain{}
	e := newLangChainEmbedder(fake, "m", 2)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDelta(t, 1.0, vecs[1][1], 1e-6)
	assert.Len(t, fake.docs, 1)
}

func TestLangChainEmbedder_EmbedBatch_CountMismatch_ReturnsError(t *testing.T) {
	e := newLangChainEmbedder(&fakeLangChain{short: true}, "m", 2)

	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})

	assert.Error(t, err)
}

func TestLangChainEmbedder_Close_RejectsCalls(t *testing.T) {
	e := newLangChainEmbedder(&fakeLangChain{}, "m", 2)
	require.NoError(t, e.Close())

	assert.False(t, e.Available(context.Background()))
	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	assert.Error(t, err)

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", Model: "text-embedding-3-small", Dimensions: 512})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", e.ModelName())
	assert.Equal(t, 512, e.Dimensions())
}

func TestGeminiModelName(t *testing.T) {
	assert.Equal(t, "models/text-embedding-004", GeminiModelName("models/text-embedding-004"))
	assert.Equal(t, "tunedModels/x", GeminiModelName("tunedModels/x"))
	assert.Equal(t, DefaultGeminiModel, GeminiModelName("text-embedding-004"))
	assert.Equal(t, DefaultGeminiModel, GeminiModelName(""))
}
