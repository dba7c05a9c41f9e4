package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
	"github.com/Heyoub/caliber-sub001/internal/models"
)

type stubEmbedder struct {
	calls int
	vec   []float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) (models.Embedding, error) {
	s.calls++
	return models.Embedding{Vector: s.vec, ModelID: "stub", Dimensions: len(s.vec)}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]models.Embedding, error) {
	out := make([]models.Embedding, len(texts))
	for i, t := range texts {
		e, _ := s.Embed(ctx, t)
		out[i] = e
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return len(s.vec) }
func (s *stubEmbedder) ModelID() string { return "stub" }

func TestRegistry_NoProvider_ReturnsProviderNotConfigured(t *testing.T) {
	r := NewRegistry()
	_, err := r.Embedder()
	require.Error(t, err)
	assert.True(t, caliberr.HasKind(err, caliberr.KindProviderNotConfigured))
	assert.False(t, r.HasEmbedder())
}

func TestRegistry_FirstRegisteredWinsWithoutRouting(t *testing.T) {
	r := NewRegistry()
	first := &stubEmbedder{vec: []float32{1}}
	second := &stubEmbedder{vec: []float32{2}}
	r.RegisterEmbedder("first", first)
	r.RegisterEmbedder("second", second)

	e, err := r.Embedder()
	require.NoError(t, err)
	emb, err := e.Embed(t.Context(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, emb.Vector)
}

func TestRegistry_RoutingOverridesFirstRegistered(t *testing.T) {
	r := NewRegistry()
	first := &stubEmbedder{vec: []float32{1}}
	second := &stubEmbedder{vec: []float32{2}}
	r.RegisterEmbedder("first", first)
	r.RegisterEmbedder("second", second)
	r.SetRouting(Routing{CapabilityEmbedder: "second"})

	e, err := r.Embedder()
	require.NoError(t, err)
	emb, err := e.Embed(t.Context(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{2}, emb.Vector)
}

func TestCachingEmbedder_CachesBySHA256OfText(t *testing.T) {
	inner := &stubEmbedder{vec: []float32{1, 2, 3}}
	cached := NewCachingEmbedder(inner, 10)

	_, err := cached.Embed(t.Context(), "hello")
	require.NoError(t, err)
	_, err = cached.Embed(t.Context(), "hello")
	require.NoError(t, err)
	_, err = cached.Embed(t.Context(), "world")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls, "repeated text should hit the cache, distinct text should not")
}

func TestCachingEmbedder_EvictsWhenFull(t *testing.T) {
	inner := &stubEmbedder{vec: []float32{1}}
	cached := NewCachingEmbedder(inner, 2)

	for _, text := range []string{"a", "b", "c", "d"} {
		_, err := cached.Embed(t.Context(), text)
		require.NoError(t, err)
	}

	cached.mu.Lock()
	size := len(cached.cache)
	cached.mu.Unlock()
	assert.LessOrEqual(t, size, 2)
}
