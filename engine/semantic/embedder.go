// Package semantic turns vehicle text into vectors and answers nearest-neighbour queries.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/WessleyAI/carfinder/pkg/ollama"
)

// HashModel names the built-in hashing embedder.
const HashModel = "hash"

// DefaultDim is the dimension of the hashing embedder.
const DefaultDim = 384

// Sentinel errors.
var (
	ErrDimensionMismatch = errors.New("semantic: embedding dimension mismatch")
	ErrEmptyIndex        = errors.New("semantic: index is empty")
)

// Embedder maps text to an L2-normalized vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model names the embedding model; vectors from different models never mix.
	Model() string
}

// HashEmbedder is a deterministic feature-hashing embedder. Identical text
// always yields the identical vector.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a HashEmbedder of the given dimension (DefaultDim when <= 0).
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &HashEmbedder{dim: dim}
}

// Model returns HashModel.
func (h *HashEmbedder) Model() string { return HashModel }

// Dim returns the vector length.
func (h *HashEmbedder) Dim() int { return h.dim }

// Embed hashes unigrams and bigrams of text into a signed bag of features.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	tokens := tokenize(text)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	Normalize(vec)
	return vec, nil
}

func (h *HashEmbedder) add(vec []float32, feature string, weight float32) {
	f := fnv.New64a()
	f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

// OllamaEmbedder embeds through a local Ollama server.
type OllamaEmbedder struct {
	client *ollama.Client
	model  string
}

// NewOllamaEmbedder creates an embedder for model.
func NewOllamaEmbedder(client *ollama.Client, model string) *OllamaEmbedder {
	return &OllamaEmbedder{client: client, model: model}
}

// Model returns the Ollama model name.
func (o *OllamaEmbedder) Model() string { return o.model }

// Embed returns the normalized embedding of text.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := o.client.Embed(ctx, o.model, text)
	if err != nil {
		return nil, err
	}
	Normalize(vec)
	return vec, nil
}

// SelectEmbedder picks the embedder for this process. The hashing embedder is
// used when model is HashModel or Ollama does not serve model. The choice is
// fixed for the process so the index never mixes dimensions.
func SelectEmbedder(ctx context.Context, client *ollama.Client, model string, dim int, logger *slog.Logger) Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" || model == HashModel || client == nil {
		return NewHashEmbedder(dim)
	}
	ok, err := client.HasModel(ctx, model)
	switch {
	case err != nil:
		logger.Warn("ollama unavailable, using hash embedder", "model", model, "err", err)
		return NewHashEmbedder(dim)
	case !ok:
		logger.Warn("embedding model not installed, using hash embedder", "model", model)
		return NewHashEmbedder(dim)
	}
	return NewOllamaEmbedder(client, model)
}

// Normalize scales v to unit length in place. A zero vector is left as is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// Cosine returns the cosine similarity of a and b.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
