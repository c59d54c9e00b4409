package retrieval

import (
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultEmbeddingDim is the fixed dimension of the hash-based embedding.
// Implementers of pluggable providers must fix a dimension at construction
// and reject mismatched vectors, per spec.md §9 open questions.
const DefaultEmbeddingDim = 64

// EmbeddingProvider is a pure function text -> fixed-dimension vector.
// Swappable at Retriever construction. The default implementation never
// performs I/O; a provider that does may suspend per spec.md §5.
type EmbeddingProvider interface {
	// Embed returns a fixed-dimension vector for text.
	Embed(text string) ([]float64, error)
	// Dim returns the fixed dimension this provider produces.
	Dim() int
}

// HashEmbeddingProvider is the default deterministic embedding: token
// hashing projected into a fixed-dim vector, then L2-normalized. It never
// fails and never performs I/O.
type HashEmbeddingProvider struct {
	dim int
}

// NewHashEmbeddingProvider constructs a HashEmbeddingProvider with the given
// dimension, defaulting to DefaultEmbeddingDim when dim <= 0.
func NewHashEmbeddingProvider(dim int) *HashEmbeddingProvider {
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}
	return &HashEmbeddingProvider{dim: dim}
}

// Dim returns the provider's fixed dimension.
func (p *HashEmbeddingProvider) Dim() int { return p.dim }

// Embed tokenizes text on whitespace/punctuation, hashes each token with
// xxhash into a bucket (and a second hash into a sign), accumulates into a
// fixed-dim vector, and L2-normalizes the result. Identical input always
// produces an identical vector: no randomness, no clock, no I/O.
func (p *HashEmbeddingProvider) Embed(text string) ([]float64, error) {
	vec := make([]float64, p.dim)
	for _, tok := range tokenize(text) {
		h := xxhash.Sum64String(tok)
		bucket := int(h % uint64(p.dim))
		sign := 1.0
		if (h/uint64(p.dim))%2 == 1 {
			sign = -1.0
		}
		vec[bucket] += sign
	}
	return l2Normalize(vec), nil
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// l2Normalize scales vec to unit length. A zero vector is returned unchanged.
func l2Normalize(vec []float64) []float64 {
	var sumSq float64
	for _, v := range vec {
		sumSq += v * v
	}
	if sumSq == 0 {
		return vec
	}
	norm := math.Sqrt(sumSq)
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

// cosine computes the cosine similarity of two equal-length vectors.
// Mismatched lengths or zero vectors yield 0.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
