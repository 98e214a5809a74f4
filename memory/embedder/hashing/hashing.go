// Package hashing is a dependency-free memory.Embedder. It hashes folded
// word unigrams and bigrams into a fixed number of buckets, so texts that
// share vocabulary get a high cosine similarity. It is deterministic and
// works offline, which makes it the default for tests and local runs.
package hashing

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/becomeliminal/nim-memory/memory/textnorm"
)

// DefaultDimensions matches all-MiniLM-L6-v2 so indexes can be swapped.
const DefaultDimensions = 384

const bigramWeight = 0.5

// Embedder generates feature-hashed embeddings.
type Embedder struct {
	dimensions int
}

// New creates a hashing embedder. dims <= 0 selects DefaultDimensions.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dimensions: dims}
}

// Embed creates a deterministic unit vector from text. Text without any
// word yields the zero vector.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embedding := make([]float32, m.dimensions)
	tokens := textnorm.Tokens(text)
	for i, tok := range tokens {
		m.add(embedding, tok, 1)
		if i > 0 {
			m.add(embedding, tokens[i-1]+" "+tok, bigramWeight)
		}
	}

	return normalize(embedding), nil
}

// add hashes feature into a bucket. A second hash bit picks the sign so
// collisions tend to cancel out instead of accumulating.
func (m *Embedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(m.dimensions))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}

	return normalized
}
