package memory

import (
	"context"
	"time"

	"github.com/becomeliminal/nim-memory/core"
)

// Collections used in the DocumentStore.
const (
	CollectionEpisodic = "episodic"
	CollectionLongTerm = "longterm"
)

// DocumentStore persists Episodic and Long-Term records as opaque JSON
// documents. Implementations: inmem (tests), sqlite (embedded), postgres.
//
// purgeAt is the hard-delete index: PurgeExpired removes every document whose
// purgeAt is before now. A zero purgeAt never expires.
type DocumentStore interface {
	// Put creates or replaces a document.
	Put(ctx context.Context, collection, id string, doc []byte, purgeAt time.Time) error

	// Get returns ErrNotFound when the document does not exist or was purged.
	Get(ctx context.Context, collection, id string) ([]byte, error)

	// Delete is a no-op for missing documents.
	Delete(ctx context.Context, collection, id string) error

	// List returns the IDs in a collection starting with prefix, sorted.
	List(ctx context.Context, collection, prefix string) ([]string, error)

	// PurgeExpired hard-deletes expired documents and returns how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)

	// Close releases resources.
	Close() error
}

// VectorMatch is one result of a similarity query.
type VectorMatch struct {
	ID       string
	Score    float64 // cosine similarity, higher is closer
	Metadata map[string]string
}

// VectorIndex is the vector similarity backend. There is one namespace per user.
// Implementations: chromem (local), postgres (pgvector).
type VectorIndex interface {
	// Upsert stores or replaces the vector for id.
	Upsert(ctx context.Context, namespace, id string, vector []float32, metadata map[string]string) error

	// Query returns at most topK matches sorted by score, highest first.
	// Every key in filter must equal the match's metadata value.
	// An unknown namespace yields no matches, not an error.
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]string) ([]VectorMatch, error)

	// Delete removes one vector. Missing IDs are ignored.
	Delete(ctx context.Context, namespace, id string) error

	// DeleteNamespace removes every vector of a namespace.
	DeleteNamespace(ctx context.Context, namespace string) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: hashing (deterministic, local), onnx (local model), openai.
type Embedder interface {
	// Embed converts a single text to embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// SummaryRequest asks for a short description of a long-term category.
type SummaryRequest struct {
	Category core.Category
	Items    []string
	MaxWords int
}

// TextService is the optional semantic helper: classification refinement,
// compression to a word ceiling and category summarization.
//
// Every implementation other than textsvc.Local may fail or time out;
// callers must wrap them with textsvc.Resilient or handle the fallback.
type TextService interface {
	// Classify scores text against the candidate categories (0-100).
	Classify(ctx context.Context, text string, candidates []core.Category) ([]core.CategoryScore, error)

	// Compress rewrites text to at most maxWords words.
	Compress(ctx context.Context, text string, maxWords int) (string, error)

	// Summarize produces a category description.
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}
