// Package chromem is a memory.VectorIndex on chromem-go, a pure Go embedded
// vector database. Each namespace (one per user) is its own collection.
package chromem

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory"
)

// Index wraps chromem-go for vector storage.
type Index struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection // per-namespace collections
	mu          sync.RWMutex
	logger      log.Logger
}

// New creates an in-memory index.
func New(logger log.Logger) *Index {
	return newIndex(chromem.NewDB(), logger)
}

// NewPersistent creates an index persisted under path.
func NewPersistent(path string, logger log.Logger) (*Index, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("open chromem db %s: %w", path, err)
	}
	idx := newIndex(db, logger)
	for name, col := range db.ListCollections() {
		idx.collections[strings.TrimPrefix(name, "ns_")] = col
	}
	return idx, nil
}

func newIndex(db *chromem.DB, logger log.Logger) *Index {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Index{
		db:          db,
		collections: make(map[string]*chromem.Collection),
		logger:      logger,
	}
}

func collectionName(namespace string) string {
	if namespace == "" {
		return "global"
	}
	return "ns_" + namespace
}

// collection returns the namespace's collection, creating it when create is set.
func (s *Index) collection(namespace string, create bool) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[namespace]
	s.mu.RUnlock()

	if exists || !create {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := s.collections[namespace]; exists {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(
		collectionName(namespace),
		map[string]string{"namespace": namespace},
		nil, // embeddings are always provided by the caller
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	s.collections[namespace] = col
	return col, nil
}

// Upsert stores the vector. chromem replaces documents with the same ID.
func (s *Index) Upsert(ctx context.Context, namespace, id string, vector []float32, metadata map[string]string) error {
	if len(vector) == 0 {
		return fmt.Errorf("upsert %s/%s: empty vector", namespace, id)
	}
	col, err := s.collection(namespace, true)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        id,
		Embedding: append([]float32(nil), vector...),
		Metadata:  metadata,
		Content:   metadata["content"],
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	s.logger.Debugf(ctx, "[CHROMEM] Upserted %s in namespace %s", id, namespace)
	return nil
}

// Query returns the topK most similar vectors matching filter.
func (s *Index) Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]string) ([]memory.VectorMatch, error) {
	col, err := s.collection(namespace, false)
	if err != nil || col == nil || topK <= 0 {
		return nil, err
	}

	// chromem-go requires nResults <= collection size
	n := topK
	if count := col.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	var where map[string]string
	if len(filter) > 0 {
		where = filter
	}

	results, err := col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		if isInsufficientDocsError(err) {
			// A concurrent delete shrank the collection.
			return nil, nil
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]memory.VectorMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, memory.VectorMatch{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Metadata: r.Metadata,
		})
	}

	s.logger.Debugf(ctx, "[CHROMEM] Namespace %s returned %d matches", namespace, len(matches))
	return matches, nil
}

// Delete removes one vector.
func (s *Index) Delete(ctx context.Context, namespace, id string) error {
	col, err := s.collection(namespace, false)
	if err != nil || col == nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("chromem delete: %w", err)
	}
	return nil
}

// DeleteNamespace drops the namespace's collection.
func (s *Index) DeleteNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(collectionName(namespace)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	delete(s.collections, namespace)
	s.logger.Debugf(ctx, "[CHROMEM] Dropped namespace %s", namespace)
	return nil
}

// Close releases resources. chromem keeps everything in memory or flushes
// on every write, so there is nothing to close.
func (s *Index) Close() error {
	return nil
}

// isInsufficientDocsError checks if error is due to insufficient documents.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
