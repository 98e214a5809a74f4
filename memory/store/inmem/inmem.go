// Package inmem is an in-process memory.DocumentStore for tests and local
// development. Documents live only as long as the process.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/becomeliminal/nim-memory/memory"
)

type document struct {
	data    []byte
	purgeAt time.Time
}

// Store implements memory.DocumentStore.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]document
	closed      bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]document)}
}

func (s *Store) Put(ctx context.Context, collection, id string, doc []byte, purgeAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return memory.ErrClosed
	}
	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string]document)
		s.collections[collection] = c
	}
	c[id] = document{data: append([]byte(nil), doc...), purgeAt: purgeAt}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, memory.ErrClosed
	}
	d, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, memory.ErrNotFound)
	}
	return append([]byte(nil), d.data...), nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return memory.ErrClosed
	}
	delete(s.collections[collection], id)
	return nil
}

func (s *Store) List(ctx context.Context, collection, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, memory.ErrClosed
	}
	var ids []string
	for id := range s.collections[collection] {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, memory.ErrClosed
	}
	purged := 0
	for _, c := range s.collections {
		for id, d := range c {
			if !d.purgeAt.IsZero() && d.purgeAt.Before(now) {
				delete(c, id)
				purged++
			}
		}
	}
	return purged, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
