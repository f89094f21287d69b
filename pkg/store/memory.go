package store

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore keeps documents in a map. It is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*Document)}
}

func (s *MemoryStore) Put(ctx context.Context, doc *Document) (*Document, error) {
	next, err := prepare(doc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current string
	if old, ok := s.docs[doc.Key]; ok {
		current = old.Revision
	}
	if err := checkRevision(doc.Key, doc.Revision, current); err != nil {
		return nil, err
	}
	s.docs[doc.Key] = next
	return clone(next), nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[key]
	if !ok {
		return nil, notFound(key)
	}
	return clone(doc), nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[key]; !ok {
		return notFound(key)
	}
	delete(s.docs, key)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var infos []Info
	for key, doc := range s.docs {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, doc.Info())
		}
	}
	sortInfos(infos)
	return infos, nil
}

func (s *MemoryStore) Close() error { return nil }

func clone(d *Document) *Document {
	out := *d
	out.Data = append([]byte(nil), d.Data...)
	return &out
}

var _ Store = (*MemoryStore)(nil)
