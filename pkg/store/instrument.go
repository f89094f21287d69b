package store

import (
	"context"
	"time"

	"github.com/matzehuels/persist/pkg/observability"
)

// instrumented reports every operation of a backend to the store hooks.
type instrumented struct {
	Store
	backend string
}

// Instrument wraps s so that each operation is reported to
// [observability.Store] under the given backend name.
func Instrument(s Store, backend string) Store {
	if _, ok := s.(*instrumented); ok {
		return s
	}
	return &instrumented{Store: s, backend: backend}
}

func (s *instrumented) report(ctx context.Context, op, key string, start time.Time, err error) {
	observability.Store().OnStoreOp(ctx, s.backend, op, key, time.Since(start), err)
}

func (s *instrumented) Put(ctx context.Context, doc *Document) (*Document, error) {
	start := time.Now()
	out, err := s.Store.Put(ctx, doc)
	var key string
	if doc != nil {
		key = doc.Key
	}
	s.report(ctx, "put", key, start, err)
	return out, err
}

func (s *instrumented) Get(ctx context.Context, key string) (*Document, error) {
	start := time.Now()
	doc, err := s.Store.Get(ctx, key)
	s.report(ctx, "get", key, start, err)
	return doc, err
}

func (s *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.Store.Delete(ctx, key)
	s.report(ctx, "delete", key, start, err)
	return err
}

func (s *instrumented) List(ctx context.Context, prefix string) ([]Info, error) {
	start := time.Now()
	infos, err := s.Store.List(ctx, prefix)
	s.report(ctx, "list", prefix, start, err)
	return infos, err
}
