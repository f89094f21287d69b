// Package store keeps encoded documents (assets) under string keys.
//
// Backends:
//   - memory: in-process map, for tests and the dev server
//   - file: one JSON file per asset under a directory, for the CLI
//   - sqlite: a single database file (modernc.org/sqlite, no cgo)
//   - mongo: a MongoDB collection, for multi-instance servers
//
// Every Put assigns a fresh revision id. A Put that carries a revision only
// succeeds when it matches the stored revision, which gives callers
// optimistic concurrency without locks.
//
// # Usage
//
//	s, err := store.Open(ctx, store.Config{Backend: "sqlite", DSN: "assets.db"})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	doc, err := s.Put(ctx, &store.Document{Key: "levels/one", Format: "yaml", Data: data})
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/persist/pkg/errors"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when no document exists under a key.
	ErrNotFound = errors.New(errors.ErrCodeNotFound, "document not found")

	// ErrConflict is returned when a Put carries a stale revision.
	ErrConflict = errors.New(errors.ErrCodeConflict, "revision conflict")
)

// Document is one stored asset.
type Document struct {
	Key       string    `json:"key" bson:"_id"`
	Format    string    `json:"format" bson:"format"`
	Data      []byte    `json:"data" bson:"data"`
	Revision  string    `json:"revision" bson:"revision"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Info describes a document without its data.
type Info struct {
	Key       string    `json:"key"`
	Format    string    `json:"format"`
	Size      int       `json:"size"`
	Revision  string    `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Info returns the document's metadata.
func (d *Document) Info() Info {
	return Info{Key: d.Key, Format: d.Format, Size: len(d.Data), Revision: d.Revision, UpdatedAt: d.UpdatedAt}
}

// Store is the interface for asset storage backends.
type Store interface {
	// Put stores doc and returns the stored copy with its new revision.
	// If doc.Revision is set it must match the current revision, and a
	// missing document only matches an empty revision.
	Put(ctx context.Context, doc *Document) (*Document, error)

	// Get returns the document under key or ErrNotFound.
	Get(ctx context.Context, key string) (*Document, error)

	// Delete removes the document under key or returns ErrNotFound.
	Delete(ctx context.Context, key string) error

	// List returns the documents whose key starts with prefix, by key.
	List(ctx context.Context, prefix string) ([]Info, error)

	// Close releases the backend's resources.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Backend is one of "memory", "file", "sqlite" or "mongo".
	Backend string `toml:"backend"`
	// DSN is the directory (file), database path (sqlite) or URI (mongo).
	DSN string `toml:"dsn"`
	// Database and Collection name the mongo collection.
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// Backends lists the supported backend names.
var Backends = []string{"memory", "file", "sqlite", "mongo"}

// Open creates the configured backend. Operations on the returned store
// report to the registered observability store hooks.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case "", "memory":
		s = NewMemoryStore()
	case "file":
		s, err = NewFileStore(cfg.DSN)
	case "sqlite":
		s, err = NewSQLiteStore(ctx, cfg.DSN)
	case "mongo":
		s, err = NewMongoStore(ctx, MongoConfig{URI: cfg.DSN, Database: cfg.Database, Collection: cfg.Collection})
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown store backend %q (supported: %s)", cfg.Backend, strings.Join(Backends, ", "))
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	name := cfg.Backend
	if name == "" {
		name = "memory"
	}
	return Instrument(s, name), nil
}

// prepare validates doc and returns the copy to store.
func prepare(doc *Document) (*Document, error) {
	if doc == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "document is nil")
	}
	if err := errors.ValidateKey(doc.Key); err != nil {
		return nil, err
	}
	if doc.Format == "" {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "document %q has no format", doc.Key)
	}
	out := *doc
	out.Data = append([]byte{}, doc.Data...)
	out.Revision = uuid.NewString()
	out.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	return &out, nil
}

// checkRevision enforces the optimistic concurrency rule of Put.
func checkRevision(key, want, current string) error {
	if want == "" || want == current {
		return nil
	}
	return fmt.Errorf("%w: %s is at revision %q, not %q", ErrConflict, key, current, want)
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}

func sortInfos(infos []Info) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
}
