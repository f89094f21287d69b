package store

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/persist/pkg/errors"
	"github.com/matzehuels/persist/pkg/observability"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !stderrors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}
	if !errors.Is(s.Delete(ctx, "missing"), errors.ErrCodeNotFound) {
		t.Error("Delete(missing) should report NOT_FOUND")
	}

	first, err := s.Put(ctx, &Document{Key: "levels/one", Format: "yaml", Data: []byte("Scene: {}\n")})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if first.Revision == "" || first.UpdatedAt.IsZero() {
		t.Fatalf("Put did not stamp revision: %+v", first)
	}

	got, err := s.Get(ctx, "levels/one")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Format != "yaml" || !bytes.Equal(got.Data, []byte("Scene: {}\n")) || got.Revision != first.Revision {
		t.Errorf("Get = %+v", got)
	}
	if !got.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, first.UpdatedAt)
	}

	// Matching revision succeeds and changes the revision.
	second, err := s.Put(ctx, &Document{Key: "levels/one", Format: "xml", Data: []byte("<Scene/>"), Revision: first.Revision})
	if err != nil {
		t.Fatalf("Put with revision: %v", err)
	}
	if second.Revision == first.Revision {
		t.Error("revision should change on every Put")
	}

	// Stale revision is rejected.
	_, err = s.Put(ctx, &Document{Key: "levels/one", Format: "xml", Data: []byte("<Old/>"), Revision: first.Revision})
	if !stderrors.Is(err, ErrConflict) || !errors.Is(err, errors.ErrCodeConflict) {
		t.Errorf("stale Put err = %v, want ErrConflict", err)
	}

	for _, key := range []string{"levels/two", "props/lamp"} {
		if _, err := s.Put(ctx, &Document{Key: key, Format: "json", Data: []byte("{}")}); err != nil {
			t.Fatalf("Put(%s): %v", key, err)
		}
	}

	infos, err := s.List(ctx, "levels/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "levels/one" || infos[1].Key != "levels/two" {
		t.Fatalf("List(levels/) = %+v", infos)
	}
	if infos[0].Size != len("<Scene/>") || infos[0].Format != "xml" {
		t.Errorf("info = %+v", infos[0])
	}

	all, err := s.List(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("List() = %d infos, %v", len(all), err)
	}

	if err := s.Delete(ctx, "levels/one"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "levels/one"); !stderrors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete err = %v", err)
	}
}

func testInvalidPuts(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	tests := []struct {
		name string
		doc  *Document
		code errors.Code
	}{
		{"nil", nil, errors.ErrCodeInvalidInput},
		{"empty key", &Document{Format: "xml"}, errors.ErrCodeInvalidKey},
		{"traversal", &Document{Key: "../etc/passwd", Format: "xml"}, errors.ErrCodeInvalidKey},
		{"no format", &Document{Key: "a"}, errors.ErrCodeInvalidFormat},
	}
	for _, tt := range tests {
		if _, err := s.Put(ctx, tt.doc); !errors.Is(err, tt.code) {
			t.Errorf("%s: err = %v, want %s", tt.name, err, tt.code)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
	testInvalidPuts(t, NewMemoryStore())
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	data := []byte("abc")
	if _, err := s.Put(ctx, &Document{Key: "k", Format: "xml", Data: data}); err != nil {
		t.Fatal(err)
	}
	data[0] = 'X'
	got, _ := s.Get(ctx, "k")
	if string(got.Data) != "abc" {
		t.Errorf("store shares caller's buffer: %q", got.Data)
	}
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	testStore(t, s)
	testInvalidPuts(t, s)

	if _, err := os.Stat(filepath.Join(dir, "levels", "two"+fileSuffix)); err != nil {
		t.Errorf("expected nested asset file: %v", err)
	}
}

func TestFileStoreCorruptAsset(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, &Document{Key: "levels/one", Format: "xml", Data: []byte("<A/>")}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "levels", "one"+fileSuffix)
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, rev := range []string{"", "stale"} {
		_, err := s.Put(ctx, &Document{Key: "levels/one", Format: "xml", Data: []byte("<B/>"), Revision: rev})
		if err == nil {
			t.Errorf("Put(rev=%q) over a corrupt asset should fail", rev)
		}
		if errors.Is(err, errors.ErrCodeConflict) || errors.Is(err, errors.ErrCodeNotFound) {
			t.Errorf("Put(rev=%q) err = %v, want the parse error", rev, err)
		}
	}
	if data, _ := os.ReadFile(path); string(data) != "{not json" {
		t.Errorf("corrupt asset was overwritten: %q", data)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "assets.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	testStore(t, s)
	testInvalidPuts(t, s)
}

func TestSQLiteStoreInMemory(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	testStore(t, s)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("PERSIST_TEST_MONGO")
	if uri == "" {
		t.Skip("PERSIST_TEST_MONGO not set")
	}
	ctx := context.Background()
	s, err := NewMongoStore(ctx, MongoConfig{URI: uri, Database: "persist_test", Collection: "assets_" + time.Now().Format("150405")})
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = s.coll.Drop(ctx)
		s.Close()
	}()
	testStore(t, s)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		cfg     Config
		wantErr bool
	}{
		{Config{}, false},
		{Config{Backend: "memory"}, false},
		{Config{Backend: "file", DSN: t.TempDir()}, false},
		{Config{Backend: "sqlite", DSN: filepath.Join(t.TempDir(), "x.db")}, false},
		{Config{Backend: "sqlite"}, true},
		{Config{Backend: "mongo"}, true},
		{Config{Backend: "s3"}, true},
	}
	for _, tt := range tests {
		s, err := Open(ctx, tt.cfg)
		if (err != nil) != tt.wantErr {
			t.Errorf("Open(%+v) err = %v, wantErr %v", tt.cfg, err, tt.wantErr)
			continue
		}
		if s != nil {
			s.Close()
		}
	}
}

type recordingHooks struct {
	observability.NoopStoreHooks
	mu  sync.Mutex
	ops []string
}

func (h *recordingHooks) OnStoreOp(_ context.Context, backend, op, key string, _ time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry := backend + " " + op + " " + key
	if err != nil {
		entry += " !"
	}
	h.ops = append(h.ops, entry)
}

func TestInstrumentReportsOperations(t *testing.T) {
	hooks := &recordingHooks{}
	observability.SetStoreHooks(hooks)
	defer observability.Reset()

	ctx := context.Background()
	s, err := Open(ctx, Config{Backend: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	s.Put(ctx, &Document{Key: "a", Format: "xml"})
	s.Get(ctx, "a")
	s.Get(ctx, "b")
	s.List(ctx, "")
	s.Delete(ctx, "a")

	want := []string{"memory put a", "memory get a", "memory get b !", "memory list ", "memory delete a"}
	if len(hooks.ops) != len(want) {
		t.Fatalf("ops = %q", hooks.ops)
	}
	for i := range want {
		if hooks.ops[i] != want[i] {
			t.Errorf("op %d = %q, want %q", i, hooks.ops[i], want[i])
		}
	}
	if Instrument(s, "memory") != s {
		t.Error("Instrument should not wrap twice")
	}
}
