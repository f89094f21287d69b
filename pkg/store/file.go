package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/matzehuels/persist/pkg/errors"
)

const fileSuffix = ".asset.json"

// FileStore keeps one JSON file per document under a base directory.
// Keys containing '/' map to subdirectories.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a file-based store.
// If baseDir is empty, defaults to ~/.local/share/persist/assets/
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".local", "share", "persist", "assets")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) docPath(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key)+fileSuffix)
}

func (s *FileStore) read(key string) (*Document, error) {
	if err := errors.ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.docPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(key)
		}
		return nil, fmt.Errorf("read asset file: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse asset %s: %w", key, err)
	}
	return &doc, nil
}

func (s *FileStore) Put(ctx context.Context, doc *Document) (*Document, error) {
	next, err := prepare(doc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current string
	old, err := s.read(doc.Key)
	switch {
	case err == nil:
		current = old.Revision
	case !errors.Is(err, errors.ErrCodeNotFound):
		return nil, err
	}
	if err := checkRevision(doc.Key, doc.Revision, current); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal asset: %w", err)
	}
	path := s.docPath(doc.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("write asset file: %w", err)
	}
	return next, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(key)
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := errors.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.docPath(key)); err != nil {
		if os.IsNotExist(err) {
			return notFound(key)
		}
		return fmt.Errorf("remove asset file: %w", err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context, prefix string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var infos []Info
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, fileSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), fileSuffix)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		doc, err := s.read(key)
		if err != nil {
			return err
		}
		infos = append(infos, doc.Info())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	sortInfos(infos)
	return infos, nil
}

func (s *FileStore) Close() error { return nil }

// Path returns the base directory for asset files.
func (s *FileStore) Path() string {
	return s.baseDir
}

var _ Store = (*FileStore)(nil)
