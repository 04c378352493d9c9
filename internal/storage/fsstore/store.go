// Package fsstore is a local-filesystem implementation of the Storage port.
// Each key maps to a file under a root directory; writes are atomic via a
// temp-file-then-rename, and a JSON index tracks known keys for List.
package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agentloom/turnengine/internal/storage"
)

// Store is a filesystem-backed storage.Store.
type Store struct {
	root string

	mu    sync.Mutex
	index map[string]string // key -> relative file path
}

// Open creates (if needed) root and loads or initializes its index.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fsstore: create root: %w", err)
	}
	s := &Store{root: root, index: make(map[string]string)}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) indexPath() string {
	return filepath.Join(s.root, "_index.json")
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fsstore: read index: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &s.index)
}

func (s *Store) persistIndexLocked() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("fsstore: marshal index: %w", err)
	}
	return atomicWrite(s.indexPath(), data)
}

func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("fsstore: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fsstore: rename temp file: %w", err)
	}
	return nil
}

func keyToRelPath(key string) string {
	escaped := strings.ReplaceAll(key, "/", "__")
	return escaped + ".dat"
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("fsstore: key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rel, ok := s.index[key]
	if !ok {
		rel = keyToRelPath(key)
	}
	if err := atomicWrite(filepath.Join(s.root, rel), value); err != nil {
		return err
	}
	s.index[key] = rel
	return s.persistIndexLocked()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	rel, ok := s.index[key]
	s.mu.Unlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.root, rel))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fsstore: read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, ok := s.index[key]
	if !ok {
		return nil
	}
	if err := os.Remove(filepath.Join(s.root, rel)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsstore: delete %s: %w", key, err)
	}
	delete(s.index, key)
	return s.persistIndexLocked()
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.index))
	for k := range s.index {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Close() error {
	return nil
}
