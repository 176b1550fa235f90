package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentrt/runtime/internal/apperr"
)

// fileStore is the atomic-write JSON persistence primitive everything in
// this package sits on top of: each logical record is one JSON file,
// written via temp-file-then-rename so a crash mid-write never leaves a
// corrupt record, and guarded by a per-path fileLock so concurrent writers
// from the same process serialize instead of racing.
type fileStore struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*fileLock
}

func newFileStore(basePath string) *fileStore {
	return &fileStore{basePath: basePath, locks: make(map[string]*fileLock)}
}

func (s *fileStore) pathToFile(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...) + ".json"
}

func (s *fileStore) pathToDir(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...)
}

func (s *fileStore) get(path []string, v any) error {
	filePath := s.pathToFile(path)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.Wrap(apperr.NotFound, "store.get", filePath, err)
		}
		return apperr.Wrap(apperr.Storage, "store.get", "read failed", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Wrap(apperr.Storage, "store.get", "unmarshal failed", err)
	}
	return nil
}

func (s *fileStore) put(path []string, v any) error {
	filePath := s.pathToFile(path)

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return apperr.Wrap(apperr.Storage, "store.put", "mkdir failed", err)
	}

	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return apperr.Wrap(apperr.Storage, "store.put", "lock failed", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Storage, "store.put", "marshal failed", err)
	}

	tmpPath := fmt.Sprintf("%s.tmp.%d", filePath, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return apperr.Wrap(apperr.Storage, "store.put", "write temp file failed", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.Storage, "store.put", "rename failed", err)
	}
	return nil
}

func (s *fileStore) delete(path []string) error {
	filePath := s.pathToFile(path)

	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return apperr.Wrap(apperr.Storage, "store.delete", "lock failed", err)
	}
	defer lock.Unlock()

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return apperr.Wrap(apperr.Storage, "store.delete", "remove failed", err)
	}
	return nil
}

func (s *fileStore) list(path []string) ([]string, error) {
	dirPath := s.pathToDir(path)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.Storage, "store.list", "readdir failed", err)
	}

	var items []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasSuffix(name, ".json") {
			items = append(items, strings.TrimSuffix(name, ".json"))
		}
	}
	return items, nil
}

func (s *fileStore) scan(path []string, fn func(key string, data json.RawMessage) error) error {
	dirPath := s.pathToDir(path)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperr.Wrap(apperr.Storage, "store.scan", "readdir failed", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dirPath, name))
		if err != nil {
			continue
		}
		if err := fn(strings.TrimSuffix(name, ".json"), json.RawMessage(data)); err != nil {
			return err
		}
	}
	return nil
}

func (s *fileStore) getLock(filePath string) *fileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[filePath]
	if !ok {
		lock = newFileLock(filePath)
		s.locks[filePath] = lock
	}
	return lock
}
