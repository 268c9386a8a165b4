package memory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
)

const (
	// DefaultStoreFile is the backing file name inside the workspace.
	DefaultStoreFile = "_memory.json"

	storeFileMode   = 0o600
	storeDirMode    = 0o755
	tempFilePattern = ".memory-*.tmp"
)

// Store is the durable key/value tier. Every mutation rewrites the whole
// backing document and syncs it before returning. A single process is
// assumed to own the file.
type Store struct {
	path   string
	codec  codec
	values map[string]string
	logger *zap.Logger
	mu     sync.RWMutex
}

// OpenStore loads the document at path. A missing file is an empty store; an
// unreadable or undecodable one fails with ErrStorageCorruption.
func OpenStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := codecForPath(path)
	if err != nil {
		return nil, err
	}

	s := &Store{
		path:   filepath.Clean(path),
		codec:  c,
		values: make(map[string]string),
		logger: logger,
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("memory file absent, starting empty", zap.String("path", s.path))
			return s, nil
		}
		return nil, NewStorageCorruptionError(s.path, err)
	}

	values, err := c.Decode(data)
	if err != nil {
		return nil, NewStorageCorruptionError(s.path, err)
	}
	for k, v := range values {
		if err := validateEntry(k, v); err != nil {
			return nil, NewStorageCorruptionError(s.path, err)
		}
	}
	s.values = values

	logger.Debug("memory file loaded", zap.String("path", s.path), zap.Int("keys", len(values)))
	return s, nil
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Set stores value under key and flushes the document.
func (s *Store) Set(key, value string) error {
	if err := validateEntry(key, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.values[key]
	s.values[key] = value
	if err := s.flush(); err != nil {
		if existed {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}

	s.logger.Debug("memory set", zap.String("key", key))
	return nil
}

// Get returns the value for key, or def when the key is absent.
func (s *Store) Get(key, def string) string {
	if v, ok := s.Lookup(key); ok {
		return v
	}
	return def
}

// Lookup returns the value for key and whether it exists.
func (s *Store) Lookup(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Delete removes key and flushes the document. It reports whether the key
// existed; deleting an absent key does not touch the file.
func (s *Store) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.values[key]
	if !existed {
		return false, nil
	}
	delete(s.values, key)
	if err := s.flush(); err != nil {
		s.values[key] = prev
		return false, err
	}

	s.logger.Debug("memory delete", zap.String("key", key))
	return true, nil
}

// Keys returns every stored key in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns a copy of the mapping.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// flush replaces the backing file atomically. Caller holds s.mu.
func (s *Store) flush() error {
	data, err := s.codec.Encode(s.values)
	if err != nil {
		return NewStorageWriteError(s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, storeDirMode); err != nil {
		return NewStorageWriteError(s.path, fmt.Errorf("create directory: %w", err))
	}

	tempFile, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return NewStorageWriteError(s.path, fmt.Errorf("create temp file: %w", err))
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return NewStorageWriteError(s.path, fmt.Errorf("write temp file: %w", err))
	}
	if err := tempFile.Chmod(storeFileMode); err != nil {
		_ = tempFile.Close()
		return NewStorageWriteError(s.path, fmt.Errorf("chmod temp file: %w", err))
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return NewStorageWriteError(s.path, fmt.Errorf("sync temp file: %w", err))
	}
	if err := tempFile.Close(); err != nil {
		return NewStorageWriteError(s.path, fmt.Errorf("close temp file: %w", err))
	}
	if err := os.Rename(tempName, s.path); err != nil {
		return NewStorageWriteError(s.path, fmt.Errorf("replace file: %w", err))
	}
	cleanup = false

	syncDir(dir)
	return nil
}

// syncDir makes the rename durable where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func validateEntry(key, value string) error {
	if key == "" {
		return NewInvalidKeyError(key, "is empty")
	}
	if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return NewInvalidKeyError(key, "contains whitespace")
	}
	if strings.ContainsAny(value, "\r\n") {
		return NewInvalidValueError(key, "contains a line break")
	}
	return nil
}
