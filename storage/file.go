package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const fileSuffix = ".dat"

// FileEngine persists each key as one file under the data directory. Writes
// go through a temp file plus rename so a crash never leaves a half-written
// value behind. Values are passed through the configured codec.
type FileEngine struct {
	dir        string
	codec      Codec
	syncWrites bool
	mutex      sync.RWMutex
}

// FileEngineConfig holds the file engine options.
type FileEngineConfig struct {
	Dir        string
	Codec      Codec
	SyncWrites bool
}

// NewFileEngine creates the data directory if needed and returns the engine.
func NewFileEngine(cfg FileEngineConfig) (*FileEngine, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("file engine requires a data directory")
	}
	if cfg.Codec == nil {
		cfg.Codec = noneCodec{}
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileEngine{
		dir:        cfg.Dir,
		codec:      cfg.Codec,
		syncWrites: cfg.SyncWrites,
	}, nil
}

// Put stores a value atomically.
func (e *FileEngine) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	encoded, err := e.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", key, err)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	tmp, err := os.CreateTemp(e.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if e.syncWrites {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("failed to sync %s: %w", key, err)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, e.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}
	return nil
}

// Get retrieves a value.
func (e *FileEngine) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	e.mutex.RLock()
	data, err := os.ReadFile(e.path(key))
	e.mutex.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return e.codec.Decode(data)
}

// Delete removes a key. Missing keys are not an error.
func (e *FileEngine) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	if err := os.Remove(e.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// List returns all entries under prefix, ordered by key.
func (e *FileEngine) List(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mutex.RLock()
	defer e.mutex.RUnlock()

	dirEntries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list data directory: %w", err)
	}

	keys := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		key := strings.TrimSuffix(name, fileSuffix)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		data, err := os.ReadFile(e.path(key))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		decoded, err := e.codec.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", key, err)
		}
		entries = append(entries, Entry{Key: key, Value: decoded})
	}
	return entries, nil
}

// Close releases engine resources.
func (e *FileEngine) Close() error {
	return nil
}

func (e *FileEngine) path(key string) string {
	return filepath.Join(e.dir, key+fileSuffix)
}

// validateKey rejects keys that would escape the data directory or collide
// with the engine's own file naming.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}
