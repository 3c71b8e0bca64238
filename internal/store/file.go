package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FileStore keeps all pairs in one JSON object on disk. Writes go to a
// temporary file that is renamed over the original, so the file on disk is
// always complete. Edits made by other processes are picked up through
// fsnotify and replace the in-memory copy.
type FileStore struct {
	path    string
	log     zerolog.Logger
	mu      sync.RWMutex
	values  map[string]string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileStore opens (or creates) the JSON file at path and starts watching it.
func NewFileStore(path string, log zerolog.Logger) (*FileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	f := &FileStore{
		path:   path,
		log:    log.With().Str("component", "filestore").Str("path", path).Logger(),
		values: make(map[string]string),
		done:   make(chan struct{}),
	}
	if err := f.reload(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory: an atomic rename replaces the file's inode.
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	f.watcher = w
	go f.watch()

	return f, nil
}

// reload holds the write lock while reading so it cannot interleave with Put.
func (f *FileStore) reload() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read store file: %w", err)
	}

	values := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("failed to parse store file: %w", err)
		}
	}

	f.values = values
	return nil
}

func (f *FileStore) watch() {
	defer close(f.done)
	name := filepath.Clean(f.path)
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if err := f.reload(); err != nil {
					f.log.Warn().Err(err).Msg("reload after external change failed; keeping previous contents")
					continue
				}
				f.log.Debug().Str("op", ev.Op.String()).Msg("store file reloaded")
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.log.Warn().Err(err).Msg("file watcher error")
		}
	}
}

// List returns a copy of all stored pairs.
func (f *FileStore) List(ctx context.Context) (map[string]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make(map[string]string, len(f.values))
	for k, v := range f.values {
		result[k] = v
	}
	return result, nil
}

// Get retrieves a single value by key.
func (f *FileStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	v, ok := f.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Put stores value under key and rewrites the file.
func (f *FileStore) Put(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.copyLocked()
	next[key] = value
	if err := f.writeLocked(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

// Delete removes key and rewrites the file.
func (f *FileStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.values[key]; !ok {
		return nil
	}
	next := f.copyLocked()
	delete(next, key)
	if err := f.writeLocked(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

func (f *FileStore) copyLocked() map[string]string {
	next := make(map[string]string, len(f.values)+1)
	for k, v := range f.values {
		next[k] = v
	}
	return next
}

func (f *FileStore) writeLocked(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".rules-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

// Close stops the file watcher.
func (f *FileStore) Close() error {
	if f.watcher == nil {
		return nil
	}
	err := f.watcher.Close()
	<-f.done
	return err
}
