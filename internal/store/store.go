// Package store provides a whole-file-locked JSON document store. Every
// document is a single file under the store root; mutations are serialized
// by a process-wide mutex plus a cross-process advisory flock, so concurrent
// writers from the same or different processes never interleave.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockUnavailable indicates the document lock could not be acquired in
// time. Callers should treat it as retryable, not fatal.
var ErrLockUnavailable = errors.New("store: lock unavailable")

const (
	lockRetryDelay = 25 * time.Millisecond
	lockTimeout    = 5 * time.Second
)

// Store persists JSON documents under a root directory.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// New constructs a Store rooted at dir, creating it when missing.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("store: empty root dir")
	}
	if errMkdir := os.MkdirAll(dir, 0o755); errMkdir != nil {
		return nil, fmt.Errorf("store: create root: %w", errMkdir)
	}
	return &Store{
		root:  dir,
		locks: make(map[string]*sync.RWMutex),
	}, nil
}

// Root returns the store root directory.
func (s *Store) Root() string { return s.root }

// pathLock returns the process-wide lock for a document path.
func (s *Store) pathLock(name string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock := s.locks[name]
	if lock == nil {
		lock = &sync.RWMutex{}
		s.locks[name] = lock
	}
	return lock
}

// Update runs fn inside an exclusive section over the named document. fn
// receives the current raw contents (nil when the file does not exist) and
// returns the bytes to persist. The write is atomic: a temp file in the same
// directory is renamed over the document, so readers never observe a partial
// write.
func (s *Store) Update(ctx context.Context, name string, fn func(data []byte) ([]byte, error)) error {
	if s == nil {
		return errors.New("store: not initialized")
	}
	lock := s.pathLock(name)
	lock.Lock()
	defer lock.Unlock()

	path := filepath.Join(s.root, name)
	fl := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, errLock := fl.TryLockContext(lockCtx, lockRetryDelay)
	if errLock != nil || !locked {
		return ErrLockUnavailable
	}
	defer func() { _ = fl.Unlock() }()

	data, errRead := os.ReadFile(path)
	if errRead != nil {
		if !os.IsNotExist(errRead) {
			return fmt.Errorf("store: read %s: %w", name, errRead)
		}
		data = nil
	}

	out, errFn := fn(data)
	if errFn != nil {
		return errFn
	}

	tmp, errTmp := os.CreateTemp(filepath.Dir(path), filepath.Base(name)+".tmp-*")
	if errTmp != nil {
		return fmt.Errorf("store: temp file for %s: %w", name, errTmp)
	}
	tmpName := tmp.Name()
	if _, errWrite := tmp.Write(out); errWrite != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", name, errWrite)
	}
	if errClose := tmp.Close(); errClose != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: close %s: %w", name, errClose)
	}
	if errChmod := os.Chmod(tmpName, 0o644); errChmod != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: chmod %s: %w", name, errChmod)
	}
	if errRename := os.Rename(tmpName, path); errRename != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: rename %s: %w", name, errRename)
	}
	return nil
}

// View runs fn inside a shared section over the named document. Concurrent
// readers are allowed; writers are excluded for the duration. fn receives nil
// when the file does not exist.
func (s *Store) View(ctx context.Context, name string, fn func(data []byte) error) error {
	if s == nil {
		return errors.New("store: not initialized")
	}
	lock := s.pathLock(name)
	lock.RLock()
	defer lock.RUnlock()

	path := filepath.Join(s.root, name)
	fl := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, errLock := fl.TryRLockContext(lockCtx, lockRetryDelay)
	if errLock != nil || !locked {
		return ErrLockUnavailable
	}
	defer func() { _ = fl.Unlock() }()

	data, errRead := os.ReadFile(path)
	if errRead != nil {
		if !os.IsNotExist(errRead) {
			return fmt.Errorf("store: read %s: %w", name, errRead)
		}
		data = nil
	}
	return fn(data)
}

// UpdateJSON runs fn against the decoded document and persists the result.
// A missing or corrupt document decodes to the zero value rather than
// failing; the original system treated unreadable state as empty and callers
// depend on that.
func UpdateJSON[T any](ctx context.Context, s *Store, name string, fn func(doc *T) error) error {
	return s.Update(ctx, name, func(data []byte) ([]byte, error) {
		var doc T
		if len(data) > 0 {
			if errUnmarshal := json.Unmarshal(data, &doc); errUnmarshal != nil {
				var zero T
				doc = zero
			}
		}
		if errFn := fn(&doc); errFn != nil {
			return nil, errFn
		}
		out, errMarshal := json.MarshalIndent(doc, "", "  ")
		if errMarshal != nil {
			return nil, fmt.Errorf("store: marshal %s: %w", name, errMarshal)
		}
		return out, nil
	})
}

// ViewJSON runs fn against the decoded document without allowing writes.
// Missing or corrupt documents decode to the zero value.
func ViewJSON[T any](ctx context.Context, s *Store, name string, fn func(doc T) error) error {
	return s.View(ctx, name, func(data []byte) error {
		var doc T
		if len(data) > 0 {
			if errUnmarshal := json.Unmarshal(data, &doc); errUnmarshal != nil {
				var zero T
				doc = zero
			}
		}
		return fn(doc)
	})
}
