// Package storage provides the per-extension key/value storage handed to
// extensions through their context.
//
// DESIGN: A Backend stores values under (namespace, key). Extensions never
// see the Backend; they receive a Storage bound to their own extension ID via
// Namespaced, so one extension cannot read or clear another's data.
//
// Two backends are provided:
//   - MemoryStore: process-local, optional TTL, background cleanup
//   - SQLiteStore: persistent, one table keyed by (extension_id, key)
//
// Operations take a context and may block. Callers get no ordering guarantee
// relative to pipeline hooks.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Backend type names accepted by Open.
const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
)

var (
	// ErrClosed means the backend was closed.
	ErrClosed = errors.New("storage closed")
	// ErrEmptyKey means an operation was given an empty key.
	ErrEmptyKey = errors.New("storage key is empty")
	// ErrUnknownType means Open was given an unsupported backend type.
	ErrUnknownType = errors.New("unknown storage type")
)

// Storage is the API an extension uses. Values are opaque bytes; use GetJSON
// and SetJSON for structured values.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}

// Backend stores values for every namespace.
type Backend interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
	Keys(ctx context.Context, namespace string) ([]string, error)
	Clear(ctx context.Context, namespace string) error
	Close() error
}

// Options configures Open.
type Options struct {
	Type string
	Path string        // sqlite database file
	TTL  time.Duration // memory entries; zero keeps them forever
}

// Open creates a backend of the given type.
func Open(opts Options) (Backend, error) {
	switch opts.Type {
	case TypeMemory:
		return NewMemoryStore(opts.TTL), nil
	case TypeSQLite:
		return NewSQLiteStore(opts.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, opts.Type)
	}
}

// Namespaced returns the Storage view of backend owned by extensionID.
func Namespaced(backend Backend, extensionID string) Storage {
	return &namespaced{backend: backend, namespace: extensionID}
}

type namespaced struct {
	backend   Backend
	namespace string
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	return n.backend.Get(ctx, n.namespace, key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	return n.backend.Set(ctx, n.namespace, key, value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return n.backend.Delete(ctx, n.namespace, key)
}

func (n *namespaced) Keys(ctx context.Context) ([]string, error) {
	return n.backend.Keys(ctx, n.namespace)
}

func (n *namespaced) Clear(ctx context.Context) error {
	return n.backend.Clear(ctx, n.namespace)
}

// GetJSON reads key and decodes it into a T.
func GetJSON[T any](ctx context.Context, s Storage, key string) (T, bool, error) {
	var out T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return out, ok, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decode %q: %w", key, err)
	}
	return out, true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Storage, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
