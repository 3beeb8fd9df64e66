// Package storage keeps binary artifacts such as rendered PDFs outside the database.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

var (
	ErrNotFound      = errors.New("object not found")
	ErrNotConfigured = errors.New("object storage is not configured")
)

type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

type memoryObject struct {
	contentType string
	data        []byte
}

// MemoryStore is the store used in demo mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Put(_ context.Context, key, contentType string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{contentType: contentType, data: append([]byte(nil), data...)}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.contentType, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Len reports the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

type disabled struct{}

// Disabled rejects every operation with ErrNotConfigured.
func Disabled() BlobStore { return disabled{} }

func (disabled) Put(context.Context, string, string, []byte) error { return ErrNotConfigured }
func (disabled) Get(context.Context, string) (io.ReadCloser, string, error) {
	return nil, "", ErrNotConfigured
}
func (disabled) Delete(context.Context, string) error { return ErrNotConfigured }
