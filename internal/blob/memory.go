package blob

import (
	"context"
	"slices"
	"sync"
)

// Memory implements Store in process memory.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]Object
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objs: make(map[string]Object)}
}

func (m *Memory) Driver() Driver { return DriverMemory }

// Put stores a copy of obj.Data under obj.Key.
func (m *Memory) Put(_ context.Context, obj Object) error {
	obj.Data = slices.Clone(obj.Data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objs[obj.Key] = obj
	return nil
}

// Get returns a copy of the stored object.
func (m *Memory) Get(_ context.Context, key string) (Object, error) {
	m.mu.RLock()
	obj, ok := m.objs[key]
	m.mu.RUnlock()
	if !ok {
		return Object{}, ErrNotFound
	}
	obj.Data = slices.Clone(obj.Data)
	return obj, nil
}

// Delete removes the object. Deleting a missing key is not an error.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objs, key)
	return nil
}
