package memory

import (
	"context"
	"sync"

	"github.com/aevon-lab/schema-registry/internal/registry"
)

// Backend is an in-memory implementation of registry.Backend.
// Useful for testing and development; nothing survives a restart.
type Backend struct {
	mu       sync.RWMutex
	versions map[registry.ID][][]byte
	names    map[registry.ID]string
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		versions: make(map[registry.ID][][]byte),
		names:    make(map[registry.ID]string),
	}
}

func (b *Backend) Exists(ctx context.Context, id registry.ID) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.versions[id]
	return exists, nil
}

func (b *Backend) Name(ctx context.Context, id registry.ID) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	name, found := b.names[id]
	return name, found, nil
}

func (b *Backend) IDs(ctx context.Context) ([]registry.ID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]registry.ID, 0, len(b.versions))
	for id := range b.versions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *Backend) Create(ctx context.Context, id registry.ID, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.names[id]; exists {
		return registry.ErrAlreadyExists
	}
	b.versions[id] = nil
	b.names[id] = name
	return nil
}

func (b *Backend) AppendVersion(ctx context.Context, id registry.ID, payload []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Store a copy to prevent external modification
	stored := make([]byte, len(payload))
	copy(stored, payload)

	b.versions[id] = append(b.versions[id], stored)
	return len(b.versions[id]), nil
}

func (b *Backend) Versions(ctx context.Context, id registry.ID) ([]int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	numbers := make([]int, len(b.versions[id]))
	for i := range numbers {
		numbers[i] = i + 1
	}
	return numbers, nil
}

func (b *Backend) Version(ctx context.Context, id registry.ID, number int) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	history := b.versions[id]
	if number < 1 || number > len(history) {
		return nil, false, nil
	}

	// Return a copy to prevent external modification
	payload := make([]byte, len(history[number-1]))
	copy(payload, history[number-1])
	return payload, true, nil
}

// Ping always succeeds.
func (b *Backend) Ping(ctx context.Context) error {
	return nil
}
