package memory

import (
	"context"
	"sync"

	"github.com/splax/unhazzle/internal/repository"
)

// Repository keeps blobs in process memory.
type Repository struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New returns an empty in-memory repository.
func New() *Repository {
	return &Repository{blobs: make(map[string][]byte)}
}

var _ repository.StateRepository = (*Repository)(nil)

// LoadState returns a copy of the blob stored under key.
func (r *Repository) LoadState(_ context.Context, key string) ([]byte, error) {
	if err := repository.ValidateKey(key); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	blob, ok := r.blobs[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return append([]byte(nil), blob...), nil
}

// SaveState stores a copy of blob under key.
func (r *Repository) SaveState(_ context.Context, key string, blob []byte) error {
	if err := repository.ValidateKey(key); err != nil {
		return err
	}
	if len(blob) == 0 {
		return repository.ErrInvalidArgument
	}
	r.mu.Lock()
	r.blobs[key] = append([]byte(nil), blob...)
	r.mu.Unlock()
	return nil
}

// DeleteState forgets key.
func (r *Repository) DeleteState(_ context.Context, key string) error {
	if err := repository.ValidateKey(key); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.blobs, key)
	r.mu.Unlock()
	return nil
}

// Keys lists stored keys in no particular order.
func (r *Repository) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.blobs))
	for k := range r.blobs {
		keys = append(keys, k)
	}
	return keys
}
