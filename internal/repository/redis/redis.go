package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/splax/unhazzle/internal/repository"
)

// Repository stores state blobs as plain redis string values.
type Repository struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// New wraps a redis client. A zero ttl keeps blobs until deleted.
func New(client goredis.UniversalClient, ttl time.Duration) *Repository {
	return &Repository{client: client, ttl: ttl}
}

var _ repository.StateRepository = (*Repository)(nil)

// LoadState fetches the blob stored under key.
func (r *Repository) LoadState(ctx context.Context, key string) ([]byte, error) {
	if err := repository.ValidateKey(key); err != nil {
		return nil, err
	}
	blob, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	return blob, nil
}

// SaveState replaces the blob stored under key and refreshes its expiry.
func (r *Repository) SaveState(ctx context.Context, key string, blob []byte) error {
	if err := repository.ValidateKey(key); err != nil {
		return err
	}
	if len(blob) == 0 {
		return repository.ErrInvalidArgument
	}
	if err := r.client.Set(ctx, key, blob, r.ttl).Err(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// DeleteState removes the blob stored under key.
func (r *Repository) DeleteState(ctx context.Context, key string) error {
	if err := repository.ValidateKey(key); err != nil {
		return err
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}
