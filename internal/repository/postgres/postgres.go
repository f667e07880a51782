package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/unhazzle/internal/repository"
)

const (
	stateSelect = `SELECT blob FROM deployment_states WHERE state_key = $1`
	stateUpsert = `INSERT INTO deployment_states (state_key, blob, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (state_key) DO UPDATE SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at`
	stateDelete = `DELETE FROM deployment_states WHERE state_key = $1`
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ repository.StateRepository = (*Repository)(nil)

// LoadState fetches the blob stored under key.
func (r *Repository) LoadState(ctx context.Context, key string) ([]byte, error) {
	if err := repository.ValidateKey(key); err != nil {
		return nil, err
	}
	var blob []byte
	if err := r.pool.QueryRow(ctx, stateSelect, key).Scan(&blob); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	return blob, nil
}

// SaveState replaces the blob stored under key.
func (r *Repository) SaveState(ctx context.Context, key string, blob []byte) error {
	if err := repository.ValidateKey(key); err != nil {
		return err
	}
	if len(blob) == 0 {
		return repository.ErrInvalidArgument
	}
	if _, err := r.pool.Exec(ctx, stateUpsert, key, blob, time.Now().UTC()); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// DeleteState removes the blob stored under key. Missing keys are not an error.
func (r *Repository) DeleteState(ctx context.Context, key string) error {
	if err := repository.ValidateKey(key); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, stateDelete, key); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}
