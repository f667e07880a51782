package repository

import (
	"context"
	"strings"
)

// KeyPrefix namespaces every persisted session blob.
const KeyPrefix = "unhazzle:deployment-state:"

// StateRepository persists serialized deployment state blobs, one per key.
type StateRepository interface {
	LoadState(ctx context.Context, key string) ([]byte, error)
	SaveState(ctx context.Context, key string, blob []byte) error
	DeleteState(ctx context.Context, key string) error
}

// StateKey returns the storage key of a session.
func StateKey(sessionID string) string {
	return KeyPrefix + sessionID
}

// ValidateKey rejects empty keys.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidArgument
	}
	return nil
}
