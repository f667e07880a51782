package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/splax/unhazzle/internal/repository"
)

func TestRepositoryValidatesBeforeCallingRedis(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	repo := New(client, 0)
	ctx := context.Background()

	if _, err := repo.LoadState(ctx, ""); !errors.Is(err, repository.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if err := repo.SaveState(ctx, repository.StateKey("s1"), []byte{}); !errors.Is(err, repository.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for empty blob, got %v", err)
	}
	if err := repo.DeleteState(ctx, "  "); !errors.Is(err, repository.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

// Runs against the server named by UNHAZZLE_TEST_REDIS_ADDR.
func TestRepositoryRoundTripAgainstRedis(t *testing.T) {
	addr := os.Getenv("UNHAZZLE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("UNHAZZLE_TEST_REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	repo := New(client, time.Hour)
	key := repository.StateKey("it-" + t.Name())
	t.Cleanup(func() { _ = client.Del(context.Background(), key).Err() })

	if _, err := repo.LoadState(ctx, key); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := repo.SaveState(ctx, key, []byte(`{"version":3}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.LoadState(ctx, key)
	if err != nil || string(got) != `{"version":3}` {
		t.Fatalf("load: %s, %v", got, err)
	}
	if ttl := client.TTL(ctx, key).Val(); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected expiry within an hour, got %s", ttl)
	}
	if err := repo.DeleteState(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.LoadState(ctx, key); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
