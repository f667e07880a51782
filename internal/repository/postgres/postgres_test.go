package postgres_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/unhazzle/internal/app/migrate"
	"github.com/splax/unhazzle/internal/repository"
	"github.com/splax/unhazzle/internal/repository/postgres"
)

func TestRepositoryValidatesBeforeQuerying(t *testing.T) {
	repo := postgres.New(nil)
	ctx := context.Background()
	if _, err := repo.LoadState(ctx, " "); !errors.Is(err, repository.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for empty key, got %v", err)
	}
	if err := repo.SaveState(ctx, repository.StateKey("s1"), nil); !errors.Is(err, repository.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for empty blob, got %v", err)
	}
	if err := repo.DeleteState(ctx, ""); !errors.Is(err, repository.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for empty key, got %v", err)
	}
}

// Runs against a disposable database named by UNHAZZLE_TEST_DATABASE_URL.
func TestRepositoryRoundTripAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("UNHAZZLE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("UNHAZZLE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	src, err := migrate.Source("")
	if err != nil {
		t.Fatalf("migrations: %v", err)
	}
	runner, err := migrate.New(pool, src, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	defer runner.Close()
	if err := runner.Ensure(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := postgres.New(pool)
	key := repository.StateKey("it-" + t.Name())
	t.Cleanup(func() { _ = repo.DeleteState(context.Background(), key) })

	if _, err := repo.LoadState(ctx, key); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	for _, blob := range []string{`{"version":1}`, `{"version":2}`} {
		if err := repo.SaveState(ctx, key, []byte(blob)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, err := repo.LoadState(ctx, key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != `{"version":2}` {
		t.Fatalf("expected latest blob, got %s", got)
	}
	if err := repo.DeleteState(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteState(ctx, key); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}
