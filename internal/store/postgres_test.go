package store

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pmr-run/pmr/internal/errdef"
)

func TestPostgresStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("pmrtest"),
		postgres.WithUsername("pmr"),
		postgres.WithPassword("pmr"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("could not start postgres container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("terminate container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	s, err := NewPostgres(connStr)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	rec := sampleRecord("pgweb")
	if err := s.InsertProcess(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertProcess(ctx, rec); !errdef.Is(err, errdef.KindAlreadyExists) {
		t.Fatalf("expected already_exists, got %v", err)
	}

	got, err := s.GetProcess(ctx, "pgweb")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Command != "sleep" || got.Env["FOO"] != "bar" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	updated, err := s.UpdateProcess(ctx, "pgweb", func(r *ProcessRecord) error {
		r.Status = StatusStopped
		r.PID = 0
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != StatusStopped || updated.PID != 0 {
		t.Fatalf("update not applied: %+v", updated)
	}

	stopped, err := s.ListProcessesByStatus(ctx, []Status{StatusStopped})
	if err != nil || len(stopped) != 1 {
		t.Fatalf("list by status: %v len=%d", err, len(stopped))
	}

	if err := s.DeleteProcess(ctx, "pgweb"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetProcess(ctx, "pgweb"); !errdef.Is(err, errdef.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}
