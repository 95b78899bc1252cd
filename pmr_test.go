//go:build !windows

package pmr

import (
	"context"
	"testing"
	"time"
)

func openSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	home := t.TempDir()
	t.Setenv("PMR_HOME", home)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	sup, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		recs, _ := sup.List(context.Background())
		for _, rec := range recs {
			if rec.Status == StatusRunning {
				_, _ = sup.Stop(context.Background(), rec.Name)
			}
		}
		_ = sup.Close()
	})
	return sup
}

func TestSupervisorLifecycle(t *testing.T) {
	sup := openSupervisor(t)
	ctx := context.Background()

	rec, err := sup.Start(ctx, StartSpec{Name: "demo", Command: "/bin/sleep", Args: []string{"30"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if rec.Status != StatusRunning {
		t.Fatalf("status = %s", rec.Status)
	}

	stopped, err := sup.Stop(ctx, "demo")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Status != StatusStopped {
		t.Fatalf("status after stop = %s", stopped.Status)
	}
	if err := sup.Delete(ctx, "demo"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestCatalogSurvivesReopen(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PMR_HOME", home)
	ctx := context.Background()

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	sup, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := sup.Start(ctx, StartSpec{Name: "persist", Command: "/bin/sleep", Args: []string{"30"}}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sup.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// a fresh supervisor over the same catalog sees the record and can
	// still reconcile and stop the detached child
	sup2, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = sup2.Close() }()

	rec, err := sup2.Status(ctx, "persist")
	if err != nil {
		t.Fatalf("status after reopen: %v", err)
	}
	if rec.Status != StatusRunning {
		t.Fatalf("detached child should still be running, got %s", rec.Status)
	}
	if _, err := sup2.Stop(ctx, "persist"); err != nil {
		t.Fatalf("stop after reopen: %v", err)
	}
}

func TestAuthFacade(t *testing.T) {
	sup := openSupervisor(t)
	ctx := context.Background()

	svc := sup.Auth()
	tok, err := svc.Mint(ctx, "embed", 1, true)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if tok.ExpiresAt == nil || time.Until(*tok.ExpiresAt) > 25*time.Hour {
		t.Fatalf("unexpected expiry: %v", tok.ExpiresAt)
	}
	if _, err := svc.Validate(ctx, tok.Token); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
