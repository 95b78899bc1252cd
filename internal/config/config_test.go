package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PMR_HOME", home)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != home {
		t.Fatalf("data dir = %s, want %s", cfg.DataDir, home)
	}
	if cfg.StoreDSN != filepath.Join(home, "processes.db") {
		t.Fatalf("store dsn = %s", cfg.StoreDSN)
	}
	if cfg.ServePort != DefaultServePort {
		t.Fatalf("serve port = %d", cfg.ServePort)
	}
	if cfg.LogMaxSizeMB != 10 || cfg.LogKeepCount != 5 {
		t.Fatalf("rotation defaults wrong: %d MB keep %d", cfg.LogMaxSizeMB, cfg.LogKeepCount)
	}
	if cfg.GraceSeconds != DefaultGraceSeconds {
		t.Fatalf("grace = %d", cfg.GraceSeconds)
	}
}

func TestLoadFromFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PMR_HOME", home)

	content := `
log_max_size_mb = 1
log_keep_count = 2
serve_port = 9999
history_dsn = "sqlite://` + filepath.ToSlash(filepath.Join(home, "history.db")) + `"
`
	path := filepath.Join(home, "custom.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServePort != 9999 {
		t.Fatalf("serve port override lost: %d", cfg.ServePort)
	}
	if cfg.LogMaxSizeMB != 1 || cfg.LogKeepCount != 2 {
		t.Fatalf("rotation overrides lost")
	}
	r := cfg.Rotator()
	if r.MaxSize != 1024*1024 || r.KeepCount != 2 {
		t.Fatalf("rotator misconfigured: %+v", r)
	}
	if cfg.HistoryDSN == "" {
		t.Fatalf("history dsn lost")
	}
}

func TestImplicitConfigFilePickedUp(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PMR_HOME", home)
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte("serve_port = 7777\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServePort != 7777 {
		t.Fatalf("implicit config not read, port = %d", cfg.ServePort)
	}
}

func TestMissingExplicitFileErrors(t *testing.T) {
	t.Setenv("PMR_HOME", t.TempDir())
	if _, err := Load("/does/not/exist.toml"); err == nil {
		t.Fatalf("expected error for explicit missing config")
	}
}
