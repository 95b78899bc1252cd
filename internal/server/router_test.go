//go:build !windows

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pmr-run/pmr/internal/auth"
	"github.com/pmr-run/pmr/internal/manager"
	"github.com/pmr-run/pmr/internal/paths"
	"github.com/pmr-run/pmr/internal/store"
)

type fixture struct {
	srv     *httptest.Server
	token   string
	mgr     *manager.Manager
	authSvc *auth.Service
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	layout := paths.Layout{DataDir: root, LogDir: filepath.Join(root, "logs")}
	if err := layout.Ensure(); err != nil {
		t.Fatalf("layout: %v", err)
	}
	st := store.NewMemory()
	mgr := manager.New(st, layout, manager.WithGrace(2*time.Second))
	authSvc := auth.NewService(st)
	tok, err := authSvc.Mint(context.Background(), "test", 0, false)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	router := NewRouter(mgr, authSvc, nil, nil)
	srv := httptest.NewServer(router.Handler())
	t.Cleanup(func() {
		srv.Close()
		recs, _ := mgr.List(context.Background())
		for _, rec := range recs {
			if rec.Status == store.StatusRunning {
				_, _ = mgr.Stop(context.Background(), rec.Name)
			}
		}
	})
	return &fixture{srv: srv, token: tok.Token, mgr: mgr, authSvc: authSvc}
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeRecord(t *testing.T, resp *http.Response) store.ProcessRecord {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var rec store.ProcessRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	return rec
}

func TestMissingTokenIs401(t *testing.T) {
	f := newFixture(t)
	for _, tok := range []string{"", "wrong-token"} {
		resp := f.do(t, http.MethodGet, "/api/processes", nil, tok)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("token %q: status %d, want 401", tok, resp.StatusCode)
		}
	}
}

func TestExpiredTokenIs401(t *testing.T) {
	f := newFixture(t)
	expired, err := f.authSvc.Mint(context.Background(), "old", 0, true)
	if err != nil {
		t.Fatalf("mint expired: %v", err)
	}
	resp := f.do(t, http.MethodGet, "/api/processes", nil, expired.Token)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expired token: status %d, want 401", resp.StatusCode)
	}
}

func TestStartListStatusLifecycle(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/processes", map[string]any{
		"name":    "web",
		"command": "/bin/sleep",
		"args":    []string{"30"},
	}, f.token)
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("start: status %d body %s", resp.StatusCode, b)
	}
	rec := decodeRecord(t, resp)
	if rec.Status != store.StatusRunning || rec.PID == 0 {
		t.Fatalf("created record: %+v", rec)
	}

	resp = f.do(t, http.MethodGet, "/api/processes", nil, f.token)
	defer func() { _ = resp.Body.Close() }()
	var recs []store.ProcessRecord
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "web" {
		t.Fatalf("list: %+v", recs)
	}

	resp = f.do(t, http.MethodGet, "/api/processes/web", nil, f.token)
	got := decodeRecord(t, resp)
	if got.Name != "web" {
		t.Fatalf("status: %+v", got)
	}
}

func TestStartDuplicateIs409(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"name": "dup", "command": "/bin/sleep", "args": []string{"30"}}
	resp := f.do(t, http.MethodPost, "/api/processes", body, f.token)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first start: %d", resp.StatusCode)
	}
	resp = f.do(t, http.MethodPost, "/api/processes", body, f.token)
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate start: %d, want 409", resp.StatusCode)
	}
	var envelope struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Kind != "already_exists" {
		t.Fatalf("error kind = %q", envelope.Error.Kind)
	}
}

func TestUnknownNameIs404(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/processes/ghost", nil, f.token)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestStopRestartDelete(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/processes", map[string]any{
		"name": "svc", "command": "/bin/sleep", "args": []string{"30"},
	}, f.token)
	first := decodeRecord(t, resp)

	resp = f.do(t, http.MethodPut, "/api/processes/svc/restart", nil, f.token)
	restarted := decodeRecord(t, resp)
	if restarted.PID == first.PID || restarted.Status != store.StatusRunning {
		t.Fatalf("restart: %+v", restarted)
	}

	resp = f.do(t, http.MethodPut, "/api/processes/svc/stop", nil, f.token)
	stopped := decodeRecord(t, resp)
	if stopped.Status != store.StatusStopped || stopped.PID != 0 {
		t.Fatalf("stop: %+v", stopped)
	}

	// stopping again conflicts
	resp = f.do(t, http.MethodPut, "/api/processes/svc/stop", nil, f.token)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second stop: %d, want 409", resp.StatusCode)
	}

	resp = f.do(t, http.MethodDelete, "/api/processes/svc", nil, f.token)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d, want 204", resp.StatusCode)
	}
	resp = f.do(t, http.MethodGet, "/api/processes/svc", nil, f.token)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted record still present: %d", resp.StatusCode)
	}
}

func TestDeleteRunningIs409(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/processes", map[string]any{
		"name": "live", "command": "/bin/sleep", "args": []string{"30"},
	}, f.token)
	_ = resp.Body.Close()
	resp = f.do(t, http.MethodDelete, "/api/processes/live", nil, f.token)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("delete running: %d, want 409", resp.StatusCode)
	}
}

func TestLogsEndpoint(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/processes", map[string]any{
		"name": "echoer", "command": "/bin/sh", "args": []string{"-c", "echo alpha; echo beta"},
	}, f.token)
	_ = resp.Body.Close()

	// wait for the short-lived child to finish writing
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp = f.do(t, http.MethodGet, "/api/processes/echoer/logs?n=1", nil, f.token)
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusOK && strings.Contains(string(b), "beta") {
			if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
				t.Fatalf("content type %q", ct)
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("log tail never returned expected content")
}

func TestReservedDaemonNameRejected(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/processes", map[string]any{
		"name": manager.DaemonName, "command": "/bin/sleep",
	}, f.token)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("reserved name: %d, want 409", resp.StatusCode)
	}
}

func TestMalformedBodyIs400(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/processes", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+f.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: %d, want 400", resp.StatusCode)
	}
}

func TestServeGracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}), time.Second, discardLogger())
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
