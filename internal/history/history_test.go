package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestNopSink(t *testing.T) {
	sink, err := NewSinkFromDSN("")
	if err != nil {
		t.Fatalf("empty dsn: %v", err)
	}
	if _, ok := sink.(Nop); !ok {
		t.Fatalf("expected Nop sink, got %T", sink)
	}
	if err := sink.Send(context.Background(), Event{}); err != nil {
		t.Fatalf("nop send: %v", err)
	}
}

func TestSQLiteSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := NewSinkFromDSN(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	sq, ok := sink.(*SQLiteSink)
	if !ok {
		t.Fatalf("expected sqlite sink, got %T", sink)
	}

	e := Event{Type: EventStart, OccurredAt: time.Now().UTC(), Name: "web", PID: 42, Status: "running"}
	if err := sq.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}

	var count int
	if err := sq.db.QueryRow(`SELECT COUNT(*) FROM process_history WHERE name='web' AND type='start'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one event row, got %d", count)
	}
}

func TestUnsupportedDSN(t *testing.T) {
	if _, err := NewSinkFromDSN("kafka://broker:9092"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}
