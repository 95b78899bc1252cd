package history

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/pmr-run/pmr/internal/errdef"
)

// ClickHouseSink exports lifecycle events to ClickHouse for fleet-level
// analytics over many supervisors.
type ClickHouseSink struct {
	conn  driver.Conn
	table string
}

func NewClickHouse(addr, table string) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{Database: "default", Username: "default"},
	})
	if err != nil {
		return nil, errdef.Wrap(errdef.KindDB, err, "connect clickhouse %s", addr)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, errdef.Wrap(errdef.KindDB, err, "ping clickhouse %s", addr)
	}
	return &ClickHouseSink{conn: conn, table: table}, nil
}

func (s *ClickHouseSink) Send(ctx context.Context, e Event) error {
	err := s.conn.Exec(ctx,
		"INSERT INTO "+s.table+" (type, occurred_at, name, pid, status) VALUES (?, ?, ?, ?, ?)",
		string(e.Type), e.OccurredAt, e.Name, e.PID, e.Status)
	if err != nil {
		return errdef.Wrap(errdef.KindDB, err, "insert history event")
	}
	return nil
}

func (s *ClickHouseSink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
