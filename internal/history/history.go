package history

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/pmr-run/pmr/internal/errdef"
)

// EventType is the kind of lifecycle event exported to a sink.
type EventType string

const (
	EventStart EventType = "start"
	EventStop  EventType = "stop"
	EventFail  EventType = "fail"
)

// Event is one lifecycle transition of a supervised process.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Name       string    `json:"name"`
	PID        int       `json:"pid"`
	Status     string    `json:"status"`
}

// Sink receives lifecycle events. Implementations must be safe for
// concurrent use. Delivery is best-effort: the manager calls Send
// synchronously and logs a failed Send without failing the operation.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event. Used when no history DSN is configured.
type Nop struct{}

func (Nop) Send(context.Context, Event) error { return nil }
func (Nop) Close() error                      { return nil }

// NewSinkFromDSN creates a sink from a DSN. Supported formats:
//   - "clickhouse://host:port?table=process_history"
//   - "sqlite:///path/to/file.db" or a bare filesystem path
//   - "" (empty) for a Nop sink
func NewSinkFromDSN(dsn string) (Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return Nop{}, nil
	}
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "clickhouse://"):
		u, err := url.Parse(dsn)
		if err != nil {
			return nil, errdef.Wrap(errdef.KindDB, err, "parse history DSN")
		}
		host := u.Host
		if host == "" {
			host = "localhost:9000"
		}
		table := u.Query().Get("table")
		if table == "" {
			table = "process_history"
		}
		return NewClickHouse(host, table)
	case strings.HasPrefix(lower, "sqlite://"):
		return NewSQLite(strings.TrimPrefix(dsn, "sqlite://"))
	case !strings.Contains(dsn, "://"):
		return NewSQLite(dsn)
	}
	return nil, errdef.New(errdef.KindDB, "unsupported history DSN: %s", dsn)
}
