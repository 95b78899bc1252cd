package history

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/pmr-run/pmr/internal/errdef"
)

// SQLiteSink appends lifecycle events to a local audit table.
type SQLiteSink struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteSink, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errdef.New(errdef.KindDB, "empty history sqlite path")
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, errdef.Wrap(errdef.KindDB, err, "open history db %s", p)
	}
	if p == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	_, _ = db.Exec("PRAGMA busy_timeout=3000;")
	s := &SQLiteSink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS process_history(
			type TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			status TEXT NOT NULL
		);`)
	if err != nil {
		return errdef.Wrap(errdef.KindDB, err, "ensure history schema")
	}
	return nil
}

func (s *SQLiteSink) Send(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO process_history(type, occurred_at, name, pid, status)
		VALUES(?, ?, ?, ?, ?);`,
		string(e.Type), e.OccurredAt.UTC(), e.Name, e.PID, e.Status)
	if err != nil {
		return errdef.Wrap(errdef.KindDB, err, "insert history event")
	}
	return nil
}

func (s *SQLiteSink) Close() error { return s.db.Close() }
