package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pmr-run/pmr/internal/errdef"
)

// SQLiteStore implements Store over a single database file using the
// CGO-free modernc.org/sqlite driver. Use ":memory:" for tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the catalog database at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errdef.New(errdef.KindDB, "empty sqlite path")
	}
	dsn := "file:" + p + "?_txlock=immediate"
	if p == ":memory:" {
		dsn = p
	}
	d, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errdef.Wrap(errdef.KindDB, err, "open sqlite %s", p)
	}
	if p == ":memory:" {
		// each pooled connection would otherwise see its own empty database
		d.SetMaxOpenConns(1)
	}
	// WAL allows CLI invocations and the daemon to read concurrently;
	// busy_timeout covers short writer overlap.
	_, _ = d.Exec("PRAGMA journal_mode=WAL;")
	_, _ = d.Exec("PRAGMA busy_timeout=5000;")
	_, _ = d.Exec("PRAGMA synchronous=NORMAL;")
	return &SQLiteStore{db: d}, nil
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processes(
			name TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			command TEXT NOT NULL,
			args_json TEXT NOT NULL,
			env_json TEXT NOT NULL,
			workdir TEXT NOT NULL DEFAULT '',
			log_dir TEXT NOT NULL,
			pid INTEGER NULL,
			status TEXT NOT NULL,
			restart_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_processes_status ON processes(status);`,
		`CREATE TABLE IF NOT EXISTS tokens(
			token TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			label TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return errdef.Wrap(errdef.KindDB, err, "ensure schema")
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) InsertProcess(ctx context.Context, rec ProcessRecord) error {
	argsJSON, err := encodeArgs(rec.Args)
	if err != nil {
		return errdef.Wrap(errdef.KindDB, err, "encode args")
	}
	envJSON, err := encodeEnv(rec.Env)
	if err != nil {
		return errdef.Wrap(errdef.KindDB, err, "encode env")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO processes(name, id, command, args_json, env_json, workdir, log_dir, pid, status, restart_count, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.Name, rec.ID, rec.Command, argsJSON, envJSON, rec.WorkDir, rec.LogDir,
		nullPID(rec.PID), string(rec.Status), rec.RestartCount,
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return errdef.AlreadyExists("process %q already exists", rec.Name)
		}
		return errdef.Wrap(errdef.KindDB, err, "insert process %q", rec.Name)
	}
	return nil
}

func (s *SQLiteStore) GetProcess(ctx context.Context, name string) (ProcessRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, id, command, args_json, env_json, workdir, log_dir, pid, status, restart_count, created_at, updated_at
		FROM processes WHERE name=?;`, name)
	return scanProcess(row, name)
}

func (s *SQLiteStore) UpdateProcess(ctx context.Context, name string, fn Mutator) (ProcessRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ProcessRecord{}, errdef.Wrap(errdef.KindDB, err, "begin update %q", name)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT name, id, command, args_json, env_json, workdir, log_dir, pid, status, restart_count, created_at, updated_at
		FROM processes WHERE name=?;`, name)
	rec, err := scanProcess(row, name)
	if err != nil {
		return ProcessRecord{}, err
	}
	if err := fn(&rec); err != nil {
		return ProcessRecord{}, err
	}
	rec.UpdatedAt = time.Now().UTC()

	argsJSON, err := encodeArgs(rec.Args)
	if err != nil {
		return ProcessRecord{}, errdef.Wrap(errdef.KindDB, err, "encode args")
	}
	envJSON, err := encodeEnv(rec.Env)
	if err != nil {
		return ProcessRecord{}, errdef.Wrap(errdef.KindDB, err, "encode env")
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE processes SET command=?, args_json=?, env_json=?, workdir=?, log_dir=?, pid=?, status=?, restart_count=?, updated_at=?
		WHERE name=?;`,
		rec.Command, argsJSON, envJSON, rec.WorkDir, rec.LogDir,
		nullPID(rec.PID), string(rec.Status), rec.RestartCount, rec.UpdatedAt, name)
	if err != nil {
		return ProcessRecord{}, errdef.Wrap(errdef.KindDB, err, "update process %q", name)
	}
	if err := tx.Commit(); err != nil {
		return ProcessRecord{}, errdef.Wrap(errdef.KindDB, err, "commit update %q", name)
	}
	return rec, nil
}

func (s *SQLiteStore) DeleteProcess(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM processes WHERE name=?;`, name)
	if err != nil {
		return errdef.Wrap(errdef.KindDB, err, "delete process %q", name)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errdef.NotFound("process %q not found", name)
	}
	return nil
}

func (s *SQLiteStore) ListProcesses(ctx context.Context) ([]ProcessRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, id, command, args_json, env_json, workdir, log_dir, pid, status, restart_count, created_at, updated_at
		FROM processes ORDER BY created_at DESC;`)
	if err != nil {
		return nil, errdef.Wrap(errdef.KindDB, err, "list processes")
	}
	defer func() { _ = rows.Close() }()
	return scanProcesses(rows)
}

func (s *SQLiteStore) ListProcessesByStatus(ctx context.Context, statuses []Status) ([]ProcessRecord, error) {
	if len(statuses) == 0 {
		return []ProcessRecord{}, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, id, command, args_json, env_json, workdir, log_dir, pid, status, restart_count, created_at, updated_at
		FROM processes WHERE status IN (`+placeholders+`) ORDER BY created_at DESC;`, args...)
	if err != nil {
		return nil, errdef.Wrap(errdef.KindDB, err, "list processes by status")
	}
	defer func() { _ = rows.Close() }()
	return scanProcesses(rows)
}

func (s *SQLiteStore) InsertToken(ctx context.Context, tok Token) error {
	var expires any
	if tok.ExpiresAt != nil {
		expires = tok.ExpiresAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens(token, id, label, created_at, expires_at)
		VALUES(?, ?, ?, ?, ?);`,
		tok.Token, tok.ID, tok.Label, tok.CreatedAt.UTC(), expires)
	if err != nil {
		if isUniqueViolation(err) {
			return errdef.AlreadyExists("token already exists")
		}
		return errdef.Wrap(errdef.KindDB, err, "insert token")
	}
	return nil
}

func (s *SQLiteStore) GetToken(ctx context.Context, token string) (Token, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token, id, label, created_at, expires_at FROM tokens WHERE token=?;`, token)
	return scanToken(row)
}

func (s *SQLiteStore) DeleteToken(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE token=?;`, token)
	if err != nil {
		return errdef.Wrap(errdef.KindDB, err, "delete token")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errdef.NotFound("token not found")
	}
	return nil
}

func (s *SQLiteStore) ListTokens(ctx context.Context) ([]Token, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, id, label, created_at, expires_at FROM tokens ORDER BY created_at DESC;`)
	if err != nil {
		return nil, errdef.Wrap(errdef.KindDB, err, "list tokens")
	}
	defer func() { _ = rows.Close() }()
	out := make([]Token, 0)
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.KindDB, err, "list tokens")
	}
	return out, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcess(row rowScanner, name string) (ProcessRecord, error) {
	var (
		rec       ProcessRecord
		argsJSON  string
		envJSON   string
		pid       sql.NullInt64
		statusStr string
	)
	err := row.Scan(&rec.Name, &rec.ID, &rec.Command, &argsJSON, &envJSON,
		&rec.WorkDir, &rec.LogDir, &pid, &statusStr, &rec.RestartCount,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ProcessRecord{}, errdef.NotFound("process %q not found", name)
	}
	if err != nil {
		return ProcessRecord{}, errdef.Wrap(errdef.KindDB, err, "scan process %q", name)
	}
	if rec.Args, err = decodeArgs(argsJSON); err != nil {
		return ProcessRecord{}, errdef.Wrap(errdef.KindDB, err, "decode args for %q", name)
	}
	if rec.Env, err = decodeEnv(envJSON); err != nil {
		return ProcessRecord{}, errdef.Wrap(errdef.KindDB, err, "decode env for %q", name)
	}
	if pid.Valid {
		rec.PID = int(pid.Int64)
	}
	rec.Status = ParseStatus(statusStr)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func scanProcesses(rows *sql.Rows) ([]ProcessRecord, error) {
	out := make([]ProcessRecord, 0)
	for rows.Next() {
		rec, err := scanProcess(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.KindDB, err, "iterate processes")
	}
	return out, nil
}

func scanToken(row rowScanner) (Token, error) {
	var (
		tok     Token
		expires sql.NullTime
	)
	err := row.Scan(&tok.Token, &tok.ID, &tok.Label, &tok.CreatedAt, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, errdef.NotFound("token not found")
	}
	if err != nil {
		return Token{}, errdef.Wrap(errdef.KindDB, err, "scan token")
	}
	tok.CreatedAt = tok.CreatedAt.UTC()
	if expires.Valid {
		t := expires.Time.UTC()
		tok.ExpiresAt = &t
	}
	return tok, nil
}

func nullPID(pid int) any {
	if pid <= 0 {
		return nil
	}
	return pid
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	// modernc sqlite reports "UNIQUE constraint failed"; pgx reports SQLSTATE 23505.
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value")
}
