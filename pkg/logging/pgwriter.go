package logging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// LogTable is the Postgres table the PGWriter appends to.
const LogTable = "bot_logs"

const logTableDDL = `CREATE TABLE IF NOT EXISTS bot_logs (
	id         BIGSERIAL PRIMARY KEY,
	logged_at  TIMESTAMPTZ NOT NULL,
	level      TEXT NOT NULL,
	service    TEXT NOT NULL,
	message    TEXT NOT NULL,
	fields     JSONB NOT NULL DEFAULT '{}'::jsonb,
	trace_id   TEXT,
	caller     TEXT
)`

var logColumns = []string{"logged_at", "level", "service", "message", "fields", "trace_id", "caller"}

// pgConn is the subset of *pgxpool.Pool the writer needs.
type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// PGWriter is a LogWriter that bulk-loads entries with COPY.
type PGWriter struct {
	conn pgConn
}

// NewPGWriter wraps a pool (or any pgConn) as a LogWriter.
func NewPGWriter(conn pgConn) *PGWriter {
	return &PGWriter{conn: conn}
}

// EnsureSchema creates the log table if it is missing.
func (w *PGWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.conn.Exec(ctx, logTableDDL); err != nil {
		return fmt.Errorf("create %s: %w", LogTable, err)
	}
	return nil
}

// WriteBatch copies entries into the log table.
func (w *PGWriter) WriteBatch(ctx context.Context, entries []LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		fields, err := json.Marshal(e.Fields)
		if err != nil {
			return fmt.Errorf("encode fields: %w", err)
		}
		rows = append(rows, []any{e.Timestamp, e.Level, e.Service, e.Message, fields, nullable(e.TraceID), nullable(e.Caller)})
	}

	n, err := w.conn.CopyFrom(ctx, pgx.Identifier{LogTable}, logColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy into %s: %w", LogTable, err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copy into %s: wrote %d of %d rows", LogTable, n, len(rows))
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
