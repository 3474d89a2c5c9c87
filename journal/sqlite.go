package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// pure-Go driver, registered as "sqlite"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS status_journal (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id        TEXT    NOT NULL,
    item_id         TEXT    NOT NULL,
    outcome         TEXT    NOT NULL,
    from_status     TEXT    NOT NULL DEFAULT '',
    to_status       TEXT    NOT NULL DEFAULT '',
    order_completed INTEGER NOT NULL DEFAULT 0,
    employee_id     TEXT    NOT NULL DEFAULT '',
    error_messages  TEXT    NOT NULL DEFAULT '[]',
    trace_id        TEXT    NOT NULL DEFAULT '',
    span_id         TEXT    NOT NULL DEFAULT '',
    recorded_at     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_status_journal_order ON status_journal(order_id, recorded_at);
`

const timeLayout = "2006-01-02T15:04:05.999999999Z"

// SQLite is a Recorder backed by a local SQLite file.
type SQLite struct {
	db *sql.DB
}

// Open opens or creates the database at path in WAL mode and applies the schema.
func Open(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Record(ctx context.Context, e Entry) error {
	errs := "[]"
	if len(e.Errors) > 0 {
		b, err := json.Marshal(e.Errors)
		if err != nil {
			return fmt.Errorf("journal: encode errors: %w", err)
		}
		errs = string(b)
	}
	const q = `
		INSERT INTO status_journal
			(order_id, item_id, outcome, from_status, to_status, order_completed,
			 employee_id, error_messages, trace_id, span_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		e.OrderID, e.ItemID, string(e.Outcome), e.FromStatus, e.ToStatus, e.OrderCompleted,
		e.EmployeeID, errs, e.TraceID, e.SpanID, e.At.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("journal: record %s/%s: %w", e.OrderID, e.ItemID, err)
	}
	return nil
}

// List returns the entries of an order, oldest first.
func (s *SQLite) List(ctx context.Context, orderID string) ([]Entry, error) {
	const q = `
		SELECT order_id, item_id, outcome, from_status, to_status, order_completed,
		       employee_id, error_messages, trace_id, span_id, recorded_at
		FROM   status_journal
		WHERE  order_id = ?
		ORDER  BY recorded_at, id`
	rows, err := s.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("journal: list %s: %w", orderID, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var outcome, errs, at string
		if err := rows.Scan(&e.OrderID, &e.ItemID, &outcome, &e.FromStatus, &e.ToStatus,
			&e.OrderCompleted, &e.EmployeeID, &errs, &e.TraceID, &e.SpanID, &at); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Outcome = Outcome(outcome)
		if err := json.Unmarshal([]byte(errs), &e.Errors); err != nil {
			return nil, fmt.Errorf("journal: decode errors: %w", err)
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("journal: parse time %q: %w", at, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
