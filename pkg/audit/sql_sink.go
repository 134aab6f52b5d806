package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Postgres driver
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder and DDL flavour.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLSink appends records to an audit_records table. The table has no update
// or delete path; audit_id is the primary key so a replayed record is rejected.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLSink opens the database and ensures the schema exists.
// driver is "sqlite" (modernc) or "postgres" (lib/pq).
func OpenSQLSink(ctx context.Context, dialect Dialect, dsn string) (*SQLSink, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// one writer keeps in-memory databases on a single connection
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLSink(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLSink wraps an existing handle and migrates it.
func NewSQLSink(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLSink, error) {
	s := &SQLSink{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate audit_records: %w", err)
	}
	return s, nil
}

func (s *SQLSink) migrate(ctx context.Context) error {
	evidenceType := "TEXT"
	if s.dialect == DialectPostgres {
		evidenceType = "JSONB"
	}
	query := `CREATE TABLE IF NOT EXISTS audit_records (
		audit_id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		repo TEXT NOT NULL,
		repo_hash TEXT NOT NULL,
		charter_hash TEXT NOT NULL,
		event_type TEXT NOT NULL,
		actor TEXT NOT NULL,
		verdict TEXT NOT NULL,
		evidence ` + evidenceType + ` NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLSink) insertQuery() string {
	if s.dialect == DialectPostgres {
		return `INSERT INTO audit_records (audit_id, timestamp, repo, repo_hash, charter_hash, event_type, actor, verdict, evidence) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	}
	return `INSERT INTO audit_records (audit_id, timestamp, repo, repo_hash, charter_hash, event_type, actor, verdict, evidence) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
}

func (s *SQLSink) Append(ctx context.Context, rec Record) error {
	evidence, err := json.Marshal(rec.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.insertQuery(),
		rec.AuditID,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.Repo,
		rec.RepoHash,
		rec.CharterHash,
		rec.EventType,
		rec.Actor,
		string(rec.Verdict),
		string(evidence),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// List returns up to limit records, oldest first.
func (s *SQLSink) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT audit_id, timestamp, repo, repo_hash, charter_hash, event_type, actor, verdict, evidence FROM audit_records ORDER BY timestamp ASC LIMIT ?`
	if s.dialect == DialectPostgres {
		query = `SELECT audit_id, timestamp, repo, repo_hash, charter_hash, event_type, actor, verdict, evidence FROM audit_records ORDER BY timestamp ASC LIMIT $1`
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			rec      Record
			ts       string
			verdict  string
			evidence string
		)
		if err := rows.Scan(&rec.AuditID, &ts, &rec.Repo, &rec.RepoHash, &rec.CharterHash, &rec.EventType, &rec.Actor, &verdict, &evidence); err != nil {
			return nil, err
		}
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp of %s: %w", rec.AuditID, err)
		}
		rec.Verdict = Verdict(verdict)
		if err := json.Unmarshal([]byte(evidence), &rec.Evidence); err != nil {
			return nil, fmt.Errorf("parse evidence of %s: %w", rec.AuditID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLSink) Close() error { return s.db.Close() }
