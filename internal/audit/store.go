package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/util"
)

// fixed width so accepted_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL,
	conflict_index   INTEGER NOT NULL,
	fact_description TEXT NOT NULL,
	sources_json     TEXT NOT NULL,
	value            TEXT NOT NULL,
	variant_index    INTEGER NOT NULL,
	updated_facts    INTEGER NOT NULL,
	accepted_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_session ON decisions(session_id, accepted_at);
`

// Store is the SQLite decision log. Every accepted conflict resolution is
// appended; nothing is updated in place, so re-accepting a conflict leaves
// both decisions on record.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		path = util.ExpandHome(path)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// each pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordDecision appends d. A missing id or timestamp is filled in.
func (s *Store) RecordDecision(ctx context.Context, d model.Decision) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.AcceptedAt.IsZero() {
		d.AcceptedAt = time.Now()
	}
	sources, err := json.Marshal(d.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, session_id, conflict_index, fact_description, sources_json, value, variant_index, updated_facts, accepted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.SessionID, d.ConflictIndex, d.FactDescription, string(sources),
		d.Value, d.VariantIndex, d.UpdatedFacts, d.AcceptedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// Decisions returns the decisions of a session in acceptance order. An
// empty sessionID returns every decision.
func (s *Store) Decisions(ctx context.Context, sessionID string) ([]model.Decision, error) {
	query := `SELECT id, session_id, conflict_index, fact_description, sources_json, value, variant_index, updated_facts, accepted_at
		FROM decisions`
	var args []interface{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY accepted_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		var (
			d          model.Decision
			sourcesRaw string
			acceptedAt string
		)
		if err := rows.Scan(&d.ID, &d.SessionID, &d.ConflictIndex, &d.FactDescription, &sourcesRaw,
			&d.Value, &d.VariantIndex, &d.UpdatedFacts, &acceptedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if err := json.Unmarshal([]byte(sourcesRaw), &d.Sources); err != nil {
			return nil, fmt.Errorf("decode sources: %w", err)
		}
		if d.AcceptedAt, err = time.Parse(timeLayout, acceptedAt); err != nil {
			return nil, fmt.Errorf("parse accepted_at: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
