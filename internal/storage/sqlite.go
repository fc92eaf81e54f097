package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"modelguard/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:modelguard.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS verdicts (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			model TEXT NOT NULL,
			identity TEXT NOT NULL,
			severity TEXT NOT NULL,
			score REAL NOT NULL,
			reasons_json TEXT NOT NULL,
			signals_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_ts ON verdicts(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_identity ON verdicts(identity)`,
		`CREATE TABLE IF NOT EXISTS alert_records (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			verdict_id TEXT NOT NULL,
			identity TEXT NOT NULL,
			severity TEXT NOT NULL,
			suppressed INTEGER NOT NULL,
			reasons_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_records_ts ON alert_records(ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveVerdict(ctx context.Context, verdict model.ThreatVerdict) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verdicts (id, ts, model, identity, severity, score, reasons_json, signals_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		verdict.ID,
		verdict.Timestamp.UTC(),
		verdict.Model,
		verdict.Identity,
		verdict.Severity.String(),
		verdict.Score,
		encodeJSON(verdict.Reasons),
		encodeJSON(verdict.Signals),
	)
	return err
}

func (s *sqliteStore) SaveAlert(ctx context.Context, record model.AlertRecord) error {
	if s.db == nil {
		return nil
	}
	suppressed := 0
	if record.Suppressed {
		suppressed = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_records (id, ts, verdict_id, identity, severity, suppressed, reasons_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.DispatchedAt.UTC(),
		record.VerdictID,
		record.Identity,
		record.Severity.String(),
		suppressed,
		encodeJSON(record.Reasons),
	)
	return err
}
