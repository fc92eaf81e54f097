package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"modelguard/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/modelguard?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS verdicts (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			model TEXT NOT NULL,
			identity TEXT NOT NULL,
			severity TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			reasons_json JSONB NOT NULL,
			signals_json JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_ts ON verdicts(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_identity ON verdicts(identity)`,
		`CREATE TABLE IF NOT EXISTS alert_records (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			verdict_id TEXT NOT NULL,
			identity TEXT NOT NULL,
			severity TEXT NOT NULL,
			suppressed BOOLEAN NOT NULL,
			reasons_json JSONB NOT NULL
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

func (s *postgresStore) SaveVerdict(ctx context.Context, verdict model.ThreatVerdict) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verdicts (id, ts, model, identity, severity, score, reasons_json, signals_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
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

func (s *postgresStore) SaveAlert(ctx context.Context, record model.AlertRecord) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_records (id, ts, verdict_id, identity, severity, suppressed, reasons_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID,
		record.DispatchedAt.UTC(),
		record.VerdictID,
		record.Identity,
		record.Severity.String(),
		record.Suppressed,
		encodeJSON(record.Reasons),
	)
	return err
}
