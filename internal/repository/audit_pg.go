package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/tradeops/riskgate/internal/model"
)

// PostgresAuditRepo is insert-only by construction: no UPDATE or
// DELETE statement against audit_records exists anywhere in the repo.
type PostgresAuditRepo struct {
	db *sqlx.DB
}

func NewPostgresAuditRepo(db *sqlx.DB) *PostgresAuditRepo {
	repo := &PostgresAuditRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

// Append inserts the record and assigns its sequence id. BIGSERIAL
// gives a total order even under concurrent writers.
func (r *PostgresAuditRepo) Append(ctx context.Context, rec *model.AuditRecord) error {
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}
	return r.db.QueryRowxContext(ctx, `
		INSERT INTO audit_records (created_at, actor, action, payload, payload_hash, signature)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, rec.Timestamp, rec.Actor, rec.Action, payloadJSON, rec.PayloadHash, rec.Signature).Scan(&rec.ID)
}

func (r *PostgresAuditRepo) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditRecord, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT id, created_at, actor, action, payload, payload_hash, signature FROM audit_records`
	clauses := []string{}
	args := []interface{}{}
	idx := 1

	if filter.Actor != "" {
		clauses = append(clauses, fmt.Sprintf("actor = $%d", idx))
		args = append(args, filter.Actor)
		idx++
	}
	if filter.ActionPrefix != "" {
		clauses = append(clauses, fmt.Sprintf("action LIKE $%d", idx))
		args = append(args, filter.ActionPrefix+"%")
		idx++
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*model.AuditRecord, 0, limit)
	for rows.Next() {
		var rec model.AuditRecord
		var payloadJSON []byte
		if err := rows.Scan(
			&rec.ID,
			&rec.Timestamp,
			&rec.Actor,
			&rec.Action,
			&payloadJSON,
			&rec.PayloadHash,
			&rec.Signature,
		); err != nil {
			return nil, err
		}
		if len(payloadJSON) > 0 {
			_ = json.Unmarshal(payloadJSON, &rec.Payload)
		} else {
			rec.Payload = map[string]any{}
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (r *PostgresAuditRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_records (
			id BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			payload JSONB,
			payload_hash TEXT NOT NULL,
			signature TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_records_actor ON audit_records(actor, id DESC)`)
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_records_action ON audit_records(action)`)
	return nil
}
