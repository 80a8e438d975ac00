package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepo persists raw bus events into the audit_events table. Fed by the
// audit worker's queue-group subscription.
type AuditRepo struct {
	db *pgxpool.Pool
}

func NewAuditRepo(db *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Record(ctx context.Context, topic string, payload []byte) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_events (topic, payload) VALUES ($1, $2)`, topic, payload)
	if err != nil {
		return persistErr("insert audit event", err)
	}
	return nil
}
