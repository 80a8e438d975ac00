package worker

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"hostbill/internal/repository"
)

// AuditWorker drains every billing event into the audit_events table.
// QueueSubscribe means a multi-instance deploy records each event once.
type AuditWorker struct {
	audit *repository.AuditRepo
	nc    *nats.Conn
	log   zerolog.Logger
}

func NewAuditWorker(audit *repository.AuditRepo, nc *nats.Conn, log zerolog.Logger) *AuditWorker {
	return &AuditWorker{audit: audit, nc: nc, log: log.With().Str("component", "audit").Logger()}
}

// Start subscribes to all billing topics and blocks until ctx is cancelled.
func (w *AuditWorker) Start(ctx context.Context) error {
	sub, err := w.nc.QueueSubscribe("billing.>", "audit_workers", func(m *nats.Msg) {
		if err := w.audit.Record(ctx, m.Subject, m.Data); err != nil {
			w.log.Error().Err(err).Str("topic", m.Subject).Msg("failed to record audit event")
		}
	})
	if err != nil {
		return err
	}

	w.log.Info().Msg("audit worker running")
	<-ctx.Done()
	return sub.Drain()
}

func (w *AuditWorker) Stop(ctx context.Context) error { return nil }
