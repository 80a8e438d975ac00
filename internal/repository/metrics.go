package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"hostbill/internal/model"
)

type MetricsRepo struct {
	db *pgxpool.Pool
}

func NewMetricsRepo(db *pgxpool.Pool) *MetricsRepo {
	return &MetricsRepo{db: db}
}

func (r *MetricsRepo) Insert(ctx context.Context, s *model.MetricSample) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO metric_samples
		 (server_id, cpu_pct, memory_pct, disk_pct, net_in_bytes, net_out_bytes,
		  load_one, load_five, load_fifteen, uptime_seconds, sampled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		s.ServerID, s.CPUPct, s.MemoryPct, s.DiskPct, s.NetInBytes, s.NetOutBytes,
		s.LoadOne, s.LoadFive, s.LoadFifteen, s.UptimeSeconds, s.SampledAt).Scan(&s.ID)
	if err != nil {
		return persistErr("insert sample", err)
	}
	return nil
}

// History returns the newest samples first, bounded to limit.
func (r *MetricsRepo) History(ctx context.Context, serverID uuid.UUID, limit int) ([]model.MetricSample, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, server_id, cpu_pct, memory_pct, disk_pct, net_in_bytes, net_out_bytes,
		        load_one, load_five, load_fifteen, uptime_seconds, sampled_at
		 FROM metric_samples WHERE server_id = $1 ORDER BY sampled_at DESC LIMIT $2`,
		serverID, limit)
	if err != nil {
		return nil, persistErr("select samples", err)
	}
	defer rows.Close()

	var samples []model.MetricSample
	for rows.Next() {
		var s model.MetricSample
		if err := rows.Scan(&s.ID, &s.ServerID, &s.CPUPct, &s.MemoryPct, &s.DiskPct,
			&s.NetInBytes, &s.NetOutBytes, &s.LoadOne, &s.LoadFive, &s.LoadFifteen,
			&s.UptimeSeconds, &s.SampledAt); err != nil {
			return nil, persistErr("scan sample", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate samples", err)
	}
	return samples, nil
}

// SumBandwidth totals in+out bytes over samples in [from, to).
func (r *MetricsRepo) SumBandwidth(ctx context.Context, serverID uuid.UUID, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT coalesce(sum(net_in_bytes + net_out_bytes), 0)
		 FROM metric_samples
		 WHERE server_id = $1 AND sampled_at >= $2 AND sampled_at < $3`,
		serverID, from, to).Scan(&total)
	if err != nil {
		return 0, persistErr("sum bandwidth", err)
	}
	return total, nil
}
