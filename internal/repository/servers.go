package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hostbill/internal/model"
)

type ServersRepo struct {
	db *pgxpool.Pool
}

func NewServersRepo(db *pgxpool.Pool) *ServersRepo {
	return &ServersRepo{db: db}
}

const serverColumns = `id, account_id, provider_id, name, size_slug, region, coalesce(ip_address, ''), status, coalesce(overage_settled_period, ''), created_at`

func (r *ServersRepo) Create(ctx context.Context, s *model.Server) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = model.ServerActive
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO servers (id, account_id, provider_id, name, size_slug, region, ip_address, status)
		 VALUES ($1, $2, $3, $4, $5, $6, nullif($7, ''), $8)
		 RETURNING created_at`,
		s.ID, s.AccountID, s.ProviderID, s.Name, s.SizeSlug, s.Region, s.IPAddress, s.Status).Scan(&s.CreatedAt)
	if err != nil {
		return persistErr("insert server", err)
	}
	return nil
}

func (r *ServersRepo) Get(ctx context.Context, id uuid.UUID) (*model.Server, error) {
	return r.selectOne(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = $1`, id)
}

// GetForAccount scopes the lookup to an owner so one customer cannot address
// another customer's server.
func (r *ServersRepo) GetForAccount(ctx context.Context, accountID, id uuid.UUID) (*model.Server, error) {
	return r.selectOne(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = $1 AND account_id = $2`, id, accountID)
}

func (r *ServersRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Server, error) {
	return r.selectMany(ctx, `SELECT `+serverColumns+` FROM servers WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
}

// ListActive returns every server the metering job must visit this tick.
func (r *ServersRepo) ListActive(ctx context.Context) ([]model.Server, error) {
	return r.selectMany(ctx, `SELECT `+serverColumns+` FROM servers WHERE status = $1 ORDER BY created_at`, model.ServerActive)
}

func (r *ServersRepo) UpdateSize(ctx context.Context, id uuid.UUID, sizeSlug string) error {
	tag, err := r.db.Exec(ctx, `UPDATE servers SET size_slug = $2 WHERE id = $1`, id, sizeSlug)
	if err != nil {
		return persistErr("update size", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("server %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (r *ServersRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM servers WHERE id = $1`, id)
	if err != nil {
		return persistErr("delete server", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("server %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (r *ServersRepo) selectOne(ctx context.Context, query string, args ...any) (*model.Server, error) {
	var s model.Server
	err := r.db.QueryRow(ctx, query, args...).Scan(&s.ID, &s.AccountID, &s.ProviderID, &s.Name,
		&s.SizeSlug, &s.Region, &s.IPAddress, &s.Status, &s.OveragePeriod, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("server: %w", model.ErrNotFound)
	}
	if err != nil {
		return nil, persistErr("select server", err)
	}
	return &s, nil
}

func (r *ServersRepo) selectMany(ctx context.Context, query string, args ...any) ([]model.Server, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, persistErr("select servers", err)
	}
	defer rows.Close()

	var servers []model.Server
	for rows.Next() {
		var s model.Server
		if err := rows.Scan(&s.ID, &s.AccountID, &s.ProviderID, &s.Name, &s.SizeSlug,
			&s.Region, &s.IPAddress, &s.Status, &s.OveragePeriod, &s.CreatedAt); err != nil {
			return nil, persistErr("scan server", err)
		}
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate servers", err)
	}
	return servers, nil
}
