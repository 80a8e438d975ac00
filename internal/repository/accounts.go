package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"hostbill/internal/model"
)

type AccountsRepo struct {
	db *pgxpool.Pool
}

func NewAccountsRepo(db *pgxpool.Pool) *AccountsRepo {
	return &AccountsRepo{db: db}
}

const accountColumns = `id, email, balance_cents, created_at, updated_at`

func (r *AccountsRepo) Create(ctx context.Context, email string) (*model.Account, error) {
	a := model.Account{ID: uuid.New(), Email: email}
	err := r.db.QueryRow(ctx,
		`INSERT INTO accounts (id, email) VALUES ($1, $2) RETURNING created_at, updated_at`,
		a.ID, a.Email).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("email %s already registered", email)
		}
		return nil, persistErr("insert account", err)
	}
	return &a, nil
}

func (r *AccountsRepo) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var a model.Account
	err := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.Email, &a.BalanceCents, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, persistErr("select account", err)
	}
	return &a, nil
}
