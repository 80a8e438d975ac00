package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"hostbill/internal/model"
)

// LedgerRepo owns every balance mutation. A charge or deposit is one
// transaction: the balance delta and the ledger row commit together or not at
// all, and the delta itself is a single UPDATE so concurrent writers cannot
// lose updates. Charges are conditional on the balance covering the amount;
// deposits and overage settlements apply unconditionally.
type LedgerRepo struct {
	db  *pgxpool.Pool
	bus MessageBus
}

func NewLedgerRepo(db *pgxpool.Pool, bus MessageBus) *LedgerRepo {
	return &LedgerRepo{db: db, bus: bus}
}

const entryColumns = `id, account_id, amount_cents, currency, kind, status, coalesce(external_ref, ''), description, created_at`

// Charge debits amountCents from the account and appends the matching ledger
// entry. The debit is a conditional single-statement update: if the balance
// does not cover the amount nothing is written and ErrInsufficientBalance is
// returned with the required amount in the message.
func (r *LedgerRepo) Charge(ctx context.Context, accountID uuid.UUID, amountCents int64, kind model.EntryKind, description string) (*model.LedgerEntry, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("charge amount must be positive, got %d", amountCents)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, persistErr("begin charge", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET balance_cents = balance_cents - $2, updated_at = now()
		 WHERE id = $1 AND balance_cents >= $2`,
		accountID, amountCents)
	if err != nil {
		return nil, persistErr("debit balance", err)
	}
	if tag.RowsAffected() == 0 {
		if err := r.accountExists(ctx, tx, accountID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w, required $%.2f", model.ErrInsufficientBalance, float64(amountCents)/100)
	}

	entry, err := insertEntry(ctx, tx, model.LedgerEntry{
		AccountID:   accountID,
		AmountCents: -amountCents,
		Kind:        kind,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, persistErr("commit charge", err)
	}
	r.publishEntry(entry)
	return entry, nil
}

// Deposit credits amountCents and appends a deposit entry tagged with the
// external payment reference. The reference is unique: capturing the same
// payment twice returns ErrDuplicateDeposit and applies nothing.
func (r *LedgerRepo) Deposit(ctx context.Context, accountID uuid.UUID, amountCents int64, externalRef string) (*model.LedgerEntry, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive, got %d", amountCents)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, persistErr("begin deposit", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := insertEntry(ctx, tx, model.LedgerEntry{
		AccountID:   accountID,
		AmountCents: amountCents,
		Kind:        model.KindDeposit,
		ExternalRef: externalRef,
		Description: "balance deposit",
	})
	if err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + $2, updated_at = now() WHERE id = $1`,
		accountID, amountCents)
	if err != nil {
		return nil, persistErr("credit balance", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("account %s: %w", accountID, model.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, persistErr("commit deposit", err)
	}
	r.publishEntry(entry)
	return entry, nil
}

// RecordMarker appends a zero-amount entry (forced-deletion audit trail).
// The balance is untouched so the ledger-sum invariant holds.
func (r *LedgerRepo) RecordMarker(ctx context.Context, accountID uuid.UUID, kind model.EntryKind, description string) (*model.LedgerEntry, error) {
	entry, err := insertEntry(ctx, r.db, model.LedgerEntry{
		AccountID:   accountID,
		Kind:        kind,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	r.publishEntry(entry)
	return entry, nil
}

// SettleOverage charges a bandwidth overage and stamps the server's settled
// period in the same transaction. The stamp is conditional, so a second call
// for the same server and period returns ErrAlreadySettled without charging.
// Overage debits are unconditional: the bandwidth is already consumed, so the
// balance may go negative.
func (r *LedgerRepo) SettleOverage(ctx context.Context, serverID, accountID uuid.UUID, amountCents int64, period, description string) (*model.LedgerEntry, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("overage amount must be positive, got %d", amountCents)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, persistErr("begin overage", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE servers SET overage_settled_period = $2
		 WHERE id = $1 AND overage_settled_period IS DISTINCT FROM $2`,
		serverID, period)
	if err != nil {
		return nil, persistErr("stamp overage period", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("server %s period %s: %w", serverID, period, model.ErrAlreadySettled)
	}

	tag, err = tx.Exec(ctx,
		`UPDATE accounts SET balance_cents = balance_cents - $2, updated_at = now() WHERE id = $1`,
		accountID, amountCents)
	if err != nil {
		return nil, persistErr("debit overage", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("account %s: %w", accountID, model.ErrNotFound)
	}

	entry, err := insertEntry(ctx, tx, model.LedgerEntry{
		AccountID:   accountID,
		AmountCents: -amountCents,
		Kind:        model.KindBandwidthOverage,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, persistErr("commit overage", err)
	}
	r.publishEntry(entry)
	return entry, nil
}

func (r *LedgerRepo) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance_cents FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("account %s: %w", accountID, model.ErrNotFound)
	}
	if err != nil {
		return 0, persistErr("select balance", err)
	}
	return balance, nil
}

// ListEntries returns one page of the account's ledger, newest first,
// optionally bounded to [From, To).
func (r *LedgerRepo) ListEntries(ctx context.Context, accountID uuid.UUID, opts model.ListOptions) (*model.EntryPage, error) {
	opts = opts.Normalize()

	where := `WHERE account_id = $1`
	args := []any{accountID}
	if !opts.From.IsZero() {
		args = append(args, opts.From)
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if !opts.To.IsZero() {
		args = append(args, opts.To)
		where += fmt.Sprintf(` AND created_at < $%d`, len(args))
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM ledger_entries `+where, args...).Scan(&total); err != nil {
		return nil, persistErr("count entries", err)
	}

	args = append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM ledger_entries %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		entryColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, persistErr("select entries", err)
	}
	defer rows.Close()

	entries := make([]model.LedgerEntry, 0, opts.PageSize)
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.AmountCents, &e.Currency, &e.Kind, &e.Status,
			&e.ExternalRef, &e.Description, &e.CreatedAt); err != nil {
			return nil, persistErr("scan entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate entries", err)
	}

	return model.NewEntryPage(entries, opts.Page, opts.PageSize, total), nil
}

func (r *LedgerRepo) accountExists(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) error {
	var one int
	err := tx.QueryRow(ctx, `SELECT 1 FROM accounts WHERE id = $1`, accountID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("account %s: %w", accountID, model.ErrNotFound)
	}
	if err != nil {
		return persistErr("select account", err)
	}
	return nil
}

// querier covers both pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertEntry(ctx context.Context, q querier, e model.LedgerEntry) (*model.LedgerEntry, error) {
	e.ID = uuid.New()
	if e.Currency == "" {
		e.Currency = "USD"
	}
	if e.Status == "" {
		e.Status = model.StatusCompleted
	}

	var ref any
	if e.ExternalRef != "" {
		ref = e.ExternalRef
	}
	err := q.QueryRow(ctx,
		`INSERT INTO ledger_entries (id, account_id, amount_cents, currency, kind, status, external_ref, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		e.ID, e.AccountID, e.AmountCents, e.Currency, e.Kind, e.Status, ref, e.Description).Scan(&e.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == "23505" && pgErr.ConstraintName == "ledger_entries_external_ref_key":
				return nil, fmt.Errorf("ref %s: %w", e.ExternalRef, model.ErrDuplicateDeposit)
			case pgErr.Code == "23503":
				return nil, fmt.Errorf("account %s: %w", e.AccountID, model.ErrNotFound)
			}
		}
		return nil, persistErr("insert entry", err)
	}
	return &e, nil
}

func (r *LedgerRepo) publishEntry(e *model.LedgerEntry) {
	if r.bus == nil {
		return
	}
	data, _ := json.Marshal(model.EntryCreatedEvent{
		EntryID:     e.ID,
		AccountID:   e.AccountID,
		AmountCents: e.AmountCents,
		Kind:        e.Kind,
		CreatedAt:   e.CreatedAt,
	})
	_ = r.bus.Publish(model.TopicEntryCreated, data)
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", model.ErrPersistence, op, err)
}
