package model

import (
	"time"

	"github.com/google/uuid"
)

// Account is a billable owner. BalanceCents is denominated in minor currency
// units and may go negative (bandwidth overages apply unconditionally).
// It is only ever mutated through atomic delta statements in the ledger repo.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	BalanceCents int64     `json:"balance_cents"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
