package model

import (
	"time"

	"github.com/google/uuid"
)

// EntryKind classifies a ledger entry. Entries are append-only: once written
// they are never mutated or deleted, and the sum of all completed amounts for
// an account equals that account's current balance.
type EntryKind string

const (
	KindDeposit          EntryKind = "deposit"
	KindServerCharge     EntryKind = "server_charge"
	KindResizeCharge     EntryKind = "resize_charge"
	KindHourlyCharge     EntryKind = "hourly_charge"
	KindBandwidthOverage EntryKind = "bandwidth_overage"
	KindForcedDeletion   EntryKind = "forced_deletion"
)

type EntryStatus string

const (
	StatusCompleted EntryStatus = "completed"
	StatusPending   EntryStatus = "pending"
	StatusFailed    EntryStatus = "failed"
)

// LedgerEntry is one immutable row of the money ledger. Charges carry a
// negative AmountCents, deposits a positive one.
type LedgerEntry struct {
	ID          uuid.UUID   `json:"id"`
	AccountID   uuid.UUID   `json:"account_id"`
	AmountCents int64       `json:"amount_cents"`
	Currency    string      `json:"currency"`
	Kind        EntryKind   `json:"kind"`
	Status      EntryStatus `json:"status"`
	ExternalRef string      `json:"external_ref,omitempty"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ListOptions controls ledger pagination. Zero From/To means no date filter.
type ListOptions struct {
	Page     int
	PageSize int
	From     time.Time
	To       time.Time
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps page and page size to usable values.
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = DefaultPageSize
	}
	if o.PageSize > MaxPageSize {
		o.PageSize = MaxPageSize
	}
	return o
}

// EntryPage is one page of ledger entries, newest first.
type EntryPage struct {
	Entries     []LedgerEntry `json:"entries"`
	Page        int           `json:"page"`
	PageSize    int           `json:"page_size"`
	Total       int64         `json:"total"`
	TotalPages  int           `json:"total_pages"`
	HasNextPage bool          `json:"has_next_page"`
	HasPrevPage bool          `json:"has_prev_page"`
}

// NewEntryPage builds the page envelope for an already-sliced result set.
func NewEntryPage(entries []LedgerEntry, page, pageSize int, total int64) *EntryPage {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &EntryPage{
		Entries:     entries,
		Page:        page,
		PageSize:    pageSize,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1 && total > 0,
	}
}
