package model

import (
	"time"

	"github.com/google/uuid"
)

// Bus topics. Consumers use queue groups so a multi-instance deploy processes
// each event once.
const (
	TopicEntryCreated    = "billing.entries.created"
	TopicServerCreated   = "billing.servers.created"
	TopicServerReclaimed = "billing.servers.reclaimed"
)

// EntryCreatedEvent is published after every committed ledger write.
type EntryCreatedEvent struct {
	EntryID     uuid.UUID `json:"entry_id"`
	AccountID   uuid.UUID `json:"account_id"`
	AmountCents int64     `json:"amount_cents"`
	Kind        EntryKind `json:"kind"`
	CreatedAt   time.Time `json:"created_at"`
}

// ServerLifecycleEvent is published when a server is provisioned or reclaimed.
type ServerLifecycleEvent struct {
	ServerID   uuid.UUID `json:"server_id"`
	AccountID  uuid.UUID `json:"account_id"`
	ProviderID string    `json:"provider_id"`
	SizeSlug   string    `json:"size_slug"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
