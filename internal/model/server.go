package model

import (
	"time"

	"github.com/google/uuid"
)

type ServerStatus string

const (
	ServerActive       ServerStatus = "active"
	ServerProvisioning ServerStatus = "provisioning"
)

// Server is a billable provisioned compute instance. ProviderID is the
// identifier assigned by the cloud provider; SizeSlug selects the plan that
// determines the hourly rate and bandwidth allowance.
type Server struct {
	ID         uuid.UUID    `json:"id"`
	AccountID  uuid.UUID    `json:"account_id"`
	ProviderID string       `json:"provider_id"`
	Name       string       `json:"name"`
	SizeSlug   string       `json:"size_slug"`
	Region     string       `json:"region"`
	IPAddress  string       `json:"ip_address,omitempty"`
	Status     ServerStatus `json:"status"`
	// OveragePeriod is the last billing period ("2006-01") whose bandwidth
	// overage has been settled for this server. Empty until the first
	// settlement.
	OveragePeriod string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}
