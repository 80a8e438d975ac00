// Package provider holds the external collaborator contracts: the cloud
// compute control plane and the payment gateway. The rest of the codebase
// depends on these interfaces; the godo and paypal adapters are thin.
package provider

import "context"

// CreateServerRequest is what the billing service needs provisioned.
type CreateServerRequest struct {
	Name     string
	Region   string
	SizeSlug string
}

// Instance identifies a provisioned compute instance at the provider.
type Instance struct {
	ProviderID string
	IPAddress  string
}

// UsageSnapshot is one raw usage observation. Net counters are bytes
// transferred during the sampling window, so summing snapshots over a period
// yields total transfer.
type UsageSnapshot struct {
	CPUPct        float64
	MemoryPct     float64
	DiskPct       float64
	NetInBytes    int64
	NetOutBytes   int64
	LoadOne       float64
	LoadFive      float64
	LoadFifteen   float64
	UptimeSeconds int64
}

// Compute is the cloud provisioning collaborator. DestroyServer is
// idempotent: destroying an already-gone instance succeeds.
type Compute interface {
	CreateServer(ctx context.Context, req CreateServerRequest) (*Instance, error)
	DestroyServer(ctx context.Context, providerID string) error
	ResizeServer(ctx context.Context, providerID, sizeSlug string) error
	FetchUsage(ctx context.Context, providerID string) (*UsageSnapshot, error)
}
