package model

import (
	"time"

	"github.com/google/uuid"
)

// MetricSample is one point-in-time usage observation for a server.
// Samples are append-only; byte counters are monotonic within a billing
// period.
type MetricSample struct {
	ID            int64     `json:"id"`
	ServerID      uuid.UUID `json:"server_id"`
	CPUPct        float64   `json:"cpu_pct"`
	MemoryPct     float64   `json:"memory_pct"`
	DiskPct       float64   `json:"disk_pct"`
	NetInBytes    int64     `json:"net_in_bytes"`
	NetOutBytes   int64     `json:"net_out_bytes"`
	LoadOne       float64   `json:"load_one"`
	LoadFive      float64   `json:"load_five"`
	LoadFifteen   float64   `json:"load_fifteen"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	SampledAt     time.Time `json:"sampled_at"`
}

// BandwidthUsage compares a period's transfer against the plan allowance.
type BandwidthUsage struct {
	UsedGB    float64 `json:"used_gb"`
	LimitGB   float64 `json:"limit_gb"`
	OverageGB float64 `json:"overage_gb"`
}

// UsageSummary is the boundary shape consumed by the dashboard.
type UsageSummary struct {
	CurrentGB   float64   `json:"current"`
	LimitGB     float64   `json:"limit"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	OverageRate float64   `json:"overage_rate"`
}
