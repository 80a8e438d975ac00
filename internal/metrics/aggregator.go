package metrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"hostbill/internal/model"
	"hostbill/internal/plans"
)

const bytesPerGB = 1 << 30

type BandwidthStore interface {
	SumBandwidth(ctx context.Context, serverID uuid.UUID, from, to time.Time) (int64, error)
}

type OverageLedger interface {
	SettleOverage(ctx context.Context, serverID, accountID uuid.UUID, amountCents int64, period, description string) (*model.LedgerEntry, error)
}

// Aggregator reduces a billing period's samples to a usage-vs-allowance
// figure and settles the monetary overage through the ledger.
type Aggregator struct {
	store   BandwidthStore
	ledger  OverageLedger
	catalog *plans.Catalog

	now func() time.Time
}

func NewAggregator(store BandwidthStore, ledger OverageLedger, catalog *plans.Catalog) *Aggregator {
	return &Aggregator{store: store, ledger: ledger, catalog: catalog, now: time.Now}
}

// Usage sums the server's transfer over [periodStart, periodEnd) and compares
// it against the plan allowance.
func (a *Aggregator) Usage(ctx context.Context, server *model.Server, periodStart, periodEnd time.Time) (*model.BandwidthUsage, error) {
	totalBytes, err := a.store.SumBandwidth(ctx, server.ID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	plan := a.catalog.Lookup(server.SizeSlug)
	usedGB := float64(totalBytes) / bytesPerGB
	overageGB := usedGB - plan.BandwidthGB
	if overageGB < 0 {
		overageGB = 0
	}

	return &model.BandwidthUsage{
		UsedGB:    usedGB,
		LimitGB:   plan.BandwidthGB,
		OverageGB: overageGB,
	}, nil
}

// SettleOverage charges the current period's bandwidth overage, if any.
// The charge amount is overageGB * monthly price in dollars * OverageRate,
// rounded half away from zero to whole cents. Settlement is idempotent per
// server and period: the ledger stamps the period in the same transaction as
// the charge, and a repeat call returns (nil, nil).
func (a *Aggregator) SettleOverage(ctx context.Context, server *model.Server) (*model.LedgerEntry, error) {
	periodStart, periodEnd := MonthWindow(a.now())

	usage, err := a.Usage(ctx, server, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	if usage.OverageGB <= 0 {
		return nil, nil
	}

	plan := a.catalog.Lookup(server.SizeSlug)
	amountCents := int64(math.Round(usage.OverageGB * plan.MonthlyDollars() * plans.OverageRate * 100))
	if amountCents <= 0 {
		return nil, nil
	}

	description := fmt.Sprintf("bandwidth overage: %.1f GB over %.0f GB allowance", usage.OverageGB, usage.LimitGB)
	entry, err := a.ledger.SettleOverage(ctx, server.ID, server.AccountID, amountCents, PeriodKey(periodStart), description)
	if errors.Is(err, model.ErrAlreadySettled) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Summary is the boundary shape the dashboard renders on the usage page.
func (a *Aggregator) Summary(ctx context.Context, server *model.Server) (*model.UsageSummary, error) {
	periodStart, periodEnd := MonthWindow(a.now())
	usage, err := a.Usage(ctx, server, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	return &model.UsageSummary{
		CurrentGB:   usage.UsedGB,
		LimitGB:     usage.LimitGB,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		OverageRate: plans.OverageRate,
	}, nil
}
