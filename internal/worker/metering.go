package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"hostbill/internal/metrics"
	"hostbill/internal/model"
	"hostbill/internal/plans"
	"hostbill/internal/provider"
	"hostbill/internal/repository"
)

type MeteringLedger interface {
	Charge(ctx context.Context, accountID uuid.UUID, amountCents int64, kind model.EntryKind, description string) (*model.LedgerEntry, error)
	RecordMarker(ctx context.Context, accountID uuid.UUID, kind model.EntryKind, description string) (*model.LedgerEntry, error)
}

type ServerLister interface {
	ListActive(ctx context.Context) ([]model.Server, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type OverageSettler interface {
	SettleOverage(ctx context.Context, server *model.Server) (*model.LedgerEntry, error)
}

// MeteringJob is the system's only scheduled process. Each tick it charges
// every active server its hourly rate, reclaims servers whose owner cannot
// pay, and on the last calendar day of the month settles bandwidth overages.
//
// Ticks never overlap: if a tick is still running when the next fires, the
// new one is skipped rather than queued. Servers are processed independently
// under a bounded errgroup; one slow or failing server cannot stall the rest.
type MeteringJob struct {
	ledger  MeteringLedger
	servers ServerLister
	overage OverageSettler
	compute provider.Compute
	catalog *plans.Catalog
	bus     repository.MessageBus
	log     zerolog.Logger

	interval        time.Duration
	providerTimeout time.Duration
	workers         int

	inFlight atomic.Bool
	now      func() time.Time
}

type MeteringConfig struct {
	Interval        time.Duration
	ProviderTimeout time.Duration
	Workers         int
}

func NewMeteringJob(ledger MeteringLedger, servers ServerLister, overage OverageSettler,
	compute provider.Compute, catalog *plans.Catalog, bus repository.MessageBus,
	log zerolog.Logger, cfg MeteringConfig) *MeteringJob {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &MeteringJob{
		ledger:          ledger,
		servers:         servers,
		overage:         overage,
		compute:         compute,
		catalog:         catalog,
		bus:             bus,
		log:             log.With().Str("component", "metering").Logger(),
		interval:        cfg.Interval,
		providerTimeout: cfg.ProviderTimeout,
		workers:         cfg.Workers,
		now:             time.Now,
	}
}

// Start ticks until ctx is cancelled. Implements the infrastructure.Server
// interface.
func (j *MeteringJob) Start(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.log.Info().Dur("interval", j.interval).Msg("metering job running")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !j.inFlight.CompareAndSwap(false, true) {
				j.log.Warn().Msg("previous tick still running, skipping")
				continue
			}
			go func() {
				defer j.inFlight.Store(false)
				j.RunTick(ctx)
			}()
		}
	}
}

func (j *MeteringJob) Stop(ctx context.Context) error { return nil }

// RunTick processes every active server once. Per-server failures are logged
// and isolated; the affected server is retried on the next tick.
func (j *MeteringJob) RunTick(ctx context.Context) {
	servers, err := j.servers.ListActive(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("failed to list servers, aborting tick")
		return
	}

	settleDay := metrics.IsLastDayOfMonth(j.now())

	var charged, reclaimed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.workers)

	for i := range servers {
		server := servers[i]
		g.Go(func() error {
			switch err := j.processServer(gctx, &server, settleDay); {
			case err == nil:
				charged.Add(1)
			case errors.Is(err, errReclaimed):
				reclaimed.Add(1)
			default:
				failed.Add(1)
				j.log.Error().Err(err).
					Str("server_id", server.ID.String()).
					Str("account_id", server.AccountID.String()).
					Msg("metering failed for server")
			}
			return nil
		})
	}
	_ = g.Wait()

	j.log.Info().
		Int("servers", len(servers)).
		Int64("charged", charged.Load()).
		Int64("reclaimed", reclaimed.Load()).
		Int64("failed", failed.Load()).
		Bool("settle_day", settleDay).
		Msg("tick complete")
}

// errReclaimed distinguishes the reclamation outcome from a failure in the
// tick accounting.
var errReclaimed = errors.New("server reclaimed")

func (j *MeteringJob) processServer(ctx context.Context, server *model.Server, settleDay bool) error {
	plan := j.catalog.Lookup(server.SizeSlug)

	_, err := j.ledger.Charge(ctx, server.AccountID, plan.HourlyCents, model.KindHourlyCharge,
		fmt.Sprintf("hourly charge for %s (%s)", server.Name, server.SizeSlug))
	switch {
	case errors.Is(err, model.ErrInsufficientBalance):
		if err := j.reclaim(ctx, server); err != nil {
			return err
		}
		return errReclaimed
	case err != nil:
		return err
	}

	if settleDay {
		if entry, err := j.overage.SettleOverage(ctx, server); err != nil {
			// Settlement is idempotent, so failing here just defers to the
			// next settle-day tick.
			j.log.Error().Err(err).Str("server_id", server.ID.String()).Msg("overage settlement failed")
		} else if entry != nil {
			j.log.Info().
				Str("server_id", server.ID.String()).
				Int64("amount_cents", entry.AmountCents).
				Msg("bandwidth overage settled")
		}
	}

	return nil
}

// reclaim tears the instance down at the provider and deletes the row. No
// charge is written for the tick; the deletion is the consequence. A failed
// teardown leaves the server for the next tick.
func (j *MeteringJob) reclaim(ctx context.Context, server *model.Server) error {
	providerCtx, cancel := context.WithTimeout(ctx, j.providerTimeout)
	defer cancel()

	if err := j.compute.DestroyServer(providerCtx, server.ProviderID); err != nil {
		return fmt.Errorf("teardown %s: %w", server.ProviderID, err)
	}
	if err := j.servers.Delete(ctx, server.ID); err != nil {
		return err
	}

	if _, err := j.ledger.RecordMarker(ctx, server.AccountID, model.KindForcedDeletion,
		fmt.Sprintf("reclaimed %s: insufficient balance for hourly rate", server.Name)); err != nil {
		j.log.Warn().Err(err).Str("server_id", server.ID.String()).Msg("failed to record reclamation marker")
	}

	j.log.Info().
		Str("server_id", server.ID.String()).
		Str("account_id", server.AccountID.String()).
		Msg("server reclaimed")

	if j.bus != nil {
		data, _ := json.Marshal(model.ServerLifecycleEvent{
			ServerID:   server.ID,
			AccountID:  server.AccountID,
			ProviderID: server.ProviderID,
			SizeSlug:   server.SizeSlug,
			Reason:     "insufficient balance",
			OccurredAt: j.now().UTC(),
		})
		_ = j.bus.Publish(model.TopicServerReclaimed, data)
	}
	return nil
}
