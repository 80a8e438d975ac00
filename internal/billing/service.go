// Package billing is the reconciliation layer between the HTTP surface, the
// ledger, and the external collaborators. Every balance-affecting entry point
// funnels into a single conditional ledger statement, so a sufficiency check
// can never race a concurrent charge.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hostbill/internal/model"
	"hostbill/internal/plans"
	"hostbill/internal/provider"
	"hostbill/internal/repository"
)

// MinDepositCents is the smallest deposit the gateway will be asked to
// process.
const MinDepositCents = 100

type Ledger interface {
	Charge(ctx context.Context, accountID uuid.UUID, amountCents int64, kind model.EntryKind, description string) (*model.LedgerEntry, error)
	Deposit(ctx context.Context, accountID uuid.UUID, amountCents int64, externalRef string) (*model.LedgerEntry, error)
	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, opts model.ListOptions) (*model.EntryPage, error)
}

type AccountStore interface {
	Create(ctx context.Context, email string) (*model.Account, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Account, error)
}

type ServerStore interface {
	Create(ctx context.Context, s *model.Server) error
	GetForAccount(ctx context.Context, accountID, id uuid.UUID) (*model.Server, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Server, error)
	UpdateSize(ctx context.Context, id uuid.UUID, sizeSlug string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	ledger   Ledger
	accounts AccountStore
	servers  ServerStore
	payments provider.Payments
	compute  provider.Compute
	catalog  *plans.Catalog
	bus      repository.MessageBus
	log      zerolog.Logger
}

func NewService(ledger Ledger, accounts AccountStore, servers ServerStore,
	payments provider.Payments, compute provider.Compute,
	catalog *plans.Catalog, bus repository.MessageBus, log zerolog.Logger) *Service {
	return &Service{
		ledger:   ledger,
		accounts: accounts,
		servers:  servers,
		payments: payments,
		compute:  compute,
		catalog:  catalog,
		bus:      bus,
		log:      log.With().Str("component", "billing").Logger(),
	}
}

func (s *Service) CreateAccount(ctx context.Context, email string) (*model.Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email %q", email)
	}
	return s.accounts.Create(ctx, email)
}

func (s *Service) Account(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return s.accounts.Get(ctx, id)
}

func (s *Service) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return s.ledger.Balance(ctx, accountID)
}

func (s *Service) Transactions(ctx context.Context, accountID uuid.UUID, opts model.ListOptions) (*model.EntryPage, error) {
	if _, err := s.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}
	return s.ledger.ListEntries(ctx, accountID, opts)
}

// InitiateDeposit opens a payment order at the gateway and returns the handle
// the dashboard redirects the customer to. Nothing is written to the ledger
// until capture.
func (s *Service) InitiateDeposit(ctx context.Context, accountID uuid.UUID, amountCents int64) (*provider.PaymentIntent, error) {
	if amountCents < MinDepositCents {
		return nil, fmt.Errorf("minimum deposit is $%.2f", float64(MinDepositCents)/100)
	}
	if _, err := s.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}
	return s.payments.CreateOrder(ctx, amountCents, "USD")
}

// CaptureDeposit verifies the payment with the gateway and credits the
// account. The gateway's capture reference makes the deposit idempotent: a
// replayed capture surfaces ErrDuplicateDeposit and credits nothing.
func (s *Service) CaptureDeposit(ctx context.Context, accountID uuid.UUID, orderID string) (*model.LedgerEntry, error) {
	capture, err := s.payments.CaptureOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	entry, err := s.ledger.Deposit(ctx, accountID, capture.AmountCents, capture.Ref)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("account_id", accountID.String()).
		Int64("amount_cents", capture.AmountCents).
		Str("ref", capture.Ref).
		Msg("deposit captured")
	return entry, nil
}

// ProvisionServer creates the instance and charges the first hour. The charge
// is the authoritative sufficiency check: if it does not apply, the fresh
// instance is torn down again and nothing is billed.
func (s *Service) ProvisionServer(ctx context.Context, accountID uuid.UUID, name, sizeSlug, region string) (*model.Server, error) {
	if name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if !s.catalog.Known(sizeSlug) {
		return nil, fmt.Errorf("unknown size %q", sizeSlug)
	}
	plan := s.catalog.Lookup(sizeSlug)

	// Advisory fast-fail before touching the provider; the conditional
	// charge below remains the authoritative check.
	balance, err := s.ledger.Balance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if balance < plan.HourlyCents {
		return nil, fmt.Errorf("%w, required $%.2f", model.ErrInsufficientBalance, float64(plan.HourlyCents)/100)
	}

	inst, err := s.compute.CreateServer(ctx, provider.CreateServerRequest{
		Name:     name,
		Region:   region,
		SizeSlug: sizeSlug,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.Charge(ctx, accountID, plan.HourlyCents, model.KindServerCharge,
		fmt.Sprintf("provision %s (%s)", name, sizeSlug)); err != nil {
		if destroyErr := s.compute.DestroyServer(ctx, inst.ProviderID); destroyErr != nil {
			s.log.Error().Err(destroyErr).Str("provider_id", inst.ProviderID).
				Msg("failed to tear down unpaid instance")
		}
		return nil, err
	}

	server := &model.Server{
		AccountID:  accountID,
		ProviderID: inst.ProviderID,
		Name:       name,
		SizeSlug:   sizeSlug,
		Region:     region,
		IPAddress:  inst.IPAddress,
		Status:     model.ServerActive,
	}
	if err := s.servers.Create(ctx, server); err != nil {
		return nil, err
	}

	s.publishLifecycle(model.TopicServerCreated, server, "")
	return server, nil
}

// ResizeServer charges the hourly-rate difference when upgrading, then asks
// the provider to resize. Downgrades are free.
func (s *Service) ResizeServer(ctx context.Context, accountID, serverID uuid.UUID, sizeSlug string) (*model.Server, error) {
	if !s.catalog.Known(sizeSlug) {
		return nil, fmt.Errorf("unknown size %q", sizeSlug)
	}
	server, err := s.servers.GetForAccount(ctx, accountID, serverID)
	if err != nil {
		return nil, err
	}
	if server.SizeSlug == sizeSlug {
		return server, nil
	}

	oldPlan := s.catalog.Lookup(server.SizeSlug)
	newPlan := s.catalog.Lookup(sizeSlug)
	if diff := newPlan.HourlyCents - oldPlan.HourlyCents; diff > 0 {
		if _, err := s.ledger.Charge(ctx, accountID, diff, model.KindResizeCharge,
			fmt.Sprintf("resize %s: %s -> %s", server.Name, server.SizeSlug, sizeSlug)); err != nil {
			return nil, err
		}
	}

	// TODO: compensate the resize charge when the provider rejects the resize.
	if err := s.compute.ResizeServer(ctx, server.ProviderID, sizeSlug); err != nil {
		return nil, err
	}
	if err := s.servers.UpdateSize(ctx, serverID, sizeSlug); err != nil {
		return nil, err
	}
	server.SizeSlug = sizeSlug
	return server, nil
}

// DestroyServer is user-initiated deletion: teardown at the provider, then
// drop the row. No charge.
func (s *Service) DestroyServer(ctx context.Context, accountID, serverID uuid.UUID) error {
	server, err := s.servers.GetForAccount(ctx, accountID, serverID)
	if err != nil {
		return err
	}
	if err := s.compute.DestroyServer(ctx, server.ProviderID); err != nil {
		return err
	}
	return s.servers.Delete(ctx, serverID)
}

func (s *Service) Server(ctx context.Context, accountID, serverID uuid.UUID) (*model.Server, error) {
	return s.servers.GetForAccount(ctx, accountID, serverID)
}

func (s *Service) Servers(ctx context.Context, accountID uuid.UUID) ([]model.Server, error) {
	return s.servers.ListByAccount(ctx, accountID)
}

func (s *Service) publishLifecycle(topic string, server *model.Server, reason string) {
	if s.bus == nil {
		return
	}
	data, _ := json.Marshal(model.ServerLifecycleEvent{
		ServerID:   server.ID,
		AccountID:  server.AccountID,
		ProviderID: server.ProviderID,
		SizeSlug:   server.SizeSlug,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
	if err := s.bus.Publish(topic, data); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn().Err(err).Str("topic", topic).Msg("failed to publish event")
	}
}
