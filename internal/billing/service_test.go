package billing

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostbill/internal/model"
	"hostbill/internal/plans"
	"hostbill/internal/provider"
)

// fakeLedger mirrors the repository's conditional-update semantics: a charge
// applies only if the balance covers it, atomically under the lock.
type fakeLedger struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
	entries  []model.LedgerEntry
	refs     map[string]bool

	failCharge error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[uuid.UUID]int64), refs: make(map[string]bool)}
}

func (f *fakeLedger) Charge(ctx context.Context, accountID uuid.UUID, amountCents int64, kind model.EntryKind, description string) (*model.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCharge != nil {
		return nil, f.failCharge
	}
	balance, ok := f.balances[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, model.ErrNotFound)
	}
	if balance < amountCents {
		return nil, fmt.Errorf("%w, required $%.2f", model.ErrInsufficientBalance, float64(amountCents)/100)
	}
	f.balances[accountID] = balance - amountCents
	entry := model.LedgerEntry{
		ID: uuid.New(), AccountID: accountID, AmountCents: -amountCents,
		Kind: kind, Status: model.StatusCompleted, Description: description,
	}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeLedger) Deposit(ctx context.Context, accountID uuid.UUID, amountCents int64, externalRef string) (*model.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.balances[accountID]; !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, model.ErrNotFound)
	}
	if f.refs[externalRef] {
		return nil, fmt.Errorf("ref %s: %w", externalRef, model.ErrDuplicateDeposit)
	}
	f.refs[externalRef] = true
	f.balances[accountID] += amountCents
	entry := model.LedgerEntry{
		ID: uuid.New(), AccountID: accountID, AmountCents: amountCents,
		Kind: model.KindDeposit, Status: model.StatusCompleted, ExternalRef: externalRef,
	}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeLedger) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[accountID]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", accountID, model.ErrNotFound)
	}
	return balance, nil
}

func (f *fakeLedger) ListEntries(ctx context.Context, accountID uuid.UUID, opts model.ListOptions) (*model.EntryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	opts = opts.Normalize()
	var filtered []model.LedgerEntry
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].AccountID == accountID {
			filtered = append(filtered, f.entries[i])
		}
	}
	start := (opts.Page - 1) * opts.PageSize
	end := start + opts.PageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}
	return model.NewEntryPage(filtered[start:end], opts.Page, opts.PageSize, int64(len(filtered))), nil
}

// sumCompleted verifies the ledger invariant: balance == sum of completed
// entry amounts.
func (f *fakeLedger) sumCompleted(accountID uuid.UUID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, e := range f.entries {
		if e.AccountID == accountID && e.Status == model.StatusCompleted {
			sum += e.AmountCents
		}
	}
	return sum
}

type fakeAccounts struct {
	accounts map[uuid.UUID]*model.Account
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{accounts: make(map[uuid.UUID]*model.Account)}
}

func (f *fakeAccounts) Create(ctx context.Context, email string) (*model.Account, error) {
	a := &model.Account{ID: uuid.New(), Email: email}
	f.accounts[a.ID] = a
	return a, nil
}

func (f *fakeAccounts) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, model.ErrNotFound)
	}
	return a, nil
}

type fakeServers struct {
	mu      sync.Mutex
	servers map[uuid.UUID]*model.Server
}

func newFakeServers() *fakeServers {
	return &fakeServers{servers: make(map[uuid.UUID]*model.Server)}
}

func (f *fakeServers) Create(ctx context.Context, s *model.Server) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	copied := *s
	f.servers[s.ID] = &copied
	return nil
}

func (f *fakeServers) GetForAccount(ctx context.Context, accountID, id uuid.UUID) (*model.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.servers[id]
	if !ok || s.AccountID != accountID {
		return nil, fmt.Errorf("server: %w", model.ErrNotFound)
	}
	copied := *s
	return &copied, nil
}

func (f *fakeServers) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Server
	for _, s := range f.servers {
		if s.AccountID == accountID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeServers) UpdateSize(ctx context.Context, id uuid.UUID, sizeSlug string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.servers[id]
	if !ok {
		return fmt.Errorf("server %s: %w", id, model.ErrNotFound)
	}
	s.SizeSlug = sizeSlug
	return nil
}

func (f *fakeServers) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.servers[id]; !ok {
		return fmt.Errorf("server %s: %w", id, model.ErrNotFound)
	}
	delete(f.servers, id)
	return nil
}

type fakePayments struct {
	captureCents int64
	captureRef   string
	captureErr   error
}

func (f *fakePayments) CreateOrder(ctx context.Context, amountCents int64, currency string) (*provider.PaymentIntent, error) {
	return &provider.PaymentIntent{OrderID: "ORDER-1", ApproveURL: "https://pay.example/ORDER-1", AmountCents: amountCents, Currency: currency}, nil
}

func (f *fakePayments) CaptureOrder(ctx context.Context, orderID string) (*provider.PaymentCapture, error) {
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	return &provider.PaymentCapture{Ref: f.captureRef, AmountCents: f.captureCents, Currency: "USD"}, nil
}

type fakeCompute struct {
	mu        sync.Mutex
	created   int
	destroyed []string
	resized   []string
	createErr error
}

func (f *fakeCompute) CreateServer(ctx context.Context, req provider.CreateServerRequest) (*provider.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &provider.Instance{ProviderID: fmt.Sprintf("%d", 1000+f.created), IPAddress: "203.0.113.10"}, nil
}

func (f *fakeCompute) DestroyServer(ctx context.Context, providerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, providerID)
	return nil
}

func (f *fakeCompute) ResizeServer(ctx context.Context, providerID, sizeSlug string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resized = append(f.resized, sizeSlug)
	return nil
}

func (f *fakeCompute) FetchUsage(ctx context.Context, providerID string) (*provider.UsageSnapshot, error) {
	return &provider.UsageSnapshot{}, nil
}

type fakeBus struct {
	mu     sync.Mutex
	topics []string
}

func (f *fakeBus) Publish(topic string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	return nil
}

type fixture struct {
	svc      *Service
	ledger   *fakeLedger
	accounts *fakeAccounts
	servers  *fakeServers
	payments *fakePayments
	compute  *fakeCompute
	bus      *fakeBus
}

func newFixture() *fixture {
	catalog := plans.NewCatalog(
		plans.Plan{Slug: "small", HourlyCents: 100, MonthlyCents: 1000, BandwidthGB: 1000},
		plans.Plan{Slug: "small", HourlyCents: 100, MonthlyCents: 1000, BandwidthGB: 1000},
		plans.Plan{Slug: "large", HourlyCents: 300, MonthlyCents: 3000, BandwidthGB: 3000},
	)
	f := &fixture{
		ledger:   newFakeLedger(),
		accounts: newFakeAccounts(),
		servers:  newFakeServers(),
		payments: &fakePayments{captureCents: 1000, captureRef: "CAP-1"},
		compute:  &fakeCompute{},
		bus:      &fakeBus{},
	}
	f.svc = NewService(f.ledger, f.accounts, f.servers, f.payments, f.compute, catalog, f.bus, zerolog.Nop())
	return f
}

func (f *fixture) account(balanceCents int64) uuid.UUID {
	a, _ := f.accounts.Create(context.Background(), "user@example.com")
	f.ledger.balances[a.ID] = balanceCents
	return a.ID
}

func TestCreateAccountValidatesEmail(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateAccount(context.Background(), "not-an-email")
	assert.Error(t, err)

	a, err := f.svc.CreateAccount(context.Background(), "  User@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", a.Email)
}

func TestCaptureDepositCredits(t *testing.T) {
	f := newFixture()
	accountID := f.account(0)

	entry, err := f.svc.CaptureDeposit(context.Background(), accountID, "ORDER-1")
	require.NoError(t, err)

	assert.Equal(t, int64(1000), entry.AmountCents)
	assert.Equal(t, model.KindDeposit, entry.Kind)
	assert.Equal(t, "CAP-1", entry.ExternalRef)

	balance, err := f.svc.Balance(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
	assert.Equal(t, balance, f.ledger.sumCompleted(accountID))
}

func TestCaptureDepositDuplicateRef(t *testing.T) {
	f := newFixture()
	accountID := f.account(0)

	_, err := f.svc.CaptureDeposit(context.Background(), accountID, "ORDER-1")
	require.NoError(t, err)

	_, err = f.svc.CaptureDeposit(context.Background(), accountID, "ORDER-1")
	assert.ErrorIs(t, err, model.ErrDuplicateDeposit)

	balance, _ := f.svc.Balance(context.Background(), accountID)
	assert.Equal(t, int64(1000), balance)
}

func TestCaptureDepositPaymentFailure(t *testing.T) {
	f := newFixture()
	accountID := f.account(0)
	f.payments.captureErr = fmt.Errorf("%w: capture status DECLINED", model.ErrPayment)

	_, err := f.svc.CaptureDeposit(context.Background(), accountID, "ORDER-1")
	assert.ErrorIs(t, err, model.ErrPayment)

	balance, _ := f.svc.Balance(context.Background(), accountID)
	assert.Equal(t, int64(0), balance)
	assert.Empty(t, f.ledger.entries)
}

func TestInitiateDepositMinimum(t *testing.T) {
	f := newFixture()
	accountID := f.account(0)

	_, err := f.svc.InitiateDeposit(context.Background(), accountID, 50)
	assert.Error(t, err)

	intent, err := f.svc.InitiateDeposit(context.Background(), accountID, 500)
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", intent.OrderID)
}

func TestProvisionServer(t *testing.T) {
	f := newFixture()
	accountID := f.account(500)

	server, err := f.svc.ProvisionServer(context.Background(), accountID, "web-1", "small", "nyc3")
	require.NoError(t, err)

	assert.Equal(t, "web-1", server.Name)
	assert.NotEmpty(t, server.ProviderID)
	assert.Equal(t, "203.0.113.10", server.IPAddress)

	balance, _ := f.svc.Balance(context.Background(), accountID)
	assert.Equal(t, int64(400), balance)

	require.Len(t, f.ledger.entries, 1)
	assert.Equal(t, model.KindServerCharge, f.ledger.entries[0].Kind)
	assert.Equal(t, int64(-100), f.ledger.entries[0].AmountCents)
	assert.Contains(t, f.bus.topics, model.TopicServerCreated)
}

func TestProvisionServerInsufficientBalance(t *testing.T) {
	f := newFixture()
	accountID := f.account(50)

	_, err := f.svc.ProvisionServer(context.Background(), accountID, "web-1", "small", "nyc3")
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "$1.00")

	// Fails on the advisory pre-check: the provider is never touched.
	assert.Equal(t, 0, f.compute.created)
	servers, _ := f.svc.Servers(context.Background(), accountID)
	assert.Empty(t, servers)
}

func TestProvisionServerChargeRaceTearsDownInstance(t *testing.T) {
	f := newFixture()
	accountID := f.account(100)

	// Balance passes the advisory check, then the authoritative charge
	// fails: the fresh instance must be torn down again.
	f.ledger.failCharge = fmt.Errorf("%w, required $1.00", model.ErrInsufficientBalance)

	_, err := f.svc.ProvisionServer(context.Background(), accountID, "web-1", "small", "nyc3")
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)
	assert.Equal(t, 1, f.compute.created)
	assert.Len(t, f.compute.destroyed, 1)
}

func TestProvisionServerUnknownSize(t *testing.T) {
	f := newFixture()
	accountID := f.account(500)

	_, err := f.svc.ProvisionServer(context.Background(), accountID, "web-1", "mega", "nyc3")
	assert.Error(t, err)
	assert.Equal(t, 0, f.compute.created)
}

// Two concurrent provisions against a balance that covers only one: exactly
// one applies, deterministically, because the debit is conditional.
func TestConcurrentProvisionIsDeterministic(t *testing.T) {
	f := newFixture()
	accountID := f.account(150)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.ProvisionServer(context.Background(), accountID, fmt.Sprintf("web-%d", i), "small", "nyc3")
		}(i)
	}
	wg.Wait()

	var failures int
	for _, err := range results {
		if err != nil {
			assert.ErrorIs(t, err, model.ErrInsufficientBalance)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	balance, _ := f.svc.Balance(context.Background(), accountID)
	assert.Equal(t, int64(50), balance)
	assert.Equal(t, balance-150, f.ledger.sumCompleted(accountID))
}

func TestResizeServer(t *testing.T) {
	f := newFixture()
	accountID := f.account(1000)

	server, err := f.svc.ProvisionServer(context.Background(), accountID, "web-1", "small", "nyc3")
	require.NoError(t, err)

	// Upgrade charges the hourly difference (300 - 100).
	resized, err := f.svc.ResizeServer(context.Background(), accountID, server.ID, "large")
	require.NoError(t, err)
	assert.Equal(t, "large", resized.SizeSlug)
	assert.Equal(t, []string{"large"}, f.compute.resized)

	balance, _ := f.svc.Balance(context.Background(), accountID)
	assert.Equal(t, int64(1000-100-200), balance)

	// Downgrade is free.
	_, err = f.svc.ResizeServer(context.Background(), accountID, server.ID, "small")
	require.NoError(t, err)
	after, _ := f.svc.Balance(context.Background(), accountID)
	assert.Equal(t, balance, after)

	// Same size is a no-op.
	_, err = f.svc.ResizeServer(context.Background(), accountID, server.ID, "small")
	require.NoError(t, err)
	assert.Len(t, f.compute.resized, 2)
}

func TestDestroyServer(t *testing.T) {
	f := newFixture()
	accountID := f.account(500)

	server, err := f.svc.ProvisionServer(context.Background(), accountID, "web-1", "small", "nyc3")
	require.NoError(t, err)

	require.NoError(t, f.svc.DestroyServer(context.Background(), accountID, server.ID))
	assert.Equal(t, []string{server.ProviderID}, f.compute.destroyed)

	_, err = f.svc.Server(context.Background(), accountID, server.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDestroyServerWrongOwner(t *testing.T) {
	f := newFixture()
	accountID := f.account(500)
	otherID := f.account(500)

	server, err := f.svc.ProvisionServer(context.Background(), accountID, "web-1", "small", "nyc3")
	require.NoError(t, err)

	err = f.svc.DestroyServer(context.Background(), otherID, server.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Empty(t, f.compute.destroyed)
}

func TestTransactionsPagination(t *testing.T) {
	f := newFixture()
	accountID := f.account(0)

	for i := 0; i < 25; i++ {
		_, err := f.ledger.Deposit(context.Background(), accountID, 100, fmt.Sprintf("REF-%d", i))
		require.NoError(t, err)
	}

	page, err := f.svc.Transactions(context.Background(), accountID, model.ListOptions{Page: 2, PageSize: 10})
	require.NoError(t, err)

	assert.Len(t, page.Entries, 10)
	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNextPage)
	assert.True(t, page.HasPrevPage)
}
