package infrastructure

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"hostbill/internal/billing"
	"hostbill/internal/config"
	"hostbill/internal/metrics"
	"hostbill/internal/plans"
	"hostbill/internal/provider"
	"hostbill/internal/repository"
	transportHTTP "hostbill/internal/transport/http"
	transportNATS "hostbill/internal/transport/nats"
	"hostbill/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context, log zerolog.Logger) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DOToken == "" {
		return nil, nil, errors.New("missing required env: HOSTBILL_DO_TOKEN")
	}
	if cfg.PayPalClientID == "" || cfg.PayPalSecret == "" {
		return nil, nil, errors.New("missing required env: HOSTBILL_PAYPAL_CLIENT_ID/SECRET")
	}

	db, err := connectPostgres(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, db.Close)

	rdb, err := connectRedis(ctx, cfg.RedisAddr())
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	cleanupFns = append(cleanupFns, func() { _ = rdb.Close() })

	nc, err := connectNats(ctx, cfg.NatsAddr())
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	cleanupFns = append(cleanupFns, nc.Close)

	bus := transportNATS.NewBus(nc)

	compute := provider.NewDigitalOcean(cfg.DOToken)
	payments, err := provider.NewPayPal(ctx, cfg.PayPalClientID, cfg.PayPalSecret, cfg.PayPalLive)
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}

	catalog := plans.DefaultCatalog()

	ledgerRepo := repository.NewLedgerRepo(db, bus)
	accountsRepo := repository.NewAccountsRepo(db)
	serversRepo := repository.NewServersRepo(db)
	metricsRepo := repository.NewMetricsRepo(db)
	auditRepo := repository.NewAuditRepo(db)

	sampler := metrics.NewSampler(rdb, metricsRepo, compute, log)
	aggregator := metrics.NewAggregator(metricsRepo, ledgerRepo, catalog)

	svc := billing.NewService(ledgerRepo, accountsRepo, serversRepo, payments, compute, catalog, bus, log)

	meteringJob := worker.NewMeteringJob(ledgerRepo, serversRepo, aggregator, compute, catalog, bus, log,
		worker.MeteringConfig{
			Interval:        cfg.MeteringInterval,
			ProviderTimeout: cfg.ProviderTimeout,
			Workers:         cfg.MeteringWorkers,
		})

	handler := transportHTTP.NewHandler(svc, sampler, aggregator)

	servers := []Server{
		transportHTTP.NewServer(cfg.ApiAddr(), handler, log),
		meteringJob,
		worker.NewAuditWorker(auditRepo, nc, log),
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in
// reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
