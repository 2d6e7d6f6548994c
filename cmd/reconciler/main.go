// Command reconciler runs the PSP poller and CRM sender loops as a
// single process, wiring every component SPEC_FULL.md names — the Go
// equivalent of original_source/src/app.py's create_app plus its
// startup/shutdown event handlers, minus the FastAPI/docs surface this
// service has no use for.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/config"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/crmclient"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/dbx"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/eventbus"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/httphealth"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/logging"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/metrics"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/poller"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/providers"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/providers/cardpsp"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/providers/localpsp"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/providers/walletpsp"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/repository"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/runtime"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/sender"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.AppEnvironment)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	log.Infof("starting %s (env=%s)", cfg.AppName, cfg.AppEnvironment)
	log.Infof("reconciliation enabled: %v", cfg.ReconcileEnabled)
	log.Infof("CRM integration enabled: %v", cfg.CRMEnabled)
	log.Infof("polling providers: %v", cfg.ReconcilePollingProviders)

	if err := dbx.Migrate(cfg.DatabaseDSN); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := dbx.OpenPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open db pool: %w", err)
	}
	defer pool.Close()

	paymentsRepo := repository.NewPaymentsRepo(pool)
	crmQueueRepo := repository.NewCRMQueueRepo(pool)

	allAdapters := map[string]providers.Adapter{
		cardpsp.ProviderKey: cardpsp.New(cfg.StripeAPIKey),
	}
	if walletAdapter, err := walletpsp.New(cfg.WalletAppID, cfg.WalletPrivateKey, cfg.WalletIsProd); err == nil {
		allAdapters[walletpsp.ProviderKey] = walletAdapter
	} else {
		log.Warnf("wallet-psp adapter not configured: %v", err)
	}
	if localAdapter, err := localpsp.New(cfg.LocalPSPAccessToken); err == nil {
		allAdapters[localpsp.ProviderKey] = localAdapter
	} else {
		log.Warnf("local-redirect-psp adapter not configured: %v", err)
	}
	adapters := providers.BuildRegistry(allAdapters, cfg.ReconcilePollingProviders)
	log.Infof("configured providers: %v", keysOf(adapters))

	m := metrics.New("")
	events := eventbus.New(cfg.KafkaBrokers, cfg.KafkaTransitionsTopic)
	defer events.Close()

	crmClient := crmclient.New(crmclient.Config{
		BaseURL:                 cfg.CRMBaseURL,
		PagarPath:               cfg.CRMPagarPath,
		BearerToken:             cfg.CRMAuthBearer,
		TimeoutSeconds:          cfg.CRMTimeoutSeconds,
		BreakerFailureThreshold: cfg.CRMBreakerFailureThreshold,
		BreakerOpenSeconds:      cfg.CRMBreakerOpenSeconds,
	})
	log.Infof("CRM endpoint: %s", crmClient.Endpoint())

	instanceID := uuid.NewString()

	pollerLoop := poller.New(
		pool,
		poller.Config{
			Enabled:              cfg.ReconcileEnabled,
			IntervalSeconds:      cfg.ReconcileIntervalSecs,
			AttemptOffsets:       cfg.ReconcileAttemptOffsets,
			BatchSize:            cfg.ReconcileBatchSize,
			PollingProviders:     cfg.ReconcilePollingProviders,
			AbandonedTimeoutMins: cfg.AbandonedTimeoutMinutes,
			InstanceID:           instanceID,
			HeartbeatInterval:    time.Duration(cfg.HeartbeatIntervalSecs) * time.Second,
		},
		paymentsRepo, crmQueueRepo, adapters, log.Named("poller"), m, events,
	)

	senderLoop := sender.New(
		pool,
		sender.Config{
			Enabled:           cfg.CRMEnabled,
			IntervalSeconds:   cfg.ReconcileIntervalSecs,
			BatchSize:         cfg.ReconcileBatchSize,
			RetryBackoff:      cfg.CRMRetryBackoff,
			InstanceID:        instanceID,
			HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalSecs) * time.Second,
		},
		paymentsRepo, crmQueueRepo, crmClient, log.Named("sender"), m,
	)

	supervisor := runtime.New(paymentsRepo, log, instanceID, cfg.AppName, 30*time.Second)
	supervisor.Register("psp_poller", pollerLoop)
	supervisor.Register("crm_sender", senderLoop)

	healthSrv := &http.Server{Addr: cfg.HealthAddr, Handler: httphealth.New(paymentsRepo).Handler()}
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsHandler()}

	go func() {
		log.Infof("health server listening on %s", cfg.HealthAddr)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("health server error: %v", err)
		}
	}()
	go func() {
		log.Infof("metrics server listening on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server error: %v", err)
		}
	}()

	supervisor.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	return nil
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsPromHandler())
	return mux
}

func metricsPromHandler() http.Handler {
	return metrics.Handler()
}

func keysOf(m map[string]providers.Adapter) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
