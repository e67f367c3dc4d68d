package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	vaultledger "vaultd/contexts/custody-core/vault-ledger"
	"vaultd/contexts/custody-core/vault-ledger/adapters/memory"
	policyadapter "vaultd/contexts/custody-core/vault-ledger/adapters/policy"
	postgresadapter "vaultd/contexts/custody-core/vault-ledger/adapters/postgres"
	"vaultd/contexts/custody-core/vault-ledger/adapters/token"
	workerapp "vaultd/contexts/custody-core/vault-ledger/application/workers"
	"vaultd/internal/platform/config"
	"vaultd/internal/platform/db"
	"vaultd/internal/platform/httpserver"
	"vaultd/internal/platform/messaging"
)

// Package bootstrap is the composition root. Keep construction/wiring here
// so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	outboxRelay  workerapp.OutboxRelay
	janitor      workerapp.IdempotencyJanitor
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	clock := postgresadapter.SystemClock{}

	initialPolicy, err := policyadapter.FromSpec(
		cfg.InitialPolicy,
		cfg.PolicyForbiddenFrom,
		cfg.PolicyForbiddenTo,
		clock,
	)
	if err != nil {
		return nil, err
	}

	deps := vaultledger.Dependencies{
		Tokens:         token.NewBank(),
		Native:         token.NewNativeSettler(),
		Clock:          clock,
		IDGenerator:    postgresadapter.UUIDGenerator{},
		Administrator:  cfg.Administrator,
		InitialPolicy:  initialPolicy,
		GraceDuration:  cfg.GracePeriod,
		IdempotencyTTL: 7 * 24 * time.Hour,
		Logger:         logger,
	}

	var pg *db.Postgres
	if strings.TrimSpace(cfg.PostgresDSN) != "" {
		pg, err = db.Connect(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		repo := postgresadapter.NewRepository(pg.DB, logger)
		deps.Repository = repo
		deps.Idempotency = repo
		deps.Outbox = repo
	} else {
		logger.Warn("POSTGRES_DSN not set, running with in-memory vault store",
			"event", "bootstrap_memory_store",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		store := memory.NewStore()
		deps.Repository = store
		deps.Idempotency = store
		deps.Outbox = store
	}

	module, err := vaultledger.NewModule(deps)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	return &WorkerApp{
		postgres: pg,
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    repo,
			Publisher: kafka,
			Clock:     postgresadapter.SystemClock{},
			Topic:     "vault.events",
			BatchSize: 100,
			Logger:    logger,
		},
		janitor: workerapp.IdempotencyJanitor{
			Idempotency: repo,
			Clock:       postgresadapter.SystemClock{},
			Logger:      logger,
		},
		pollInterval: 2 * time.Second,
		logger:       logger,
	}, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if err := w.janitor.RunOnce(ctx); err != nil {
			return err
		}
		if err := w.outboxRelay.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
