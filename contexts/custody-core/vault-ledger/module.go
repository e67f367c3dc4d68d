package vaultledger

import (
	"log/slog"
	"time"

	httpadapter "vaultd/contexts/custody-core/vault-ledger/adapters/http"
	"vaultd/contexts/custody-core/vault-ledger/adapters/memory"
	policyadapter "vaultd/contexts/custody-core/vault-ledger/adapters/policy"
	"vaultd/contexts/custody-core/vault-ledger/adapters/token"
	"vaultd/contexts/custody-core/vault-ledger/application"
	"vaultd/contexts/custody-core/vault-ledger/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
	Bank    *token.Bank
	Native  *token.NativeSettler
}

type Dependencies struct {
	Repository     ports.BalanceRepository
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	Tokens         ports.TokenTransfer
	Native         ports.NativeTransfer
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	Administrator  string
	InitialPolicy  ports.AuthorizationPolicy
	GraceDuration  time.Duration
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

// NewModule wires the custody ledger. Construction fails when the initial
// policy is absent; the vault never runs without an active policy.
func NewModule(deps Dependencies) (Module, error) {
	state, err := application.NewVaultState(deps.Administrator, deps.InitialPolicy)
	if err != nil {
		return Module{}, err
	}
	service := application.Service{
		Repo:           deps.Repository,
		Idempotency:    deps.Idempotency,
		Outbox:         deps.Outbox,
		Tokens:         deps.Tokens,
		Native:         deps.Native,
		Clock:          deps.Clock,
		IDGen:          deps.IDGenerator,
		State:          state,
		Guard:          application.NewEntryGuard(),
		GraceDuration:  deps.GraceDuration,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Service: service,
			Logger:  deps.Logger,
		},
	}, nil
}

// NewInMemoryModule builds a fully in-process vault: memory store, token
// bank and native settler, permissive initial policy, three-day grace
// window. The API process uses it when no database is configured; tests use
// it everywhere.
func NewInMemoryModule(administrator string, logger *slog.Logger) (Module, error) {
	store := memory.NewStore()
	bank := token.NewBank()
	native := token.NewNativeSettler()

	module, err := NewModule(Dependencies{
		Repository:     store,
		Idempotency:    store,
		Outbox:         store,
		Tokens:         bank,
		Native:         native,
		Clock:          store,
		IDGenerator:    store,
		Administrator:  administrator,
		InitialPolicy:  policyadapter.AllowAll{},
		GraceDuration:  3 * 24 * time.Hour,
		IdempotencyTTL: 7 * 24 * time.Hour,
		Logger:         logger,
	})
	if err != nil {
		return Module{}, err
	}
	module.Store = store
	module.Bank = bank
	module.Native = native
	return module, nil
}
