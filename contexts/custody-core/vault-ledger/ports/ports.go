package ports

import (
	"context"
	"time"

	"vaultd/contexts/custody-core/vault-ledger/domain/entities"
	contractsv1 "vaultd/contracts/gen/events/v1"
)

// AuthorizationPolicy is the runtime-substitutable decision capability
// consulted for withdrawals outside the grace window. The ledger only ever
// calls Authorize; it never inspects which concrete policy is installed.
type AuthorizationPolicy interface {
	Authorize(user string, asset entities.Asset, amount uint64) bool
}

type DepositInput struct {
	UserID        string
	Asset         entities.Asset
	Amount        uint64
	AttachedValue uint64
}

type WithdrawInput struct {
	UserID string
	Asset  entities.Asset
	Amount uint64
}

// BalanceRepository owns the per-(user, asset) balances and the append-only
// ledger entry log. A missing balance row reads as zero; zero-valued rows
// are kept, never deleted.
type BalanceRepository interface {
	Balance(ctx context.Context, userID string, asset entities.Asset) (uint64, error)
	SetBalance(ctx context.Context, userID string, asset entities.Asset, amount uint64) error
	AppendEntry(ctx context.Context, entry entities.LedgerEntry) error
	ListEntriesByUser(ctx context.Context, userID string, limit int, offset int) ([]entities.LedgerEntry, error)
}

// TokenTransfer moves fungible token units between the vault and external
// holders. Adapters for assets that do not signal success explicitly must
// map the absence of a failure to success.
type TokenTransfer interface {
	TransferIn(ctx context.Context, asset entities.Asset, from string, amount uint64) error
	TransferOut(ctx context.Context, asset entities.Asset, to string, amount uint64) error
}

// NativeTransfer pushes native currency to a recipient. It must report
// failure explicitly and may run arbitrary recipient-side logic.
type NativeTransfer interface {
	Send(ctx context.Context, to string, amount uint64) error
}

type IdempotencyRecord struct {
	Key             string
	RequestHash     string
	ResponsePayload []byte
	ExpiresAt       time.Time
}

type IdempotencyStore interface {
	GetRecord(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	PutRecord(ctx context.Context, record IdempotencyRecord) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}
