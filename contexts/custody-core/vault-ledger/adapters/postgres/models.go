package postgresadapter

import (
	"time"

	"vaultd/contexts/custody-core/vault-ledger/domain/entities"
)

type balanceModel struct {
	UserID    string    `gorm:"column:user_id;primaryKey"`
	Asset     string    `gorm:"column:asset;primaryKey"`
	Amount    uint64    `gorm:"column:amount"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (balanceModel) TableName() string {
	return "vault_balances"
}

type entryModel struct {
	EntryID   string    `gorm:"column:entry_id;primaryKey"`
	UserID    string    `gorm:"column:user_id"`
	Asset     string    `gorm:"column:asset"`
	Amount    uint64    `gorm:"column:amount"`
	Direction string    `gorm:"column:direction"`
	At        time.Time `gorm:"column:at"`
}

func (entryModel) TableName() string {
	return "vault_entries"
}

func (m entryModel) toEntity() entities.LedgerEntry {
	return entities.LedgerEntry{
		EntryID:   m.EntryID,
		UserID:    m.UserID,
		Asset:     entities.Asset(m.Asset),
		Amount:    m.Amount,
		Direction: entities.EntryDirection(m.Direction),
		At:        m.At.UTC(),
	}
}

type idempotencyModel struct {
	Key             string    `gorm:"column:key;primaryKey"`
	RequestHash     string    `gorm:"column:request_hash"`
	ResponsePayload []byte    `gorm:"column:response_payload"`
	ExpiresAt       time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "vault_idempotency"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "vault_outbox"
}
