package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"vaultd/contexts/custody-core/vault-ledger/domain/entities"
	domainerrors "vaultd/contexts/custody-core/vault-ledger/domain/errors"
	"vaultd/contexts/custody-core/vault-ledger/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

// Repository is the durable adapter for the vault ports: balances, ledger
// entries, idempotency records and the event outbox in one PostgreSQL
// schema so a committing operation stays in one database.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Balance(ctx context.Context, userID string, asset entities.Asset) (uint64, error) {
	var row balanceModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND asset = ?", strings.TrimSpace(userID), string(asset)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Amount, nil
}

func (r *Repository) SetBalance(ctx context.Context, userID string, asset entities.Asset, amount uint64) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || !asset.IsValid() {
		return domainerrors.ErrInvalidInput
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "asset"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
		}).
		Create(&balanceModel{
			UserID:    userID,
			Asset:     string(asset),
			Amount:    amount,
			UpdatedAt: time.Now().UTC(),
		}).
		Error
}

func (r *Repository) AppendEntry(ctx context.Context, entry entities.LedgerEntry) error {
	err := r.db.WithContext(ctx).Create(&entryModel{
		EntryID:   entry.EntryID,
		UserID:    entry.UserID,
		Asset:     string(entry.Asset),
		Amount:    entry.Amount,
		Direction: string(entry.Direction),
		At:        entry.At.UTC(),
	}).Error
	if isUniqueViolation(err) {
		return domainerrors.ErrIdempotencyConflict
	}
	return err
}

func (r *Repository) ListEntriesByUser(ctx context.Context, userID string, limit int, offset int) ([]entities.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var rows []entryModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Order("at DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}

	items := make([]entities.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetRecord(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("key = ?", strings.TrimSpace(key)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, err
	}
	if !row.ExpiresAt.After(now.UTC()) {
		_ = r.db.WithContext(ctx).
			Where("key = ?", row.Key).
			Delete(&idempotencyModel{}).
			Error
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:             row.Key,
		RequestHash:     row.RequestHash,
		ResponsePayload: row.ResponsePayload,
		ExpiresAt:       row.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) PutRecord(ctx context.Context, record ports.IdempotencyRecord) error {
	key := strings.TrimSpace(record.Key)
	if key == "" {
		return domainerrors.ErrInvalidInput
	}
	err := r.db.WithContext(ctx).Create(&idempotencyModel{
		Key:             key,
		RequestHash:     record.RequestHash,
		ResponsePayload: record.ResponsePayload,
		ExpiresAt:       record.ExpiresAt.UTC(),
	}).Error
	if isUniqueViolation(err) {
		var existing idempotencyModel
		if lookupErr := r.db.WithContext(ctx).
			Where("key = ?", key).
			First(&existing).
			Error; lookupErr != nil {
			return lookupErr
		}
		if existing.RequestHash != record.RequestHash ||
			!bytes.Equal(existing.ResponsePayload, record.ResponsePayload) {
			return domainerrors.ErrIdempotencyConflict
		}
		return nil
	}
	return err
}

func (r *Repository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&idempotencyModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		return domainerrors.ErrInvalidInput
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Create(&outboxModel{
		OutboxID:     outboxID,
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}).Error
	if isUniqueViolation(err) {
		var existing outboxModel
		if lookupErr := r.db.WithContext(ctx).
			Where("outbox_id = ?", outboxID).
			First(&existing).
			Error; lookupErr != nil {
			return lookupErr
		}
		if !bytes.Equal(existing.Payload, payload) {
			return domainerrors.ErrIdempotencyConflict
		}
		return nil
	}
	return err
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      row.Payload,
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	ts := publishedAt.UTC()
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": &ts,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
