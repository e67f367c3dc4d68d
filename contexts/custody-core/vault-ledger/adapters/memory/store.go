package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"vaultd/contexts/custody-core/vault-ledger/domain/entities"
	domainerrors "vaultd/contexts/custody-core/vault-ledger/domain/errors"
	"vaultd/contexts/custody-core/vault-ledger/ports"

	"github.com/google/uuid"
)

type balanceKey struct {
	UserID string
	Asset  entities.Asset
}

type outboxRecord struct {
	Message     ports.OutboxMessage
	Status      string
	PublishedAt *time.Time
}

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

// Store backs every vault port in memory. Balance rows are created on first
// write and kept at zero rather than deleted, matching the ledger contract.
type Store struct {
	mu sync.RWMutex

	balances    map[balanceKey]uint64
	entries     map[string]entities.LedgerEntry
	idempotency map[string]ports.IdempotencyRecord
	outbox      map[string]outboxRecord
}

func NewStore() *Store {
	return &Store{
		balances:    make(map[balanceKey]uint64),
		entries:     make(map[string]entities.LedgerEntry),
		idempotency: make(map[string]ports.IdempotencyRecord),
		outbox:      make(map[string]outboxRecord),
	}
}

func (s *Store) Balance(_ context.Context, userID string, asset entities.Asset) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[balanceKey{UserID: strings.TrimSpace(userID), Asset: asset}], nil
}

func (s *Store) SetBalance(_ context.Context, userID string, asset entities.Asset, amount uint64) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || !asset.IsValid() {
		return domainerrors.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balanceKey{UserID: userID, Asset: asset}] = amount
	return nil
}

func (s *Store) AppendEntry(_ context.Context, entry entities.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(entry.EntryID)
	if id == "" {
		return domainerrors.ErrInvalidInput
	}
	if _, exists := s.entries[id]; exists {
		return domainerrors.ErrIdempotencyConflict
	}
	s.entries[id] = entry
	return nil
}

func (s *Store) ListEntriesByUser(_ context.Context, userID string, limit int, offset int) ([]entities.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	items := make([]entities.LedgerEntry, 0)
	for _, item := range s.entries {
		if item.UserID == strings.TrimSpace(userID) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].At.After(items[j].At)
	})
	if offset >= len(items) {
		return []entities.LedgerEntry{}, nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return append([]entities.LedgerEntry(nil), items[offset:end]...), nil
}

func (s *Store) GetRecord(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.idempotency[strings.TrimSpace(key)]
	if !ok {
		return ports.IdempotencyRecord{}, false, nil
	}
	if !record.ExpiresAt.After(now.UTC()) {
		delete(s.idempotency, strings.TrimSpace(key))
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) PutRecord(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(record.Key)
	if key == "" {
		return domainerrors.ErrInvalidInput
	}
	if existing, ok := s.idempotency[key]; ok {
		if existing.RequestHash != record.RequestHash {
			return domainerrors.ErrIdempotencyConflict
		}
		if !bytes.Equal(existing.ResponsePayload, record.ResponsePayload) {
			return domainerrors.ErrIdempotencyConflict
		}
		return nil
	}
	s.idempotency[key] = record
	return nil
}

func (s *Store) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for key, record := range s.idempotency {
		if !record.ExpiresAt.After(now.UTC()) {
			delete(s.idempotency, key)
			purged++
		}
	}
	return purged, nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		return domainerrors.ErrInvalidInput
	}

	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.Message.Payload, payload) {
			return domainerrors.ErrIdempotencyConflict
		}
		return nil
	}

	s.outbox[outboxID] = outboxRecord{
		Message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    envelope.EventType,
			PartitionKey: envelope.PartitionKey,
			Payload:      payload,
			CreatedAt:    envelope.OccurredAt.UTC(),
		},
		Status: outboxStatusPending,
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0)
	for _, row := range s.outbox {
		if row.Status == outboxStatusPending {
			items = append(items, row.Message)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrNotFound
	}
	ts := publishedAt.UTC()
	row.Status = outboxStatusPublished
	row.PublishedAt = &ts
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
