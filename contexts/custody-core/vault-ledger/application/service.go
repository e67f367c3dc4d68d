package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/bits"
	"strings"
	"time"

	"vaultd/contexts/custody-core/vault-ledger/domain/entities"
	domainerrors "vaultd/contexts/custody-core/vault-ledger/domain/errors"
	"vaultd/contexts/custody-core/vault-ledger/ports"
)

const sourceService = "vault-ledger"

// Service implements the custody ledger: exact balance bookkeeping, the
// policy-gated withdrawal path, and the grace-period bypass after a policy
// change. Every mutating operation either commits fully or leaves no trace.
type Service struct {
	Repo           ports.BalanceRepository
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	Tokens         ports.TokenTransfer
	Native         ports.NativeTransfer
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	State          *VaultState
	Guard          *EntryGuard
	GraceDuration  time.Duration
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

// Deposit credits the caller's balance for the asset. Native deposits must
// attach exactly the declared amount; token deposits must attach nothing and
// pull the declared amount from the caller through the token capability.
// The credit and the pull run under the single-entry guard; a failed pull
// rolls the credit back.
func (s Service) Deposit(
	ctx context.Context,
	idempotencyKey string,
	input ports.DepositInput,
) (entities.LedgerEntry, bool, error) {
	if strings.TrimSpace(idempotencyKey) == "" {
		return entities.LedgerEntry{}, false, domainerrors.ErrIdempotencyKeyMissing
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" || !input.Asset.IsValid() || input.Amount == 0 {
		return entities.LedgerEntry{}, false, domainerrors.ErrInvalidInput
	}
	if input.Asset.IsNative() {
		if input.AttachedValue != input.Amount {
			return entities.LedgerEntry{}, false, fmt.Errorf(
				"%w: declared=%d attached=%d",
				domainerrors.ErrIncorrectValue, input.Amount, input.AttachedValue,
			)
		}
	} else if input.AttachedValue != 0 {
		return entities.LedgerEntry{}, false, fmt.Errorf(
			"%w: non-native deposit attached %d",
			domainerrors.ErrIncorrectValue, input.AttachedValue,
		)
	}

	now := s.now()
	requestHash := hashPayload(map[string]any{
		"op":             "deposit",
		"user_id":        userID,
		"asset":          string(input.Asset),
		"amount":         input.Amount,
		"attached_value": input.AttachedValue,
	})
	if replayed, found, err := s.replay(ctx, idempotencyKey, requestHash, now); err != nil || found {
		return replayed, found, err
	}

	if !s.Guard.TryAcquire() {
		return entities.LedgerEntry{}, false, domainerrors.ErrReentrancyBlocked
	}
	defer s.Guard.Release()

	current, err := s.Repo.Balance(ctx, userID, input.Asset)
	if err != nil {
		return entities.LedgerEntry{}, false, err
	}
	next, carry := bits.Add64(current, input.Amount, 0)
	if carry != 0 {
		return entities.LedgerEntry{}, false, fmt.Errorf(
			"%w: balance=%d deposit=%d",
			domainerrors.ErrAmountOverflow, current, input.Amount,
		)
	}
	if err := s.Repo.SetBalance(ctx, userID, input.Asset, next); err != nil {
		return entities.LedgerEntry{}, false, err
	}

	if !input.Asset.IsNative() {
		if err := s.Tokens.TransferIn(ctx, input.Asset, userID, input.Amount); err != nil {
			s.rollbackBalance(ctx, userID, input.Asset, current)
			return entities.LedgerEntry{}, false, fmt.Errorf(
				"%w: pull %d of %q from %s: %v",
				domainerrors.ErrTransferFailed, input.Amount, input.Asset, userID, err,
			)
		}
	}

	entry, err := s.appendEntry(ctx, userID, input.Asset, input.Amount, entities.EntryDirectionDeposit, now)
	if err != nil {
		s.rollbackBalance(ctx, userID, input.Asset, current)
		return entities.LedgerEntry{}, false, err
	}
	if err := s.appendVaultEvent(ctx, "vault.deposited", entry); err != nil {
		return entities.LedgerEntry{}, false, err
	}
	if err := s.recordResponse(ctx, idempotencyKey, requestHash, entry, now); err != nil {
		return entities.LedgerEntry{}, false, err
	}

	ResolveLogger(s.Logger).Info("deposit committed",
		"event", "vault_deposited",
		"module", "custody-core/vault-ledger",
		"layer", "application",
		"user_id", userID,
		"asset", string(input.Asset),
		"amount", input.Amount,
		"balance", next,
	)
	return entry, false, nil
}

// Withdraw releases funds to the caller. The balance check runs first, then
// the grace gate: inside the window the policy is bypassed entirely,
// outside it the active policy's verdict is honored. The debit happens
// before the outgoing transfer and is compensated if the transfer fails.
func (s Service) Withdraw(
	ctx context.Context,
	idempotencyKey string,
	input ports.WithdrawInput,
) (entities.LedgerEntry, bool, error) {
	if strings.TrimSpace(idempotencyKey) == "" {
		return entities.LedgerEntry{}, false, domainerrors.ErrIdempotencyKeyMissing
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" || !input.Asset.IsValid() || input.Amount == 0 {
		return entities.LedgerEntry{}, false, domainerrors.ErrInvalidInput
	}

	now := s.now()
	requestHash := hashPayload(map[string]any{
		"op":      "withdraw",
		"user_id": userID,
		"asset":   string(input.Asset),
		"amount":  input.Amount,
	})
	if replayed, found, err := s.replay(ctx, idempotencyKey, requestHash, now); err != nil || found {
		return replayed, found, err
	}

	if !s.Guard.TryAcquire() {
		return entities.LedgerEntry{}, false, domainerrors.ErrReentrancyBlocked
	}
	defer s.Guard.Release()

	current, err := s.Repo.Balance(ctx, userID, input.Asset)
	if err != nil {
		return entities.LedgerEntry{}, false, err
	}
	if input.Amount > current {
		return entities.LedgerEntry{}, false, fmt.Errorf(
			"%w: asset=%q requested=%d available=%d",
			domainerrors.ErrInsufficientBalance, input.Asset, input.Amount, current,
		)
	}

	policy, lastChange := s.State.PolicySnapshot()
	if !GracePeriodActive(lastChange, unixSeconds(now), s.graceSeconds()) {
		if !policy.Authorize(userID, input.Asset, input.Amount) {
			return entities.LedgerEntry{}, false, fmt.Errorf(
				"%w: user=%s asset=%q amount=%d",
				domainerrors.ErrWithdrawalDenied, userID, input.Asset, input.Amount,
			)
		}
	}

	if err := s.Repo.SetBalance(ctx, userID, input.Asset, current-input.Amount); err != nil {
		return entities.LedgerEntry{}, false, err
	}

	if input.Asset.IsNative() {
		if err := s.Native.Send(ctx, userID, input.Amount); err != nil {
			s.rollbackBalance(ctx, userID, input.Asset, current)
			return entities.LedgerEntry{}, false, fmt.Errorf(
				"%w: send %d to %s: %v",
				domainerrors.ErrNativeTransferFailed, input.Amount, userID, err,
			)
		}
	} else {
		if err := s.Tokens.TransferOut(ctx, input.Asset, userID, input.Amount); err != nil {
			s.rollbackBalance(ctx, userID, input.Asset, current)
			return entities.LedgerEntry{}, false, fmt.Errorf(
				"%w: push %d of %q to %s: %v",
				domainerrors.ErrTransferFailed, input.Amount, input.Asset, userID, err,
			)
		}
	}

	entry, err := s.appendEntry(ctx, userID, input.Asset, input.Amount, entities.EntryDirectionWithdrawal, now)
	if err != nil {
		return entities.LedgerEntry{}, false, err
	}
	if err := s.appendVaultEvent(ctx, "vault.withdrawn", entry); err != nil {
		return entities.LedgerEntry{}, false, err
	}
	if err := s.recordResponse(ctx, idempotencyKey, requestHash, entry, now); err != nil {
		return entities.LedgerEntry{}, false, err
	}

	ResolveLogger(s.Logger).Info("withdrawal committed",
		"event", "vault_withdrawn",
		"module", "custody-core/vault-ledger",
		"layer", "application",
		"user_id", userID,
		"asset", string(input.Asset),
		"amount", input.Amount,
		"balance", current-input.Amount,
	)
	return entry, false, nil
}

// SetPolicy swaps the active authorization policy and re-arms the grace
// clock. Every replacement re-opens the full bypass window, including
// back-to-back replacements; callers control that trade-off.
func (s Service) SetPolicy(ctx context.Context, caller string, next ports.AuthorizationPolicy) error {
	caller = strings.TrimSpace(caller)
	if caller == "" || caller != s.State.Administrator() {
		return fmt.Errorf("%w: caller=%s", domainerrors.ErrNotAdministrator, caller)
	}
	if next == nil {
		return domainerrors.ErrInvalidPolicy
	}

	now := s.now()
	if err := s.State.ReplacePolicy(next, unixSeconds(now)); err != nil {
		return err
	}
	if err := s.appendAdminEvent(ctx, "vault.policy_changed", caller, now); err != nil {
		return err
	}

	ResolveLogger(s.Logger).Info("authorization policy replaced",
		"event", "vault_policy_changed",
		"module", "custody-core/vault-ledger",
		"layer", "application",
		"administrator", caller,
		"policy", fmt.Sprintf("%T", next),
		"grace_until", unixSeconds(now)+s.graceSeconds(),
	)
	return nil
}

func (s Service) ProposeAdministrator(ctx context.Context, caller string, next string) error {
	caller = strings.TrimSpace(caller)
	if caller == "" || caller != s.State.Administrator() {
		return fmt.Errorf("%w: caller=%s", domainerrors.ErrNotAdministrator, caller)
	}
	if err := s.State.ProposeAdministrator(next); err != nil {
		return err
	}
	ResolveLogger(s.Logger).Info("administrator handover proposed",
		"event", "vault_administrator_proposed",
		"module", "custody-core/vault-ledger",
		"layer", "application",
		"administrator", caller,
		"pending_administrator", strings.TrimSpace(next),
	)
	return nil
}

func (s Service) AcceptAdministrator(ctx context.Context, caller string) error {
	if err := s.State.AcceptAdministrator(caller); err != nil {
		return err
	}
	if err := s.appendAdminEvent(ctx, "vault.administrator_changed", strings.TrimSpace(caller), s.now()); err != nil {
		return err
	}
	ResolveLogger(s.Logger).Info("administrator handover accepted",
		"event", "vault_administrator_changed",
		"module", "custody-core/vault-ledger",
		"layer", "application",
		"administrator", strings.TrimSpace(caller),
	)
	return nil
}

func (s Service) BalanceOf(ctx context.Context, userID string, asset entities.Asset) (uint64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || !asset.IsValid() {
		return 0, domainerrors.ErrInvalidInput
	}
	return s.Repo.Balance(ctx, userID, asset)
}

// BalancesOfAssets resolves a batch of balances in input order. Unknown
// assets report zero; the result always matches the input length.
func (s Service) BalancesOfAssets(ctx context.Context, userID string, assets []entities.Asset) ([]uint64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domainerrors.ErrInvalidInput
	}
	amounts := make([]uint64, 0, len(assets))
	for _, asset := range assets {
		if !asset.IsValid() {
			return nil, domainerrors.ErrInvalidInput
		}
		amount, err := s.Repo.Balance(ctx, userID, asset)
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, amount)
	}
	return amounts, nil
}

func (s Service) ListEntries(ctx context.Context, userID string, limit int, offset int) ([]entities.LedgerEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domainerrors.ErrInvalidInput
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.ListEntriesByUser(ctx, userID, limit, offset)
}

func (s Service) replay(
	ctx context.Context,
	key string,
	requestHash string,
	now time.Time,
) (entities.LedgerEntry, bool, error) {
	record, found, err := s.Idempotency.GetRecord(ctx, strings.TrimSpace(key), now)
	if err != nil {
		return entities.LedgerEntry{}, false, err
	}
	if !found {
		return entities.LedgerEntry{}, false, nil
	}
	if record.RequestHash != requestHash {
		return entities.LedgerEntry{}, false, domainerrors.ErrIdempotencyConflict
	}
	var entry entities.LedgerEntry
	if err := json.Unmarshal(record.ResponsePayload, &entry); err != nil {
		return entities.LedgerEntry{}, false, err
	}
	return entry, true, nil
}

func (s Service) recordResponse(
	ctx context.Context,
	key string,
	requestHash string,
	entry entities.LedgerEntry,
	now time.Time,
) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.Idempotency.PutRecord(ctx, ports.IdempotencyRecord{
		Key:             strings.TrimSpace(key),
		RequestHash:     requestHash,
		ResponsePayload: payload,
		ExpiresAt:       now.Add(s.idempotencyTTL()),
	})
}

func (s Service) appendEntry(
	ctx context.Context,
	userID string,
	asset entities.Asset,
	amount uint64,
	direction entities.EntryDirection,
	at time.Time,
) (entities.LedgerEntry, error) {
	entryID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return entities.LedgerEntry{}, err
	}
	entry, err := entities.NewLedgerEntry(strings.TrimSpace(entryID), userID, asset, amount, direction, at)
	if err != nil {
		return entities.LedgerEntry{}, err
	}
	if err := s.Repo.AppendEntry(ctx, entry); err != nil {
		return entities.LedgerEntry{}, err
	}
	return entry, nil
}

func (s Service) appendVaultEvent(ctx context.Context, eventType string, entry entities.LedgerEntry) error {
	if s.Outbox == nil {
		return nil
	}
	data, err := json.Marshal(map[string]any{
		"entry_id": entry.EntryID,
		"user_id":  entry.UserID,
		"asset":    string(entry.Asset),
		"amount":   entry.Amount,
		"at":       entry.At.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	eventID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	return s.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:          strings.TrimSpace(eventID),
		EventType:        eventType,
		OccurredAt:       entry.At.UTC(),
		SourceService:    sourceService,
		TraceID:          strings.TrimSpace(eventID),
		SchemaVersion:    1,
		PartitionKeyPath: "user_id",
		PartitionKey:     entry.UserID,
		Data:             data,
	})
}

func (s Service) appendAdminEvent(ctx context.Context, eventType string, administrator string, at time.Time) error {
	if s.Outbox == nil {
		return nil
	}
	data, err := json.Marshal(map[string]any{
		"administrator": administrator,
		"at":            at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	eventID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	return s.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:          strings.TrimSpace(eventID),
		EventType:        eventType,
		OccurredAt:       at.UTC(),
		SourceService:    sourceService,
		TraceID:          strings.TrimSpace(eventID),
		SchemaVersion:    1,
		PartitionKeyPath: "administrator",
		PartitionKey:     administrator,
		Data:             data,
	})
}

// rollbackBalance restores a staged balance after a failed external
// interaction so observable state never reflects a half-applied operation.
// A failing restore is an invariant break and is logged loudly.
func (s Service) rollbackBalance(ctx context.Context, userID string, asset entities.Asset, previous uint64) {
	if err := s.Repo.SetBalance(ctx, userID, asset, previous); err != nil {
		ResolveLogger(s.Logger).Error("balance rollback failed",
			"event", "vault_rollback_failed",
			"module", "custody-core/vault-ledger",
			"layer", "application",
			"user_id", userID,
			"asset", string(asset),
			"restore_to", previous,
			"error", err.Error(),
		)
	}
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s Service) graceSeconds() uint64 {
	if s.GraceDuration <= 0 {
		return uint64((3 * 24 * time.Hour).Seconds())
	}
	return uint64(s.GraceDuration.Seconds())
}

func (s Service) idempotencyTTL() time.Duration {
	if s.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.IdempotencyTTL
}

func unixSeconds(t time.Time) uint64 {
	unix := t.Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix)
}

func hashPayload(payload map[string]any) string {
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
