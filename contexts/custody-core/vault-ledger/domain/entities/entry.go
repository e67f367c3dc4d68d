package entities

import (
	"strings"
	"time"

	domainerrors "vaultd/contexts/custody-core/vault-ledger/domain/errors"
)

type EntryDirection string

const (
	EntryDirectionDeposit    EntryDirection = "deposit"
	EntryDirectionWithdrawal EntryDirection = "withdrawal"
)

// LedgerEntry is the immutable record appended for every successful deposit
// or withdrawal. Entries are never updated or deleted.
type LedgerEntry struct {
	EntryID   string
	UserID    string
	Asset     Asset
	Amount    uint64
	Direction EntryDirection
	At        time.Time
}

func NewLedgerEntry(
	entryID string,
	userID string,
	asset Asset,
	amount uint64,
	direction EntryDirection,
	at time.Time,
) (LedgerEntry, error) {
	if strings.TrimSpace(entryID) == "" ||
		strings.TrimSpace(userID) == "" ||
		!asset.IsValid() {
		return LedgerEntry{}, domainerrors.ErrInvalidInput
	}
	if direction != EntryDirectionDeposit && direction != EntryDirectionWithdrawal {
		return LedgerEntry{}, domainerrors.ErrInvalidInput
	}

	return LedgerEntry{
		EntryID:   entryID,
		UserID:    userID,
		Asset:     asset,
		Amount:    amount,
		Direction: direction,
		At:        at.UTC(),
	}, nil
}
