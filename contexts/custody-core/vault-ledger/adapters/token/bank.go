package token

import (
	"context"
	"fmt"
	"sync"

	"vaultd/contexts/custody-core/vault-ledger/domain/entities"
)

// custodyAccount is the bank-side holder for units the vault has pulled in.
const custodyAccount = "vault:custody"

type holdingKey struct {
	Asset  entities.Asset
	Holder string
}

// Bank is the in-process token backend implementing the transfer capability.
// It plays the role of the external fungible-token contracts: holdings per
// (asset, holder), moved between holders and the vault's custody account.
// Per the safe-transfer convention, returning nil is the only success
// signal; any failure is an explicit error, never a silent no-op.
type Bank struct {
	mu       sync.Mutex
	holdings map[holdingKey]uint64
}

func NewBank() *Bank {
	return &Bank{holdings: make(map[holdingKey]uint64)}
}

// Mint credits an external holder, seeding supply outside the vault.
func (b *Bank) Mint(asset entities.Asset, holder string, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdings[holdingKey{Asset: asset, Holder: holder}] += amount
}

func (b *Bank) HoldingOf(asset entities.Asset, holder string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.holdings[holdingKey{Asset: asset, Holder: holder}]
}

func (b *Bank) TransferIn(_ context.Context, asset entities.Asset, from string, amount uint64) error {
	return b.move(asset, from, custodyAccount, amount)
}

func (b *Bank) TransferOut(_ context.Context, asset entities.Asset, to string, amount uint64) error {
	return b.move(asset, custodyAccount, to, amount)
}

func (b *Bank) move(asset entities.Asset, from string, to string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	source := holdingKey{Asset: asset, Holder: from}
	if b.holdings[source] < amount {
		return fmt.Errorf("holder %s has %d of %q, needs %d", from, b.holdings[source], asset, amount)
	}
	b.holdings[source] -= amount
	b.holdings[holdingKey{Asset: asset, Holder: to}] += amount
	return nil
}
