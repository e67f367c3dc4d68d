package policy

import "vaultd/contexts/custody-core/vault-ledger/domain/entities"

// AllowAll authorizes every withdrawal. Useful as the permissive default
// and as a substitution target when validating the gating behavior.
type AllowAll struct{}

func (AllowAll) Authorize(_ string, _ entities.Asset, _ uint64) bool { return true }

// DenyAll rejects every withdrawal outside the grace window.
type DenyAll struct{}

func (DenyAll) Authorize(_ string, _ entities.Asset, _ uint64) bool { return false }
