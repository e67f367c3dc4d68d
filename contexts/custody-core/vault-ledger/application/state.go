package application

import (
	"strings"
	"sync"

	domainerrors "vaultd/contexts/custody-core/vault-ledger/domain/errors"
	"vaultd/contexts/custody-core/vault-ledger/ports"
)

// VaultState holds the runtime-mutable control surface of the ledger: the
// active authorization policy, the instant it was last replaced, and the
// administrator identities. Balances live behind BalanceRepository; policy
// references are live capabilities and stay in process memory.
type VaultState struct {
	mu sync.RWMutex

	policy               ports.AuthorizationPolicy
	lastPolicyChange     uint64
	administrator        string
	pendingAdministrator string
}

// NewVaultState constructs the control state. The grace clock starts at the
// zero sentinel, so the bypass window is inactive until the first policy
// replacement.
func NewVaultState(administrator string, initial ports.AuthorizationPolicy) (*VaultState, error) {
	if strings.TrimSpace(administrator) == "" {
		return nil, domainerrors.ErrInvalidInput
	}
	if initial == nil {
		return nil, domainerrors.ErrInvalidPolicy
	}
	return &VaultState{
		policy:        initial,
		administrator: strings.TrimSpace(administrator),
	}, nil
}

// PolicySnapshot returns the active policy together with the grace clock so
// a withdrawal evaluates both against one consistent view.
func (s *VaultState) PolicySnapshot() (ports.AuthorizationPolicy, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy, s.lastPolicyChange
}

func (s *VaultState) ReplacePolicy(next ports.AuthorizationPolicy, now uint64) error {
	if next == nil {
		return domainerrors.ErrInvalidPolicy
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = next
	s.lastPolicyChange = now
	return nil
}

func (s *VaultState) Administrator() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.administrator
}

func (s *VaultState) PendingAdministrator() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingAdministrator
}

func (s *VaultState) ProposeAdministrator(next string) error {
	next = strings.TrimSpace(next)
	if next == "" {
		return domainerrors.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingAdministrator = next
	return nil
}

// AcceptAdministrator completes the two-step handover. Only the proposed
// identity may accept; the pending slot clears on success.
func (s *VaultState) AcceptAdministrator(caller string) error {
	caller = strings.TrimSpace(caller)
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller == "" || caller != s.pendingAdministrator {
		return domainerrors.ErrNotPendingAdministrator
	}
	s.administrator = caller
	s.pendingAdministrator = ""
	return nil
}
