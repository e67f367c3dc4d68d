package policy

import (
	"fmt"
	"strings"

	domainerrors "vaultd/contexts/custody-core/vault-ledger/domain/errors"
	"vaultd/contexts/custody-core/vault-ledger/ports"
)

const (
	KindAllow     = "allow"
	KindDeny      = "deny"
	KindTimeRange = "timerange"
)

// FromSpec builds a policy from its wire/config description. Start and end
// only matter for the time-range kind.
func FromSpec(kind string, start uint64, end uint64, clock ports.Clock) (ports.AuthorizationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindAllow:
		return AllowAll{}, nil
	case KindDeny:
		return DenyAll{}, nil
	case KindTimeRange:
		return NewTimeRange(start, end, clock)
	default:
		return nil, fmt.Errorf("%w: unknown policy kind %q", domainerrors.ErrInvalidPolicy, kind)
	}
}
