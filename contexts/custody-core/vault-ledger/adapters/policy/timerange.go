package policy

import (
	"fmt"
	"time"

	"vaultd/contexts/custody-core/vault-ledger/domain/entities"
	domainerrors "vaultd/contexts/custody-core/vault-ledger/domain/errors"
	"vaultd/contexts/custody-core/vault-ledger/ports"
)

// TimeRange forbids withdrawals inside [start, end] and authorizes them
// strictly before start or strictly after end. Both boundary instants are
// disallowed. Times are unsigned unix seconds.
type TimeRange struct {
	start uint64
	end   uint64
	clock ports.Clock
}

func NewTimeRange(start uint64, end uint64, clock ports.Clock) (*TimeRange, error) {
	if start >= end {
		return nil, fmt.Errorf("%w: start=%d end=%d", domainerrors.ErrInvalidTimeRange, start, end)
	}
	return &TimeRange{
		start: start,
		end:   end,
		clock: clock,
	}, nil
}

func (p *TimeRange) Authorize(_ string, _ entities.Asset, _ uint64) bool {
	now := p.nowSeconds()
	return now < p.start || now > p.end
}

func (p *TimeRange) nowSeconds() uint64 {
	t := time.Now()
	if p.clock != nil {
		t = p.clock.Now()
	}
	unix := t.Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix)
}
