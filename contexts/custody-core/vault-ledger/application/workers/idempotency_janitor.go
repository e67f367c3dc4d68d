package workers

import (
	"context"
	"log/slog"
	"time"

	"vaultd/contexts/custody-core/vault-ledger/application"
	"vaultd/contexts/custody-core/vault-ledger/ports"
)

// IdempotencyJanitor sweeps expired replay records so the store does not
// grow without bound. Expiry is also enforced on read; the sweep just
// reclaims space.
type IdempotencyJanitor struct {
	Idempotency ports.IdempotencyStore
	Clock       ports.Clock
	Logger      *slog.Logger
}

func (j IdempotencyJanitor) RunOnce(ctx context.Context) error {
	now := time.Now().UTC()
	if j.Clock != nil {
		now = j.Clock.Now().UTC()
	}

	purged, err := j.Idempotency.PurgeExpired(ctx, now)
	if err != nil {
		return err
	}
	if purged > 0 {
		application.ResolveLogger(j.Logger).Info("expired idempotency records purged",
			"event", "vault_idempotency_purged",
			"module", "custody-core/vault-ledger",
			"layer", "worker",
			"purged", purged,
		)
	}
	return nil
}
