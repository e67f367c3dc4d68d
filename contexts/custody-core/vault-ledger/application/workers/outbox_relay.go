package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"vaultd/contexts/custody-core/vault-ledger/application"
	"vaultd/contexts/custody-core/vault-ledger/ports"
)

// OutboxRelay drains pending vault events to the message bus. Rows stay
// pending until the publish succeeds, so a crashed relay re-delivers rather
// than drops.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	Topic     string
	BatchSize int
	Logger    *slog.Logger
}

func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("vault outbox list failed",
			"event", "vault_outbox_list_failed",
			"module", "custody-core/vault-ledger",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	for _, row := range pending {
		var envelope ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &envelope); err != nil {
			return err
		}
		if err := r.Publisher.Publish(ctx, r.topic(), envelope); err != nil {
			logger.Error("vault outbox publish failed",
				"event", "vault_outbox_publish_failed",
				"module", "custody-core/vault-ledger",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
			return err
		}
	}
	return nil
}

func (r OutboxRelay) topic() string {
	if r.Topic == "" {
		return "vault.events"
	}
	return r.Topic
}
