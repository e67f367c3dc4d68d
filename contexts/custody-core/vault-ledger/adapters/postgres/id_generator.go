package postgresadapter

import (
	"context"

	"github.com/google/uuid"
)

// UUIDGenerator implements ports.IDGenerator with RFC 4122 UUID v4 values.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
