package token

import (
	"context"
	"sync"
	"time"
)

type NativePayment struct {
	To     string
	Amount uint64
	At     time.Time
}

// NativeSettler is the in-process native-currency rail. Outgoing value is
// recorded per recipient; delivery failure is surfaced explicitly rather
// than swallowed, and recipients may run arbitrary acceptance logic.
type NativeSettler struct {
	mu       sync.Mutex
	payments []NativePayment
	refusal  error
}

func NewNativeSettler() *NativeSettler {
	return &NativeSettler{}
}

// Refuse makes subsequent sends fail with the given error, simulating a
// recipient that rejects delivery. Pass nil to accept again.
func (s *NativeSettler) Refuse(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refusal = err
}

func (s *NativeSettler) Send(_ context.Context, to string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refusal != nil {
		return s.refusal
	}
	s.payments = append(s.payments, NativePayment{
		To:     to,
		Amount: amount,
		At:     time.Now().UTC(),
	})
	return nil
}

func (s *NativeSettler) Payments() []NativePayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]NativePayment(nil), s.payments...)
}
