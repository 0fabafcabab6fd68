package mailer

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockSender records messages instead of delivering them; used in tests and
// keyless local runs.
type MockSender struct {
	mu   sync.Mutex
	sent []OutboundMessage

	// FailWith makes every Send return this error when set.
	FailWith error
}

func NewMockSender() *MockSender { return &MockSender{} }

func (s *MockSender) Send(ctx context.Context, msg OutboundMessage) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return "", s.FailWith
	}
	s.sent = append(s.sent, msg)
	return uuid.NewString(), nil
}

// Sent returns a copy of the delivered messages.
func (s *MockSender) Sent() []OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OutboundMessage, len(s.sent))
	copy(out, s.sent)
	return out
}
