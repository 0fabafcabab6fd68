package analytics

import (
	"context"
	"time"
)

// Record is the one row persisted per delivery attempt. By construction it
// has no field that can hold image bytes or a pointer to them: the image
// travels only inside the one-shot outbound email, never into this store.
type Record struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	Company      string    `json:"company,omitempty"`
	ConsentGiven bool      `json:"consent_given"`
	Instruction  string    `json:"instruction,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists delivery records for the analytics collaborator.
type Store interface {
	Save(ctx context.Context, record Record) error
	BySession(ctx context.Context, sessionID string, limit int) ([]Record, error)
	Close() error
}
