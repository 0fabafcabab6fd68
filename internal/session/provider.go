package session

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Provider issues the opaque per-kiosk correlation key. The id is not a
// credential: it only lets the analytics collaborator group delivery attempts
// that belong to the same walk-up interaction.
type Provider struct {
	mu    sync.Mutex
	store Store
	ttl   time.Duration
	now   func() time.Time

	// Fallback identity used for the rest of the process life when the
	// backing store stops working. The flow must keep going without it.
	ephemeral State
	degraded  bool
}

func NewProvider(store Store, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Provider{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// GetOrCreateID returns the current session id, minting a fresh one when none
// exists or the stored one has aged past the TTL. A valid stored id is
// returned without any write.
func (p *Provider) GetOrCreateID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now().UTC()

	if p.degraded {
		if p.ephemeral.ID != "" && now.Sub(p.ephemeral.CreatedAt) < p.ttl {
			return p.ephemeral.ID
		}
		p.ephemeral = State{ID: uuid.NewString(), CreatedAt: now}
		return p.ephemeral.ID
	}

	st, err := p.store.Load()
	if err == nil && now.Sub(st.CreatedAt) < p.ttl {
		return st.ID
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		log.Printf("session store read failed, degrading to ephemeral id: %v", err)
		return p.degrade(now)
	}

	fresh := State{ID: uuid.NewString(), CreatedAt: now}
	if err := p.store.Save(fresh); err != nil {
		log.Printf("session store write failed, degrading to ephemeral id: %v", err)
		p.ephemeral = fresh
		p.degraded = true
		return fresh.ID
	}
	return fresh.ID
}

// Refresh extends the TTL window without changing identity. Called on user
// activity signals; a no-op when no id exists yet.
func (p *Provider) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now().UTC()

	if p.degraded {
		if p.ephemeral.ID != "" {
			p.ephemeral.CreatedAt = now
		}
		return
	}

	st, err := p.store.Load()
	if err != nil {
		return
	}
	st.CreatedAt = now
	if err := p.store.Save(st); err != nil {
		log.Printf("session refresh write failed: %v", err)
	}
}

// Clear removes the stored pair; the next GetOrCreateID mints a new identity.
func (p *Provider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.degraded {
		p.ephemeral = State{}
		return
	}
	if err := p.store.Clear(); err != nil {
		log.Printf("session clear failed: %v", err)
	}
}

// SetClock injects a deterministic clock for tests.
func (p *Provider) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

func (p *Provider) degrade(now time.Time) string {
	p.degraded = true
	p.ephemeral = State{ID: uuid.NewString(), CreatedAt: now}
	return p.ephemeral.ID
}
