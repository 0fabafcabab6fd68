package flow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spgotland/snapkiosk/internal/kiosk"
	"github.com/spgotland/snapkiosk/internal/session"
	"github.com/spgotland/snapkiosk/internal/validate"
)

// Ops is the slice of the kiosk service the flow drives.
type Ops interface {
	Transform(ctx context.Context, callerKey string, in validate.TransformInput) (kiosk.TransformResult, error)
	Deliver(ctx context.Context, in validate.DeliverInput) (kiosk.DeliverResult, error)
}

// Notification is pushed to the kiosk front end on every effect the flow runs.
type Notification struct {
	State          State  `json:"state"`
	Event          Event  `json:"event"`
	EditedImageURL string `json:"edited_image_url,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Err            error  `json:"-"`
}

var (
	ErrIllegalEvent = errors.New("event not legal in current state")
	ErrBusy         = errors.New("an operation is already in flight")
)

// Config carries the two flow timers.
type Config struct {
	IdleTimeout  time.Duration
	DisplayDelay time.Duration
}

// Flow is the per-connection workflow coordinator: a thin effect-running
// shell around the pure transition function. One active operation at a time;
// cancellation is full reset, never an aborted in-flight call.
type Flow struct {
	mu  sync.Mutex
	cfg Config
	ops Ops

	sessions  *session.Provider
	clientKey string
	notify    func(Notification)

	state       State
	captured    string
	edited      string
	instruction string
	busy        bool

	idleTimer    *time.Timer
	displayTimer *time.Timer
	closed       bool
}

// New creates a flow in the Welcome state. clientKey is the caller's network
// identity, used to bucket the transform limiter. notify may be nil.
func New(cfg Config, ops Ops, sessions *session.Provider, clientKey string, notify func(Notification)) *Flow {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.DisplayDelay <= 0 {
		cfg.DisplayDelay = 2 * time.Second
	}
	if notify == nil {
		notify = func(Notification) {}
	}
	return &Flow{
		cfg:       cfg,
		ops:       ops,
		sessions:  sessions,
		clientKey: clientKey,
		notify:    notify,
		state:     StateWelcome,
	}
}

// State returns the current workflow state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Start begins a flow instance.
func (f *Flow) Start() error {
	return f.apply(EventStart, Notification{})
}

// Capture stores the photo taken at the kiosk and advances to Transforming.
// Each capture supersedes the previous one.
func (f *Flow) Capture(imageDataURL string) error {
	f.mu.Lock()
	if f.state != StateCapturing {
		f.mu.Unlock()
		return ErrIllegalEvent
	}
	f.captured = imageDataURL
	f.mu.Unlock()
	return f.apply(EventImageCaptured, Notification{})
}

// Transform runs the AI edit on the captured photo. On failure the flow
// returns to Capturing with the photo intact so the user can try again.
func (f *Flow) Transform(ctx context.Context, prompt string) error {
	f.mu.Lock()
	if f.state != StateTransforming {
		f.mu.Unlock()
		return ErrIllegalEvent
	}
	if f.busy {
		f.mu.Unlock()
		return ErrBusy
	}
	f.busy = true
	captured := f.captured
	sessionID := f.sessions.GetOrCreateID()
	f.mu.Unlock()

	res, err := f.ops.Transform(ctx, f.clientKey, validate.TransformInput{
		ImageURL:  captured,
		Prompt:    prompt,
		SessionID: sessionID,
	})

	f.mu.Lock()
	f.busy = false
	f.mu.Unlock()

	if err != nil {
		_ = f.apply(EventTransformFailed, Notification{Err: err})
		return err
	}

	// Committed under the transition lock: a reset that landed while the
	// call was in flight rejects the event, and the abandoned visitor's
	// result is discarded instead of lingering in Welcome.
	return f.applyCommit(EventTransformSucceeded, Notification{EditedImageURL: res.EditedImageURL}, func() {
		f.edited = res.EditedImageURL
		f.instruction = prompt
	})
}

// DeliverRequest is the contact form submitted at the kiosk.
type DeliverRequest struct {
	Email        string
	Name         string
	Message      string
	ConsentGiven bool
}

// Deliver emails the edited image. On failure the flow stays in Delivering so
// the user can correct the address and retry.
func (f *Flow) Deliver(ctx context.Context, req DeliverRequest) error {
	f.mu.Lock()
	if f.state != StateDelivering {
		f.mu.Unlock()
		return ErrIllegalEvent
	}
	if f.busy {
		f.mu.Unlock()
		return ErrBusy
	}
	f.busy = true
	edited := f.edited
	captured := f.captured
	instruction := f.instruction
	sessionID := f.sessions.GetOrCreateID()
	f.mu.Unlock()

	res, err := f.ops.Deliver(ctx, validate.DeliverInput{
		SessionID:        sessionID,
		Email:            req.Email,
		Name:             req.Name,
		Message:          req.Message,
		Prompt:           instruction,
		ImageURL:         edited,
		OriginalImageURL: captured,
		ConsentGiven:     req.ConsentGiven,
	})

	f.mu.Lock()
	f.busy = false
	f.mu.Unlock()

	if err != nil {
		f.notify(Notification{State: f.State(), Err: err})
		return err
	}

	if err := f.apply(EventDelivered, Notification{MessageID: res.MessageID}); err != nil {
		return err
	}
	f.scheduleDisplayElapsed()
	return nil
}

// Activity registers a user activity signal: the session TTL is refreshed and
// the idle timer rearmed.
func (f *Flow) Activity() {
	f.sessions.Refresh()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rearmIdleLocked()
}

// Reset clears the flow content and returns to Welcome. The session id is
// preserved: reset abandons the flow instance, not the visitor identity.
func (f *Flow) Reset() {
	_ = f.apply(EventReset, Notification{})
}

// Close stops the flow's timers. Called when the connection goes away.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.stopTimersLocked()
}

func (f *Flow) apply(e Event, n Notification) error {
	return f.applyCommit(e, n, nil)
}

// applyCommit runs the transition and, when the event is legal, the commit
// closure inside the same critical section. State and content change together
// or not at all.
func (f *Flow) applyCommit(e Event, n Notification, commit func()) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrIllegalEvent
	}
	next, ok := Next(f.state, e)
	if !ok {
		f.mu.Unlock()
		return ErrIllegalEvent
	}
	f.state = next
	if commit != nil {
		commit()
	}

	if next == StateWelcome {
		// Flow content dies with the flow instance; identity survives.
		f.captured = ""
		f.edited = ""
		f.instruction = ""
	}
	f.rearmIdleLocked()
	f.mu.Unlock()

	n.State = next
	n.Event = e
	f.notify(n)
	return nil
}

// idleTimeout fires from the timer goroutine.
func (f *Flow) idleTimeout() {
	_ = f.apply(EventIdleTimeout, Notification{})
}

func (f *Flow) scheduleDisplayElapsed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if f.displayTimer != nil {
		f.displayTimer.Stop()
	}
	f.displayTimer = time.AfterFunc(f.cfg.DisplayDelay, func() {
		_ = f.apply(EventDisplayElapsed, Notification{})
	})
}

func (f *Flow) rearmIdleLocked() {
	if f.idleTimer != nil {
		f.idleTimer.Stop()
		f.idleTimer = nil
	}
	if f.closed || !IdleArmed(f.state) {
		return
	}
	f.idleTimer = time.AfterFunc(f.cfg.IdleTimeout, f.idleTimeout)
}

func (f *Flow) stopTimersLocked() {
	if f.idleTimer != nil {
		f.idleTimer.Stop()
		f.idleTimer = nil
	}
	if f.displayTimer != nil {
		f.displayTimer.Stop()
		f.displayTimer = nil
	}
}
