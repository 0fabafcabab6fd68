package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spgotland/snapkiosk/internal/kiosk"
	"github.com/spgotland/snapkiosk/internal/session"
	"github.com/spgotland/snapkiosk/internal/validate"
)

type fakeOps struct {
	mu            sync.Mutex
	transformErr  error
	deliverErr    error
	transformSeen []validate.TransformInput
	deliverSeen   []validate.DeliverInput
}

func (o *fakeOps) Transform(_ context.Context, _ string, in validate.TransformInput) (kiosk.TransformResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transformSeen = append(o.transformSeen, in)
	if o.transformErr != nil {
		return kiosk.TransformResult{}, o.transformErr
	}
	return kiosk.TransformResult{EditedImageURL: "data:image/png;base64,ZWRpdGVk"}, nil
}

func (o *fakeOps) Deliver(_ context.Context, in validate.DeliverInput) (kiosk.DeliverResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deliverSeen = append(o.deliverSeen, in)
	if o.deliverErr != nil {
		return kiosk.DeliverResult{}, o.deliverErr
	}
	return kiosk.DeliverResult{MessageID: "msg-1"}, nil
}

func newTestFlow(t *testing.T, ops Ops, cfg Config) (*Flow, *session.Provider) {
	t.Helper()
	sessions := session.NewProvider(session.NewMemStore(), 24*time.Hour)
	f := New(cfg, ops, sessions, "10.0.0.1", nil)
	t.Cleanup(f.Close)
	return f, sessions
}

func TestFlowHappyPathEndToEnd(t *testing.T) {
	ops := &fakeOps{}
	f, sessions := newTestFlow(t, ops, Config{IdleTimeout: time.Minute, DisplayDelay: 20 * time.Millisecond})
	originalID := sessions.GetOrCreateID()

	if err := f.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.Capture("data:image/jpeg;base64,b3JpZw=="); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if err := f.Transform(context.Background(), "wizard hat"); err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if got := f.State(); got != StateDelivering {
		t.Fatalf("state after transform = %s, want delivering", got)
	}

	if err := f.Deliver(context.Background(), DeliverRequest{Email: "a@b.com", ConsentGiven: true}); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if got := f.State(); got != StateDelivered {
		t.Fatalf("state after deliver = %s, want delivered", got)
	}

	// The display delay returns the machine to Welcome.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && f.State() != StateWelcome {
		time.Sleep(5 * time.Millisecond)
	}
	if got := f.State(); got != StateWelcome {
		t.Fatalf("state after display delay = %s, want welcome", got)
	}

	if got := sessions.GetOrCreateID(); got != originalID {
		t.Fatalf("session id changed across the flow: %q vs %q", got, originalID)
	}

	in := ops.deliverSeen[0]
	if in.SessionID != originalID {
		t.Fatalf("deliver used session %q, want %q", in.SessionID, originalID)
	}
	if in.ImageURL != "data:image/png;base64,ZWRpdGVk" {
		t.Fatalf("deliver should carry the edited image, got %q", in.ImageURL)
	}
	if in.OriginalImageURL != "data:image/jpeg;base64,b3JpZw==" {
		t.Fatalf("deliver should carry the original capture, got %q", in.OriginalImageURL)
	}
	if in.Prompt != "wizard hat" {
		t.Fatalf("deliver should echo the instruction, got %q", in.Prompt)
	}
}

func TestFlowTransformFailureReturnsToCapturing(t *testing.T) {
	ops := &fakeOps{transformErr: errors.New("gateway down")}
	f, _ := newTestFlow(t, ops, Config{IdleTimeout: time.Minute})

	_ = f.Start()
	_ = f.Capture("data:image/jpeg;base64,b3JpZw==")
	if err := f.Transform(context.Background(), "wizard hat"); err == nil {
		t.Fatalf("Transform() should surface the gateway error")
	}
	if got := f.State(); got != StateCapturing {
		t.Fatalf("state after failed transform = %s, want capturing", got)
	}

	// The captured photo is still there: a retry reaches the ops layer with
	// the same image.
	_ = f.Capture("data:image/jpeg;base64,b3JpZw==")
	ops.mu.Lock()
	ops.transformErr = nil
	ops.mu.Unlock()
	if err := f.Transform(context.Background(), "pirate"); err != nil {
		t.Fatalf("retry Transform() error = %v", err)
	}
}

func TestFlowDeliverFailureStaysInDelivering(t *testing.T) {
	ops := &fakeOps{deliverErr: errors.New("smtp on fire")}
	f, _ := newTestFlow(t, ops, Config{IdleTimeout: time.Minute})

	_ = f.Start()
	_ = f.Capture("data:image/jpeg;base64,b3JpZw==")
	_ = f.Transform(context.Background(), "wizard hat")

	if err := f.Deliver(context.Background(), DeliverRequest{Email: "a@b.com"}); err == nil {
		t.Fatalf("Deliver() should surface the send error")
	}
	if got := f.State(); got != StateDelivering {
		t.Fatalf("state after failed deliver = %s, want delivering for retry", got)
	}
}

func TestFlowInactivityResetClearsContentKeepsSession(t *testing.T) {
	ops := &fakeOps{}
	f, sessions := newTestFlow(t, ops, Config{IdleTimeout: 30 * time.Millisecond})
	originalID := sessions.GetOrCreateID()

	_ = f.Start()
	_ = f.Capture("data:image/jpeg;base64,b3JpZw==")
	if got := f.State(); got != StateTransforming {
		t.Fatalf("state = %s, want transforming", got)
	}

	// No activity: the idle timer fully elapses.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && f.State() != StateWelcome {
		time.Sleep(5 * time.Millisecond)
	}
	if got := f.State(); got != StateWelcome {
		t.Fatalf("state after idle timeout = %s, want welcome", got)
	}
	if got := sessions.GetOrCreateID(); got != originalID {
		t.Fatalf("idle reset must preserve the session id")
	}

	// Content was cleared: the machine demands a fresh capture.
	_ = f.Start()
	if err := f.Transform(context.Background(), "hat"); !errors.Is(err, ErrIllegalEvent) {
		t.Fatalf("Transform() after reset error = %v, want ErrIllegalEvent", err)
	}
}

func TestFlowActivityRearmsIdleTimer(t *testing.T) {
	ops := &fakeOps{}
	f, _ := newTestFlow(t, ops, Config{IdleTimeout: 60 * time.Millisecond})

	_ = f.Start()
	_ = f.Capture("data:image/jpeg;base64,b3JpZw==")

	// Keep signalling activity for longer than the idle timeout.
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		f.Activity()
	}
	if got := f.State(); got != StateTransforming {
		t.Fatalf("state = %s, activity should have kept the flow alive", got)
	}
}

func TestFlowIdleTimerNotArmedWhileCapturing(t *testing.T) {
	ops := &fakeOps{}
	f, _ := newTestFlow(t, ops, Config{IdleTimeout: 30 * time.Millisecond})

	_ = f.Start()
	time.Sleep(100 * time.Millisecond)
	if got := f.State(); got != StateCapturing {
		t.Fatalf("state = %s, a user framing a shot must not be bumped", got)
	}
}

func TestFlowRejectsDoubleSubmit(t *testing.T) {
	block := make(chan struct{})
	ops := &blockingOps{unblock: block}
	f, _ := newTestFlow(t, ops, Config{IdleTimeout: time.Minute})

	_ = f.Start()
	_ = f.Capture("data:image/jpeg;base64,b3JpZw==")

	done := make(chan error, 1)
	go func() { done <- f.Transform(context.Background(), "hat") }()

	// Wait until the first call is in flight.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !ops.inFlight() {
		time.Sleep(2 * time.Millisecond)
	}

	if err := f.Transform(context.Background(), "hat"); !errors.Is(err, ErrBusy) {
		t.Fatalf("second submit error = %v, want ErrBusy", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first submit error = %v", err)
	}
}

func TestFlowResetDuringTransformDiscardsResult(t *testing.T) {
	block := make(chan struct{})
	ops := &blockingOps{unblock: block}
	f, _ := newTestFlow(t, ops, Config{IdleTimeout: time.Minute})

	_ = f.Start()
	_ = f.Capture("data:image/jpeg;base64,b3JpZw==")

	done := make(chan error, 1)
	go func() { done <- f.Transform(context.Background(), "wizard hat") }()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !ops.inFlight() {
		time.Sleep(2 * time.Millisecond)
	}

	// The visitor walks away mid-call; the gateway call keeps running.
	f.Reset()
	close(block)

	if err := <-done; !errors.Is(err, ErrIllegalEvent) {
		t.Fatalf("late transform completion error = %v, want ErrIllegalEvent", err)
	}
	if got := f.State(); got != StateWelcome {
		t.Fatalf("state = %s, want welcome", got)
	}

	f.mu.Lock()
	edited, instruction, captured := f.edited, f.instruction, f.captured
	f.mu.Unlock()
	if edited != "" || instruction != "" || captured != "" {
		t.Fatalf("reset did not discard flow content: edited=%q instruction=%q captured=%q",
			edited, instruction, captured)
	}
}

type blockingOps struct {
	mu      sync.Mutex
	started bool
	unblock chan struct{}
}

func (o *blockingOps) inFlight() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started
}

func (o *blockingOps) Transform(_ context.Context, _ string, _ validate.TransformInput) (kiosk.TransformResult, error) {
	o.mu.Lock()
	o.started = true
	o.mu.Unlock()
	<-o.unblock
	return kiosk.TransformResult{EditedImageURL: "data:image/png;base64,ZWRpdGVk"}, nil
}

func (o *blockingOps) Deliver(_ context.Context, _ validate.DeliverInput) (kiosk.DeliverResult, error) {
	return kiosk.DeliverResult{MessageID: "msg"}, nil
}
