package flow

// State is one step of the kiosk workflow. The machine is cyclic: there is no
// terminal state, the kiosk always comes back to Welcome.
type State string

const (
	StateWelcome      State = "welcome"
	StateCapturing    State = "capturing"
	StateTransforming State = "transforming"
	StateDelivering   State = "delivering"
	StateDelivered    State = "delivered"
)

// Event drives the machine.
type Event string

const (
	EventStart              Event = "start"
	EventImageCaptured      Event = "image_captured"
	EventTransformSucceeded Event = "transform_succeeded"
	EventTransformFailed    Event = "transform_failed"
	EventDelivered          Event = "delivered"
	EventDisplayElapsed     Event = "display_elapsed"
	EventReset              Event = "reset"
	EventIdleTimeout        Event = "idle_timeout"
)

// Next is the pure transition function. The second return reports whether the
// event is legal in the given state; illegal events leave the state alone.
func Next(s State, e Event) (State, bool) {
	// Reset and the idle timer return to Welcome from anywhere.
	if e == EventReset || e == EventIdleTimeout {
		return StateWelcome, true
	}

	switch s {
	case StateWelcome:
		if e == EventStart {
			return StateCapturing, true
		}
	case StateCapturing:
		if e == EventImageCaptured {
			return StateTransforming, true
		}
	case StateTransforming:
		switch e {
		case EventTransformSucceeded:
			return StateDelivering, true
		case EventTransformFailed:
			// The captured photo is still valid; the user retries the
			// instruction rather than landing in a dead error state.
			return StateCapturing, true
		}
	case StateDelivering:
		if e == EventDelivered {
			return StateDelivered, true
		}
	case StateDelivered:
		if e == EventDisplayElapsed {
			return StateWelcome, true
		}
	}

	return s, false
}

// IdleArmed reports whether the inactivity timer runs in this state. A user
// framing a shot at the camera is not bumped.
func IdleArmed(s State) bool {
	switch s {
	case StateWelcome, StateCapturing:
		return false
	default:
		return true
	}
}
