package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeKioskStart     MessageType = "kiosk_start"
	TypeKioskCapture   MessageType = "kiosk_capture"
	TypeKioskTransform MessageType = "kiosk_transform"
	TypeKioskDeliver   MessageType = "kiosk_deliver"
	TypeKioskActivity  MessageType = "kiosk_activity"
	TypeKioskReset     MessageType = "kiosk_reset"

	TypeStateChanged  MessageType = "state_changed"
	TypeTransformDone MessageType = "transform_done"
	TypeDeliveryDone  MessageType = "delivery_done"
	TypeErrorEvent    MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// KioskStart begins a flow instance on the connection.
type KioskStart struct {
	Type MessageType `json:"type"`
}

// KioskCapture delivers the photo taken at the booth as a data URL.
type KioskCapture struct {
	Type         MessageType `json:"type"`
	ImageDataURL string      `json:"image_data_url"`
}

// KioskTransform asks for the AI edit with the chosen instruction.
type KioskTransform struct {
	Type   MessageType `json:"type"`
	Prompt string      `json:"prompt"`
}

// KioskDeliver submits the contact form and triggers the email.
type KioskDeliver struct {
	Type         MessageType `json:"type"`
	Email        string      `json:"email"`
	Name         string      `json:"name,omitempty"`
	Message      string      `json:"message,omitempty"`
	ConsentGiven bool        `json:"consent_given"`
}

// KioskActivity signals the visitor is still present; it carries no payload.
type KioskActivity struct {
	Type MessageType `json:"type"`
}

// KioskReset abandons the current flow and returns to the welcome screen.
type KioskReset struct {
	Type MessageType `json:"type"`
}

// StateChanged is pushed on every workflow transition.
type StateChanged struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	State     string      `json:"state"`
	Event     string      `json:"event,omitempty"`
}

// TransformDone carries the edited image back to the kiosk screen.
type TransformDone struct {
	Type           MessageType `json:"type"`
	SessionID      string      `json:"session_id"`
	EditedImageURL string      `json:"edited_image_url"`
}

// DeliveryDone confirms the email handoff.
type DeliveryDone struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	MessageID string      `json:"message_id"`
}

// ErrorEvent reports an operation failure in visitor-safe terms. Detail never
// echoes upstream provider responses.
type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes and validates one inbound kiosk frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeKioskStart:
		var msg KioskStart
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeKioskCapture:
		var msg KioskCapture
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ImageDataURL == "" {
			return nil, errors.New("invalid kiosk_capture")
		}
		return msg, nil
	case TypeKioskTransform:
		var msg KioskTransform
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Prompt == "" {
			return nil, errors.New("invalid kiosk_transform")
		}
		return msg, nil
	case TypeKioskDeliver:
		var msg KioskDeliver
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Email == "" {
			return nil, errors.New("invalid kiosk_deliver")
		}
		return msg, nil
	case TypeKioskActivity:
		var msg KioskActivity
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeKioskReset:
		var msg KioskReset
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
