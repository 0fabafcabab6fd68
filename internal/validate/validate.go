package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// FieldError describes one violated constraint. Validation is total: every
// field is checked and all violations are returned together so the kiosk can
// present complete feedback in one pass.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string { return e.Field + ": " + e.Reason }

const (
	maxImageURLLen = 2048
	maxPromptLen   = 500
	maxEmailLen    = 255
	maxNameLen     = 100
	maxMessageLen  = 500
)

var (
	// Letters including Latin-extended, digits, whitespace, common
	// punctuation and the costume emoji the kiosk UI offers. Control
	// characters and markup-prone sequences fall outside the class.
	promptPattern = regexp.MustCompile(`^[a-zA-Z0-9\s\x{00C0}-\x{017F}.,!?'"🎨🦸🏴‍☠️💼🎭🌟-]+$`)

	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// TransformInput is the typed payload of an admitted transform request.
type TransformInput struct {
	ImageURL  string `json:"imageUrl"`
	Prompt    string `json:"prompt"`
	SessionID string `json:"sessionId,omitempty"`
}

// DeliverInput is the typed payload of an admitted deliver request.
type DeliverInput struct {
	SessionID        string `json:"sessionId"`
	Email            string `json:"email"`
	Name             string `json:"name,omitempty"`
	Message          string `json:"message,omitempty"`
	Prompt           string `json:"prompt,omitempty"`
	ImageURL         string `json:"imageUrl"`
	OriginalImageURL string `json:"originalImageUrl,omitempty"`
	ConsentGiven     bool   `json:"consentGiven"`
}

// Transform checks a transform payload against its schema. The returned slice
// is nil exactly when the payload is valid.
func Transform(in TransformInput) []FieldError {
	var errs []FieldError

	errs = append(errs, checkImageURL("imageUrl", in.ImageURL, true)...)
	errs = append(errs, checkPrompt("prompt", in.Prompt, true)...)

	if in.SessionID != "" {
		if _, err := uuid.Parse(in.SessionID); err != nil {
			errs = append(errs, FieldError{Field: "sessionId", Reason: "must be a valid session token"})
		}
	}

	return errs
}

// Deliver checks a deliver payload against its schema.
func Deliver(in DeliverInput) []FieldError {
	var errs []FieldError

	if strings.TrimSpace(in.SessionID) == "" {
		errs = append(errs, FieldError{Field: "sessionId", Reason: "is required"})
	} else if _, err := uuid.Parse(in.SessionID); err != nil {
		errs = append(errs, FieldError{Field: "sessionId", Reason: "must be a valid session token"})
	}

	switch {
	case strings.TrimSpace(in.Email) == "":
		errs = append(errs, FieldError{Field: "email", Reason: "is required"})
	case len(in.Email) > maxEmailLen:
		errs = append(errs, FieldError{Field: "email", Reason: fmt.Sprintf("must be at most %d characters", maxEmailLen)})
	case !emailPattern.MatchString(in.Email):
		errs = append(errs, FieldError{Field: "email", Reason: "must be a valid email address"})
	}

	if len(in.Name) > maxNameLen {
		errs = append(errs, FieldError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", maxNameLen)})
	}
	if len(in.Message) > maxMessageLen {
		errs = append(errs, FieldError{Field: "message", Reason: fmt.Sprintf("must be at most %d characters", maxMessageLen)})
	}
	if in.Prompt != "" {
		errs = append(errs, checkPrompt("prompt", in.Prompt, false)...)
	}

	errs = append(errs, checkDeliveryImageURL("imageUrl", in.ImageURL, true)...)
	if in.OriginalImageURL != "" {
		errs = append(errs, checkDeliveryImageURL("originalImageUrl", in.OriginalImageURL, false)...)
	}

	return errs
}

func checkImageURL(field, value string, required bool) []FieldError {
	if strings.TrimSpace(value) == "" {
		if required {
			return []FieldError{{Field: field, Reason: "is required"}}
		}
		return nil
	}
	if len(value) > maxImageURLLen {
		return []FieldError{{Field: field, Reason: fmt.Sprintf("must be at most %d characters", maxImageURLLen)}}
	}
	if isImageDataURL(value) {
		return nil
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return []FieldError{{Field: field, Reason: "must be a well-formed URL or image data URL"}}
	}
	return nil
}

// checkDeliveryImageURL is stricter than checkImageURL: the delivery image
// must carry a recognized image prefix, not merely parse as a URL.
func checkDeliveryImageURL(field, value string, required bool) []FieldError {
	if strings.TrimSpace(value) == "" {
		if required {
			return []FieldError{{Field: field, Reason: "is required"}}
		}
		return nil
	}
	if len(value) > maxImageURLLen*1024 {
		return []FieldError{{Field: field, Reason: "is too large"}}
	}
	if !strings.HasPrefix(value, "data:image/") && !strings.HasPrefix(value, "http") {
		return []FieldError{{Field: field, Reason: "must start with data:image/ or http"}}
	}
	return nil
}

func checkPrompt(field, value string, required bool) []FieldError {
	if value == "" {
		if required {
			return []FieldError{{Field: field, Reason: "is required"}}
		}
		return nil
	}
	var errs []FieldError
	if len([]rune(value)) > maxPromptLen {
		errs = append(errs, FieldError{Field: field, Reason: fmt.Sprintf("must be at most %d characters", maxPromptLen)})
	}
	if !promptPattern.MatchString(value) {
		errs = append(errs, FieldError{Field: field, Reason: "contains invalid characters"})
	}
	return errs
}

func isImageDataURL(value string) bool {
	return strings.HasPrefix(value, "data:image/")
}
