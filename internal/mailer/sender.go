package mailer

import (
	"context"
	"fmt"
	"strings"
)

// Sender delivers one composed message and returns the provider-assigned
// message id.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) (string, error)
}

// Config controls sender construction.
type Config struct {
	Mode    string
	APIKey  string
	BaseURL string
}

func NewSender(cfg Config) (Sender, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewResendSender(cfg.BaseURL, cfg.APIKey), nil
		}
		return NewMockSender(), nil
	case "resend":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("email provider API key is required for resend mode")
		}
		return NewResendSender(cfg.BaseURL, cfg.APIKey), nil
	case "mock":
		return NewMockSender(), nil
	default:
		return nil, fmt.Errorf("unsupported mail mode %q", cfg.Mode)
	}
}
