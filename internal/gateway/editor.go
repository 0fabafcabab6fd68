package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EditRequest is the normalized request sent to the AI gateway.
type EditRequest struct {
	SessionID string `json:"session_id"`
	ImageURL  string `json:"image_url"`
	Prompt    string `json:"prompt"`
}

// EditResult carries the single image the gateway produced.
type EditResult struct {
	ImageURL string `json:"image_url"`
}

// Editor turns a captured photograph plus an instruction into an edited
// image via the external image-generation service.
type Editor interface {
	EditImage(ctx context.Context, req EditRequest) (EditResult, error)
}

// Config controls editor construction.
type Config struct {
	Mode    string
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewEditor(cfg Config) (Editor, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewHTTPEditor(cfg.URL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
		}
		return NewMockEditor(), nil
	case "http":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("AI gateway API key is required for http mode")
		}
		return NewHTTPEditor(cfg.URL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case "mock":
		return NewMockEditor(), nil
	default:
		return nil, fmt.Errorf("unsupported AI gateway mode %q", cfg.Mode)
	}
}
