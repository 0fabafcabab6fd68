package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spgotland/snapkiosk/internal/reliability"
)

// editFraming steers the general image generator into edit mode. The service
// would otherwise happily produce an unrelated person; pinning the subject's
// identity and facial structure is a correctness requirement of the kiosk,
// not copywriting.
const editFraming = "EDIT MODE: Modify this existing photograph. Keep the EXACT same person with their " +
	"EXACT facial features, face shape, skin tone, and all identifying characteristics completely " +
	"unchanged. Only add these costume/transformation elements on top of the existing person: %s. " +
	"This is a photo editing task - do NOT generate a new person, do NOT change who the person is. " +
	"Add the transformation while preserving the person's complete identity and appearance."

// HTTPEditor forwards edit requests to an OpenAI-compatible chat-completions
// gateway as a single multimodal call. No internal retries: a failure is
// surfaced to the orchestrator, which lets the user re-invoke the step.
type HTTPEditor struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

func NewHTTPEditor(url, apiKey, model string, timeout time.Duration) *HTTPEditor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEditor{
		url:    strings.TrimSpace(url),
		apiKey: strings.TrimSpace(apiKey),
		model:  strings.TrimSpace(model),
		client: &http.Client{Timeout: timeout},
	}
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Modalities []string      `json:"modalities"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Images []struct {
				ImageURL chatImageURL `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
}

func (e *HTTPEditor) EditImage(ctx context.Context, req EditRequest) (EditResult, error) {
	body := chatRequest{
		Model: e.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: fmt.Sprintf(editFraming, req.Prompt)},
				{Type: "image_url", ImageURL: &chatImageURL{URL: req.ImageURL}},
			},
		}},
		Modalities: []string{"image", "text"},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return EditResult{}, fmt.Errorf("marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return EditResult{}, fmt.Errorf("create gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	res, err := e.client.Do(httpReq)
	if err != nil {
		return EditResult{}, fmt.Errorf("%w: %v", reliability.ErrUpstreamUnavailable, err)
	}
	defer res.Body.Close()

	if taxErr := reliability.ClassifyGatewayStatus(res.StatusCode); taxErr != nil {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		// Raw upstream text is for the logs only; callers see the taxonomy.
		log.Printf("ai gateway status %d: %s", res.StatusCode, string(detail))
		return EditResult{}, fmt.Errorf("gateway status %d: %w", res.StatusCode, taxErr)
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return EditResult{}, fmt.Errorf("%w: read response: %v", reliability.ErrUpstreamUnavailable, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return EditResult{}, fmt.Errorf("%w: decode response: %v", reliability.ErrUpstreamUnavailable, err)
	}

	if len(parsed.Choices) == 0 || len(parsed.Choices[0].Message.Images) == 0 {
		return EditResult{}, reliability.ErrNoImageProduced
	}
	out := strings.TrimSpace(parsed.Choices[0].Message.Images[0].ImageURL.URL)
	if out == "" {
		return EditResult{}, reliability.ErrNoImageProduced
	}

	return EditResult{ImageURL: out}, nil
}
