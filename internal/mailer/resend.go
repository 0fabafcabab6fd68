package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spgotland/snapkiosk/internal/reliability"
)

// ResendSender delivers messages through the Resend HTTP API.
type ResendSender struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewResendSender(baseURL, apiKey string) *ResendSender {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.resend.com"
	}
	return &ResendSender{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type resendAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type resendRequest struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Subject     string             `json:"subject"`
	HTML        string             `json:"html"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

func (s *ResendSender) Send(ctx context.Context, msg OutboundMessage) (string, error) {
	body := resendRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}
	if msg.Attachment != nil {
		body.Attachments = append(body.Attachments, resendAttachment{
			Filename: msg.Attachment.Filename,
			Content:  base64.StdEncoding.EncodeToString(msg.Attachment.Content),
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	res, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: send email: %v", reliability.ErrUpstreamUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		log.Printf("email provider status %d: %s", res.StatusCode, string(detail))
		if res.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("email provider status %d: %w", res.StatusCode, reliability.ErrRateLimited)
		}
		return "", fmt.Errorf("email provider status %d: %w", res.StatusCode, reliability.ErrUpstreamUnavailable)
	}

	var parsed resendResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode email response: %v", reliability.ErrUpstreamUnavailable, err)
	}
	return parsed.ID, nil
}
