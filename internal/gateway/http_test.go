package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spgotland/snapkiosk/internal/reliability"
)

func newGatewayTestServer(t *testing.T, status int, imageURL string) (*httptest.Server, *chatRequest) {
	t.Helper()
	var captured chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode gateway request: %v", err)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"upstream detail"}`))
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"images": []map[string]any{{
						"image_url": map[string]any{"url": imageURL},
					}},
				},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	return ts, &captured
}

func TestHTTPEditorSendsMultimodalEditRequest(t *testing.T) {
	ts, captured := newGatewayTestServer(t, http.StatusOK, "data:image/png;base64,ZWRpdGVk")
	defer ts.Close()

	e := NewHTTPEditor(ts.URL, "test-key", "test-model", 5*time.Second)
	res, err := e.EditImage(context.Background(), EditRequest{
		ImageURL: "data:image/jpeg;base64,b3JpZw==",
		Prompt:   "wizard hat",
	})
	if err != nil {
		t.Fatalf("EditImage() error = %v", err)
	}
	if res.ImageURL != "data:image/png;base64,ZWRpdGVk" {
		t.Fatalf("ImageURL = %q, want extracted image", res.ImageURL)
	}

	if captured.Model != "test-model" {
		t.Fatalf("model = %q, want %q", captured.Model, "test-model")
	}
	if len(captured.Modalities) != 2 {
		t.Fatalf("modalities = %v, want image and text", captured.Modalities)
	}
	if len(captured.Messages) != 1 || len(captured.Messages[0].Content) != 2 {
		t.Fatalf("request should carry one message with text plus image, got %+v", captured.Messages)
	}
	text := captured.Messages[0].Content[0].Text
	if !strings.Contains(text, "wizard hat") {
		t.Fatalf("framing text missing the instruction: %q", text)
	}
	if !strings.Contains(text, "EXACT same person") {
		t.Fatalf("framing text missing identity-preserving steer: %q", text)
	}
	img := captured.Messages[0].Content[1]
	if img.ImageURL == nil || img.ImageURL.URL != "data:image/jpeg;base64,b3JpZw==" {
		t.Fatalf("original image not attached: %+v", img)
	}
}

func TestHTTPEditorClassifiesUpstreamStatuses(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, reliability.ErrRateLimited},
		{http.StatusPaymentRequired, reliability.ErrQuotaExhausted},
		{http.StatusInternalServerError, reliability.ErrUpstreamUnavailable},
	}
	for _, tc := range cases {
		ts, _ := newGatewayTestServer(t, tc.status, "")
		e := NewHTTPEditor(ts.URL, "test-key", "test-model", 5*time.Second)
		_, err := e.EditImage(context.Background(), EditRequest{ImageURL: "https://x/y.jpg", Prompt: "p"})
		ts.Close()
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: error = %v, want %v", tc.status, err, tc.want)
		}
		if err != nil && strings.Contains(err.Error(), "upstream detail") {
			t.Fatalf("raw upstream text leaked into error: %v", err)
		}
	}
}

func TestHTTPEditorNoImageProduced(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{}}},
		})
	}))
	defer ts.Close()

	e := NewHTTPEditor(ts.URL, "test-key", "test-model", 5*time.Second)
	_, err := e.EditImage(context.Background(), EditRequest{ImageURL: "https://x/y.jpg", Prompt: "p"})
	if !errors.Is(err, reliability.ErrNoImageProduced) {
		t.Fatalf("error = %v, want ErrNoImageProduced", err)
	}
}

func TestNewEditorModes(t *testing.T) {
	if _, err := NewEditor(Config{Mode: "http"}); err == nil {
		t.Fatalf("http mode without key should fail")
	}
	ed, err := NewEditor(Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("auto mode error = %v", err)
	}
	if _, ok := ed.(*MockEditor); !ok {
		t.Fatalf("auto mode without key should pick the mock editor")
	}
	if _, err := NewEditor(Config{Mode: "bogus"}); err == nil {
		t.Fatalf("unknown mode should fail")
	}
}
