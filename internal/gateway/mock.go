package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
)

// MockEditor provides deterministic local results when no gateway key is
// configured. The returned data URL embeds the prompt so tests can assert the
// instruction reached the editor.
type MockEditor struct{}

func NewMockEditor() *MockEditor { return &MockEditor{} }

func (e *MockEditor) EditImage(ctx context.Context, req EditRequest) (EditResult, error) {
	select {
	case <-ctx.Done():
		return EditResult{}, ctx.Err()
	default:
	}

	stub := base64.StdEncoding.EncodeToString([]byte("edited:" + req.Prompt))
	return EditResult{ImageURL: fmt.Sprintf("data:image/png;base64,%s", stub)}, nil
}
