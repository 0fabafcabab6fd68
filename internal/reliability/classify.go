package reliability

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for the small failure taxonomy the flow exposes. Everything
// the external collaborators can do wrong is normalized into one of these
// before it reaches the orchestrator; raw upstream text stays in the logs.
var (
	ErrRateLimited         = errors.New("rate limited")
	ErrQuotaExhausted      = errors.New("upstream quota or payment exhausted")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrNoImageProduced     = errors.New("upstream produced no image")
	ErrStorageUnavailable  = errors.New("local storage unavailable")
)

// RateLimitedError carries the wait hint for a denied attempt.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// ClassifyGatewayStatus maps an upstream HTTP status to the taxonomy.
func ClassifyGatewayStatus(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusPaymentRequired:
		return ErrQuotaExhausted
	case code >= 200 && code < 300:
		return nil
	default:
		return ErrUpstreamUnavailable
	}
}

// HTTPStatus maps a taxonomy error to the status the API returns.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrQuotaExhausted):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the friendly text shown at the kiosk. Upstream detail is
// never surfaced verbatim; every message invites a retry.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "Too many requests. Please try again later."
	case errors.Is(err, ErrQuotaExhausted):
		return "The service is temporarily out of capacity. Please try again later."
	case errors.Is(err, ErrNoImageProduced):
		return "The transformation did not produce an image. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

// Retryable reports whether the user can simply re-invoke the failed step.
func Retryable(err error) bool {
	return !errors.Is(err, ErrQuotaExhausted)
}
