package kiosk

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/spgotland/snapkiosk/internal/analytics"
	"github.com/spgotland/snapkiosk/internal/gateway"
	"github.com/spgotland/snapkiosk/internal/mailer"
	"github.com/spgotland/snapkiosk/internal/observability"
	"github.com/spgotland/snapkiosk/internal/ratelimit"
	"github.com/spgotland/snapkiosk/internal/reliability"
	"github.com/spgotland/snapkiosk/internal/validate"
)

// ValidationError carries the complete list of field violations for a
// rejected request. Rejection happens before any external call and applies no
// mutation.
type ValidationError struct {
	Fields []validate.FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %d field error(s)", len(e.Fields))
}

// Service sequences the two network-facing operations: validator and limiter
// gate first, then the external collaborator is called.
type Service struct {
	editor   gateway.Editor
	composer *mailer.Composer
	sender   mailer.Sender
	store    analytics.Store

	transformLimiter *ratelimit.Limiter
	deliverLimiter   *ratelimit.Limiter

	metrics *observability.Metrics
	window  *observability.StageWindow
}

func NewService(
	editor gateway.Editor,
	composer *mailer.Composer,
	sender mailer.Sender,
	store analytics.Store,
	transformLimiter *ratelimit.Limiter,
	deliverLimiter *ratelimit.Limiter,
	metrics *observability.Metrics,
	window *observability.StageWindow,
) *Service {
	return &Service{
		editor:           editor,
		composer:         composer,
		sender:           sender,
		store:            store,
		transformLimiter: transformLimiter,
		deliverLimiter:   deliverLimiter,
		metrics:          metrics,
		window:           window,
	}
}

// TransformResult is the outcome of one admitted transform operation.
type TransformResult struct {
	EditedImageURL string `json:"editedImageUrl"`
}

// Transform validates, admits by the caller's network identity, and performs
// the single AI gateway call. The expensive call is throttled by network
// origin rather than session key so an abuser cannot dodge it by clearing
// local state.
func (s *Service) Transform(ctx context.Context, callerKey string, in validate.TransformInput) (TransformResult, error) {
	if errs := validate.Transform(in); len(errs) > 0 {
		s.observe("transform", "invalid")
		return TransformResult{}, &ValidationError{Fields: errs}
	}

	if v := s.transformLimiter.Admit(callerKey); !v.Allowed {
		log.Printf("transform rate limit exceeded for caller %s", callerKey)
		s.observe("transform", "rate_limited")
		if s.metrics != nil {
			s.metrics.RateLimitDenials.WithLabelValues("transform").Inc()
		}
		return TransformResult{}, &reliability.RateLimitedError{RetryAfter: v.RetryAfter}
	}

	started := time.Now()
	res, err := s.editor.EditImage(ctx, gateway.EditRequest{
		SessionID: in.SessionID,
		ImageURL:  in.ImageURL,
		Prompt:    in.Prompt,
	})
	elapsed := time.Since(started)
	if s.metrics != nil {
		s.metrics.ObserveTransformLatency(elapsed)
	}
	s.observeStage("transform_call", elapsed)
	if err != nil {
		s.observe("transform", "failed")
		s.indicate("transform_failed")
		return TransformResult{}, err
	}

	s.observe("transform", "ok")
	return TransformResult{EditedImageURL: res.ImageURL}, nil
}

// DeliverResult is the outcome of one admitted deliver operation.
type DeliverResult struct {
	MessageID string `json:"messageId"`
	RecordID  string `json:"-"`
}

// Deliver validates, admits by session key, composes the outbound message,
// writes the analytics record, and only then attempts the email send. The two
// commit points are deliberately independent: an email failure does not roll
// the record back.
func (s *Service) Deliver(ctx context.Context, in validate.DeliverInput) (DeliverResult, error) {
	if errs := validate.Deliver(in); len(errs) > 0 {
		s.observe("deliver", "invalid")
		return DeliverResult{}, &ValidationError{Fields: errs}
	}

	if v := s.deliverLimiter.Admit(in.SessionID); !v.Allowed {
		log.Printf("deliver rate limit exceeded for session %s", in.SessionID)
		s.observe("deliver", "rate_limited")
		if s.metrics != nil {
			s.metrics.RateLimitDenials.WithLabelValues("deliver").Inc()
		}
		return DeliverResult{}, &reliability.RateLimitedError{RetryAfter: v.RetryAfter}
	}

	contact := mailer.Contact{
		Email:        in.Email,
		Name:         in.Name,
		Message:      in.Message,
		ConsentGiven: in.ConsentGiven,
	}
	meta := mailer.Metadata{
		SessionID:   in.SessionID,
		Instruction: in.Prompt,
	}

	started := time.Now()
	msg, record, err := s.composer.Compose(ctx, contact, in.ImageURL, meta)
	s.observeStage("compose", time.Since(started))
	if err != nil {
		s.observe("deliver", "compose_failed")
		return DeliverResult{}, err
	}

	record.ID = uuid.NewString()
	started = time.Now()
	if err := s.store.Save(ctx, record); err != nil {
		s.observe("deliver", "record_failed")
		return DeliverResult{}, fmt.Errorf("write delivery record: %w", err)
	}
	s.observeStage("analytics_write", time.Since(started))

	started = time.Now()
	msgID, err := s.sender.Send(ctx, msg)
	s.observeStage("email_send", time.Since(started))
	if err != nil {
		// The record above stands; there is no compensating delete.
		log.Printf("email send failed after analytics write (record %s): %v", record.ID, err)
		s.observe("deliver", "send_failed")
		return DeliverResult{RecordID: record.ID}, err
	}

	s.observe("deliver", "ok")
	return DeliverResult{MessageID: msgID, RecordID: record.ID}, nil
}

func (s *Service) observe(operation, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, outcome)
	}
}

func (s *Service) observeStage(stage string, d time.Duration) {
	if s.window != nil {
		s.window.Observe(stage, float64(d.Milliseconds()))
	}
}

func (s *Service) indicate(name string) {
	if s.window != nil {
		s.window.ObserveIndicator(name)
	}
}
