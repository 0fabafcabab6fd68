package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spgotland/snapkiosk/internal/flow"
	"github.com/spgotland/snapkiosk/internal/kiosk"
	"github.com/spgotland/snapkiosk/internal/protocol"
	"github.com/spgotland/snapkiosk/internal/reliability"
)

// handleKioskWS runs one kiosk screen over a websocket: a dedicated flow
// instance per connection, state transitions pushed as they happen. Writes
// stay single-threaded through the outbound channel.
func (s *Server) handleKioskWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ActiveFlows.Inc()
		defer s.metrics.ActiveFlows.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 64)
	sessionID := s.sessions.GetOrCreateID()

	push := func(msg any) {
		select {
		case outbound <- msg:
		default:
			// Drop rather than block the flow on a stalled screen.
		}
	}

	var flowMu sync.Mutex
	var flowStarted time.Time

	fl := flow.New(flow.Config{
		IdleTimeout:  s.cfg.IdleTimeout,
		DisplayDelay: s.cfg.DisplayDelay,
	}, s.svc, s.sessions, clientKey(r), func(n flow.Notification) {
		if s.metrics != nil && n.Event != "" {
			s.metrics.FlowEvents.WithLabelValues(string(n.Event)).Inc()
		}
		if s.window != nil {
			flowMu.Lock()
			switch n.Event {
			case flow.EventStart:
				flowStarted = time.Now()
			case flow.EventDelivered:
				if !flowStarted.IsZero() {
					s.window.Observe("flow_total", float64(time.Since(flowStarted).Milliseconds()))
					flowStarted = time.Time{}
				}
			}
			flowMu.Unlock()
		}
		push(protocol.StateChanged{
			Type:      protocol.TypeStateChanged,
			SessionID: sessionID,
			State:     string(n.State),
			Event:     string(n.Event),
		})
		if n.EditedImageURL != "" {
			push(protocol.TransformDone{
				Type:           protocol.TypeTransformDone,
				SessionID:      sessionID,
				EditedImageURL: n.EditedImageURL,
			})
		}
		if n.MessageID != "" {
			push(protocol.DeliveryDone{
				Type:      protocol.TypeDeliveryDone,
				SessionID: sessionID,
				MessageID: n.MessageID,
			})
		}
		if n.Err != nil {
			push(errorEvent(sessionID, n.Err))
		}
	})
	defer fl.Close()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(8 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			push(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "protocol",
				Retryable: true,
				Detail:    err.Error(),
			})
			continue
		}

		switch msg := parsed.(type) {
		case protocol.KioskStart:
			s.dispatchSync(push, sessionID, fl.Start())
		case protocol.KioskCapture:
			s.dispatchSync(push, sessionID, fl.Capture(msg.ImageDataURL))
		case protocol.KioskTransform:
			// Gateway calls take seconds; keep the read loop pumping so
			// activity and reset frames still land.
			go func() {
				err := fl.Transform(ctx, msg.Prompt)
				if errors.Is(err, flow.ErrBusy) || errors.Is(err, flow.ErrIllegalEvent) {
					push(errorEvent(sessionID, err))
				}
			}()
		case protocol.KioskDeliver:
			go func() {
				err := fl.Deliver(ctx, flow.DeliverRequest{
					Email:        msg.Email,
					Name:         msg.Name,
					Message:      msg.Message,
					ConsentGiven: msg.ConsentGiven,
				})
				if errors.Is(err, flow.ErrBusy) || errors.Is(err, flow.ErrIllegalEvent) {
					push(errorEvent(sessionID, err))
				}
			}()
		case protocol.KioskActivity:
			fl.Activity()
		case protocol.KioskReset:
			fl.Reset()
		}
	}

	cancel()
	<-writerDone
}

// dispatchSync reports a synchronous flow rejection back to the screen.
// Successful calls already notified through the flow's callback.
func (s *Server) dispatchSync(push func(any), sessionID string, err error) {
	if err != nil {
		push(errorEvent(sessionID, err))
	}
}

func errorEvent(sessionID string, err error) protocol.ErrorEvent {
	code := errorCode(err)
	detail := reliability.UserMessage(err)
	switch {
	case errors.Is(err, flow.ErrBusy):
		code, detail = "busy", "An operation is already running. Please wait."
	case errors.Is(err, flow.ErrIllegalEvent):
		code, detail = "illegal_event", "That action is not available right now."
	}
	source := "flow"
	if errors.Is(err, reliability.ErrRateLimited) ||
		errors.Is(err, reliability.ErrQuotaExhausted) ||
		errors.Is(err, reliability.ErrUpstreamUnavailable) ||
		errors.Is(err, reliability.ErrNoImageProduced) {
		source = "upstream"
	}
	var verr *kiosk.ValidationError
	if errors.As(err, &verr) {
		code, detail, source = "invalid_input", verr.Error(), "validation"
	}
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    source,
		Retryable: reliability.Retryable(err),
		Detail:    detail,
	}
}
