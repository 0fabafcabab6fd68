package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/spgotland/snapkiosk/internal/config"
	"github.com/spgotland/snapkiosk/internal/kiosk"
	"github.com/spgotland/snapkiosk/internal/observability"
	"github.com/spgotland/snapkiosk/internal/reliability"
	"github.com/spgotland/snapkiosk/internal/session"
	"github.com/spgotland/snapkiosk/internal/validate"
)

type Server struct {
	cfg      config.Config
	svc      *kiosk.Service
	sessions *session.Provider
	metrics  *observability.Metrics
	window   *observability.StageWindow
	upgrader websocket.Upgrader
}

func New(cfg config.Config, svc *kiosk.Service, sessions *session.Provider, metrics *observability.Metrics, window *observability.StageWindow) *Server {
	return &Server{
		cfg:      cfg,
		svc:      svc,
		sessions: sessions,
		metrics:  metrics,
		window:   window,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// The kiosk UI is served from its own origin, so the default
				// is open. Locked-down deployments pin the browser to the
				// API host instead.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/transform", s.handleTransform)
	r.Post("/v1/deliver", s.handleDeliver)
	r.Get("/v1/session", s.handleSession)
	r.Get("/v1/kiosk/ws", s.handleKioskWS)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

// corsMiddleware mirrors the headers the kiosk front end sends with every
// call. Preflight requests short-circuit with an empty success.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AllowAnyOrigin {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	var in validate.TransformInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.svc.Transform(r.Context(), clientKey(r), in)
	if err != nil {
		s.respondOperationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	var in validate.DeliverInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.svc.Deliver(r.Context(), in)
	if err != nil {
		s.respondOperationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"sessionId": s.sessions.GetOrCreateID(),
		"ttlMs":     s.cfg.SessionTTL.Milliseconds(),
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.window == nil {
		respondJSON(w, http.StatusOK, observability.StageSnapshot{})
		return
	}
	respondJSON(w, http.StatusOK, s.window.Snapshot())
}

// respondOperationError maps the taxonomy onto wire statuses. A validation
// rejection ships the complete field list; everything else gets the friendly
// message, never the upstream detail.
func (s *Server) respondOperationError(w http.ResponseWriter, err error) {
	var verr *kiosk.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"code":   "invalid_input",
			"fields": verr.Fields,
		})
		return
	}

	var rle *reliability.RateLimitedError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rle.RetryAfter.Seconds())+1))
	}
	respondError(w, reliability.HTTPStatus(err), errorCode(err), reliability.UserMessage(err))
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, reliability.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, reliability.ErrQuotaExhausted):
		return "quota_exhausted"
	case errors.Is(err, reliability.ErrNoImageProduced):
		return "no_image_produced"
	case errors.Is(err, reliability.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "internal_error"
	}
}

// clientKey picks the network identity the transform limiter buckets by:
// the first hop of X-Forwarded-For when a proxy fronts the service, then
// X-Real-IP, then the socket address.
func clientKey(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
