package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spgotland/snapkiosk/internal/analytics"
	"github.com/spgotland/snapkiosk/internal/config"
	"github.com/spgotland/snapkiosk/internal/gateway"
	"github.com/spgotland/snapkiosk/internal/httpapi"
	"github.com/spgotland/snapkiosk/internal/kiosk"
	"github.com/spgotland/snapkiosk/internal/mailer"
	"github.com/spgotland/snapkiosk/internal/observability"
	"github.com/spgotland/snapkiosk/internal/ratelimit"
	"github.com/spgotland/snapkiosk/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	window := observability.NewStageWindow(256)

	ctx := context.Background()
	store, err := analytics.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("analytics store init failed: %v", err)
	}
	defer store.Close()

	editor, err := gateway.NewEditor(gateway.Config{
		Mode:    cfg.GatewayMode,
		URL:     cfg.GatewayURL,
		APIKey:  cfg.GatewayAPIKey,
		Model:   cfg.GatewayModel,
		Timeout: cfg.GatewayTimeout,
	})
	if err != nil {
		log.Fatalf("gateway init failed: %v", err)
	}

	sender, err := mailer.NewSender(mailer.Config{
		Mode:    cfg.MailMode,
		APIKey:  cfg.MailAPIKey,
		BaseURL: cfg.MailBaseURL,
	})
	if err != nil {
		log.Fatalf("mail sender init failed: %v", err)
	}

	sessions := session.NewProvider(session.NewFileStore(cfg.SessionStatePath), cfg.SessionTTL)

	transformLimiter := ratelimit.NewLimiter(cfg.TransformLimit, cfg.TransformWindow)
	deliverLimiter := ratelimit.NewLimiter(cfg.DeliverLimit, cfg.DeliverWindow)

	svc := kiosk.NewService(
		editor,
		mailer.NewComposer(cfg.MailFrom),
		sender,
		store,
		transformLimiter,
		deliverLimiter,
		metrics,
		window,
	)

	api := httpapi.New(cfg, svc, sessions, metrics, window)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	transformLimiter.StartJanitor(runCtx, 5*time.Minute)
	deliverLimiter.StartJanitor(runCtx, 5*time.Minute)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
