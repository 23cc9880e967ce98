package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gdg-garage/garage-rsvp-api/internal/admission"
	"github.com/gdg-garage/garage-rsvp-api/internal/auth"
	"github.com/gdg-garage/garage-rsvp-api/internal/config"
	"github.com/gdg-garage/garage-rsvp-api/internal/database"
	"github.com/gdg-garage/garage-rsvp-api/internal/events"
	"github.com/gdg-garage/garage-rsvp-api/internal/handlers"
	"github.com/gdg-garage/garage-rsvp-api/internal/messaging"
	"github.com/gdg-garage/garage-rsvp-api/internal/notifier"
	"github.com/go-chi/chi/v5"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load Configuration
	cfg := config.LoadConfig()

	logx.MustSetup(logx.LogConf{
		ServiceName: cfg.ServiceName,
		Mode:        "console",
		Encoding:    cfg.LogEncoding,
		Level:       cfg.LogLevel,
	})
	defer logx.Close()

	// Connect to Database
	db := database.Connect(cfg)

	bus, err := messaging.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to set up messaging: %v", err)
	}

	if cfg.DiscordBotToken != "" && cfg.DiscordNotificationsChannelID != "" {
		session, err := discordgo.New("Bot " + cfg.DiscordBotToken)
		if err != nil {
			log.Fatalf("Failed to create discord session: %v", err)
		}
		notifier.Subscribe(bus, notifier.NewDiscordNotifier(session, cfg.DiscordNotificationsChannelID, db))
	} else {
		logx.Info("Discord notifier disabled: DISCORD_BOT_TOKEN or DISCORD_NOTIFICATIONS_CHANNEL_ID not set")
	}

	ctrl := admission.NewController(db, bus, cfg.AdmissionMaxRetries)
	eventService := events.NewService(db, bus)
	reconciler := admission.NewReconciler(db)

	authHandler := auth.NewAuthHandler(cfg, db)

	// Initialize Router
	r := chi.NewRouter()
	handlers.RegisterRoutes(r, cfg, authHandler,
		handlers.NewEventHandler(eventService),
		handlers.NewRSVPHandler(ctrl, eventService),
		handlers.NewAPIKeyHandler(db),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n, err := reconciler.ReconcileAll(ctx); err != nil {
		logx.Errorf("Startup reconcile failed: %v", err)
	} else if n > 0 {
		logx.Infof("Startup reconcile repaired %d event counters", n)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return bus.Run(gctx)
	})

	g.Go(func() error {
		return reconciler.Run(gctx, cfg.ReconcileInterval)
	})

	g.Go(func() error {
		logx.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logx.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return bus.Close()
	})

	if err := g.Wait(); err != nil {
		logx.Errorf("Server stopped with error: %v", err)
		logx.Close()
		os.Exit(1)
	}
}
