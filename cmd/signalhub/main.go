// Command signalhub runs the notification API server: OTP and coupon
// issuance, delivery and flight notification sequences, calendar artifacts,
// and the webhook inbox.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/signalhub/internal/artifact"
	"github.com/kbukum/signalhub/internal/calendar"
	"github.com/kbukum/signalhub/internal/config"
	"github.com/kbukum/signalhub/internal/delivery"
	"github.com/kbukum/signalhub/internal/flight"
	"github.com/kbukum/signalhub/internal/inbox"
	"github.com/kbukum/signalhub/internal/kvstore"
	"github.com/kbukum/signalhub/internal/logger"
	"github.com/kbukum/signalhub/internal/notify"
	"github.com/kbukum/signalhub/internal/sequence"
	"github.com/kbukum/signalhub/internal/server"
)

// snapshotTTL bounds how long sequence progress snapshots stay readable.
const snapshotTTL = 24 * time.Hour

func main() {
	if err := run(); err != nil {
		logger.NewDefault("signalhub").Error("Service failed", logger.ErrorFields("run", err))
		os.Exit(1)
	}
}

// run owns the service lifecycle. Returning an error instead of exiting
// in place lets the deferred cleanups release the store and the inbox.
func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := logger.New(cfg.Logging, cfg.Name)
	log.Info("Starting service", logger.Fields(
		"environment", cfg.Environment,
		"version", cfg.Version,
	))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := kvstore.New(ctx, cfg.Store, log)
	defer store.Close()

	guard := sequence.NewGuard()
	sequencer := sequence.NewSequencer(guard, store, snapshotTTL, log)

	notifier, err := notify.NewOneSignal(cfg.Notify, log)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}

	issuer := artifact.NewIssuer(store, cfg.Artifact, log)
	deliverySvc := delivery.NewService(sequencer, notifier, cfg.Notify.Templates, cfg.Delivery, log)
	flightSvc := flight.NewService(sequencer, notifier, store, cfg.Flight, log)
	calendarSvc := calendar.NewService(store, cfg.Calendar, log)

	var inboxStore *inbox.Store
	if cfg.Inbox.Enabled {
		inboxStore, err = inbox.NewStore(cfg.Inbox, log)
		if err != nil {
			// The rest of the API works without the inbox; webhook events
			// are acknowledged but not stored.
			log.Warn("Webhook inbox unavailable", logger.ErrorFields("inbox", err))
			inboxStore = nil
		} else {
			defer inboxStore.Close()
		}
	}

	srv := server.New(cfg.Server, server.Deps{
		Store:       store,
		Issuer:      issuer,
		Notifier:    notifier,
		Templates:   cfg.Notify.Templates,
		Delivery:    deliverySvc,
		Flight:      flightSvc,
		Calendar:    calendarSvc,
		Inbox:       inboxStore,
		Version:     cfg.Version,
		Development: cfg.IsDevelopment(),
	}, log)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	<-ctx.Done()
	log.Info("Shutdown signal received")

	if err := srv.Stop(context.Background()); err != nil {
		log.Error("Shutdown error", logger.ErrorFields("server_stop", err))
	}
	log.Info("Service stopped")
	return nil
}
