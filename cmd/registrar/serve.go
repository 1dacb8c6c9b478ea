package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/classops/registrar/internal/booking"
	"github.com/classops/registrar/internal/config"
	"github.com/classops/registrar/internal/database"
	"github.com/classops/registrar/internal/handler"
	"github.com/classops/registrar/internal/jobs"
	"github.com/classops/registrar/internal/ledger"
	"github.com/classops/registrar/internal/log"
	"github.com/classops/registrar/internal/metrics"
	"github.com/classops/registrar/internal/notify"
	"github.com/classops/registrar/internal/payments"
	"github.com/classops/registrar/internal/publish"
	"github.com/classops/registrar/internal/repository"
	"github.com/classops/registrar/internal/service"
	"github.com/classops/registrar/internal/waitlist"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the periodic jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// app bundles the wired components shared by the serve and one-shot
// commands.
type app struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	service  *service.RegistrationService
	process  *payments.Processor
	syncer   *publish.Syncer
	notifier *waitlist.Notifier
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})

	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.Info("connected to postgres")

	classRepo := repository.NewClassRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)
	waitlistRepo := repository.NewWaitlistRepository(pool)

	seats := ledger.New(classRepo)
	refunds := payments.NewClient(cfg.Payments.APIBaseURL, cfg.Payments.APIKey)
	machine := booking.NewMachine(bookingRepo, seats, refunds)
	processor := payments.NewProcessor(bookingRepo, machine)
	svc := service.NewRegistrationService(classRepo, bookingRepo, waitlistRepo, seats, machine)

	content := publish.NewClient(cfg.Publish.APIBaseURL, cfg.Publish.APIKey)
	source := repository.NewPublishSource(classRepo, bookingRepo)
	syncer := publish.NewSyncer(source, content, cfg.Publish.CollectionID, cfg.Publish.PurchaseCollectionID)

	var sender notify.Sender = notify.LogSender{}
	if cfg.Notify.EndpointURL != "" {
		sender = notify.NewHTTPSender(cfg.Notify.EndpointURL)
	}
	notifier := waitlist.NewNotifier(waitlistRepo, seats, sender)

	return &app{
		cfg:      cfg,
		pool:     pool,
		service:  svc,
		process:  processor,
		syncer:   syncer,
		notifier: notifier,
	}, nil
}

func runServe() error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.pool.Close()

	runner := jobs.NewRunner(
		&jobs.Job{
			Name:     "reconcile",
			Interval: a.cfg.Jobs.ReconcileInterval,
			Timeout:  a.cfg.Jobs.CycleTimeout,
			Run: func(ctx context.Context) error {
				_, err := a.syncer.RunCycle(ctx)
				return err
			},
		},
		&jobs.Job{
			Name:     "waitlist",
			Interval: a.cfg.Jobs.WaitlistInterval,
			Timeout:  a.cfg.Jobs.CycleTimeout,
			Run:      a.notifier.RunCycle,
		},
	)
	runner.Start()
	defer runner.Stop()

	regHandler := handler.NewRegistrationHandler(a.service)
	hookHandler := handler.NewWebhookHandler(a.process, a.cfg.Payments.WebhookSecret)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.Logger)
	r.Use(handler.CORS)

	r.Get("/health", handler.HealthCheck)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/classes", func(r chi.Router) {
		r.Get("/", regHandler.ListClasses)
		r.Get("/{id}", regHandler.GetClass)
		r.Post("/{id}/registrations", regHandler.Register)
		r.Post("/{id}/waitlist", regHandler.JoinWaitlist)
	})
	r.Route("/bookings", func(r chi.Router) {
		r.Get("/{id}", regHandler.GetBooking)
		r.Post("/{id}/cancel", regHandler.Cancel)
	})
	r.Post("/webhooks/payments", hookHandler.PaymentEvent)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", a.cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Logger.Info().Str("port", a.cfg.HTTP.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}
