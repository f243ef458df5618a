package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BruksfildServices01/barber-booking/internal/audit"
	"github.com/BruksfildServices01/barber-booking/internal/config"
	dbpkg "github.com/BruksfildServices01/barber-booking/internal/db"
	domain "github.com/BruksfildServices01/barber-booking/internal/domain/booking"
	"github.com/BruksfildServices01/barber-booking/internal/domain/slot"
	"github.com/BruksfildServices01/barber-booking/internal/handlers"
	"github.com/BruksfildServices01/barber-booking/internal/infra/notify"
	infraRepo "github.com/BruksfildServices01/barber-booking/internal/infra/repository"
	"github.com/BruksfildServices01/barber-booking/internal/logs"
	"github.com/BruksfildServices01/barber-booking/internal/metrics"
	"github.com/BruksfildServices01/barber-booking/internal/redisclient"
	"github.com/BruksfildServices01/barber-booking/internal/retry"
	"github.com/BruksfildServices01/barber-booking/internal/routes"
	"github.com/BruksfildServices01/barber-booking/internal/seed"
	"github.com/BruksfildServices01/barber-booking/internal/store"
	"github.com/BruksfildServices01/barber-booking/internal/store/feed"
	"github.com/BruksfildServices01/barber-booking/internal/store/memory"
	"github.com/BruksfildServices01/barber-booking/internal/timezone"
	ucBooking "github.com/BruksfildServices01/barber-booking/internal/usecase/booking"
	"github.com/BruksfildServices01/barber-booking/internal/usecase/directory"
	"github.com/BruksfildServices01/barber-booking/internal/usecase/liveview"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logs.New(logs.Options{Level: cfg.LogLevel, Env: cfg.Env, File: cfg.LogFile})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ======================================================
	// INFRA
	// ======================================================
	var rdb *redis.Client
	if cfg.FeedDriver == config.FeedRedis {
		rdb, err = redisclient.New(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	var changes store.ChangeFeed = feed.NewLocal()
	var claims domain.SlotClaimer = domain.NewMemoryClaimer()
	if rdb != nil {
		changes = notify.NewRedisFeed(rdb, log)
		claims = notify.NewRedisSlotClaimer(rdb, notify.DefaultClaimTTL)
	}

	var (
		st        store.Store
		auditSink audit.Sink = audit.NewSlogSink(log)
	)
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := dbpkg.NewDB(cfg, log)
		if err != nil {
			return err
		}
		st = infraRepo.NewDocumentGormRepository(db, changes, log)
		auditSink = audit.New(db)
	default:
		st = memory.New(memory.WithFeed(changes))
	}

	auditDispatcher := audit.NewDispatcher(auditSink, log)
	defer auditDispatcher.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	now := timezone.Clock(cfg.Timezone)
	hours := slot.OperatingHours{Open: cfg.SlotOpen, Close: cfg.SlotClose}
	if err := hours.Validate(cfg.SlotIncrement); err != nil {
		return err
	}
	backoff := retry.Backoff{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		Jitter:      cfg.RetryJitter,
	}

	// ======================================================
	// DIRECTORY BOOTSTRAP
	// ======================================================
	var loader *seed.Loader
	if cfg.S3Endpoint != "" || cfg.S3Access != "" {
		loader = seed.NewLoader(seed.NewS3Client(seed.S3Config{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3Access,
			SecretKey: cfg.S3Secret,
		}))
	} else {
		loader = seed.NewLoader(nil)
	}

	refs, err := loader.Load(ctx, cfg.SeedSource)
	if err != nil {
		return err
	}
	bootstrapper := directory.NewBootstrapper(st, auditDispatcher, backoff, log, m)
	if err := bootstrapper.EnsureSeeded(ctx, refs); err != nil {
		// the API still serves bookings; the directory is retried next start
		log.Error("directory bootstrap failed", "error", err)
	}

	// ======================================================
	// USE CASES
	// ======================================================
	confirmUC := ucBooking.NewConfirm(st, claims, auditDispatcher, ucBooking.Options{
		Fees: domain.FeeSchedule{
			CustomerSurcharge: cfg.BookingSurcharge,
			PlatformCut:       cfg.BookingPlatformCut,
		},
		Hours:     hours,
		Increment: cfg.SlotIncrement,
		Backoff:   backoff,
		Now:       now,
		Logger:    log,
		Metrics:   m,
	})
	live := liveview.NewService(st, liveview.Options{Logger: log, Metrics: m, Now: now})

	// ======================================================
	// HTTP
	// ======================================================
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	routes.RegisterRoutes(r, routes.Deps{
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		Barbers: handlers.NewBarberHandler(st, live, handlers.SlotConfig{
			Hours:     hours,
			Increment: cfg.SlotIncrement,
			Policy:    slot.NewRandomPolicy(slot.DefaultAvailabilityRate, nil),
			Now:       now,
		}),
		Bookings: handlers.NewBookingHandler(confirmUC, live),
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	// live streams end with the process context instead of holding shutdown
	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server running", "addr", cfg.Addr(), "store", cfg.StoreDriver, "feed", cfg.FeedDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
