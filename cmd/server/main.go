package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/vala/car-rental-reservation/internal/booking"
	"github.com/vala/car-rental-reservation/internal/config"
	"github.com/vala/car-rental-reservation/internal/database"
	"github.com/vala/car-rental-reservation/internal/handler"
	"github.com/vala/car-rental-reservation/internal/inflight"
	"github.com/vala/car-rental-reservation/internal/logger"
	"github.com/vala/car-rental-reservation/internal/middleware"
	"github.com/vala/car-rental-reservation/internal/model"
	"github.com/vala/car-rental-reservation/internal/payment"
	"github.com/vala/car-rental-reservation/internal/queue"
	"github.com/vala/car-rental-reservation/internal/repository"
	"github.com/vala/car-rental-reservation/internal/router"
	"github.com/vala/car-rental-reservation/internal/scheduler"
	"github.com/vala/car-rental-reservation/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()

	log := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatal("schema migration failed", zap.Error(err))
		}
	}

	users := repository.NewUserRepo(db)
	seedAdmin(ctx, cfg, users, log)

	rdb := config.NewRedisClient(config.LoadRedisConfig(), log)
	if rdb != nil {
		defer rdb.Close()
	}
	guard := inflight.New(rdb, cfg.Workflow.InFlightTTL, log)

	store := repository.NewStore(db)
	machine := booking.NewMachine(time.Now)
	bookings := booking.NewService(store, machine, guard, log.Named("booking"))

	provider, err := newProvider(cfg.Payment)
	if err != nil {
		log.Fatal("payment provider misconfigured", zap.Error(err))
	}
	publisher := service.NewQueuePublisher(cfg.RabbitURL, log)
	orch := payment.NewOrchestrator(store, provider, machine, guard, publisher, log.Named("payment"), payment.Options{
		Currency:        cfg.Payment.Currency,
		FrontendBaseURL: cfg.Payment.FrontendBaseURL,
		IntentTTL:       cfg.Payment.IntentTTL,
	})

	consumer := queue.NewConsumer(cfg.RabbitURL, queue.NewBookingLog(cfg.BookingLogPath), log)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("booking consumer stopped", zap.Error(err))
		}
	}()

	sweep, err := scheduler.NewPendingSweep(bookings, cfg.Workflow.PendingTTL, cfg.Payment.IntentTTL, log).Start(cfg.Workflow.PendingSweepCron)
	if err != nil {
		log.Fatal("invalid PENDING_SWEEP_CRON", zap.String("spec", cfg.Workflow.PendingSweepCron), zap.Error(err))
	}
	defer sweep.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))
	e.Use(middleware.RateLimit(config.LoadRateLimitConfig(), rdb))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(users, cfg.JWTSecret, time.Duration(cfg.AccessTTLMin)*time.Minute), cfg.JWTSecret)
	router.RegisterBooking(e,
		handler.NewReservationHandler(bookings),
		handler.NewPaymentHandler(orch, machine.Now),
		middleware.ResponseCache(config.LoadCacheConfig(), rdb),
	)
	router.RegisterAdmin(e, handler.NewAdminReservationHandler(bookings), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("payment_provider", string(provider.Method())))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
}

func newProvider(cfg config.PaymentConfig) (payment.Provider, error) {
	if cfg.Provider != "paypal" {
		return payment.NewSimulatedProvider(), nil
	}
	p, err := payment.NewPayPalProvider(payment.PayPalConfig{
		ClientID:     cfg.PayPalClientID,
		ClientSecret: cfg.PayPalClientSecret,
		Mode:         cfg.PayPalMode,
		BrandName:    cfg.PayPalBrandName,
	}, &http.Client{Timeout: cfg.HTTPTimeout})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// seedAdmin creates the first administrator when ADMIN_EMAIL and
// ADMIN_PASSWORD are set.  An existing account is left untouched.
func seedAdmin(ctx context.Context, cfg config.Config, users *repository.UserRepo, log *zap.Logger) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return
	}
	id, err := users.Create(ctx, cfg.AdminEmail, cfg.AdminPassword, model.RoleAdmin, cfg.BcryptCost)
	switch {
	case errors.Is(err, repository.ErrEmailExists):
		return
	case err != nil:
		log.Error("admin seed failed", zap.Error(err))
	default:
		log.Info("admin account created", zap.Uint64("user_id", id))
	}
}
