package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/immxrtalbeast/theracare_telehealth/internal/api/http"
	"github.com/immxrtalbeast/theracare_telehealth/internal/broker"
	"github.com/immxrtalbeast/theracare_telehealth/internal/config"
	"github.com/immxrtalbeast/theracare_telehealth/internal/metrics"
	"github.com/immxrtalbeast/theracare_telehealth/internal/notify"
	"github.com/immxrtalbeast/theracare_telehealth/internal/presence"
	"github.com/immxrtalbeast/theracare_telehealth/internal/repository"
	"github.com/immxrtalbeast/theracare_telehealth/internal/repository/model"
	"github.com/immxrtalbeast/theracare_telehealth/internal/service"
	"github.com/immxrtalbeast/theracare_telehealth/lib/logger/sl"
	"github.com/immxrtalbeast/theracare_telehealth/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sessionRepo, userRepo, err := setupRepositories(cfg.Database)
	if err != nil {
		log.Error("failed to set up storage", sl.Err(err))
		os.Exit(1)
	}

	tracker, roomBroker, closeRedis, err := setupRealtime(ctx, cfg, log, m)
	if err != nil {
		log.Error("failed to connect redis", sl.Err(err))
		os.Exit(1)
	}
	defer closeRedis()

	mailer, err := setupMailer(cfg.Email, log)
	if err != nil {
		log.Error("failed to set up mailer", sl.Err(err))
		os.Exit(1)
	}
	dispatcher := notify.NewDispatcher(log, mailer, m, notify.DispatcherConfig{
		Workers:     cfg.Email.Workers,
		QueueSize:   cfg.Email.QueueSize,
		SendTimeout: cfg.Email.SendTimeout,
	})

	sessionService := service.NewSessionService(sessionRepo, tracker, log, m, cfg.FrontendURL)
	emergencyService := service.NewEmergencyService(sessionRepo, userRepo, dispatcher, log, cfg.FrontendURL)
	signalService := service.NewSignalService(sessionRepo, tracker, roomBroker, log, m)
	userService := service.NewUserService(userRepo, log)

	// Sockets outlive their HTTP request, so they hang off their own context.
	socketCtx, closeSockets := context.WithCancel(context.Background())
	defer closeSockets()

	signalController := httpapi.NewSignalController(socketCtx, signalService, log, cfg.Signaling, cfg.HTTP.AllowedOrigins)
	router := httpapi.SetupRouter(
		httpapi.RouterConfig{AllowedOrigins: cfg.HTTP.AllowedOrigins, Metrics: reg},
		httpapi.NewSessionController(sessionService, emergencyService, log),
		signalController,
		httpapi.NewICEController(cfg.WebRTC),
		httpapi.NewUserController(userService, log),
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}

	go func() {
		log.Info("starting application",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("env", cfg.Env),
			slog.String("database", cfg.Database.Driver),
			slog.Bool("redis", cfg.Redis.Enabled),
			slog.String("email", cfg.Email.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", sl.Err(err))
	}
	closeSockets()
	signalController.Wait()
	dispatcher.Close()

	log.Info("application stopped")
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func setupRepositories(cfg config.DatabaseConfig) (repository.SessionRepository, repository.UserRepository, error) {
	switch cfg.Driver {
	case "memory":
		return repository.NewInMemorySessionRepository(), repository.NewInMemoryUserRepository(), nil
	case "postgres":
		db, err := connectDatabase(cfg)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresSessionRepository(db), repository.NewPostgresUserRepository(db), nil
	}
	return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&model.User{}, &model.Session{}); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// setupRealtime picks Redis-backed presence and fan-out when enabled, so
// several relay instances can share rooms. Otherwise everything stays in
// process.
func setupRealtime(ctx context.Context, cfg *config.Config, log *slog.Logger, m *metrics.Metrics) (presence.Tracker, broker.Broker, func(), error) {
	dropHook := broker.WithDropHook(func(string) { m.FrameDropped("slow_subscriber") })
	buffer := broker.WithBuffer(cfg.Signaling.SendBuffer)

	if !cfg.Redis.Enabled {
		return presence.NewMemory(cfg.Presence.TTL), broker.NewMemory(log, buffer, dropHook), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, nil, err
	}

	closeFn := func() {
		if err := rdb.Close(); err != nil {
			log.Warn("failed to close redis client", sl.Err(err))
		}
	}
	return presence.NewRedis(rdb, cfg.Presence.TTL), broker.NewRedis(rdb, log, buffer, dropHook), closeFn, nil
}

func setupMailer(cfg config.EmailConfig, log *slog.Logger) (notify.Mailer, error) {
	switch cfg.Backend {
	case "console", "":
		return notify.NewLogMailer(log.With(slog.String("component", "mailer"))), nil
	case "smtp":
		return notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			UseTLS:   cfg.UseTLS,
			Timeout:  cfg.SendTimeout,
		})
	}
	return nil, fmt.Errorf("unknown email backend %q", cfg.Backend)
}
