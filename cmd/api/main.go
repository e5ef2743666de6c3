package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"projectflow/internal/config"
	"projectflow/internal/db"
	"projectflow/internal/email"
	apihttp "projectflow/internal/http"
	"projectflow/internal/repository"
	"projectflow/internal/service"
)

func main() {
	envFile := flag.String("env-file", ".env", "archivo .env a cargar antes de leer el entorno")
	migrateOnly := flag.Bool("migrate-only", false, "aplica migraciones y termina")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: loading %s: %v", *envFile, err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if cfg.DBAutoMigrate || *migrateOnly {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		logger.Info("migrations applied")
	}
	if *migrateOnly {
		return
	}

	var (
		sessions      service.SessionRegistry
		loginThrottle service.Throttle
		resetThrottle service.Throttle
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		registry := service.NewRedisSessionRegistry(redisClient)
		if err := registry.Ping(ctx); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		sessions = registry
		// Si Redis cae en caliente los throttles dejan pasar (fail-open); el registry responde 500.
		loginThrottle = service.NewRedisThrottle(redisClient, service.LoginThrottleRule)
		resetThrottle = service.NewRedisThrottle(redisClient, service.ResetRequestThrottleRule)
	} else {
		logger.Warn("REDIS_ADDR not set, using in-memory sessions and throttling (single instance only)")
		sessions = service.NewMemorySessionRegistry(nil)
		loginThrottle = service.NewMemoryThrottle(service.LoginThrottleRule, nil)
		resetThrottle = service.NewMemoryThrottle(service.ResetRequestThrottleRule, nil)
	}

	var mailer email.Sender = email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(email.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUser,
			Password:    cfg.SMTPPass,
			From:        cfg.SMTPFrom,
			FromName:    cfg.SMTPFromName,
			UseTLS:      cfg.SMTPUseTLS,
			FrontendURL: cfg.FrontendURL,
		})
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			mailer = sender
		}
	}

	tokens, err := service.NewJWTService(service.JWTConfig{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
	})
	if err != nil {
		logger.Fatal("jwt service", zap.Error(err))
	}

	policy := service.DefaultAuthPolicy()
	policy.RevokeSessionsOnCredentialChange = cfg.RevokeSessionsOnCredentialChange
	authSvc := service.NewAuthService(logger, repository.NewPgUserRepository(pool), sessions, tokens, mailer,
		service.WithPolicy(policy),
		service.WithHasher(service.BcryptHasher{Cost: cfg.BcryptCost}),
	)

	router := apihttp.NewRouter(logger, apihttp.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		TrustedProxies: cfg.TrustedProxies,
		Authn:          authSvc,
		LoginThrottle:  loginThrottle,
		ResetThrottle:  resetThrottle,
	}, apihttp.NewAuthHandler(logger, authSvc), apihttp.NewUserHandler(logger, authSvc))

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}
	logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("prefix", cfg.APIPrefix))
	if err := runServer(ctx, logger, server, ln, cfg.ShutdownTimeout, authSvc.FlushMail); err != nil {
		logger.Error("server error", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}

// runServer atiende ln hasta que ctx termina. No retorna hasta que Shutdown
// drena los requests en vuelo y drain termina, asi los Close diferidos de
// main corren con el servidor ya quieto.
func runServer(
	ctx context.Context,
	logger *zap.Logger,
	server *http.Server,
	ln net.Listener,
	timeout time.Duration,
	drain func(context.Context) error,
) error {
	idleConnsClosed := make(chan struct{})
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()
	go func() {
		defer close(idleConnsClosed)
		<-srvCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", zap.Error(err))
		}
		if drain != nil {
			if err := drain(shutdownCtx); err != nil {
				logger.Warn("pending work dropped on shutdown", zap.Error(err))
			}
		}
	}()

	err := server.Serve(ln)
	srvCancel()
	<-idleConnsClosed
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level
	return zcfg.Build()
}
