package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	_ "github.com/prodtrack/prodtrack-api/docs" // Swagger docs (generated)
	"github.com/prodtrack/prodtrack-api/internal/auth"
	"github.com/prodtrack/prodtrack-api/internal/config"
	"github.com/prodtrack/prodtrack-api/internal/database"
	"github.com/prodtrack/prodtrack-api/internal/email"
	httpServer "github.com/prodtrack/prodtrack-api/internal/http"
	"github.com/prodtrack/prodtrack-api/internal/logging"
	"github.com/prodtrack/prodtrack-api/internal/metrics"
	"github.com/prodtrack/prodtrack-api/internal/ratelimit"
	"github.com/prodtrack/prodtrack-api/internal/user"
)

// @title           ProdTrack API
// @version         1.0
// @description     Authentication and account recovery for the ProdTrack production tracking app.

// @contact.name   API Support
// @contact.email  support@prodtrack.example

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"store", cfg.Database.Driver,
		"token_format", cfg.Auth.TokenFormat,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	users, closeStore, err := initUserStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var rateLimiter auth.RateLimiter = ratelimit.Noop{}
	if cfg.RateLimit.Enabled {
		redisClient, err := initRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()

		rateLimiter = ratelimit.NewLimiter(redisClient, cfg.RateLimit.IPLimit, cfg.RateLimit.IPWindow, cfg.RateLimit.EmailCooldown)
	} else {
		logger.Warn("rate limiting disabled")
	}

	tokens, err := auth.NewTokenService(cfg.Auth.TokenFormat, cfg.Auth.TokenSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	var delivery auth.ResetDelivery
	if cfg.Email.SMTPHost != "" {
		delivery = email.NewService(cfg.Email, cfg.Auth.ResetTokenDuration)
	} else {
		logger.Warn("SMTP_HOST not set, reset links will be logged")
		delivery = email.NewLogSender(cfg.Email.FrontendURL)
	}

	m := metrics.New()

	authService := auth.NewService(
		users,
		tokens,
		auth.NewArgon2idHasher(auth.DefaultArgon2Params, 0),
		delivery,
		logger,
		m,
		cfg.Auth.AccessTokenDuration,
		cfg.Auth.ResetTokenDuration,
	)

	authHandler := auth.NewHandler(authService, rateLimiter)
	authMiddleware := auth.NewMiddleware(authService, m)

	router := httpServer.NewRouter(cfg, authHandler, authMiddleware, m, logger)
	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	janitor := auth.NewResetTokenJanitor(users, cfg.Auth.ResetCleanupInterval, logger)
	go janitor.Run(ctx)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		cancel()

		// Let in-flight reset emails finish before the process exits.
		authService.Wait()
	}

	return nil
}

// initUserStore opens the configured credential store. The returned func
// releases it.
func initUserStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (auth.UserStore, func(), error) {
	if cfg.Database.Driver == config.StoreDriverMemory {
		logger.Warn("using in-memory user store, data is lost on restart")
		return user.NewMemoryRepository(), func() {}, nil
	}

	if cfg.Database.AutoMigrate {
		if err := migrateUp(cfg.Database, logger); err != nil {
			return nil, nil, err
		}
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}
	return user.NewRepository(db), closeDB, nil
}

func migrateUp(cfg config.DatabaseConfig, logger *logging.Logger) error {
	migrator, err := database.NewMigrator(cfg.URL())
	if err != nil {
		return fmt.Errorf("failed to initialize migrator: %w", err)
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("failed to close migrator", "error", err)
		}
	}()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.Info("database schema up to date", "version", version, "dirty", dirty)
	return nil
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
