package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	_ "github.com/redmonkez12/printcost-auth/docs" // Swagger docs
	"github.com/redmonkez12/printcost-auth/internal/auth"
	"github.com/redmonkez12/printcost-auth/internal/config"
	"github.com/redmonkez12/printcost-auth/internal/database"
	"github.com/redmonkez12/printcost-auth/internal/email"
	httpServer "github.com/redmonkez12/printcost-auth/internal/http"
	"github.com/redmonkez12/printcost-auth/internal/logging"
	"github.com/redmonkez12/printcost-auth/internal/metrics"
	"github.com/redmonkez12/printcost-auth/internal/ratelimit"
	"github.com/redmonkez12/printcost-auth/internal/user"
)

// @title           PrintCost Auth API
// @version         1.0
// @description     Authentication service for the 3D print cost calculator: signup, email verification, sessions and password reset.

// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

// stores groups the credential store backends selected by configuration.
type stores struct {
	users         auth.UserRepository
	verifications auth.OneTimeTokenRepository
	resets        auth.OneTimeTokenRepository
	sessions      auth.SessionRepository
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"token_format", cfg.Auth.TokenFormat,
	)

	ctx := context.Background()

	// Initialize Redis connection only when something uses it
	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient, err = initRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()
	}

	st, closeStores, err := initStores(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	m := metrics.NewDefault()

	tokenService, err := initTokenService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	emailService, err := email.NewService(initEmailSender(cfg.Email, logger), m, logger, email.Options{
		AppURL:          cfg.Email.PublicAppURL,
		SendTimeout:     cfg.Email.SendTimeout,
		VerificationTTL: cfg.Auth.EmailVerificationTTL,
		ResetTTL:        cfg.Auth.PasswordResetTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize email service: %w", err)
	}

	hasher, err := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	// Initialize auth service
	authService := auth.NewService(
		st.users,
		st.verifications,
		st.resets,
		st.sessions,
		tokenService,
		emailService,
		hasher,
		logger,
		auth.TokenTTLs{
			Session:           cfg.Auth.SessionTTL,
			EmailVerification: cfg.Auth.EmailVerificationTTL,
			PasswordReset:     cfg.Auth.PasswordResetTTL,
		},
	)

	// Initialize rate limiter
	var limiter ratelimit.Limiter
	if cfg.RateLimit.Backend == config.RateLimitBackendRedis {
		limiter = ratelimit.NewRedis(redisClient, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, cfg.RateLimit.RedisPrefix)
	} else {
		limiter = ratelimit.NewMemory(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, nil)
	}

	// Initialize router
	router := httpServer.NewRouter(
		cfg,
		auth.NewHandler(authService, m, logger),
		auth.NewMiddleware(authService),
		limiter,
		m,
		logger,
	)

	// Initialize HTTP server
	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// initStores picks the credential store backends. The returned func closes
// whatever was opened.
func initStores(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *logging.Logger) (*stores, func(), error) {
	st := &stores{}
	closeFn := func() {}

	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		st.users = user.NewMemoryRepository()
		st.verifications = auth.NewMemoryTokenRepository()
		st.resets = auth.NewMemoryTokenRepository()
		st.sessions = auth.NewMemorySessionRepository()

	default:
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		closeFn = func() { db.Close() }

		if cfg.Database.AutoMigrate {
			if err := database.Migrate(ctx, db.DB); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
			}
			logger.Info("database migrations applied")
		}

		st.users = user.NewRepository(db)
		st.verifications = auth.NewVerificationTokenRepository(db)
		st.resets = auth.NewPasswordResetTokenRepository(db)
		st.sessions = auth.NewSessionStore(db)
	}

	if cfg.Store.SessionStore == config.SessionStoreRedis {
		st.sessions = auth.NewRedisSessionRepository(redisClient)
	}

	return st, closeFn, nil
}

func initTokenService(cfg config.AuthConfig) (auth.TokenService, error) {
	if cfg.TokenFormat == config.TokenFormatPaseto {
		return auth.NewPasetoService(cfg.SessionSecret)
	}
	return auth.NewJWTService(cfg.SessionSecret)
}

// initEmailSender prefers the HTTP provider, then SMTP, then the no-op sender.
func initEmailSender(cfg config.EmailConfig, logger *logging.Logger) email.Sender {
	switch {
	case cfg.ProviderKey != "":
		return email.NewHTTPSender(&http.Client{Timeout: cfg.SendTimeout}, cfg.ProviderURL, cfg.ProviderKey, cfg.From)
	case cfg.SMTPHost != "":
		return email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.From)
	default:
		logger.Warn("no email provider configured, emails will not be sent")
		return email.NewNoopSender(logger)
	}
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
