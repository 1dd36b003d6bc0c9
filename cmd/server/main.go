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

	"github.com/agrotrack/plotmanager/internal/domain"
	"github.com/agrotrack/plotmanager/internal/handler"
	"github.com/agrotrack/plotmanager/internal/infrastructure/logger"
	"github.com/agrotrack/plotmanager/internal/infrastructure/redis"
	"github.com/agrotrack/plotmanager/internal/observability/tracing"
	"github.com/agrotrack/plotmanager/internal/repository"
	"github.com/agrotrack/plotmanager/internal/repository/memory"
	"github.com/agrotrack/plotmanager/internal/security"
	"github.com/agrotrack/plotmanager/internal/security/audit"
	"github.com/agrotrack/plotmanager/internal/security/auth"
	"github.com/agrotrack/plotmanager/internal/service"
	"github.com/agrotrack/plotmanager/internal/worker"
	"github.com/agrotrack/plotmanager/pkg/config"
	"github.com/agrotrack/plotmanager/pkg/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "plotmanager: %v\n", err)
		os.Exit(1)
	}
}

type stores struct {
	users    domain.UserRepository
	profiles domain.ProfileRepository
	plots    domain.PlotRepository
	health   handler.Pinger
	close    func() error
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	log.Info("starting plotmanager server", slog.String("environment", cfg.Environment))
	if cfg.UsingDevSecret {
		log.Warn("JWT_SECRET not set, using the development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Tracing
	shutdownTracing, err := tracing.Init(ctx, log, tracing.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "plotmanager",
		Environment: cfg.Environment,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error("tracing shutdown error", slog.String("error", err.Error()))
		}
	}()

	// 4. Storage
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	// 5. Session revocation
	var revoked auth.RevocationList
	var redisHealth handler.Pinger
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		revoked = redis.NewRevocationList(redisClient)
		redisHealth = redisClient
	} else {
		log.Warn("REDIS_URL not set, logouts are only remembered by this process")
		memRevoked := auth.NewMemoryRevocationList()
		revoked = memRevoked
		go worker.NewSweeper("revocation-sweeper", memRevoked, log, time.Minute).Start(ctx)
	}

	// 6. Security components
	tokens, err := auth.NewTokenManager(auth.SessionConfig{
		Secret:      cfg.JWTSecret,
		Issuer:      cfg.JWTIssuer,
		Environment: cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("failed to create token manager: %w", err)
	}
	guard := security.NewGuard(log)
	auditLogger := audit.NewLogger(log)

	// 7. Services
	statuses := domain.NewStatusSet(cfg.PlotStatuses, cfg.PlotDefaultStatus)
	authService := service.NewAuthService(st.users, auth.NewBcryptHasher(auth.DefaultBcryptCost), tokens, revoked, auditLogger, log).
		WithOpenRoleRegistration(cfg.OpenRoleRegistration)
	userService := service.NewUserService(st.users, st.profiles, guard, auditLogger, log)
	plotService := service.NewPlotService(st.plots, guard, statuses, auditLogger, log)

	// 8. HTTP routes
	router := handler.NewRouter(handler.Deps{
		Auth:               authService,
		Users:              userService,
		Plots:              plotService,
		Identity:           service.NewIdentityResolver(tokens, st.users, revoked, log),
		Tokens:             tokens,
		Audit:              auditLogger,
		Store:              st.health,
		Redis:              redisHealth,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:             log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Bool("open_role_registration", cfg.OpenRoleRegistration),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	log.Info("server stopped")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using the in-memory store; data is lost on restart")
		mem := memory.NewStore()
		return &stores{
			users:    mem.Users(),
			profiles: mem.Profiles(),
			plots:    mem.Plots(),
			health:   mem,
			close:    func() error { return nil },
		}, nil
	}

	if cfg.MigrateOnStart {
		if err := migrateUp(cfg.DatabaseURL, log); err != nil {
			return nil, err
		}
	}

	pool, err := database.NewConnectionPool(ctx, &database.Config{
		URL:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := pool.GetDB()
	return &stores{
		users:    repository.NewPostgresUserRepository(db, log),
		profiles: repository.NewPostgresProfileRepository(db),
		plots:    repository.NewPostgresPlotRepository(db, log),
		health:   handler.PingFunc(pool.Health),
		close:    pool.Close,
	}, nil
}

func migrateUp(url string, log *slog.Logger) error {
	migrator, err := database.NewMigrator(url)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, _, err := migrator.Version()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	log.Info("migrations applied", slog.Uint64("version", uint64(version)))
	return nil
}
