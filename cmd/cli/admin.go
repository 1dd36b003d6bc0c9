package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/agrotrack/plotmanager/internal/infrastructure/logger"
	"github.com/agrotrack/plotmanager/internal/repository"
	"github.com/agrotrack/plotmanager/internal/security/audit"
	"github.com/agrotrack/plotmanager/internal/security/auth"
	"github.com/agrotrack/plotmanager/internal/service"
	"github.com/agrotrack/plotmanager/pkg/config"
	"github.com/agrotrack/plotmanager/pkg/database"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative tasks run directly against the database",
	}
	cmd.AddCommand(newAdminCreateCmd())
	return cmd
}

func newAdminCreateCmd() *cobra.Command {
	var in service.RegisterInput

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a principal with the admin role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			log := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)

			pool, err := database.NewConnectionPool(cmd.Context(), &database.Config{URL: cfg.DatabaseURL, MaxOpenConns: 2}, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			tokens, err := auth.NewTokenManager(auth.SessionConfig{
				Secret:      cfg.JWTSecret,
				Issuer:      cfg.JWTIssuer,
				Environment: cfg.Environment,
			})
			if err != nil {
				return err
			}

			svc := service.NewAuthService(
				repository.NewPostgresUserRepository(pool.GetDB(), log),
				auth.NewBcryptHasher(auth.DefaultBcryptCost),
				tokens,
				auth.NewMemoryRevocationList(),
				audit.NewLogger(log),
				log,
			)
			user, err := svc.CreateAdmin(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("failed to create admin: %w", err)
			}

			log.Info("admin created", slog.String("user_id", user.ID))
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Admin created: %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Username, "username", "", "username (3-20 characters)")
	f.StringVar(&in.Email, "email", "", "email address")
	f.StringVar(&in.Password, "password", "", "password (at least 6 characters)")
	f.StringVar(&in.FirstName, "first-name", "", "first name")
	f.StringVar(&in.LastName, "last-name", "", "last name")
	for _, name := range []string{"username", "email", "password", "first-name", "last-name"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
