// seed inserts a development user with a local password and roles.
// Idempotent: an existing user with the seed email is left unchanged.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"

	"refresh-session-service/internal/config"
	"refresh-session-service/internal/identity"
	"refresh-session-service/internal/logging"
	"refresh-session-service/internal/security"
	"refresh-session-service/internal/store"
)

// defaultSeedPassword is used when SEED_PASSWORD is unset. Development only.
const defaultSeedPassword = "Dev-Password-123"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if cfg.IsProduction() {
		return errors.New("refusing to seed a development user when APP_ENV=production")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	stores, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer stores.Close()

	password := cfg.SeedPassword
	if password == "" {
		password = defaultSeedPassword
	}
	dir := identity.NewDirectory(stores.Users, stores.Identities, security.NewHasher(cfg.BcryptCost))
	u, created, err := dir.EnsureUser(ctx, cfg.SeedEmail, cfg.SeedName, password, cfg.SeedRoleList())
	if err != nil {
		return fmt.Errorf("seed user: %w", err)
	}
	if !created {
		logger.Info().Str("user_id", u.ID).Str("email", u.Email).Msg("seed already applied, skipping")
		return nil
	}
	logger.Info().Str("user_id", u.ID).Str("email", u.Email).Strs("roles", cfg.SeedRoleList()).Msg("seed user created")
	return nil
}
