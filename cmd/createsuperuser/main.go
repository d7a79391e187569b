package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/persistence"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/service"
)

// createsuperuser provisions an administrator directly against Postgres.
// The password comes from -password or CREATESUPERUSER_PASSWORD.
func main() {
	var (
		email     = flag.String("email", "", "superuser email (required)")
		password  = flag.String("password", "", "superuser password; falls back to CREATESUPERUSER_PASSWORD")
		firstName = flag.String("first-name", "", "first name")
		lastName  = flag.String("last-name", "", "last name")
		phone     = flag.String("phone", "", "phone number")
	)
	flag.Parse()

	if *password == "" {
		*password = os.Getenv("CREATESUPERUSER_PASSWORD")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Name)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger, *email, *password, service.ExtraFields{
		FirstName:   *firstName,
		LastName:    *lastName,
		PhoneNumber: *phone,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "createsuperuser:", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger, email, password string, fields service.ExtraFields) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("POSTGRES_DSN must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			return err
		}
	}

	if password == "" {
		logger.Warn("no password given; the account cannot log in until a password reset")
	}
	factory := service.NewAccountFactory(
		repository.NewAccountRepository(pg.PoolHandle()),
		auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		nil,
		logger,
	)
	account, err := factory.CreateSuperuser(ctx, email, password, fields)
	if err != nil {
		return err
	}

	fmt.Printf("superuser %s created (id %s)\n", account, account.ID)
	return nil
}
