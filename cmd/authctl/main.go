// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command authctl runs operator tasks against the auth database.
//
// # Commands
//
//	authctl migrate up          Apply pending migrations.
//	authctl migrate down [n]    Roll back n migrations (default 1).
//	authctl migrate version     Print the applied schema version.
//	authctl purge               Delete expired sessions and codes once.
//	authctl genkey              Print a random secret for JWT_SECRET / JWT_REFRESH_SECRET.
//
// Everything except genkey reads the same environment as cmd/api.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/taibuivan/bazaar/internal/platform/clock"
	"github.com/taibuivan/bazaar/internal/platform/config"
	"github.com/taibuivan/bazaar/internal/platform/constants"
	"github.com/taibuivan/bazaar/internal/platform/mail"
	"github.com/taibuivan/bazaar/internal/platform/migration"
	pgstore "github.com/taibuivan/bazaar/internal/platform/postgres"
	"github.com/taibuivan/bazaar/internal/platform/sec"
	"github.com/taibuivan/bazaar/internal/users/auth"
)

// secretBytes is the entropy of a generated signing secret.
const secretBytes = 48

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Operator tooling for the Bazaar auth service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	logger := func() *slog.Logger {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).
			With(slog.String("app", constants.AppName))
	}

	cmd.AddCommand(migrateCmd(logger), purgeCmd(logger), genkeyCmd())
	return cmd
}

// # Migrations

func migrateCmd(logger func() *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	withRunner := func(fn func(runner *migration.Runner) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		runner, err := migration.NewRunner(cfg.DatabaseURL, cfg.MigrationPath, logger())
		if err != nil {
			return err
		}
		defer runner.Close()
		return fn(runner)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(runner *migration.Runner) error {
				return runner.Up()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				parsed, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid steps %q: %w", args[0], err)
				}
				steps = parsed
			}
			return withRunner(func(runner *migration.Runner) error {
				return runner.Down(steps)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(runner *migration.Runner) error {
				version, dirty, err := runner.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
				return nil
			})
		},
	})

	return cmd
}

// # Maintenance

func purgeCmd(logger func() *slog.Logger) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired sessions and verification codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			context, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pool, err := pgstore.NewPool(context, pgstore.PoolConfig{DSN: cfg.DatabaseURL, MaxConns: 2}, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			tokens, err := sec.NewTokenService(cfg.JWTSecret, cfg.JWTRefreshSecret, clock.System{})
			if err != nil {
				return err
			}

			service, err := auth.NewService(auth.Dependencies{
				Store:     auth.NewPostgresStore(pool),
				Tokens:    tokens,
				Hasher:    sec.NewPasswordHasher(cfg.BcryptCost),
				Mailer:    mail.NewLogMailer(log),
				AppOrigin: cfg.AppOrigin,
			})
			if err != nil {
				return err
			}

			result, err := auth.NewJanitor(service, cfg.CleanupInterval, log, nil).PurgeOnce(context)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sessions=%d codes=%d\n", result.Sessions, result.Codes)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Overall deadline for the purge")

	return cmd
}

// # Secrets

func genkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Print a random token signing secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := sec.GenerateSecureToken(secretBytes)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
}
