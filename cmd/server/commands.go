package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/studypal-api/internal/config"
	"github.com/phrazzld/studypal-api/internal/platform/logger"
	"github.com/phrazzld/studypal-api/internal/platform/postgres"
	"github.com/phrazzld/studypal-api/internal/service/auth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "studypal-api",
		Short:         "StudyPal API server",
		Long:          `StudyPal API serves study features gated by subscription tier, trial window and per-feature trial allowances.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to config file (default: ./config.yaml or ./config/config.yaml)")

	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newTokenCommand(opts),
	)
	return cmd
}

// loadConfig reads configuration from path, or from the default locations
// when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return config.LoadFrom(v)
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			log, err := logger.Setup(cfg.Server)
			if err != nil {
				return fmt.Errorf("failed to set up logger: %w", err)
			}

			log.Info("server configuration loaded",
				"environment", cfg.Environment,
				"port", cfg.Server.Port,
				"store_backend", cfg.Store.Backend,
				"identity_source", cfg.Auth.IdentitySource,
				"enforcement_disabled", cfg.Entitlement.EnforcementDisabled)

			ctx := cmd.Context()
			app, err := newApplication(ctx, cfg, log)
			if err != nil {
				return err
			}

			if migrate {
				if app.db == nil {
					app.cleanup()
					return errors.New("--migrate requires the postgres store backend")
				}
				if err := postgres.Migrate(ctx, app.db, postgres.MigrateUp, log); err != nil {
					app.cleanup()
					return err
				}
			}

			return app.run(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply pending migrations before serving (postgres only)")
	return cmd
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Manage the postgres schema with the migrations embedded in the binary.`,
	}

	for _, sub := range []struct {
		command string
		short   string
	}{
		{postgres.MigrateUp, "Apply all pending migrations"},
		{postgres.MigrateDown, "Roll back the most recent migration"},
		{postgres.MigrateStatus, "Show migration status"},
		{postgres.MigrateReset, "Roll back all migrations"},
	} {
		command := sub.command
		cmd.AddCommand(&cobra.Command{
			Use:   command,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigration(cmd, opts, command)
			},
		})
	}
	return cmd
}

func runMigration(cmd *cobra.Command, opts *rootOptions, command string) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database.URL == "" {
		return config.ErrMissingDatabaseURL
	}
	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	ctx := cmd.Context()
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Error("failed to close database", "error", cerr)
		}
	}()

	log.Info("running migrations", slog.String("database", postgres.MaskURL(cfg.Database.URL)))
	return postgres.Migrate(ctx, db, command, log)
}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var lifetime time.Duration

	cmd := &cobra.Command{
		Use:   "token [account-id]",
		Short: "Issue a bearer token for local testing",
		Long: `Issue a signed access token using auth.jwt_secret. A random account id is
used when none is given. Production tokens come from the identity provider.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if lifetime > 0 {
				cfg.Auth.TokenLifetime = lifetime
			}

			jwtService, err := auth.NewJWTService(cfg.Auth, nil)
			if err != nil {
				return fmt.Errorf("cannot issue tokens: %w", err)
			}

			accountID := uuid.NewString()
			if len(args) == 1 {
				accountID = args[0]
			}

			token, err := jwtService.GenerateToken(cmd.Context(), accountID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().DurationVar(&lifetime, "lifetime", 0, "Token lifetime (default: auth.token_lifetime)")
	return cmd
}
