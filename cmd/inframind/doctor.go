package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/inframind/inframind/internal/appconfig"
	"github.com/inframind/inframind/internal/auth"
	"github.com/inframind/inframind/internal/gitops"
	"github.com/inframind/inframind/internal/runner"
	"github.com/inframind/inframind/internal/storage"
	"pkt.systems/pslog"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var dbTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run Infra Mind diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath)

			checkDir(logger, "state_dir", cfg.StateDir)

			// Doctor connects but never migrates; serve owns schema changes.
			dbCfg := cfg.Database
			dbCfg.Migrate = false
			dbCtx, cancel := context.WithTimeout(cmd.Context(), dbTimeout)
			db, err := storage.Open(dbCtx, dbCfg, logger)
			if err != nil {
				cancel()
				return fmt.Errorf("doctor database: %w", err)
			}
			err = db.Ping(dbCtx)
			cancel()
			db.Close()
			if err != nil {
				return fmt.Errorf("doctor database ping: %w", err)
			}
			logger.Info("doctor database ok", "max_conns", dbCfg.MaxConns)

			store, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, cfg.Auth.SeedUsers, auth.Policy{}, logger)
			if err != nil {
				return fmt.Errorf("doctor user store: %w", err)
			}
			users := store.LoadUsers()
			if len(users) == 0 {
				logger.Warn("doctor user store empty; run `inframind users add` to create an account")
			} else {
				logger.Info("doctor user store ok", "users", len(users))
			}

			tokens, err := gitops.NewTokenStore(cfg.GitOps.TokenStorePath, logger)
			if err != nil {
				return fmt.Errorf("doctor token store: %w", err)
			}
			providers, err := tokens.Providers()
			if err != nil {
				return fmt.Errorf("doctor token store: %w", err)
			}
			switch {
			case cfg.GitOps.ForceFallback:
				logger.Info("doctor gitops forced fallback; provider tokens unused")
			case len(providers) == 0:
				logger.Warn("doctor gitops has no provider tokens; mapped reads will serve fallback data")
			default:
				for _, provider := range providers {
					logger.Info("doctor gitops token ok", "provider", provider)
				}
			}

			catalog, err := gitops.NewCatalog()
			if err != nil {
				return fmt.Errorf("doctor template catalog: %w", err)
			}
			logger.Info("doctor template catalog ok", "templates", len(catalog.List("", "")))

			if err := checkRunner(cmd.Context(), logger, cfg.Runner); err != nil {
				return err
			}

			logger.Info("doctor complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().DurationVar(&dbTimeout, "db-timeout", 5*time.Second, "timeout for the database check")
	return cmd
}

func checkRunner(ctx context.Context, logger pslog.Logger, cfg appconfig.RunnerConfig) error {
	if strings.TrimSpace(cfg.HealthAddr) == "" {
		logger.Info("doctor runner health probe not configured", "mode", cfg.Mode)
		return nil
	}
	probe, err := runner.NewHealthProbe(cfg.HealthAddr)
	if err != nil {
		return fmt.Errorf("doctor runner probe: %w", err)
	}
	defer func() { _ = probe.Close() }()
	if err := probe.Check(ctx); err != nil {
		return fmt.Errorf("doctor runner health (%s): %w", cfg.HealthAddr, err)
	}
	logger.Info("doctor runner ok", "mode", cfg.Mode, "health_addr", cfg.HealthAddr)
	return nil
}

func checkDir(logger pslog.Logger, label, value string) {
	if strings.TrimSpace(value) == "" {
		logger.Warn("doctor path empty", "name", label)
		return
	}
	info, err := os.Stat(value)
	if err != nil {
		logger.Warn("doctor path missing; serve creates it on first start", "name", label, "path", value)
		return
	}
	if !info.IsDir() {
		logger.Warn("doctor path not a directory", "name", label, "path", value)
		return
	}
	logger.Info("doctor path ok", "name", label, "path", value)
}
