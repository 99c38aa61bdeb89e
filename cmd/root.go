package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	service "github.com/okian/lutcurate/internal/app"
	"github.com/okian/lutcurate/internal/config"
	"github.com/okian/lutcurate/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

// cli carries state shared by every subcommand once the root pre-run has
// loaded configuration.
type cli struct {
	configPath string
	envFile    string

	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "lutcurate",
		Short:        "Catalog, analyze, cluster and curate 3D color lookup tables",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (sets LUTC_CONFIG)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "dotenv file applied before the environment is read")

	root.AddCommand(
		newServeCmd(c),
		newIngestCmd(c),
		newAnalyzeCmd(c),
		newClusterCmd(c),
		newMembersCmd(c),
		newDistillCmd(c),
		newSnapshotCmd(c),
	)
	return root
}

// load reads configuration and initializes logging.
func (c *cli) load(ctx context.Context) error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", c.envFile, err)
		}
	}
	if c.configPath != "" {
		if err := os.Setenv(config.EnvPrefix+"CONFIG", c.configPath); err != nil {
			return err
		}
	}

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Command output owns stdout.
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(os.Stderr)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	c.log = logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}

// withService starts a service for the duration of fn.
func (c *cli) withService(ctx context.Context, fn func(*service.Service) error, opts ...service.Option) error {
	base := []service.Option{service.WithConfig(c.cfg), service.WithLogger(c.log)}
	svc := service.New(append(base, opts...)...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			c.log.Error(ctx, "service stop failed", logger.Error(err))
		}
	}()
	return fn(svc)
}
