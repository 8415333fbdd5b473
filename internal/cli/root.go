// File: internal/cli/root.go

// Package cli implements the authcore maintenance commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ruther77/MassaCorp-sub001/internal/app"
	"github.com/ruther77/MassaCorp-sub001/internal/config"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/logger"
)

// cliApp carries what every command needs. Tests replace loadConfig and
// newApp to run commands against an in-memory store.
type cliApp struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string

	loadConfig func(path string) (*config.Config, error)
	newLogger  func(cfg *config.Config) (*zap.Logger, error)
	newApp     func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app.App, error)
}

func defaultCLIApp(stdout, stderr io.Writer) *cliApp {
	return &cliApp{
		stdout:     stdout,
		stderr:     stderr,
		loadConfig: config.LoadConfig,
		newLogger: func(cfg *config.Config) (*zap.Logger, error) {
			return logger.NewLogger(cfg.Logging, cfg.App.Environment)
		},
		newApp: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app.App, error) {
			return app.New(ctx, cfg, logger, app.Options{})
		},
	}
}

// bootstrap loads config and logger only.
func (a *cliApp) bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := a.loadConfig(a.configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := a.newLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// withApp builds the full container, runs fn and releases it.
func (a *cliApp) withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, log, err := a.bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	container, err := a.newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error("Failed to release resources", zap.Error(err))
		}
	}()
	return fn(container)
}

func newRootCmd(a *cliApp) *cobra.Command {
	root := &cobra.Command{
		Use:           "authcore",
		Short:         "Authentication and session security core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: config.<APP_ENV>.yaml, or CONFIG_PATH)")

	root.AddCommand(newWorkerCmd(a))
	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newAuditCmd(a))
	root.AddCommand(newLockoutCmd(a))
	root.AddCommand(newSessionsCmd(a))
	root.AddCommand(newKeysCmd(a))
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	a := defaultCLIApp(os.Stdout, os.Stderr)
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(a.stderr, "Error:", err)
		return 1
	}
	return 0
}
