package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/teamdesk/internal/app"
	"github.com/nhle/teamdesk/internal/credential"
	"github.com/nhle/teamdesk/internal/logging"
	"github.com/nhle/teamdesk/internal/model"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "teamdesk",
	Short:         "Team chat and task reminders in the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is the common case.
		_ = godotenv.Load()
	},
	RunE: runTUI,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "path to the config file")
	rootCmd.AddCommand(newRunCmd(), newWatchCmd(), newSetupCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Open the terminal feed",
		RunE:  runTUI,
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run headless and log notifications as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, token, err := loadSession()
			if err != nil {
				return err
			}

			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return withApp(cfg, token, logger, func(a *app.App) error {
				logger.Infow("watching", "server", cfg.Server.BaseURL, "user", cfg.User.ID)
				return a.Watch(cmd.Context())
			})
		},
	}
}

// runTUI keeps stdout for the terminal view, so logs go to a file next
// to the store.
func runTUI(cmd *cobra.Command, args []string) error {
	cfg, token, err := loadSession()
	if err != nil {
		return err
	}

	logPath := filepath.Join(filepath.Dir(cfg.Store.Path), "teamdesk.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	logger, err := logging.ToFile(cfg.Log, logPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return withApp(cfg, token, logger, func(a *app.App) error {
		return a.RunTUI(cmd.Context())
	})
}

func withApp(cfg *model.AppConfig, token string, logger *zap.SugaredLogger, fn func(*app.App) error) error {
	a, err := app.New(cfg, token, logger)
	if err != nil {
		return err
	}
	runErr := fn(a)
	if err := a.Close(); err != nil {
		logger.Warnw("shutdown", "error", err)
	}
	return runErr
}

func loadSession() (*model.AppConfig, string, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, "", err
	}
	if cfg.User.ID == 0 {
		return nil, "", errors.New("no user configured, run `teamdesk setup` first")
	}

	token, err := credential.Token()
	if errors.Is(err, credential.ErrNoToken) {
		return nil, "", fmt.Errorf("%w, run `teamdesk setup` or set %s", err, credential.TokenEnv)
	}
	if err != nil {
		return nil, "", err
	}
	return cfg, token, nil
}
