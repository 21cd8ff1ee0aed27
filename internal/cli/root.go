// Package cli holds the cobra command tree. The desktop run is injected so
// the headless commands build without the widget toolkit.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"farmacia/client/internal/config"
	"farmacia/client/internal/logging"
)

// DesktopFunc runs the windowed client until it exits. ctx carries the logger.
type DesktopFunc func(ctx context.Context, cfg *config.Config) error

// NewRootCmd builds "farmacia" and its subcommands.
func NewRootCmd(desktop DesktopFunc) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "farmacia",
		Short:         "Cliente desktop da farmácia",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if desktop == nil {
				return errors.New("desktop mode is not available in this build")
			}
			ctx, cfg, cleanup, err := Setup(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer cleanup()
			return desktop(ctx, cfg)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: next to the executable)")
	root.AddCommand(loginCmd(&configPath))
	root.AddCommand(logoutCmd(&configPath))
	root.AddCommand(whoamiCmd(&configPath))
	root.AddCommand(listCmd(&configPath))
	root.AddCommand(prescribeCmd(&configPath))
	return root
}

// Setup loads the config and opens the log file. The returned context
// carries the logger and is cancelled on SIGINT/SIGTERM.
func Setup(parent context.Context, configPath string) (context.Context, *config.Config, func(), error) {
	appDir, err := config.DetectAppDir()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("determine app directory: %w", err)
	}
	if configPath == "" {
		configPath = config.DefaultPath(appDir)
	}
	cfg, err := config.Load(configPath, appDir)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.New(cfg.LogFile, logging.ParseLevel(cfg.LogLevel))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(logging.WithContext(parent, logger), os.Interrupt, syscall.SIGTERM)
	logger.Infof("farmacia client starting (config: %s, api: %s)", configPath, cfg.APIURL)
	cleanup := func() {
		stop()
		_ = logger.Close()
	}
	return ctx, cfg, cleanup, nil
}
