package main

import (
	"context"
	"fmt"
	"os"

	"farmacia/client/internal/app"
	"farmacia/client/internal/cli"
	"farmacia/client/internal/config"
	"farmacia/client/internal/logging"
	"farmacia/client/internal/state"
	"farmacia/client/internal/ui"
)

func main() {
	if err := cli.NewRootCmd(startApp).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func startApp(ctx context.Context, cfg *config.Config) error {
	logger, ok := logging.FromContext(ctx)
	if !ok {
		return fmt.Errorf("logger not found in context")
	}
	application, err := app.New(cfg, logger, func(core *app.Core, dispatch func(state.Event) error) app.View {
		return ui.NewManager(ui.Options{
			AppID:    "farmacia.client",
			AppName:  "Farmácia",
			Logger:   logger.With("ui"),
			Dispatch: dispatch,
			Notices:  core.Notices,
		})
	})
	if err != nil {
		return err
	}
	if err := application.Run(); err != nil {
		return err
	}
	logger.Infof("state machine launched, entering UI loop")
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			logger.Infof("shutdown requested")
			application.Stop()
		case <-application.Done():
			logger.Infof("application requested shutdown")
		}
		close(done)
	}()
	application.RunUILoop()
	logger.Infof("UI loop exited, stopping application")
	application.Stop()
	<-done
	return nil
}
