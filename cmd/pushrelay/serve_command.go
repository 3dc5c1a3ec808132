package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/spf13/cobra"

	"github.com/tinywideclouds/go-pushrelay-service/pushrelay"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay HTTP server (and the Pub/Sub ingress when enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			cfg := ctx.config
			logger := ctx.logger

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var c cleanup
			defer c.run()

			registry, err := newRegistry(runCtx, cfg, logger, &c)
			if err != nil {
				logger.Error("Registry setup failed", "err", err)
				return err
			}
			dispatcher, err := newDispatcher(runCtx, cfg, logger)
			if err != nil {
				logger.Error("Dispatcher setup failed", "err", err)
				return err
			}

			var consumer messagepipeline.MessageConsumer
			if cfg.Ingress.Enabled {
				psClient, err := pubsub.NewClient(runCtx, cfg.ProjectID, googleOptions(cfg)...)
				if err != nil {
					logger.Error("PubSub client failed", "err", err)
					return err
				}
				c.add(func() { _ = psClient.Close() })
				consumer, err = newIngestionConsumer(runCtx, cfg, psClient, logger)
				if err != nil {
					return err
				}
			}

			service, err := pushrelay.New(cfg, consumer, registry, dispatcher, logger)
			if err != nil {
				logger.Error("Service creation failed", "err", err)
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting service...", "addr", cfg.ListenAddr)
				errCh <- service.Start(runCtx)
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Service stopped with error", "err", err)
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			case <-runCtx.Done():
				logger.Info("Shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return service.Shutdown(shutdownCtx)
		},
	}
}
