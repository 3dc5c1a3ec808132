// Package pushrelay assembles the relay: HTTP routes on the base server and,
// when a consumer is supplied, the Pub/Sub ingress pipeline.
package pushrelay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-pushrelay-service/internal/api"
	"github.com/tinywideclouds/go-pushrelay-service/internal/pipeline"
	"github.com/tinywideclouds/go-pushrelay-service/internal/relay"
	"github.com/tinywideclouds/go-pushrelay-service/pkg/dispatch"
	"github.com/tinywideclouds/go-pushrelay-service/pushrelay/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[pipeline.PushMessage]
	logger          *slog.Logger
}

// New assembles the service. consumer may be nil, in which case only the
// HTTP ingress runs.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	registry dispatch.Registry,
	dispatcher dispatch.Dispatcher,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Core
	relayService := relay.NewService(registry, dispatcher, logger)

	// 3. Pipeline (optional)
	var streamingService *messagepipeline.StreamingService[pipeline.PushMessage]
	if consumer != nil {
		var err error
		streamingService, err = messagepipeline.NewStreamingService(
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			consumer,
			pipeline.PushMessageTransformer,
			pipeline.NewProcessor(relayService, logger),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 4. API
	relayAPI := api.NewRelayAPI(relayService, logger)
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)
	registerRoutes(baseServer.Mux(), relayAPI, corsMiddleware, logger)

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func registerRoutes(mux *http.ServeMux, relayAPI *api.RelayAPI, cors func(http.Handler) http.Handler, logger *slog.Logger) {
	requestID := api.RequestID(logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, cors(requestID(handlerFunc)))
	}

	handle("POST /register", relayAPI.Register)
	handle("POST /pushmessage", relayAPI.PushMessage)

	// CORS preflight; headers are written by the middleware.
	preflight := cors(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	mux.Handle("OPTIONS /register", preflight)
	mux.Handle("OPTIONS /pushmessage", preflight)
}

func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Pub/Sub ingress pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
