// Command pipelined runs the pipeline execution engine: it loads
// configuration, wires the domain services together, and serves the HTTP
// and WebSocket API until terminated.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/nodeforge/pipelinecore/internal/catalog"
	"github.com/nodeforge/pipelinecore/internal/config"
	"github.com/nodeforge/pipelinecore/internal/engine"
	"github.com/nodeforge/pipelinecore/internal/eventbus"
	"github.com/nodeforge/pipelinecore/internal/executor"
	"github.com/nodeforge/pipelinecore/internal/httpapi"
	"github.com/nodeforge/pipelinecore/internal/logging"
	"github.com/nodeforge/pipelinecore/internal/metrics"
	"github.com/nodeforge/pipelinecore/internal/registry"
	"github.com/nodeforge/pipelinecore/internal/storage"
	"github.com/nodeforge/pipelinecore/plugins/mockservo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: "stdout",
	})
	logger.WithField("env", cfg.Env).Info("starting pipelinecore")

	bus := eventbus.New(logger)

	pluginCatalog := catalog.New(cfg.PluginsDir, logger)
	mockservo.RegisterInto(pluginCatalog)
	if _, err := pluginCatalog.Discover(); err != nil {
		logger.Warnf("plugin discovery failed: %v", err)
	}

	deviceRegistry := registry.New(pluginCatalog, bus, logger)

	pipelineRepo, err := storage.NewPipelineJSONRepository(cfg.PipelinesDir, logger)
	if err != nil {
		log.Fatalf("failed to open pipeline storage: %v", err)
	}
	compositeRepo, err := storage.NewCompositeJSONRepository(cfg.CompositesDir, logger)
	if err != nil {
		log.Fatalf("failed to open composite storage: %v", err)
	}

	exec := executor.New(deviceRegistry, pluginCatalog, compositeRepo, bus, logger)
	eng := engine.New(exec, bus, logger)
	m := metrics.New()

	server := httpapi.NewServer(httpapi.Deps{
		Addr:           cfg.HTTPAddr,
		Engine:         eng,
		Registry:       deviceRegistry,
		Catalog:        pluginCatalog,
		Pipelines:      pipelineRepo,
		Composites:     compositeRepo,
		Bus:            bus,
		Metrics:        m,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Log:            logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		logger.Errorf("http server exited with error: %v", err)
	}

	disconnectCtx, cancel := context.WithTimeout(context.Background(), cfg.BusTimeout)
	defer cancel()
	deviceRegistry.DisconnectAll(disconnectCtx)

	logger.Info("pipelinecore stopped")
}
