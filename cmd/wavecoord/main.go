// Package main is the unified entry point for wavecoord: a single binary
// running the coordination core, its optional HTTP/WebSocket/MCP surfaces,
// and graceful shutdown, grounded on the teacher's cmd/kandev/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/wavecoord/internal/api"
	"github.com/kandev/wavecoord/internal/common/config"
	"github.com/kandev/wavecoord/internal/common/logger"
	"github.com/kandev/wavecoord/internal/common/tracing"
	"github.com/kandev/wavecoord/internal/coordinator"
	"github.com/kandev/wavecoord/internal/eventbus"
	"github.com/kandev/wavecoord/internal/mcpsurface"
	"github.com/kandev/wavecoord/internal/orchestrator"
	"github.com/kandev/wavecoord/internal/provider"
	"github.com/kandev/wavecoord/internal/provider/anthropic"
	"github.com/kandev/wavecoord/internal/provider/openai"
	"github.com/kandev/wavecoord/internal/store"
	"github.com/kandev/wavecoord/internal/streaming"
	"github.com/kandev/wavecoord/internal/subscription"
	"github.com/kandev/wavecoord/internal/toolsurface"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting wavecoord")

	// Tracing is a no-op until OTEL_EXPORTER_OTLP_ENDPOINT is set; calling
	// Tracer here (rather than waiting for the first span) surfaces that
	// decision in the startup log instead of leaving it implicit.
	tracing.Tracer("wavecoord")
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		log.Info("tracing enabled", zap.String("otlp_endpoint", endpoint))
	} else {
		log.Info("tracing disabled (OTEL_EXPORTER_OTLP_ENDPOINT not set)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Event bus: in-memory by default, NATS when configured.
	var bus eventbus.EventBus
	if cfg.Events.Backend == "nats" && cfg.Events.NATSURL != "" {
		log.Info("connecting to NATS", zap.String("url", cfg.Events.NATSURL))
		natsBus, err := eventbus.NewNATSEventBus(cfg.Events.NATSURL, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		bus = natsBus
		defer natsBus.Close()
	} else {
		log.Info("using in-memory event bus")
		bus = eventbus.NewMemoryEventBus(cfg.Events.Buffer, log)
		defer bus.Close()
	}

	// 4. Subscription service (per-agent filtered event delivery).
	subs := subscription.New(bus, log)
	if err := subs.StartListening(ctx); err != nil {
		log.Fatal("failed to start subscription service", zap.Error(err))
	}

	// 5. Stores: in-memory by default, Postgres when configured.
	agentStore, taskStore, convoStore, closeStores := buildStores(ctx, cfg, log)
	defer closeStores()

	// 6. Tool surface and Coordinator.
	tools := toolsurface.New(agentStore, taskStore, convoStore, bus, subs, log)
	coord := coordinator.New(agentStore, taskStore, convoStore, tools, subs, coordinator.Config{
		MaxWaves:                 cfg.Coordinator.MaxWaves,
		ConversationTailMessages: cfg.Coordinator.ConversationTailMessages,
	}, log)

	// 7. Provider Router: wire every backend with a configured API key,
	// falling back to the deterministic mock when none are configured (so
	// the binary still runs standalone for local smoke tests). Each backend
	// is individually wrapped in a ResilientAgentProvider so a single
	// provider's failure never throws; the router then picks among the
	// resilient wrappers per role.
	router := buildRouter(cfg, convoStore, log)

	// 8. Streaming hub, fed by the orchestrator's phase callback.
	hub := streaming.NewHub(log)
	go hub.Run(ctx)

	// PhaseUpdate carries no workspace id (the Orchestrator drives one
	// workspace's loop per process in this wiring), so every update fans
	// out under a single default streaming channel.
	onPhase := func(update orchestrator.PhaseUpdate) {
		hub.BroadcastPhase("default", update)
	}
	orch, err := orchestrator.New(coord, router, cfg.Coordinator.MaxWaves, onPhase, log)
	if err != nil {
		log.Fatal("failed to construct orchestrator", zap.Error(err))
	}

	// 9. Optional MCP tool-surface exposure.
	var mcpServer *mcpsurface.Server
	if cfg.MCP.Enabled {
		mcpServer = mcpsurface.New(mcpsurface.Config{Port: cfg.MCP.Port}, tools, log)
		if err := mcpServer.Start(ctx); err != nil {
			log.Error("failed to start MCP server", zap.Error(err))
			mcpServer = nil
		} else {
			log.Info("MCP server listening", zap.Int("port", mcpServer.Port()))
		}
	}

	// 10. HTTP server: REST API + WebSocket streaming.
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())
	ginRouter.Use(corsMiddleware())

	apiHandler := api.NewHandler(orch, coord, tools, log)
	api.SetupRoutes(ginRouter.Group("/api/v1"), apiHandler)

	wsHandler := streaming.NewWSHandler(hub, log)
	streaming.SetupRoutes(ginRouter.Group("/api/v1"), wsHandler)

	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "wavecoord"})
	})

	port := cfg.Server.Port
	if port == 0 {
		port = 8090
	}
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      ginRouter,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", zap.Int("port", port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down wavecoord")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if mcpServer != nil {
		if err := mcpServer.Stop(shutdownCtx); err != nil {
			log.Error("MCP server shutdown error", zap.Error(err))
		}
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", zap.Error(err))
	}

	log.Info("wavecoord stopped")
}

// buildStores constructs the Agent/Task/Conversation stores per
// cfg.Database.Driver, defaulting to the in-memory trio.
func buildStores(ctx context.Context, cfg config.Config, log *logger.Logger) (store.AgentStore, store.TaskStore, store.ConversationStore, func()) {
	if cfg.Database.Driver != "postgres" {
		log.Info("using in-memory stores")
		return store.NewMemoryAgentStore(), store.NewMemoryTaskStore(), store.NewMemoryConversationStore(), func() {}
	}

	log.Info("connecting to postgres", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))
	pool, err := store.NewPostgresPool(ctx, store.PostgresConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	return store.NewPostgresAgentStore(pool), store.NewPostgresTaskStore(pool), store.NewPostgresConversationStore(pool), pool.Close
}

// buildRouter wires a CapabilityBasedRouter over every configured real
// backend, falling back to the deterministic mock provider when neither
// Anthropic nor OpenAI carries an API key (standalone/local-smoke-test mode).
// Every backend is wrapped in its own ResilientAgentProvider before joining
// the router.
func buildRouter(cfg config.Config, convos store.ConversationStore, log *logger.Logger) *provider.CapabilityBasedRouter {
	var providers []provider.Provider
	if cfg.Providers.Anthropic.APIKey != "" {
		log.Info("wiring anthropic provider", zap.String("model", cfg.Providers.Anthropic.Model))
		providers = append(providers, anthropic.New(anthropic.Config{
			APIKey:    cfg.Providers.Anthropic.APIKey,
			Model:     cfg.Providers.Anthropic.Model,
			MaxTokens: cfg.Providers.Anthropic.MaxTokens,
			BaseURL:   cfg.Providers.Anthropic.BaseURL,
		}))
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		log.Info("wiring openai provider", zap.String("model", cfg.Providers.OpenAI.Model))
		providers = append(providers, openai.New(openai.Config{
			APIKey:  cfg.Providers.OpenAI.APIKey,
			Model:   cfg.Providers.OpenAI.Model,
			BaseURL: cfg.Providers.OpenAI.BaseURL,
		}))
	}
	if len(providers) == 0 {
		log.Warn("no provider API keys configured; falling back to the mock provider")
		providers = append(providers, provider.NewMockProvider(provider.Capabilities{
			Name: "mock", SupportsToolCalling: true, SupportsFileEditing: true, SupportsTerminal: true,
		}, nil))
	}

	resilient := make([]provider.Provider, len(providers))
	for i, p := range providers {
		resilient[i] = provider.NewResilientAgentProvider(p, convos, cfg.Coordinator.ProviderTimeout, log)
	}
	return provider.NewCapabilityBasedRouter(resilient...)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Protocol")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
