// Command federator runs the polyglot query federator HTTP server: it
// wires the source registry, schema catalog, planner, execution engine,
// fusion engine, and query orchestrator behind a small Gin API.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/federator/polyglot-query-federator/ai"
	"github.com/federator/polyglot-query-federator/catalog"
	"github.com/federator/polyglot-query-federator/core"
	"github.com/federator/polyglot-query-federator/dispatch"
	"github.com/federator/polyglot-query-federator/execution"
	"github.com/federator/polyglot-query-federator/orchestrator"
	"github.com/federator/polyglot-query-federator/planner"
	"github.com/federator/polyglot-query-federator/registry"
	"github.com/federator/polyglot-query-federator/telemetry"
)

func main() {
	cfg, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}
	logger := cfg.Logger()

	reg := buildRegistry(cfg, logger)
	disp := dispatch.New(reg, logger).WithTimeout(cfg.Dispatch.Timeout)

	cat := buildCatalog(cfg, reg, disp, logger)

	llmClient := buildLLMClient(cfg, logger)
	plan := planner.New(cat, llmClient, logger)
	engine := execution.New(disp, logger)
	orch := orchestrator.New(plan, engine, logger)

	router := buildRouter(cat, orch, logger)
	traced := telemetry.TracingMiddlewareWithConfig(cfg.ServiceName, &telemetry.TracingMiddlewareConfig{
		ExcludedPaths: []string{"/healthz"},
	})(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: traced,
	}

	go func() {
		logger.Info("federator listening", map[string]interface{}{"port": cfg.HTTPPort})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	waitForShutdown(srv, logger)
}

func buildRegistry(cfg *core.Config, logger core.Logger) *registry.Registry {
	reg := registry.New()
	reg.SetLogger(logger)

	manifests := loadManifests(cfg, logger)
	for _, m := range manifests {
		if err := reg.Register(m); err != nil {
			logger.Error("failed to register manifest", map[string]interface{}{"source_id": m.ID, "error": err.Error()})
		}
	}

	// If no manifest was registered from the Redis bootstrap set or the
	// registry file, fall back to the canonical four-backend defaults.
	// EnsureDefaults does nothing when the registry already holds sources.
	if err := reg.EnsureDefaults(registry.DefaultManifests()); err != nil {
		logger.Error("failed to backfill default manifests", map[string]interface{}{"error": err.Error()})
	}
	return reg
}

func loadManifests(cfg *core.Config, logger core.Logger) []registry.Manifest {
	if cfg.Registry.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		manifests, err := registry.BootstrapFromRedis(ctx, cfg.Registry.RedisURL, cfg.Registry.BootstrapKey)
		if err != nil {
			logger.Error("failed to bootstrap registry from redis, falling back", map[string]interface{}{"error": err.Error()})
		} else {
			return manifests
		}
	}
	if cfg.RegistryFile != "" {
		manifests, err := registry.LoadManifestsFromYAML(cfg.RegistryFile)
		if err != nil {
			logger.Error("failed to load registry file, falling back to defaults", map[string]interface{}{"error": err.Error()})
		} else {
			return manifests
		}
	}
	return registry.DefaultManifests()
}

func buildCatalog(cfg *core.Config, reg *registry.Registry, disp *dispatch.Dispatcher, logger core.Logger) *catalog.Catalog {
	var validator catalog.SchemaValidator
	if v, err := catalog.NewJSONSchemaValidator(); err != nil {
		logger.Error("failed to compile source schema contract", map[string]interface{}{"error": err.Error()})
	} else {
		validator = v
	}

	var cache catalog.Cache
	if cfg.Catalog.RedisURL != "" {
		client, err := core.NewRedisClient(core.RedisClientOptions{
			RedisURL:  cfg.Catalog.RedisURL,
			DB:        core.RedisDBSchemaCache,
			Namespace: "catalog",
			Logger:    logger,
		})
		if err != nil {
			logger.Error("failed to connect schema cache redis, continuing without it", map[string]interface{}{"error": err.Error()})
		} else {
			cache = catalog.NewRedisCache(client, "schema-set", time.Hour, logger)
		}
	}

	cat := catalog.New(reg, disp, validator, cache)
	cat.SetLogger(logger)
	return cat
}

func buildLLMClient(cfg *core.Config, logger core.Logger) core.AIClient {
	if cfg.LLM.APIKey == "" {
		logger.Info("no LLM API key configured, planner will use heuristic fallback only", nil)
		return nil
	}
	client, err := ai.NewClient(cfg.LLM, logger)
	if err != nil {
		logger.Error("unknown LLM provider, planner will use heuristic fallback only", map[string]interface{}{"provider": cfg.LLM.Provider, "error": err.Error()})
		return nil
	}
	return client
}

func buildRouter(cat *catalog.Catalog, orch *orchestrator.Orchestrator, logger core.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.POST("/query", handleQuery(orch))
	v1.GET("/schema/search", handleSchemaSearch(cat))

	return router
}

type queryRequest struct {
	UserID  string                 `json:"user_id"`
	Query   string                 `json:"nl_query" binding:"required"`
	Context map[string]interface{} `json:"context"`
}

func handleQuery(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req queryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := orch.Handle(c.Request.Context(), req.UserID, req.Query, req.Context)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func handleSchemaSearch(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := c.Query("q")
		limit := 20
		if err := cat.EnsureLoaded(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"hits": cat.Search(q, limit)})
	}
}

func waitForShutdown(srv *http.Server, logger core.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down federator", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}
