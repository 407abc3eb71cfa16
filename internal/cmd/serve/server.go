package serve

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/metanexus/metadata-service/internal/config"
	"github.com/metanexus/metadata-service/internal/mapper"
	"github.com/metanexus/metadata-service/internal/metrics"
	"github.com/metanexus/metadata-service/internal/plugin/route/activity"
	"github.com/metanexus/metadata-service/internal/plugin/route/collections"
	"github.com/metanexus/metadata-service/internal/plugin/route/entities"
	"github.com/metanexus/metadata-service/internal/plugin/route/projects"
	routesystem "github.com/metanexus/metadata-service/internal/plugin/route/system"
	"github.com/metanexus/metadata-service/internal/plugin/route/templates"
	registrycache "github.com/metanexus/metadata-service/internal/registry/cache"
	registrymigrate "github.com/metanexus/metadata-service/internal/registry/migrate"
	registryroute "github.com/metanexus/metadata-service/internal/registry/route"
	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
	"github.com/metanexus/metadata-service/internal/service"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config     *config.Config
	Store      registrystore.DocumentStore
	Services   *service.Services
	Router     *gin.Engine
	httpServer *http.Server
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// StartServer initializes all subsystems and starts the HTTP server.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting metadata service",
		"port", cfg.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
	)

	metrics.Init()

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// Initialize the entity cache. A broken cache config degrades to uncached
	// reads rather than failing startup.
	var entityCache registrycache.EntityCache
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if c, err := cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
	} else {
		entityCache = c
		ctx = registrycache.WithEntityCacheContext(ctx, c)
	}

	// Initialize store
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	services := service.New(store, service.Options{
		Cache:       entityCache,
		LockTimeout: cfg.LockTimeout,
	})
	exporter := mapper.NewExporter(store, cfg.ResolvedExportDir())

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.AccessLog {
		router.Use(accessLogMiddleware())
	} else {
		router.Use(accessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(metrics.Middleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))

	// Mount route plugins; the management endpoints share the main port.
	loaders := append(registryroute.ManagementRouteLoaders(), registryroute.MainRouteLoaders()...)
	for _, loader := range loaders {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	// Mount API routes
	entities.MountRoutes(router, services, exporter)
	projects.MountRoutes(router, services)
	collections.MountRoutes(router, services)
	templates.MountRoutes(router, services)
	activity.MountRoutes(router, services)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "err", err)
		}
	}()

	log.Info("Server listening", "port", cfg.Port)

	routesystem.MarkReady()
	return &Server{
		Config:     cfg,
		Store:      store,
		Services:   services,
		Router:     router,
		httpServer: httpServer,
	}, nil
}

func accessLogMiddleware(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", duration,
			"clientIP", c.ClientIP(),
		)
	}
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isMultipartImport(c.Request) {
			c.Next()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}

// isMultipartImport reports whether the request is a spreadsheet import upload,
// which may legitimately exceed the JSON body limit.
func isMultipartImport(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	if req.Method != http.MethodPost || req.URL.Path != "/v1/entities/import" {
		return false
	}
	contentType := strings.ToLower(strings.TrimSpace(req.Header.Get("Content-Type")))
	return strings.HasPrefix(contentType, "multipart/form-data")
}
