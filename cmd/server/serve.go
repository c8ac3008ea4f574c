package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tariel-x/lookbook/internal/catalog"
	"github.com/tariel-x/lookbook/internal/config"
	"github.com/tariel-x/lookbook/internal/database"
	"github.com/tariel-x/lookbook/internal/events"
	"github.com/tariel-x/lookbook/internal/handlers"
	"github.com/tariel-x/lookbook/internal/media"
	"github.com/tariel-x/lookbook/internal/metrics"
	"github.com/tariel-x/lookbook/internal/push"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	var (
		httpOnly   bool
		selfSigned bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http-only") {
				cfg.HTTPOnly = httpOnly
			}
			return serve(cmd.Context(), cfg, selfSigned)
		},
	}
	cmd.Flags().BoolVar(&httpOnly, "http-only", true, "serve plain HTTP (disable Let's Encrypt)")
	cmd.Flags().BoolVar(&selfSigned, "self-signed", false, "serve HTTPS with a generated self-signed certificate")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, selfSigned bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info(fmt.Sprintf("Lookbook Server v%s", AppVersion))

	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH is not set; admin login is disabled")
	}

	db, err := database.Initialize(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNew(reg)

	store, err := newObjectStore(cfg, logger)
	if err != nil {
		return err
	}

	hub := events.NewHub(logger)
	products, err := catalog.NewManager(
		catalog.NewGormRepository(db),
		media.NewSynchronizer(store, logger, m),
		catalog.Options{Logger: logger, Events: hub, Metrics: m, CacheSize: cfg.ProductCacheSize},
	)
	if err != nil {
		return err
	}

	registry := push.NewRegistry(db)
	recorder := push.NewRecorder(db)
	dispatcher := push.NewDispatcher(registry, push.NewWebPushTransport(cfg.VAPIDKeys, cfg.Push), recorder, push.DispatcherOptions{
		DeadStatuses: cfg.Push.DeadStatuses,
		Concurrency:  cfg.Push.Concurrency,
		DefaultIcon:  cfg.Push.DefaultIcon,
		DefaultBadge: cfg.Push.DefaultBadge,
		DefaultTag:   cfg.Push.DefaultTag,
		Logger:       logger,
		Events:       hub,
		Metrics:      m,
	})

	h := handlers.New(cfg, handlers.Services{
		DB:         db,
		Products:   products,
		Registry:   registry,
		Dispatcher: dispatcher,
		Recorder:   recorder,
		Hub:        hub,
		Logger:     logger,
	}, websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     allowedOrigin(cfg),
	})

	router := setupRouter(h, cfg, logger, reg)
	return startServer(ctx, router, cfg, selfSigned, logger)
}

func newObjectStore(cfg *config.Config, logger *slog.Logger) (media.ObjectStore, error) {
	if !cfg.Cloudinary.Enabled() {
		logger.Warn("cloudinary credentials missing; media cleanup will be recorded as failed")
		return media.NoopStore{}, nil
	}
	store, err := media.NewCloudinaryStore(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret)
	if err != nil {
		return nil, err
	}
	logger.Info("cloudinary object store enabled", "cloud_name", cfg.Cloudinary.CloudName)
	return store, nil
}

func setupRouter(h *handlers.Handlers, cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), slogGinLogger(logger), cors.New(corsConfig(cfg)))

	h.Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	return router
}

// corsConfig allows the configured frontend, or any origin when none is set.
// Admin auth uses bearer tokens, so credentials are only enabled for a fixed
// origin.
func corsConfig(cfg *config.Config) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "Cache-Control", "X-Requested-With", requestIDHeader}
	c.ExposeHeaders = []string{requestIDHeader}
	c.AllowWebSockets = true
	if cfg.FrontendURI != "" {
		c.AllowOrigins = []string{cfg.FrontendURI}
		c.AllowCredentials = true
	} else {
		c.AllowAllOrigins = true
	}
	return c
}

func allowedOrigin(cfg *config.Config) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || cfg.FrontendURI == "" {
			return true
		}
		return origin == cfg.FrontendURI
	}
}
