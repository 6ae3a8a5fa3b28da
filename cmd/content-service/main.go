package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/umanagarjuna/go-content-cache/internal/content/cache"
	"github.com/umanagarjuna/go-content-cache/internal/content/config"
	"github.com/umanagarjuna/go-content-cache/internal/content/domain"
	"github.com/umanagarjuna/go-content-cache/internal/content/events"
	"github.com/umanagarjuna/go-content-cache/internal/content/handler"
	"github.com/umanagarjuna/go-content-cache/internal/content/jsonapi"
	"github.com/umanagarjuna/go-content-cache/internal/content/metrics"
	"github.com/umanagarjuna/go-content-cache/internal/content/service"
	"github.com/umanagarjuna/go-content-cache/pkg/validator"
)

const shutdownTimeout = 10 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:          "content-service",
	Short:        "Caching front for the JSON:API content backend.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: ./configs/config.yaml or ./config.yaml)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server.",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve()
			},
		},
		&cobra.Command{
			Use:   "resolve <path>",
			Short: "Print the canonical endpoint for a site path.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(func(ctx context.Context, a *app) error {
					endpoint, err := a.service.ResolveExternalEndpoint(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), endpoint)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "fetch <path>",
			Short: "Print the document behind a site path.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(func(ctx context.Context, a *app) error {
					document, err := a.service.GetContent(ctx, args[0])
					if err != nil {
						return err
					}
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(document)
				})
			},
		},
		&cobra.Command{
			Use:   "purge",
			Short: "Remove every cached route and payload.",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(func(ctx context.Context, a *app) error {
					if err := a.service.PurgeCache(ctx, "cli"); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Cache purged")
					return nil
				})
			},
		},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.PrometheusMetrics
	redis     *redis.Client
	publisher domain.EventPublisher
	service   *service.ContentService
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	metricsCollector := metrics.NewPrometheusMetrics()
	redisClient := initRedis(cfg.Redis)

	publisher, err := initPublisher(cfg.Kafka, logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	cacheLayer := cache.NewRedisCache(redisClient,
		cache.WithLogger(logger),
		cache.WithMetrics(metricsCollector),
		cache.WithCoalescing(cfg.Cache.Coalesce),
		cache.WithTimeout(cfg.Redis.Timeout),
	)

	client := jsonapi.NewClient(jsonapi.Config{
		BaseURL:  cfg.JSONAPI.BaseURL,
		Username: cfg.JSONAPI.Username,
		Password: cfg.JSONAPI.Password,
		Timeout:  cfg.JSONAPI.Timeout,
	}, jsonapi.WithLogger(logger), jsonapi.WithMetrics(metricsCollector))

	contentService := service.NewContentService(
		client,
		cacheLayer,
		validator.NewDefaultValidator(),
		publisher,
		logger,
		service.Config{TTL: cfg.Cache.TTL},
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   metricsCollector,
		redis:     redisClient,
		publisher: publisher,
		service:   contentService,
	}, nil
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("Failed to close event publisher", zap.Error(err))
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Warn("Failed to close redis client", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return fn(ctx, a)
}

func serve() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.redis.Ping(context.Background()).Err(); err != nil {
		a.logger.Warn("Redis is not reachable yet", zap.Error(err))
	}

	httpHandler := handler.NewHTTPHandler(a.service, a.logger, a.cfg.Purge.Token)
	router := setupHTTPRouter(httpHandler, a.metrics, a.cfg.Log.Development)

	srv := &http.Server{
		Addr:              a.cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", a.cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		a.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	a.logger.Info("Server stopped")
	return nil
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.Username = "default"
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.Host,
		}
	}
	return redis.NewClient(opts)
}

func initPublisher(cfg config.KafkaConfig, logger *zap.Logger) (domain.EventPublisher, error) {
	if len(cfg.Brokers) == 0 {
		logger.Info("No Kafka brokers configured, cache events are not published")
		return events.NoopPublisher{}, nil
	}

	publisher, err := events.NewEventPublisher(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}
	return publisher, nil
}

func setupHTTPRouter(handler *handler.HTTPHandler, m *metrics.PrometheusMetrics, development bool) *gin.Engine {
	if !development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/metrics", gin.WrapH(m.Handler()))
	handler.RegisterRoutes(router)

	return router
}
