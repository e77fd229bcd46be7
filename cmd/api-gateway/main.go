package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/farhanpavel/cognit-api/api/swagger"
	"github.com/farhanpavel/cognit-api/internal/handler"
	internalmiddleware "github.com/farhanpavel/cognit-api/internal/middleware"
	"github.com/farhanpavel/cognit-api/internal/models"
	"github.com/farhanpavel/cognit-api/internal/notification"
	"github.com/farhanpavel/cognit-api/internal/notification/transport"
	"github.com/farhanpavel/cognit-api/internal/repository"
	"github.com/farhanpavel/cognit-api/internal/repository/memstore"
	"github.com/farhanpavel/cognit-api/internal/service"
	"github.com/farhanpavel/cognit-api/pkg/cache"
	"github.com/farhanpavel/cognit-api/pkg/config"
	"github.com/farhanpavel/cognit-api/pkg/database"
	"github.com/farhanpavel/cognit-api/pkg/logger"
	corsmiddleware "github.com/farhanpavel/cognit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/farhanpavel/cognit-api/pkg/middleware/requestid"
)

// @title Cognit Blood Donation API
// @version 1.0.0
// @description Blood donation requests with proximity-targeted donor notifications
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()

	store, closeStore, err := openStore(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to open request store", zap.Error(err))
	}
	defer closeStore()

	var redisClient *redis.Client
	if cfg.Cache.Enabled || cfg.Dispatch.Transport == config.TransportRedis {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redisClient.Close() //nolint:errcheck
	}

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "cognit", logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	broker := transport.NewBroker(cfg.Dispatch.BufferSize)
	publisher, closeTransport, err := openTransport(cfg, redisClient, logr)
	if err != nil {
		logr.Fatal("failed to open push transport", zap.Error(err))
	}
	defer closeTransport()

	channels := notification.Channels{
		Broadcast:    cfg.Dispatch.BroadcastChannel,
		StatusPrefix: cfg.Dispatch.StatusChannelPrefix,
		DeepLinkBase: cfg.Dispatch.DeepLinkBase,
	}
	dispatcher := notification.NewDispatcher(transport.Fanout{broker, publisher}, metricsSvc, logr, notification.DispatcherConfig{
		Channels:       channels,
		BufferSize:     cfg.Dispatch.BufferSize,
		Workers:        cfg.Dispatch.Workers,
		MaxRetries:     cfg.Dispatch.MaxRetries,
		RetryDelay:     cfg.Dispatch.RetryDelay,
		PublishTimeout: cfg.Dispatch.PublishTimeout,
	})

	lifecycleSvc := service.NewLifecycleService(store, dispatcher, cacheSvc, metricsSvc, validator.New(), logr, service.LifecycleConfig{
		ProximityLimitKm:  cfg.Donation.ProximityLimitKm,
		DefaultSessionTTL: cfg.Donation.DefaultSessionTTL,
		LockStripes:       cfg.Donation.LockStripes,
	})
	exportSvc := service.NewExportService(lifecycleSvc, logr)
	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	requestHandler := handler.NewDonationRequestHandler(lifecycleSvc, exportSvc)
	responseHandler := handler.NewDonorResponseHandler(lifecycleSvc)
	streamHandler := handler.NewStreamHandler(lifecycleSvc, broker, dispatcher.Channels().Status, cfg.CORS.AllowedOrigins, logr)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/summary", internalmiddleware.JWT(tokenSvc), internalmiddleware.RBAC(models.RoleAdmin), metricsHandler.Summary)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(tokenSvc))

	requests := secured.Group("/blood-requests")
	requests.POST("", internalmiddleware.RBAC(models.RolePatient, models.RoleAdmin), requestHandler.Create)
	requests.GET("", requestHandler.List)
	requests.GET("/:id", requestHandler.Get)
	requests.POST("/:id/extend", requestHandler.Extend)
	requests.POST("/:id/close", requestHandler.Close)
	requests.POST("/:id/accept", internalmiddleware.RBAC(models.RoleDonor), requestHandler.Accept)
	requests.GET("/:id/responses", requestHandler.Responses)
	requests.POST("/:id/donors/:donorId/confirm", requestHandler.ConfirmDonor)
	requests.GET("/:id/audit", requestHandler.Audit)
	requests.GET("/:id/stream", streamHandler.Stream)

	responses := secured.Group("/donor-responses")
	responses.POST("/:id/reached", internalmiddleware.RBAC(models.RoleDonor), responseHandler.Reached)
	responses.POST("/:id/confirm", responseHandler.Confirm)
	responses.POST("/:id/dismiss", responseHandler.Dismiss)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Store.Driver, "transport", cfg.Dispatch.Transport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
	logr.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logr *zap.Logger) (service.DonationStore, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		logr.Warn("using in-memory request store; data is lost on restart")
		return memstore.New(), func() {}, nil
	case config.StoreDriverPostgres, "":
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresStore(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// openTransport returns the external push publisher. The in-process broker is
// always fanned out alongside it so status streams on this node stay live.
func openTransport(cfg *config.Config, redisClient *redis.Client, logr *zap.Logger) (transport.Publisher, func(), error) {
	switch cfg.Dispatch.Transport {
	case config.TransportMemory, "":
		return nil, func() {}, nil
	case config.TransportNATS:
		nc, err := transport.DialNATS(cfg.NATS.URL, cfg.NATS.Name, logr)
		if err != nil {
			return nil, nil, err
		}
		return nc, func() { _ = nc.Close() }, nil
	case config.TransportRedis:
		return transport.NewRedis(redisClient, logr), func() {}, nil
	case config.TransportKafka:
		k := transport.NewKafka(cfg.Kafka.Brokers, logr)
		return k, func() { _ = k.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown dispatch transport %q", cfg.Dispatch.Transport)
	}
}
