// ValuationService 主程序
// 功能：合约组合子估值服务，提供任意合约树的定价、Greeks 计算与组合估值
// 架构：基于 DDD + HTTP + Kafka（Outbox 异步投递）
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

	"github.com/wyfcoding/contractpricing/internal/valuation/application"
	"github.com/wyfcoding/contractpricing/internal/valuation/domain"
	infracache "github.com/wyfcoding/contractpricing/internal/valuation/infrastructure/cache"
	"github.com/wyfcoding/contractpricing/internal/valuation/infrastructure/messaging"
	"github.com/wyfcoding/contractpricing/internal/valuation/infrastructure/persistence/mysql"
	httphandler "github.com/wyfcoding/contractpricing/internal/valuation/interfaces/http"
	"github.com/wyfcoding/contractpricing/pkg/cache"
	"github.com/wyfcoding/contractpricing/pkg/config"
	"github.com/wyfcoding/contractpricing/pkg/db"
	"github.com/wyfcoding/contractpricing/pkg/logger"
	"github.com/wyfcoding/contractpricing/pkg/metrics"
	"github.com/wyfcoding/contractpricing/pkg/middleware"
	"github.com/wyfcoding/contractpricing/pkg/mq"
	"github.com/wyfcoding/contractpricing/pkg/ratelimit"
	"github.com/wyfcoding/contractpricing/pkg/utils"
)

func main() {
	// 1. 加载配置
	configPath := flag.String("config", "configs/valuation.toml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	loggerCfg := logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}
	if err := logger.Init(loggerCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	logger.Info(ctx, "Starting ValuationService",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	// 3. 初始化数据库
	dbCfg := db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	}
	var database *db.DB
	err = utils.RetryWithBackoff(5, 500*time.Millisecond, 5*time.Second, func() error {
		database, err = db.Init(dbCfg)
		return err
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize database", "error", err)
	}
	defer database.Close()

	if err := database.AutoMigrate(&domain.ValuationResult{}, &messaging.OutboxMessage{}); err != nil {
		logger.Fatal(ctx, "Failed to migrate database schema", "error", err)
	}

	// 4. 初始化 Redis
	redisCfg := cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}
	redisCache, err := cache.New(redisCfg)
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize Redis", "error", err)
	}
	defer redisCache.Close()

	// 5. 初始化限流器
	rateLimiter := ratelimit.NewRedisRateLimiter(redisCache.GetClient())

	// 6. 初始化指标
	metricsInstance := metrics.New(cfg.ServiceName)
	if err := metricsInstance.Register(); err != nil {
		logger.Fatal(ctx, "Failed to register metrics", "error", err)
	}
	if cfg.Metrics.Enabled {
		if err := metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Fatal(ctx, "Failed to start metrics HTTP server", "error", err)
		}
	}

	// 7. 初始化 Kafka 生产者与 Outbox 发布器
	var producer *mq.KafkaProducer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		})
		if err != nil {
			logger.Fatal(ctx, "Failed to create Kafka producer", "error", err)
		}
		defer producer.Close()
	}
	publisher := messaging.NewOutboxEventPublisher(database.DB, producer, cfg.Kafka.ValuationTopic, metricsInstance)

	// 8. 初始化估值引擎与应用服务
	engine := domain.NewEngine(domain.Options{
		MaxDepth:       cfg.Valuation.MaxDepth,
		AnytimeSteps:   cfg.Valuation.AnytimeSteps,
		DefaultHorizon: cfg.Valuation.DefaultHorizonDays,
		Strict:         cfg.Valuation.Strict,
	}, nil)

	valuationRepo := mysql.NewValuationRepository(database.DB)
	valuationCache := infracache.NewRedisValuationCache(
		redisCache,
		time.Duration(cfg.Valuation.CacheTTLSeconds)*time.Second,
		metricsInstance,
	)
	appService := application.NewValuationAppService(
		engine,
		valuationRepo,
		valuationCache,
		publisher,
		metricsInstance,
		logger.Get(),
	)

	// 9. 启动 Outbox 投递循环
	outboxCtx, outboxCancel := context.WithCancel(ctx)
	defer outboxCancel()
	go runOutboxLoop(outboxCtx, publisher)

	// 10. 创建并启动 HTTP 服务器
	httpServer := createHTTPServer(cfg, appService, rateLimiter, metricsInstance)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		logger.Info(ctx, "Starting HTTP server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "HTTP server error", "error", err)
		}
	}()

	// 11. 优雅关停
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info(ctx, "Shutting down ValuationService")
	outboxCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "HTTP server shutdown error", "error", err)
	}

	logger.Info(ctx, "ValuationService stopped")
}

// runOutboxLoop 周期性投递 Outbox 消息并清理历史记录
func runOutboxLoop(ctx context.Context, publisher *messaging.OutboxEventPublisher) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	cleanup := time.NewTicker(time.Hour)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := publisher.ProcessOutboxMessages(ctx, 100); err != nil {
				logger.Error(ctx, "Outbox processing failed", "error", err)
			}
		case <-cleanup.C:
			if err := publisher.CleanupProcessedMessages(ctx, time.Now().Add(-24*time.Hour)); err != nil {
				logger.Error(ctx, "Outbox cleanup failed", "error", err)
			}
		}
	}
}

// createHTTPServer 创建 HTTP 服务器
func createHTTPServer(cfg *config.Config, appService *application.ValuationAppService, rateLimiter ratelimit.RateLimiter, m *metrics.Metrics) *http.Server {
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.GinLoggingMiddleware())
	router.Use(middleware.GinRecoveryMiddleware())
	router.Use(middleware.GinCORSMiddleware())
	router.Use(middleware.GinMetricsMiddleware(m))
	router.Use(middleware.RateLimitMiddleware(rateLimiter, cfg.RateLimit))

	httpHandler := httphandler.NewValuationHandler(appService)
	httpHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   cfg.ServiceName,
			"timestamp": time.Now().Unix(),
		})
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
}
