package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shenikar/outage_reports/internal/address"
	"github.com/shenikar/outage_reports/internal/config"
	v1 "github.com/shenikar/outage_reports/internal/handler/http/v1"
	"github.com/shenikar/outage_reports/internal/observability"
	"github.com/shenikar/outage_reports/internal/repository"
	"github.com/shenikar/outage_reports/internal/service"
	"github.com/shenikar/outage_reports/internal/webhook"
	"github.com/shenikar/outage_reports/pkg/logger"
	"github.com/shenikar/outage_reports/pkg/postgres"
	redisclient "github.com/shenikar/outage_reports/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/shenikar/outage_reports/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Outage Reports API
// @version 1.0
// @description Power outage incident reports: a report wizard backed by a single JSON document store.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Инициализация Redis клиента: очередь вебхуков, кэш адресов и, по умолчанию, само хранилище
	redisClient, err := redisclient.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Info("Successfully connected to Redis")

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	// Выбор бэкенда хранилища
	var kv repository.KeyValueStore
	switch cfg.StorageBackend {
	case config.StorageBackendPostgres:
		log.Info("Running database migrations...")
		if err := postgres.RunMigrations(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run database migrations: %v", err)
		}
		log.Info("Database migrations applied successfully")

		dbpool, err := postgres.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer dbpool.Close()
		log.Info("Successfully connected to PostgreSQL")
		kv = repository.NewPostgresKV(dbpool)
	default:
		kv = repository.NewRedisKV(redisClient)
	}
	log.WithFields(logrus.Fields{
		"backend": cfg.StorageBackend,
		"key":     cfg.StorageKey,
	}).Info("Storage backend selected")

	// Инициализация репозитория и реестра
	incidentRepo := repository.NewIncidentRepository(kv, cfg.StorageKey, clock, log, metrics)
	registry := service.NewEventRegistry(incidentRepo, log, metrics)
	registry.Initialize(ctx)

	// Уведомления об изменениях отправляются, только если задан адрес получателя
	var publisher webhook.WebhookPublisher
	if cfg.WebhookURL != "" {
		publisher = webhook.NewRedisWebhookPublisher(redisClient)
		webhookWorker := webhook.NewWebhookWorker(redisClient, log, cfg)
		webhookWorker.Start(ctx)
	} else {
		log.Info("WEBHOOK_URL is not set, record change notifications are disabled")
	}

	// Поиск адреса по CEP с кэшем в Redis
	addressClient := address.NewViaCEPClient(cfg.AddressLookupURL, cfg.AddressLookupTimeout, log, metrics)
	addressLookup := address.NewCachedLookup(addressClient, repository.NewExpiringRedisKV(redisClient, cfg.AddressCacheTTL), log, metrics)

	// Инициализация сервисов
	reportService := service.NewReportService(registry, addressLookup, publisher, clock, log)

	// Инициализация хэндлеров
	handler := v1.NewHandler(reportService, log, cfg)

	// Настройка Gin роутера
	router := gin.Default()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	// Добавление маршрута для Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Запуск HTTP-сервера
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	// Запуск сервера в горутине
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server gracefully stopped")
}
