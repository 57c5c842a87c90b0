package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"

	"client-directory/config"
	"client-directory/consumer"
	"client-directory/handlers"
	"client-directory/middleware"
	"client-directory/models"
	"client-directory/monitoring"
	"client-directory/utils"
)

func main() {
	logger := log.New(os.Stdout, "CLIENTS: ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	if cfg.SentryDSN != "" {
		if err := utils.InitSentry(cfg.SentryDSN, cfg.AppEnv, cfg.AppVersion); err != nil {
			logger.Printf("Sentry disabled: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	monitoring.Init()

	db, err := models.Open(cfg)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	if err := monitoring.InstrumentDB(db); err != nil {
		logger.Fatalf("Failed to instrument database: %v", err)
	}
	repo := models.NewRepository(db)
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Printf("Error closing database: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatalf("Failed to prepare schema: %v", err)
	}

	opts := []handlers.Option{handlers.WithLogger(logger)}

	var cache utils.RedisClient
	if cfg.RedisHost != "" {
		cache = connectRedis(logger, cfg)
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Printf("Error closing Redis connection: %v", err)
			}
		}()
		opts = append(opts, handlers.WithCache(cache))
	}

	var search utils.ElasticsearchClient
	if cfg.ElasticsearchURL != "" {
		search, err = utils.NewElasticsearchClient(cfg.ElasticsearchURL, cfg.ElasticsearchIndex)
		if err != nil {
			logger.Fatalf("Failed to initialize Elasticsearch: %v", err)
		}
		opts = append(opts, handlers.WithSearch(search))
	}

	if cfg.KafkaBroker != "" {
		producer, err := utils.NewKafkaProducer(cfg.KafkaBroker)
		if err != nil {
			logger.Fatalf("Failed to initialize Kafka producer: %v", err)
		}
		defer producer.Close()
		opts = append(opts, handlers.WithKafka(producer, cfg.KafkaTopic))

		reader := utils.NewKafkaReader(cfg.KafkaBroker, cfg.KafkaTopic, cfg.KafkaGroupID)
		clientConsumer := consumer.NewClientConsumer(repo, cache, search, reader, logger)
		clientConsumer.Start(ctx)
		defer clientConsumer.Stop()
	}

	router := gin.New()
	router.Use(
		gin.Logger(),
		gin.Recovery(),
		middleware.SentryMiddleware(),
		middleware.ErrorHandler(),
		middleware.PrometheusMetrics(),
	)
	router.GET("/metrics", gin.WrapH(monitoring.Handler()))

	clientHandler := handlers.NewClientHandler(repo, opts...)
	clientHandler.RegisterRoutes(router.Group("/api/v1"))
	// Runs before the deferred producer close above.
	defer clientHandler.Wait()

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Shutdown returns once in-flight handlers are done, so no publish can
	// start after clientHandler.Wait.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Server shutdown error: %v", err)
		}
	}()

	logger.Printf("Server is running on port %s", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server error: %v", err)
	}
	<-shutdownDone
}

// connectRedis retries a few times since Redis often comes up after us.
func connectRedis(logger *log.Logger, cfg *config.Config) utils.RedisClient {
	const (
		maxRetries = 5
		retryDelay = 3 * time.Second
	)

	var (
		client utils.RedisClient
		err    error
	)
	for i := 0; i < maxRetries; i++ {
		client, err = utils.NewRedisClient(cfg.RedisHost, cfg.RedisPassword)
		if err == nil {
			return client
		}
		logger.Printf("Attempt %d: Failed to connect to Redis: %v", i+1, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	logger.Fatalf("Failed to initialize Redis after %d attempts: %v", maxRetries, err)
	return nil
}
