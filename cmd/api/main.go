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

	"commerce-backend/config"
	"commerce-backend/internal/api"
	"commerce-backend/internal/broker"
	"commerce-backend/internal/dedup"
	"commerce-backend/internal/event"
	"commerce-backend/internal/eventbus"
	"commerce-backend/internal/outbox"
	"commerce-backend/internal/ranking"
	"commerce-backend/internal/redisclient"
	"commerce-backend/internal/saga"
	"commerce-backend/internal/service"
	"commerce-backend/internal/store"
	"commerce-backend/internal/util"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting API service")

	tp, err := util.InitTracer("commerce-api", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	publisher := broker.NewPublisher(cfg.Kafka.Brokers,
		cfg.Kafka.TopicOrder, cfg.Kafka.TopicPayment, cfg.Kafka.TopicProduct)
	defer publisher.Close()

	topics := event.Topics{
		Order:   cfg.Kafka.TopicOrder,
		Payment: cfg.Kafka.TopicPayment,
		Product: cfg.Kafka.TopicProduct,
	}

	// The registry is built here, once, and passed by reference; handlers
	// are not discovered through any ambient state.
	coordinator := saga.NewCoordinator(db, db)
	registry := eventbus.NewRegistry()
	registry.Subscribe(event.TypePaymentFailed, eventbus.PreCommit, coordinator.OnPaymentFailed)

	pool := eventbus.NewPool(cfg.Bus.Workers, cfg.Bus.QueueSize)
	defer pool.Stop()

	bus := eventbus.NewBus(registry, db, db, event.TopicFor(topics), pool)

	relay := outbox.NewRelay(db, publisher, cfg.Outbox.BatchSize, cfg.Outbox.Interval)
	relayCtx, relayCancel := context.WithCancel(context.Background())
	defer relayCancel()
	relay.Start(relayCtx)
	defer relay.Stop()

	rankingPolicy := ranking.Policy{
		LikeWeight:     cfg.Ranking.LikeWeight,
		ViewWeight:     cfg.Ranking.ViewWeight,
		BrowseWeight:   cfg.Ranking.BrowseWeight,
		PurchaseWeight: cfg.Ranking.PurchaseWeight,
		HalfLife:       cfg.Ranking.HalfLife,
	}
	// The API service only reads the published snapshot; the guard is for
	// the consumer side, but the aggregator carries it uniformly.
	guard := dedup.NewGuard("product-ranking", db, db.RunInTx)
	aggregator, err := ranking.NewAggregator(rankingPolicy, db, redisClient, guard)
	if err != nil {
		log.Fatalf("Invalid ranking policy: %v", err)
	}

	orderService := service.NewOrderService(db, bus, coordinator)
	paymentService := service.NewPaymentService(db, bus)
	productService := service.NewProductService(bus)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(orderService, paymentService, productService, aggregator)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
