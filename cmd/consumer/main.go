package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commerce-backend/config"
	"commerce-backend/internal/broker"
	"commerce-backend/internal/dedup"
	"commerce-backend/internal/ranking"
	"commerce-backend/internal/redisclient"
	"commerce-backend/internal/saga"
	"commerce-backend/internal/store"
	"commerce-backend/internal/util"
	"commerce-backend/internal/worker"
)

// The consumer service runs the saga and ranking workers. Each worker owns
// one group reader, so its claimed partitions are processed sequentially;
// WorkersPerTopic controls parallelism across partitions.
func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting consumer service")

	tp, err := util.InitTracer("commerce-consumer", cfg.Observ.JaegerEndpoint)
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

	dlq := broker.NewDeadLetter(redisClient.GetClient())
	coordinator := saga.NewCoordinator(db, db)

	rankingPolicy := ranking.Policy{
		LikeWeight:     cfg.Ranking.LikeWeight,
		ViewWeight:     cfg.Ranking.ViewWeight,
		BrowseWeight:   cfg.Ranking.BrowseWeight,
		PurchaseWeight: cfg.Ranking.PurchaseWeight,
		HalfLife:       cfg.Ranking.HalfLife,
	}
	rankingGuard := dedup.NewGuard(cfg.Kafka.RankingGroup, db, db.RunInTx)
	aggregator, err := ranking.NewAggregator(rankingPolicy, db, redisClient, rankingGuard)
	if err != nil {
		log.Fatalf("Invalid ranking policy: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var stoppers []func() error

	for i := 0; i < cfg.Kafka.WorkersPerTopic; i++ {
		sagaConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment,
			cfg.Kafka.SagaGroup, cfg.Kafka.ProcessingTimeout)
		sagaGuard := dedup.NewGuard(cfg.Kafka.SagaGroup, db, db.RunInTx)
		sagaWorker := worker.NewSagaWorker(sagaConsumer, coordinator, sagaGuard, dlq, cfg.Kafka.TopicPayment)
		stoppers = append(stoppers, sagaWorker.Stop)
		go func() {
			if err := sagaWorker.Start(workerCtx); err != nil {
				log.Printf("Saga worker stopped: %v", err)
			}
		}()
	}

	for _, topic := range []string{cfg.Kafka.TopicProduct, cfg.Kafka.TopicOrder} {
		for i := 0; i < cfg.Kafka.WorkersPerTopic; i++ {
			consumer := broker.NewConsumer(cfg.Kafka.Brokers, topic,
				cfg.Kafka.RankingGroup, cfg.Kafka.ProcessingTimeout)
			rankingWorker := worker.NewRankingWorker(consumer, aggregator, dlq, topic)
			stoppers = append(stoppers, rankingWorker.Stop)
			go func() {
				if err := rankingWorker.Start(workerCtx); err != nil {
					log.Printf("Ranking worker stopped: %v", err)
				}
			}()
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down consumer service...")
	workerCancel()
	for _, stop := range stoppers {
		if err := stop(); err != nil {
			log.Printf("Worker close error: %v", err)
		}
	}
	log.Println("Consumer service exited")
}
