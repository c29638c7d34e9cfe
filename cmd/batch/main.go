package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commerce-backend/config"
	"commerce-backend/internal/dedup"
	"commerce-backend/internal/ranking"
	"commerce-backend/internal/redisclient"
	"commerce-backend/internal/store"
	"commerce-backend/internal/util"

	"go.uber.org/zap"
)

const materializeLock = "ranking:materialize"

// The batch service owns the periodic triggers: ranking materialization and
// dedup record retention. The schedule here is a plain ticker; the
// aggregation logic it invokes lives in internal/ranking.
func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting batch service")

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

	rankingPolicy := ranking.Policy{
		LikeWeight:     cfg.Ranking.LikeWeight,
		ViewWeight:     cfg.Ranking.ViewWeight,
		BrowseWeight:   cfg.Ranking.BrowseWeight,
		PurchaseWeight: cfg.Ranking.PurchaseWeight,
		HalfLife:       cfg.Ranking.HalfLife,
	}
	guard := dedup.NewGuard(cfg.Kafka.RankingGroup, db, db.RunInTx)
	aggregator, err := ranking.NewAggregator(rankingPolicy, db, redisClient, guard)
	if err != nil {
		log.Fatalf("Invalid ranking policy: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncTicker := time.NewTicker(cfg.Ranking.SyncInterval)
	defer syncTicker.Stop()
	purgeTicker := time.NewTicker(24 * time.Hour)
	defer purgeTicker.Stop()

	go func() {
		for {
			select {
			case <-syncTicker.C:
				syncRanking(ctx, redisClient, aggregator, logger)
			case <-purgeTicker.C:
				cutoff := time.Now().Add(-cfg.Dedup.Retention)
				purged, err := db.PurgeProcessedBefore(ctx, cutoff)
				if err != nil {
					logger.Error("Dedup purge failed", zap.Error(err))
					continue
				}
				logger.Info("Dedup records purged", zap.Int64("rows", purged))
			case <-ctx.Done():
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Batch service exited")
}

// syncRanking materializes the leaderboard under a best-effort lock so
// overlapping batch instances do not fold the same period twice.
func syncRanking(ctx context.Context, redisClient *redisclient.Client, aggregator *ranking.Aggregator, logger *zap.Logger) {
	locked, err := redisClient.AcquireLock(ctx, materializeLock, time.Minute)
	if err != nil {
		logger.Error("Failed to acquire materialize lock", zap.Error(err))
		return
	}
	if !locked {
		logger.Info("Another instance is materializing, skipping")
		return
	}
	defer func() {
		if err := redisClient.ReleaseLock(ctx, materializeLock); err != nil {
			logger.Error("Failed to release materialize lock", zap.Error(err))
		}
	}()

	if err := aggregator.Materialize(ctx); err != nil {
		logger.Error("Ranking materialization failed", zap.Error(err))
	}
}
