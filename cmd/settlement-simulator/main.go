package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-feed/internal/feed-ingest/pubsub"
	"github.com/radieske/bet-feed/internal/feed/lookup"
	"github.com/radieske/bet-feed/internal/feed/repo"
	"github.com/radieske/bet-feed/internal/settlement-simulator/publisher"
	"github.com/radieske/bet-feed/internal/shared/cache"
	"github.com/radieske/bet-feed/internal/shared/config"
	"github.com/radieske/bet-feed/internal/shared/db"
	"github.com/radieske/bet-feed/internal/shared/kafka"
	"github.com/radieske/bet-feed/internal/shared/logger"
	"github.com/radieske/bet-feed/internal/shared/metrics"
)

func main() {
	// carrega config
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "settlement-simulator"
	}

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	// esquema de desenvolvimento
	if cfg.SimMigrate {
		if err := db.Migrate(pg); err != nil {
			log.Fatal("failed to apply migrations", zap.Error(err))
		}
		log.Info("migrations applied")
	}

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tctx, tcancel := context.WithTimeout(ctx, 10*time.Second)
	if err := kafka.EnsureTopic(tctx, cfg.KafkaBrokers, cfg.TopicBetSettled, 1); err != nil {
		log.Warn("failed to ensure kafka topic", zap.String("topic", cfg.TopicBetSettled), zap.Error(err))
	}
	tcancel()

	pub := publisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.TopicBetSettled, log)
	defer pub.Close()

	published := prometheus.NewCounter(prometheus.CounterOpts{Name: "sim_bets_published_total", Help: "apostas publicadas"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sim_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(published, errorsBy)

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, nil, log)
	defer msrv.Close()

	sim := &publisher.Simulator{
		Log:      log,
		Gen:      publisher.NewGenerator(uint64(time.Now().UnixNano()), publisher.DefaultPlayers, nil),
		Events:   pub,
		Ledger:   &repo.SettlementRepo{DB: pg},
		Profiles: &repo.UserRepo{DB: pg},
		Notify: func(ctx context.Context, userID string) error {
			return lookup.PublishPrivacyChanged(ctx, redisClient, userID)
		},
		Legacy:           pubsub.NewRedisBroadcaster(redisClient),
		Interval:         cfg.SimInterval,
		PrivacyFlipEvery: 40,
		LegacyEvery:      25,
		OnPublished:      published.Inc,
		OnError:          func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	if err := sim.Seed(ctx); err != nil {
		log.Fatal("failed to seed players", zap.Error(err))
	}

	log.Info("settlement simulator started",
		zap.String("topic", cfg.TopicBetSettled),
		zap.Duration("interval", cfg.SimInterval),
	)
	_ = sim.Run(ctx)
	log.Info("settlement simulator stopped")
}
