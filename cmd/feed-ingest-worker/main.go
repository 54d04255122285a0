package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/bet-feed/internal/feed"
	"github.com/radieske/bet-feed/internal/feed-ingest/bootstrap"
	"github.com/radieske/bet-feed/internal/feed-ingest/consumer"
	"github.com/radieske/bet-feed/internal/feed-ingest/pubsub"
	"github.com/radieske/bet-feed/internal/feed/lookup"
	"github.com/radieske/bet-feed/internal/feed/repo"
	"github.com/radieske/bet-feed/internal/feed/transform"
	"github.com/radieske/bet-feed/internal/feed/window"
	sharedcache "github.com/radieske/bet-feed/internal/shared/cache"
	"github.com/radieske/bet-feed/internal/shared/config"
	"github.com/radieske/bet-feed/internal/shared/db"
	"github.com/radieske/bet-feed/internal/shared/kafka"
	"github.com/radieske/bet-feed/internal/shared/logger"
	"github.com/radieske/bet-feed/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "feed-ingest-worker"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Métricas Prometheus da ingestão
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "feed_ingest_messages_consumed_total", Help: "mensagens consumidas"})
	deltas := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "feed_ingest_deltas_total", Help: "deltas publicados por aba"}, []string{"tab"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "feed_ingest_errors_total", Help: "erros por estágio"}, []string{"stage"})
	rebuilt := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "feed_window_rebuilt_items", Help: "itens na janela após o último resync"}, []string{"tab"})
	prometheus.MustRegister(consumed, deltas, errorsBy, rebuilt)

	onError := func(stage string) { errorsBy.WithLabelValues(stage).Inc() }

	// Lookups usados na transformação; nomes e VIP podem ficar até LookupTTL defasados
	users := &repo.UserRepo{DB: pg}
	userCache := lookup.New("users",
		lookup.WithBreaker[feed.UserSnapshot]("users", users.FetchUser, lookup.DefaultBreakerSettings, log),
		lookup.WithTTL[feed.UserSnapshot](cfg.LookupTTL),
		lookup.WithFetchTimeout[feed.UserSnapshot](cfg.LookupFetchTimeout),
		lookup.WithLogger[feed.UserSnapshot](log),
	)
	vipCache := lookup.New("vip",
		lookup.WithBreaker[feed.VipSnapshot]("vip", users.FetchVip, lookup.DefaultBreakerSettings, log),
		lookup.WithTTL[feed.VipSnapshot](cfg.LookupTTL),
		lookup.WithFetchTimeout[feed.VipSnapshot](cfg.LookupFetchTimeout),
		lookup.WithLogger[feed.VipSnapshot](log),
	)
	defer userCache.StartEvictionTimer(cfg.LookupTTL)()
	defer vipCache.StartEvictionTimer(cfg.LookupTTL)()
	go lookup.NewInvalidationSubscriber(redisClient, log, userCache).Start(ctx)

	th := feed.Thresholds{LuckyMultiplier: cfg.LuckyMultiplier, BigWinValue: cfg.BigWinValue}
	transformer := transform.New(userCache, vipCache)
	windows := window.NewRedisStore(redisClient, cfg.WindowSize, cfg.WindowTTL, log)

	resync := &bootstrap.Resyncer{
		Log:         log,
		Source:      &repo.SettlementRepo{DB: pg},
		Transformer: transformer,
		Windows:     windows,
		Thresholds:  th,
		Capacity:    windows.Capacity,
		OnRebuilt:   func(tab feed.Tab, n int) { rebuilt.WithLabelValues(tab.String()).Set(float64(n)) },
		OnError:     onError,
	}

	// Servidor HTTP para métricas e health check
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}, log)
	defer msrv.Close()
	log.Info("metrics/health listening", zap.String("addr", msrv.Addr))

	// Início atrasado (janela de deploy)
	if cfg.StartDelay > 0 {
		log.Info("delaying feed ingestion", zap.Duration("delay", cfg.StartDelay))
		select {
		case <-time.After(cfg.StartDelay):
		case <-ctx.Done():
			return
		}
	}

	if cfg.Env == "local" || cfg.Env == "dev" {
		tctx, tcancel := context.WithTimeout(ctx, 10*time.Second)
		if err := kafka.EnsureTopic(tctx, cfg.KafkaBrokers, cfg.TopicBetSettled, 1); err != nil {
			log.Warn("failed to ensure kafka topic", zap.String("topic", cfg.TopicBetSettled), zap.Error(err))
		}
		tcancel()
	}

	// Configura o consumer Kafka (consumer group do feed)
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicBetSettled, cfg.GroupFeedIngest)
	defer reader.Close()

	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Thresholds:  th,
		Transformer: transformer,
		Windows:     windows,
		Publisher:   pubsub.NewRedisBroadcaster(redisClient),
		OnConsumed:  consumed.Inc,
		OnDelta:     func(tab feed.Tab) { deltas.WithLabelValues(tab.String()).Inc() },
		OnError:     onError,
	}

	// bootstrap e consumo rodam juntos; o consumo não espera o cold start
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resync.Run(gctx, cfg.ResyncInterval)
		return nil
	})
	g.Go(func() error { return proc.Run(gctx) })

	log.Info("feed-ingest-worker started",
		zap.String("topic", cfg.TopicBetSettled),
		zap.String("group", cfg.GroupFeedIngest),
		zap.Duration("resync_interval", cfg.ResyncInterval),
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("feed-ingest-worker stopped with error", zap.Error(err))
	}
	log.Info("feed-ingest-worker stopped")
}
