package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-feed/internal/feed"
	httpapi "github.com/radieske/bet-feed/internal/feed-service/http"
	"github.com/radieske/bet-feed/internal/feed-service/ws"
	"github.com/radieske/bet-feed/internal/feed/lookup"
	"github.com/radieske/bet-feed/internal/feed/privacy"
	"github.com/radieske/bet-feed/internal/feed/repo"
	"github.com/radieske/bet-feed/internal/feed/transform"
	"github.com/radieske/bet-feed/internal/feed/window"
	"github.com/radieske/bet-feed/internal/shared/cache"
	"github.com/radieske/bet-feed/internal/shared/config"
	"github.com/radieske/bet-feed/internal/shared/db"
	"github.com/radieske/bet-feed/internal/shared/logger"
	"github.com/radieske/bet-feed/internal/shared/metrics"
)

func main() {
	// carrega config
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "feed-service"
	}

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	// conecta com db Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	log.Info("postgres connected")

	// conecta com Redis (janelas + barramento)
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Métricas Prometheus do gateway
	wsConns := prometheus.NewGauge(prometheus.GaugeOpts{Name: "feed_ws_connections", Help: "conexões websocket abertas"})
	wsDropped := prometheus.NewCounter(prometheus.CounterOpts{Name: "feed_ws_dropped_total", Help: "clientes lentos desconectados"})
	deltas := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "feed_deltas_broadcast_total", Help: "deltas entregues por aba"}, []string{"tab"})
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "feed_lookup_total", Help: "consultas ao cache de lookup"}, []string{"cache", "result"})
	prometheus.MustRegister(wsConns, wsDropped, deltas, lookups)

	// Caches de lookup: usuários (privacidade + nome) e VIP
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
	userCache.OnHit = func() { lookups.WithLabelValues("users", "hit").Inc() }
	userCache.OnMiss = func() { lookups.WithLabelValues("users", "miss").Inc() }
	userCache.OnError = func() { lookups.WithLabelValues("users", "error").Inc() }
	vipCache.OnHit = func() { lookups.WithLabelValues("vip", "hit").Inc() }
	vipCache.OnMiss = func() { lookups.WithLabelValues("vip", "miss").Inc() }
	vipCache.OnError = func() { lookups.WithLabelValues("vip", "error").Inc() }

	stopUsers := userCache.StartEvictionTimer(cfg.LookupTTL)
	defer stopUsers()
	stopVip := vipCache.StartEvictionTimer(cfg.LookupTTL)
	defer stopVip()

	// mudança de privacidade em qualquer instância invalida o cache local
	go lookup.NewInvalidationSubscriber(redisClient, log, userCache).Start(ctx)

	masker := privacy.NewMasker(userCache)
	windows := window.NewRedisStore(redisClient, cfg.WindowSize, cfg.WindowTTL, log)

	hub := ws.NewHub(ws.AllowOrigins(cfg.WSAllowedOrigins), windows, masker, ws.NewAuthenticator(cfg.JWTSecret), log)
	hub.OnConnect = wsConns.Inc
	hub.OnDisconnect = wsConns.Dec
	hub.OnDropped = wsDropped.Inc
	hub.OnDelta = func(tab feed.Tab) { deltas.WithLabelValues(tab.String()).Inc() }
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set; all websocket connections are anonymous")
	}

	// Inicia o subscriber Redis para repassar deltas ao Hub WebSocket
	ws.StartRedisSubscriber(ctx, redisClient, hub, log)

	api := &httpapi.API{
		Windows:     windows,
		Winners:     &repo.SettlementRepo{DB: pg},
		Transformer: transform.New(userCache, vipCache),
		Masker:      masker,
		Log:         log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Get("/ws", hub.HandleWS)
	r.Mount("/", api.Router())

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// healthz: valida dependências críticas
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}, log)

	go func() {
		log.Info("feed-service listening", zap.String("addr", srv.Addr), zap.String("metrics", msrv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down feed-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
	log.Info("feed-service stopped", zap.Int("ws_clients", hub.ClientCount()))
}
