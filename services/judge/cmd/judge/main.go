package main

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/example/twist-judge/internal/platform/auth"
	"github.com/example/twist-judge/internal/platform/config"
	"github.com/example/twist-judge/internal/platform/db"
	"github.com/example/twist-judge/internal/platform/events"
	"github.com/example/twist-judge/internal/platform/httpserver"
	"github.com/example/twist-judge/internal/platform/logging"
	"github.com/example/twist-judge/internal/platform/natsconn"
	"github.com/example/twist-judge/internal/platform/redisconn"
	"github.com/example/twist-judge/internal/platform/run"
	"github.com/example/twist-judge/services/judge/internal/announce"
	judgeconfig "github.com/example/twist-judge/services/judge/internal/config"
	"github.com/example/twist-judge/services/judge/internal/consumer"
	"github.com/example/twist-judge/services/judge/internal/content"
	"github.com/example/twist-judge/services/judge/internal/handlers"
	"github.com/example/twist-judge/services/judge/internal/idempotency"
	"github.com/example/twist-judge/services/judge/internal/metrics"
	"github.com/example/twist-judge/services/judge/internal/publisher"
	"github.com/example/twist-judge/services/judge/internal/reactor"
	"github.com/example/twist-judge/services/judge/internal/reddit"
	"github.com/example/twist-judge/services/judge/internal/resolver"
	"github.com/example/twist-judge/services/judge/internal/scheduler"
	"github.com/example/twist-judge/services/judge/internal/store"
	"github.com/example/twist-judge/services/judge/internal/sweep"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	judgeCfg, err := judgeconfig.LoadService()
	if err != nil {
		log.Error("judge config", zap.Error(err))
		run.Exit(1)
	}
	isProd := cfg.IsProduction()
	ctx := context.Background()

	rdb := initRedis(ctx, log, judgeCfg, isProd)
	pool := initPool(ctx, log, judgeCfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	var (
		st       store.Store
		settings judgeconfig.Editor
	)
	if rdb != nil {
		st = store.NewRedisStore(rdb, judgeCfg.RedisPrefix, log)
		settings = judgeconfig.NewRedisProvider(rdb, judgeCfg.RedisPrefix)
	} else {
		log.Warn("REDIS_URL not set, judge state is in-memory (development only)")
		st = store.NewMemoryStore()
		settings = judgeconfig.NewMemoryProvider(judgeconfig.Defaults())
	}

	cp := initContent(ctx, log, judgeCfg, isProd)

	idemOpts := idempotency.Options{Pool: pool, Prefix: judgeCfg.RedisPrefix, TTL: judgeCfg.IdempotencyTTL, Production: isProd}
	if rdb != nil {
		idemOpts.Redis = rdb
	}
	idem, err := idempotency.NewStore(ctx, idemOpts)
	if err != nil {
		log.Error("idempotency store", zap.Error(err))
		run.Exit(1)
	}
	log.Info("idempotency store initialised",
		zap.Bool("redis", rdb != nil),
		zap.Bool("postgres", pool != nil),
	)

	nc, js := initNATS(log, judgeCfg, isProd)
	var ev *events.Publisher
	if js != nil {
		if err := publisher.EnsureStream(js); err != nil {
			log.Warn("results stream unavailable", zap.Error(err))
		}
		ev = events.New(js, log)
	}
	results := publisher.New(ev, log)

	announcer := announce.New(st, cp, announce.WithLogger(log), announce.WithMetrics(rec))
	res := resolver.New(st, cp, resolver.WithLogger(log), resolver.WithConcurrency(judgeCfg.ResolveConcurrency))
	job := sweep.New(sweep.Deps{
		Store:     st,
		Content:   cp,
		Settings:  settings,
		Resolver:  res,
		Announcer: announcer,
		Results:   results,
		Metrics:   rec,
		Log:       log.Named("sweep"),
	})
	sched := scheduler.New(log.Named("scheduler"))
	rx := reactor.New(reactor.Deps{
		Store:         st,
		Content:       cp,
		Settings:      settings,
		Announcer:     announcer,
		Scheduler:     sched,
		SweepName:     sweep.JobName,
		SweepInterval: judgeCfg.SweepInterval,
		Sweep:         job.Run,
		Log:           log.Named("reactor"),
	})

	// The scheduler lives in-process, so the sweep is installed at boot as
	// well as on every app install/upgrade event.
	if err := rx.AppChanged(ctx, reactor.AppChange{Reason: "boot"}); err != nil {
		log.Error("install sweep", zap.Error(err))
		run.Exit(1)
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: readiness(rdb, nc),
		Metrics:   metrics.Handler(reg),
	})
	handlers.NewManageHandler(st, cp, settings, announcer, log.Named("manage")).
		Register(r, auth.JWTVerifier{Secret: []byte(judgeCfg.JWTSecret)})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	grpcSrv := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcSrv, hs)
	reflection.Register(grpcSrv)
	hs.SetServingStatus(cfg.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	runner := run.New(log)
	runner.OnShutdown(func(context.Context) error {
		if pool != nil {
			pool.Close()
		}
		if rdb != nil {
			return rdb.Close()
		}
		return nil
	})
	runner.OnShutdown(func(context.Context) error {
		if nc != nil {
			return nc.Drain()
		}
		return nil
	})
	runner.OnShutdown(sched.Stop)
	runner.OnShutdown(func(c context.Context) error {
		hs.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-c.Done():
			grpcSrv.Stop()
		}
		return nil
	})
	runner.OnShutdown(srv.Shutdown)

	code := runner.WithSignals(func(ctx context.Context) error {
		errCh := make(chan error, 3)

		if js != nil {
			sub, err := consumer.Subscribe(js)
			if err != nil {
				if isProd {
					return err
				}
				log.Warn("event consumer unavailable", zap.Error(err))
			} else {
				c := consumer.New(consumer.Handlers(rx), idem, js, consumer.Options{
					BatchSize:   judgeCfg.EventBatchSize,
					Concurrency: judgeCfg.EventConcurrency,
					MaxDeliver:  judgeCfg.EventMaxDeliver,
				}, rec, log.Named("consumer"))
				go func() { errCh <- c.Run(ctx, sub) }()
			}
		}

		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return err
		}
		go func() {
			log.Info("grpc health server starting", zap.String("addr", cfg.GRPC.Addr))
			errCh <- grpcSrv.Serve(lis)
		}()
		go func() { errCh <- srv.Start(log) }()

		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		}
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initRedis connects to REDIS_URL. It returns nil outside production when
// Redis is not configured or unreachable.
func initRedis(ctx context.Context, log *zap.Logger, cfg judgeconfig.Config, isProd bool) *redis.Client {
	if cfg.RedisURL == "" {
		if isProd {
			log.Error("REDIS_URL is required in production")
			_ = log.Sync()
			run.Exit(1)
		}
		return nil
	}
	rdb, err := redisconn.Connect(ctx, cfg.RedisURL)
	if err != nil {
		if isProd {
			log.Error("redis unreachable in production", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("redis unavailable, falling back to in-memory state", zap.Error(err))
		return nil
	}
	log.Info("redis connected", zap.String("prefix", cfg.RedisPrefix))
	return rdb
}

// initPool opens the optional Postgres pool used for event deduplication.
func initPool(ctx context.Context, log *zap.Logger, cfg judgeconfig.Config) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		return nil
	}
	c, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.Open(c, cfg.DatabaseURL)
	if err != nil {
		log.Warn("postgres unavailable, idempotency will not use it", zap.Error(err))
		return nil
	}
	log.Info("postgres connected for idempotency")
	return pool
}

// initContent builds the Reddit client, or an in-memory site outside
// production when no credentials are configured.
func initContent(ctx context.Context, log *zap.Logger, cfg judgeconfig.Config, isProd bool) content.Provider {
	rc := cfg.Reddit
	if !rc.Enabled() {
		if isProd {
			log.Error("REDDIT_CLIENT_ID and REDDIT_USERNAME are required in production")
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("reddit credentials not set, using in-memory content (development only)")
		return content.NewMemoryProvider(content.User{ID: "t2_judge", Name: "judge"})
	}

	hc := reddit.NewHTTPClient(ctx, reddit.Credentials{
		TokenURL:     rc.AuthURL,
		ClientID:     rc.ClientID,
		ClientSecret: rc.ClientSecret,
		Username:     rc.Username,
		Password:     rc.Password,
		UserAgent:    rc.UserAgent,
	})
	cb := gobreaker.NewCircuitBreaker(reddit.NewBreakerSettings(
		"reddit", cfg.CBMaxRequests, cfg.CBInterval, cfg.CBTimeout, cfg.CBFailureThreshold, log,
	))
	log.Info("reddit client configured", zap.String("base_url", rc.BaseURL), zap.String("user", rc.Username))
	return reddit.New(rc.BaseURL, reddit.ClientConfig{
		UserAgent:      rc.UserAgent,
		MaxRetries:     rc.MaxRetries,
		RetryBaseDelay: rc.RetryBaseDelay,
	},
		reddit.WithHTTPClient(hc),
		reddit.WithCircuitBreaker(cb),
		reddit.WithLogger(log.Named("reddit")),
	)
}

// initNATS connects to NATS_URL when set. Outside production a missing or
// unreachable server disables the event consumer and result events.
func initNATS(log *zap.Logger, cfg judgeconfig.Config, isProd bool) (*nats.Conn, nats.JetStreamContext) {
	if cfg.NATSURL == "" {
		if isProd {
			log.Error("NATS_URL is required in production")
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("NATS_URL not set, events are disabled (development only)")
		return nil, nil
	}
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: "judge"})
	if err == nil {
		js, jerr := nc.JetStream()
		if jerr == nil {
			return nc, js
		}
		nc.Close()
		err = jerr
	}
	if isProd {
		log.Error("NATS is required in production", zap.Error(err))
		_ = log.Sync()
		run.Exit(1)
	}
	log.Warn("NATS unavailable, events are disabled", zap.Error(err))
	return nil, nil
}

func readiness(rdb *redis.Client, nc *nats.Conn) func() error {
	return func() error {
		if rdb != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				return err
			}
		}
		if nc != nil && !nc.IsConnected() {
			return errors.New("nats disconnected")
		}
		return nil
	}
}
