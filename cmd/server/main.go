// Command cp-server starts the CodePilot gRPC server.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/codepilot/internal/account"
	"github.com/and161185/codepilot/internal/api"
	"github.com/and161185/codepilot/internal/changefeed"
	"github.com/and161185/codepilot/internal/config"
	"github.com/and161185/codepilot/internal/limiter"
	"github.com/and161185/codepilot/internal/metrics"
	"github.com/and161185/codepilot/internal/migrate"
	"github.com/and161185/codepilot/internal/repository/postgres"
	grpcserver "github.com/and161185/codepilot/internal/server/grpc"
	"github.com/and161185/codepilot/internal/service"
	"github.com/and161185/codepilot/internal/usage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// main loads configuration, runs migrations, and serves gRPC until SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}

	logger := newLogger(cfg.Log.Level)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr),
	)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.Database.DSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.Database.DSN, postgres.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	identities := postgres.NewIdentityRepo(db)
	profiles := postgres.NewProfileRepo(db)
	activities := postgres.NewActivityRepo(db)
	mirrors := postgres.NewCreditMirrorRepo(db)

	// Redis backs the change feed and the limiter; without it both stay in process.
	var (
		feed changefeed.Feed = changefeed.NewLocal(changefeed.DefaultBuffer)
		lim  limiter.Limiter = limiter.Nop{}
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		feed = changefeed.NewRedis(rdb, changefeed.DefaultBuffer, logger)
		lim = limiter.NewRedis(rdb, cfg.Limiter.Window, cfg.Limiter.MaxFails, cfg.Limiter.BlockFor)
	} else {
		logger.Warn("redis not configured: login throttling disabled, change feed is local")
	}

	var export usage.Exporter = usage.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := usage.NewProducer(cfg.Kafka.Brokers, 3, 100*time.Millisecond)
		if err != nil {
			logger.Fatal("kafka producer", zap.Error(err))
		}
		k := usage.NewKafka(producer, cfg.Kafka.Topic)
		defer func() { _ = k.Close() }()
		export = k
	}

	// Services
	authSvc := service.NewAuthService(identities, []byte(cfg.Auth.JWTKey), cfg.Auth.AccessTTL, lim)
	registry := account.NewRegistry(account.NewLoader(profiles, activities, logger), feed, logger)
	defer registry.Close()
	ledger := account.NewLedger(profiles, mirrors, activities, feed, account.NewFeedNotifier(feed, logger), export, logger)
	profileSvc := account.NewProfiles(profiles, feed, logger)

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.MetricsUnary(),
			grpcserver.AuthUnary(authSvc),
		),
		grpc.ChainStreamInterceptor(
			grpcserver.RecoverStream(logger),
			grpcserver.LoggingStream(logger),
			grpcserver.MetricsStream(),
			grpcserver.AuthStream(authSvc),
		),
	}
	if cfg.Server.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("TLS disabled: serving plaintext gRPC")
	}
	s := grpc.NewServer(opts...)

	app := grpcserver.New(authSvc, registry, ledger, profileSvc, feed, logger)
	api.RegisterCodePilotServer(s, app)

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Server.Dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr), zap.Bool("tls", cfg.Server.TLSCert != ""))
		errCh <- s.Serve(lis)
	}()

	var ms *metrics.Server
	if cfg.Metrics.Addr != "" {
		ms = metrics.NewServer(cfg.Metrics.Addr, logger)
		go func() {
			if err := ms.Start(); err != nil {
				errCh <- err
			}
		}()
	}

	go account.NewResetter(profiles, feed, cfg.Ledger.ResetInterval, logger).Run(ctx)

	// Wait for stop
	select {
	case <-ctx.Done():
		hs.Shutdown()
		// graceful shutdown
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(cfg.Server.ShutdownTimeout):
			s.Stop()
		}
		if ms != nil {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			_ = ms.Shutdown(sctx)
			cancel()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
