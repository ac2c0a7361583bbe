// Command kq-server starts the keyqueue gRPC server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/keyqueue/internal/api"
	"github.com/and161185/keyqueue/internal/config"
	"github.com/and161185/keyqueue/internal/janitor"
	"github.com/and161185/keyqueue/internal/limiter"
	"github.com/and161185/keyqueue/internal/metrics"
	"github.com/and161185/keyqueue/internal/migrate"
	"github.com/and161185/keyqueue/internal/repository"
	"github.com/and161185/keyqueue/internal/repository/cached"
	"github.com/and161185/keyqueue/internal/repository/memory"
	"github.com/and161185/keyqueue/internal/repository/postgres"
	grpcserver "github.com/and161185/keyqueue/internal/server/grpc"
	"github.com/and161185/keyqueue/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// backend is the set of repositories of one storage engine.
type backend struct {
	users   repository.UserRepository
	clients repository.ClientRepository
	keys    repository.KeyPackageRepository
	conns   repository.ConnectionPackageRepository
	queues  repository.QueueRepository
	handles repository.HandleQueueRepository
	limiter limiter.Limiter
	close   func()
}

func openBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backend, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		log.Warn("using in-memory storage; data is lost on restart")
		st := memory.New()
		return &backend{
			users:   st.Users(),
			clients: st.Clients(),
			keys:    st.KeyPackages(),
			conns:   st.ConnectionPackages(),
			queues:  st.Queues(),
			handles: st.Handles(),
			limiter: st.Limiter(),
			close:   func() {},
		}, nil
	default:
		if err := migrate.Up(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("migrate up: %w", err)
		}
		if v, err := migrate.Version(ctx, cfg.DSN); err == nil {
			log.Info("schema ready", zap.Int64("version", v))
		}
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("pgxpool.New: %w", err)
		}
		db := &postgres.DB{Pool: pool}
		return &backend{
			users:   postgres.NewUserRepo(db),
			clients: postgres.NewClientRepo(db),
			keys:    postgres.NewKeyPackageRepo(db),
			conns:   postgres.NewConnectionPackageRepo(db),
			queues:  postgres.NewQueueRepo(db),
			handles: postgres.NewHandleQueueRepo(db),
			limiter: limiter.NewPG(pool),
			close:   db.Close,
		}, nil
	}
}

// main loads configuration, opens storage and serves gRPC until a signal arrives.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := cfg.Logger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer be.close()

	users := be.users
	if cfg.FriendshipCacheSize > 0 {
		cu, err := cached.NewUserRepo(be.users, cfg.FriendshipCacheSize)
		if err != nil {
			logger.Fatal("friendship cache", zap.Error(err))
		}
		users = cu
	}

	m := metrics.New()

	// Services
	clientSvc := service.NewClientService(users, be.clients, cfg.TokenAllowance)
	keySvc := service.NewKeyPackageService(users, be.keys, cfg.MaxBatch, m)
	connSvc := service.NewConnectionPackageService(be.conns, cfg.MaxBatch, m)
	queueSvc := service.NewQueueService(be.queues, cfg.MaxFetch, m)
	handleSvc := service.NewHandleService(be.handles, cfg.MaxFetch, m)
	issuer := service.NewTokenIssuer([]byte(cfg.JWTKey), cfg.AccessTTL)

	// gRPC server with interceptors
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.MetricsUnary(m),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary(issuer, be.limiter, m, grpcserver.PublicMethods()),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("TLS disabled; serving plaintext gRPC")
	}
	s := grpc.NewServer(opts...)

	app := grpcserver.New(grpcserver.Services{
		Clients:            clientSvc,
		KeyPackages:        keySvc,
		ConnectionPackages: connSvc,
		Queues:             queueSvc,
		Handles:            handleSvc,
	}, issuer)
	api.RegisterKeyQueueServer(s, app)

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.Dev {
		reflection.Register(s)
	}

	// Housekeeping
	jn := janitor.New(janitor.Config{
		PurgeInterval: cfg.JanitorInterval,
		Retention:     cfg.HandleRetention,
		ResetInterval: cfg.TokenResetInterval,
		Allowance:     cfg.TokenAllowance,
	}, handleSvc, be.limiter, logger.Named("janitor"))
	go jn.Run(ctx)

	// Metrics endpoint
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
	}

	// Listen
	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("tls", cfg.TLSCert != ""))
		errCh <- s.Serve(lis)
	}()

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
		case <-time.After(5 * time.Second):
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	if metricsSrv != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shCtx)
		cancel()
	}
	logger.Info("shutdown complete")
}
