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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"

	authv1 "refresh-session-service/api/auth/v1"
	"refresh-session-service/internal/audit"
	"refresh-session-service/internal/config"
	"refresh-session-service/internal/denylist"
	healthhandler "refresh-session-service/internal/health/handler"
	"refresh-session-service/internal/identity"
	identityservice "refresh-session-service/internal/identity/service"
	"refresh-session-service/internal/logging"
	"refresh-session-service/internal/security"
	"refresh-session-service/internal/server"
	"refresh-session-service/internal/store"
	"refresh-session-service/internal/telemetry"
	telemetryotel "refresh-session-service/internal/telemetry/otel"
)

const (
	serviceName         = "refresh-session-service"
	healthCheckInterval = 10 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown otel")
		}
	}()

	tokens, err := security.NewTokenProviderFromKeys(security.KeyMaterial{
		Secret:     cfg.JWTSecret,
		PrivateKey: cfg.JWTPrivateKey,
		PublicKey:  cfg.JWTPublicKey,
	}, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	if err != nil {
		return fmt.Errorf("access token signing: %w", err)
	}

	checker := healthhandler.NewChecker(0)

	stores, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer stores.Close()
	if stores.InMemory() {
		logger.Warn().Msg("DATABASE_URL not set; using in-memory stores, sessions are lost on restart")
	} else {
		checker.Add("postgres", stores.Pool)
	}

	var deny denylist.Denylist = denylist.Noop{}
	if cfg.RedisURL != "" {
		rdb, err := denylist.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		redisDeny := denylist.NewRedisDenylist(rdb)
		checker.Add("redis", redisDeny)
		deny = redisDeny
	} else {
		logger.Warn().Msg("REDIS_URL not set; access tokens stay valid after logout until they expire")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	directory := identity.NewDirectory(stores.Users, stores.Identities, security.NewHasher(cfg.BcryptCost))
	authSvc := identityservice.NewAuthService(directory, stores.Sessions, tokens, cfg.RefreshTTL(), identityservice.Options{
		Denylist:           deny,
		Emitter:            audit.NewRecorder(logger, telemetryotel.NewEventEmitter(providers.LoggerProvider)),
		Logger:             logger,
		Metrics:            telemetry.NewMetrics(reg),
		RevokeChainOnReuse: cfg.RevokeChainOnReuse,
		StorageTimeout:     cfg.StorageTimeoutDuration(),
	})

	hs := health.NewServer()
	go healthhandler.SyncGRPCHealth(ctx, hs, checker, healthCheckInterval, authv1.AuthService_ServiceName)

	grpcSrv := server.NewServer(server.Deps{
		Auth:     authSvc,
		Tokens:   tokens,
		Denylist: deny,
		Health:   hs,
		Logger:   logger,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           healthhandler.Router(checker, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("ops HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	logger.Info().Msg("shutting down")
	hs.Shutdown()
	grpcSrv.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown ops HTTP server")
	}
	// In-flight audit emits finish before the log provider is shut down.
	time.Sleep(telemetry.ShutdownDrainDuration)
	logger.Info().Msg("server stopped")
	return serveErr
}
