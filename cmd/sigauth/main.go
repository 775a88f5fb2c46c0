package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/sigauth/adapters/attestation"
	"github.com/layer-3/sigauth/adapters/events"
	"github.com/layer-3/sigauth/adapters/store"
	"github.com/layer-3/sigauth/config"
	"github.com/layer-3/sigauth/ledger"
	"github.com/layer-3/sigauth/log"
	"github.com/layer-3/sigauth/metrics"
	"github.com/layer-3/sigauth/ports"
	"github.com/layer-3/sigauth/service"
	transport "github.com/layer-3/sigauth/transport/http"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("SIGAUTH_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func run(ctx context.Context, cfg config.Config, logger log.Logger) error {
	verifyKey, err := config.LoadAttestationKey(cfg.Attestation.KeyPath)
	if err != nil {
		return err
	}

	m := metrics.New(cfg.Metrics.Namespace)

	var redisClient *redis.Client
	if cfg.Store.Driver == config.StoreRedis || cfg.Events.Driver == config.EventsRedisStream {
		opts, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach Redis: %w", err)
		}
	}

	var st ports.Store
	switch cfg.Store.Driver {
	case config.StoreRedis:
		st = store.NewRedisStore(redisClient, cfg.Store.RedisPrefix)
	default:
		st = store.NewMemoryStore()
	}

	seqOpts := []ledger.Option{
		ledger.WithLogger(logger.Module("ledger")),
		ledger.WithMetrics(m),
	}

	publisher, err := newPublisher(cfg, redisClient, logger.Module("events"))
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
		seqOpts = append(seqOpts, ledger.WithPublisher(events.NewWatermillPublisher(publisher)))
	}

	seq := ledger.NewSequencer(st, seqOpts...)
	authService := service.NewAuthService(seq, st, logger.Module("service"), m)
	attestor := attestation.NewJWTAttestor(verifyKey)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := transport.SetupRouter(authService, attestor, m, logger.Module("http"))

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	seqDone := make(chan error, 1)
	seqCtx, stopSeq := context.WithCancel(context.Background())
	defer stopSeq()
	go func() {
		seqDone <- seq.Run(seqCtx)
	}()

	errChan := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", httpServer.Addr).
			Str("store", cfg.Store.Driver).
			Str("events", cfg.Events.Driver).
			Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errChan:
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	// In-flight requests are drained, so nothing is left to submit
	stopSeq()
	if err := <-seqDone; err != nil {
		return fmt.Errorf("sequencer error: %w", err)
	}

	logger.Info().Msg("server shut down gracefully")
	return nil
}

func newPublisher(cfg config.Config, redisClient *redis.Client, logger log.Logger) (message.Publisher, error) {
	wmLogger := events.NewLoggerAdapter(logger)

	switch cfg.Events.Driver {
	case config.EventsRedisStream:
		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			wmLogger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis publisher: %w", err)
		}
		return publisher, nil
	case config.EventsGoChannel:
		return gochannel.NewGoChannel(gochannel.Config{}, wmLogger), nil
	default:
		return nil, nil
	}
}
