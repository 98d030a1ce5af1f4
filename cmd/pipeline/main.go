// Command pipeline runs the command-pipeline service: dedupe, reserved/
// not-running rejection, and the illegal-command rewrite-to-speak retry
// (spec §4.C).
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/config"
	"github.com/StarHuntingGames/cowboy/internal/httpcommon"
	"github.com/StarHuntingGames/cowboy/internal/observability"
	"github.com/StarHuntingGames/cowboy/internal/pipeline"
	"github.com/StarHuntingGames/cowboy/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("warning: .env file not found")
	}
	fmt.Println("starting cowboy command-pipeline service")

	cfg := config.Load()
	logger, err := observability.SetupLogger()
	if err != nil {
		log.Fatalf("cannot init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := observability.SetupTracerProvider(ctx, "cowboy-pipeline", cfg.TraceStdout, logger)
	if err != nil {
		logger.Fatal("cannot init tracer", zap.Error(err))
	}
	defer tp.Shutdown(ctx)

	store := openStore(cfg, logger)
	defer store.Close()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer.(*prometheus.Registry))

	amqpBus, err := bus.NewAMQPBus(bus.AMQPConfig{URL: cfg.AMQPURL, Logger: logger})
	if err != nil {
		logger.Fatal("cannot connect to amqp broker", zap.Error(err))
	}
	defer amqpBus.Close()

	// The pipeline never owns game state itself -- it calls the
	// authority service's internal apply-command endpoint so only one
	// process ever mutates a given game's actor (spec §6).
	authorityClient := pipeline.NewHTTPAuthorityClient(cfg.AuthorityURL)

	p := &pipeline.Pipeline{
		Manager:          authorityClient,
		Bus:              amqpBus,
		Store:            store,
		Logger:           logger,
		Metrics:          metrics,
		InputTopicPrefix: cfg.InputTopicPrefix,
	}
	if err := p.Start(ctx); err != nil {
		logger.Fatal("cannot start pipeline consumer", zap.Error(err))
	}

	r := httpcommon.NewRouter()
	p.RegisterRoutes(r)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Info("pipeline health server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(cfg config.Config, logger *zap.Logger) *telemetry.Store {
	if cfg.UseMemoryStore {
		return telemetry.NewMemoryStore()
	}
	db, err := telemetry.ConnectMySQL(cfg.DBDSN)
	if err != nil {
		logger.Warn("cannot connect db, falling back to in-memory store", zap.Error(err))
		return telemetry.NewMemoryStore()
	}
	return telemetry.New(db)
}
