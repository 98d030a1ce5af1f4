// Command authority runs the game-authority service: the single
// per-game state owner (spec §4.B), exposing the public /v2/games
// surface over HTTP.
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

	"github.com/StarHuntingGames/cowboy/internal/authority"
	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/config"
	"github.com/StarHuntingGames/cowboy/internal/httpcommon"
	"github.com/StarHuntingGames/cowboy/internal/observability"
	"github.com/StarHuntingGames/cowboy/internal/telemetry"

	_ "github.com/StarHuntingGames/cowboy/docs"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("warning: .env file not found")
	}
	fmt.Println("starting cowboy game-authority service")

	cfg := config.Load()
	logger, err := observability.SetupLogger()
	if err != nil {
		log.Fatalf("cannot init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := observability.SetupTracerProvider(ctx, "cowboy-authority", cfg.TraceStdout, logger)
	if err != nil {
		logger.Fatal("cannot init tracer", zap.Error(err))
	}
	defer tp.Shutdown(ctx)

	store := mustOpenStore(cfg, logger)
	defer store.Close()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer.(*prometheus.Registry))

	b, provisioner := mustOpenBus(cfg, logger)
	defer b.Close()

	botAssigner := authority.NewHTTPBotAssigner(cfg.BotManagerURL)
	mgr := authority.NewGameManager(ctx, store, b, provisioner, botAssigner, logger, metrics, cfg.SnapshotInterval)
	defer mgr.Close()
	mgr.LoadDefaultMapConfig(cfg.DefaultMapConfigPath)

	r := httpcommon.NewRouter()
	mgr.RegisterRoutes(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Info("authority listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	waitForShutdown(logger, srv)
}

func mustOpenStore(cfg config.Config, logger *zap.Logger) *telemetry.Store {
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

func mustOpenBus(cfg config.Config, logger *zap.Logger) (bus.Bus, bus.Provisioner) {
	amqpBus, err := bus.NewAMQPBus(bus.AMQPConfig{URL: cfg.AMQPURL, Logger: logger})
	if err != nil {
		logger.Fatal("cannot connect to amqp broker", zap.Error(err))
	}
	provisioner, err := bus.NewAMQPProvisioner(amqpBus.Conn(), cfg.InputTopicPrefix, cfg.OutputTopicPrefix)
	if err != nil {
		logger.Fatal("cannot open provisioner channel", zap.Error(err))
	}
	return amqpBus, provisioner
}

func waitForShutdown(logger *zap.Logger, srv *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
