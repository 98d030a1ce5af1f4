// Command botmanager runs the bot control-plane service (spec §4.E):
// it assigns bots to seats, load-balances bot workers across
// bot-worker hosts, and forwards each game's step stream to its bound
// bots.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/botmanager"
	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/config"
	"github.com/StarHuntingGames/cowboy/internal/httpcommon"
	"github.com/StarHuntingGames/cowboy/internal/observability"
	"github.com/StarHuntingGames/cowboy/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("warning: .env file not found")
	}
	fmt.Println("starting cowboy bot-manager service")

	cfg := config.Load()
	logger, err := observability.SetupLogger()
	if err != nil {
		log.Fatalf("cannot init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := observability.SetupTracerProvider(ctx, "cowboy-botmanager", cfg.TraceStdout, logger)
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

	hosts := parseHosts(cfg.BotWorkerHostURLs, cfg.BotWorkerHostCapacity)
	registry := botmanager.NewHostRegistry(hosts)

	mgr := botmanager.NewManager(registry, amqpBus, store, logger, metrics, cfg.OutputTopicPrefix)
	if err := mgr.StartControlConsumer(ctx); err != nil {
		logger.Fatal("cannot start bot-manager control consumer", zap.Error(err))
	}

	r := httpcommon.NewRouter()
	mgr.RegisterRoutes(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Info("botmanager listening", zap.String("addr", cfg.HTTPAddr))
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

// parseHosts turns BOT_WORKER_HOST_URLS ("http://host1:8085,http://host2:8085")
// into Host records, each given defaultCapacity unless the URL carries
// an explicit "url=capacity" override.
func parseHosts(raw string, defaultCapacity int) []botmanager.Host {
	var hosts []botmanager.Host
	for i, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		url, capacity := part, defaultCapacity
		if idx := strings.LastIndex(part, "="); idx > 0 {
			if c, err := strconv.Atoi(part[idx+1:]); err == nil {
				url, capacity = part[:idx], c
			}
		}
		hosts = append(hosts, botmanager.Host{
			ID:       fmt.Sprintf("host-%d", i),
			BaseURL:  url,
			Capacity: capacity,
		})
	}
	return hosts
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
