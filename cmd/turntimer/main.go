// Command turntimer runs the per-game countdown service (spec §4.D):
// it watches every game's output topic and injects a synthetic
// Timeout command when the current player does not act in time.
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
	"github.com/StarHuntingGames/cowboy/internal/turntimer"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("warning: .env file not found")
	}
	fmt.Println("starting cowboy turn-timer service")

	cfg := config.Load()
	logger, err := observability.SetupLogger()
	if err != nil {
		log.Fatalf("cannot init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := observability.SetupTracerProvider(ctx, "cowboy-turntimer", cfg.TraceStdout, logger)
	if err != nil {
		logger.Fatal("cannot init tracer", zap.Error(err))
	}
	defer tp.Shutdown(ctx)

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer.(*prometheus.Registry))

	amqpBus, err := bus.NewAMQPBus(bus.AMQPConfig{URL: cfg.AMQPURL, Logger: logger})
	if err != nil {
		logger.Fatal("cannot connect to amqp broker", zap.Error(err))
	}
	defer amqpBus.Close()

	authorityClient := turntimer.NewHTTPAuthorityClient(cfg.AuthorityURL)
	timer := turntimer.New(authorityClient, amqpBus, logger, metrics, cfg.OutputTopicPrefix)
	if err := timer.Start(ctx); err != nil {
		logger.Fatal("cannot start turn-timer consumer", zap.Error(err))
	}

	r := httpcommon.NewRouter()
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Info("turntimer health server listening", zap.String("addr", cfg.HTTPAddr))
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
