// Command botworkerhost runs a bot-worker host process (spec §4.F/§6):
// it exposes the Create/TeachGame/Update/Delete contract the bot
// manager drives and owns the worker goroutine (plus decision-agent
// subprocess) for every bot it has been told to create.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/botworker"
	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/config"
	"github.com/StarHuntingGames/cowboy/internal/httpcommon"
	"github.com/StarHuntingGames/cowboy/internal/observability"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("warning: .env file not found")
	}
	fmt.Println("starting cowboy bot-worker host")

	cfg := config.Load()
	logger, err := observability.SetupLogger()
	if err != nil {
		log.Fatalf("cannot init logger: %v", err)
	}
	defer logger.Sync()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer.(*prometheus.Registry))

	amqpBus, err := bus.NewAMQPBus(bus.AMQPConfig{URL: cfg.AMQPURL, Logger: logger})
	if err != nil {
		logger.Fatal("cannot connect to amqp broker", zap.Error(err))
	}
	defer amqpBus.Close()

	authorityClient := botworker.NewHTTPAuthorityClient(cfg.AuthorityURL, cfg.BotDecisionTimeout)

	command, args := splitCommand(cfg.BotAgentCommand)
	host := botworker.NewHost(amqpBus, authorityClient, logger, metrics, command, args,
		func(gameID string) string {
			input, _ := bus.TopicNames(cfg.InputTopicPrefix, cfg.OutputTopicPrefix, gameID)
			return input
		},
		func(gameID string) string {
			_, output := bus.TopicNames(cfg.InputTopicPrefix, cfg.OutputTopicPrefix, gameID)
			return output
		},
	)
	host.AgentRateLimitPerSec = cfg.BotRateLimitPerSec
	host.AgentDecideTimeout = cfg.BotDecisionTimeout

	r := httpcommon.NewRouter()
	host.RegisterRoutes(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Info("bot-worker host listening", zap.String("addr", cfg.HTTPAddr))
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

// splitCommand turns "python3 agent.py --mode=speak" into its exec.Cmd
// parts. An empty command leaves the host unable to serve TeachGame
// until BOT_AGENT_COMMAND is configured.
func splitCommand(raw string) (string, []string) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}
