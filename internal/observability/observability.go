// Package observability sets up the logging, metrics and tracing every
// cmd/ binary wires on startup, adapted from the teacher's
// internal/observability (zap + prometheus + OpenTelemetry stdout
// exporter) with metrics renamed and extended for the game-authority,
// command-pipeline, turn-timer, bot-manager, bot-worker and watcher
// services instead of the teacher's room/agent metrics.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"
)

// Metrics holds every named metric referenced across cowboy's services.
// Not every service populates every field; unused metrics simply never
// get observations.
type Metrics struct {
	ActiveGames        prometheus.Gauge
	PipelineQueueLen   *prometheus.GaugeVec
	CommandLatency     *prometheus.HistogramVec
	DedupHitTotal      prometheus.Counter
	CommandRejectTotal *prometheus.CounterVec
	TimerFireTotal     prometheus.Counter
	BotDecisionLatency prometheus.Observer
	BotFallbackTotal   prometheus.Counter
	WatcherStreams     prometheus.Gauge
	StoreTxLatency     prometheus.Observer
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer.(*prometheus.Registry)
	}
	return &Metrics{
		ActiveGames: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "cowboy_active_games",
			Help: "Number of games currently in-progress",
		}),
		PipelineQueueLen: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "cowboy_pipeline_queue_len",
			Help: "Buffered commands waiting per game in the pipeline",
		}, []string{"game_id"}),
		CommandLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cowboy_command_latency_ms",
			Help:    "Latency for processing one command end to end",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"command_type"}),
		DedupHitTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cowboy_dedup_hit_total",
			Help: "Commands dropped because command_id was already seen",
		}),
		CommandRejectTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "cowboy_command_reject_total",
			Help: "Commands rejected, by reason",
		}, []string{"reason"}),
		TimerFireTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cowboy_timer_fire_total",
			Help: "Synthetic timeout commands emitted by the turn timer",
		}),
		BotDecisionLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "cowboy_bot_decision_latency_ms",
			Help:    "Latency of the external decision agent's /decide call",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		BotFallbackTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cowboy_bot_fallback_total",
			Help: "Bot turns resolved by the fallback speak instead of a decision",
		}),
		WatcherStreams: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "cowboy_watcher_active_streams",
			Help: "Open watcher websocket streams",
		}),
		StoreTxLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "cowboy_store_tx_latency_ms",
			Help:    "Telemetry store transaction latency",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

func SetupLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	return cfg.Build()
}

// SetupTracerProvider mirrors the teacher's trace setup: a stdout
// exporter when enabled, otherwise spans are created but never
// exported, which keeps instrumentation call sites identical either way.
func SetupTracerProvider(ctx context.Context, serviceName string, stdout bool, logger *zap.Logger) (*sdktrace.TracerProvider, error) {
	var exporter *stdouttrace.Exporter
	var err error
	if stdout {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
	}

	rs := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(rs),
	)
	if exporter != nil {
		tp.RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))
	}
	otel.SetTracerProvider(tp)
	logger.Info("tracer initialized", zap.String("service", serviceName))
	return tp, nil
}
