// Package turntimer watches every game's output topic and re-arms a
// per-game countdown on each step that "resets" the turn clock,
// publishing a synthetic Timeout command when a countdown expires
// without a generation bump (spec §4.D). Cancellation is generation-
// based rather than context.CancelFunc-based so a reset never needs to
// reach into an in-flight timer.AfterFunc to stop it -- the stale
// goroutine simply finds its generation superseded on wake and exits,
// the same pattern the teacher's bot package uses for its own
// retryable timers (internal/bot/bot.go).
package turntimer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/observability"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

// TimerEntry is the (game_id) -> (generation, turn_no) record spec §3
// calls out; the timer owns it exclusively.
type TimerEntry struct {
	Generation uint64
	TurnNo     uint64
}

type Timer struct {
	Manager           AuthorityClient
	Bus               bus.Bus
	Logger            *zap.Logger
	Metrics           *observability.Metrics
	OutputTopicPrefix string
	QueueName         string

	mu      sync.Mutex
	entries map[string]*TimerEntry
}

func New(mgr AuthorityClient, b bus.Bus, logger *zap.Logger, metrics *observability.Metrics, outputTopicPrefix string) *Timer {
	return &Timer{
		Manager:           mgr,
		Bus:               b,
		Logger:            logger,
		Metrics:           metrics,
		OutputTopicPrefix: outputTopicPrefix,
		entries:           make(map[string]*TimerEntry),
	}
}

func (t *Timer) Start(ctx context.Context) error {
	pattern := bus.TopicPattern(t.OutputTopicPrefix)
	queue := t.QueueName
	if queue == "" {
		queue = "turntimer." + t.OutputTopicPrefix
	}
	return t.Bus.Subscribe(ctx, queue, pattern, func(subCtx context.Context, routingKey string, payload []byte) error {
		return t.handleStep(ctx, payload)
	})
}

func resetsTimer(step types.StepEvent) bool {
	if step.EventType == types.EventGameStarted {
		return true
	}
	return step.ResultStatus == types.ResultApplied || step.ResultStatus == types.ResultTimeoutApplied
}

func (t *Timer) handleStep(ctx context.Context, payload []byte) error {
	var step types.StepEvent
	if err := json.Unmarshal(payload, &step); err != nil {
		t.Logger.Error("turntimer: malformed step event", zap.Error(err))
		return nil
	}

	if step.EventType == types.EventGameFinished {
		t.mu.Lock()
		delete(t.entries, step.GameID)
		t.mu.Unlock()
		return nil
	}
	if !resetsTimer(step) {
		return nil
	}

	game, err := t.Manager.GetGame(ctx, step.GameID)
	if err != nil {
		return nil
	}
	if game.Status != types.GameRunning {
		return nil
	}

	t.mu.Lock()
	entry := &TimerEntry{TurnNo: game.TurnNo}
	if existing, ok := t.entries[step.GameID]; ok {
		entry.Generation = existing.Generation + 1
	}
	t.entries[step.GameID] = entry
	generation := entry.Generation
	t.mu.Unlock()

	timeout := game.TurnTimeoutSec
	if timeout < 1 {
		timeout = 1
	}
	go t.schedule(step.GameID, generation, game.TurnNo, time.Duration(timeout)*time.Second)
	return nil
}

func (t *Timer) schedule(gameID string, generation uint64, turnNo uint64, after time.Duration) {
	<-time.After(after)
	t.fire(gameID, generation, turnNo)
}

func (t *Timer) fire(gameID string, generation uint64, turnNo uint64) {
	t.mu.Lock()
	entry, ok := t.entries[gameID]
	stale := !ok || entry.Generation != generation || entry.TurnNo != turnNo
	t.mu.Unlock()
	if stale {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	game, err := t.Manager.GetGame(ctx, gameID)
	if err != nil || game.Status != types.GameRunning || game.TurnNo != turnNo {
		return
	}

	cmd := types.CommandEnvelope{
		CommandID:   fmt.Sprintf("timeout-%s-%d-%d", gameID, turnNo, time.Now().UnixMilli()),
		Source:      types.SourceTimer,
		GameID:      gameID,
		PlayerID:    game.CurrentPlayerID,
		CommandType: types.CommandTimeout,
		TurnNo:      turnNo,
		SentAt:      time.Now().UTC(),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		t.Logger.Error("turntimer: marshal timeout command", zap.Error(err))
		return
	}
	if err := t.Bus.Publish(ctx, game.InputTopic, payload); err != nil {
		t.Logger.Error("turntimer: publish timeout command failed", zap.String("game_id", gameID), zap.Error(err))
		return
	}
	if t.Metrics != nil {
		t.Metrics.TimerFireTotal.Inc()
	}
}
