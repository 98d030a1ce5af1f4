package botworker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/observability"
	"github.com/StarHuntingGames/cowboy/internal/rules"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

const maxRetriesPerTurn = 2
const speakFailPrefixBudget = 140

// AuthorityClient is the narrow slice of the authority HTTP surface a
// worker needs: fetching the current snapshot (spec §4.F step 4).
type AuthorityClient interface {
	GetGame(ctx context.Context, gameID string) (rules.GameInstance, error)
}

// Worker runs one bound seat's loop: spec §4.F's "subscribe, wait for
// this bot's turn, decide, publish" cycle. One Worker exists per bot
// binding, grounded on the teacher's bot.Bot (per-seat struct reacting
// to OnEvent) generalized from in-process dispatch to a bus publish and
// from a canned personality to an external decision agent.
type Worker struct {
	BotID      string
	PlayerID   string
	Seat       types.PlayerName
	GameID     string
	InputTopic string
	OutputTopic string

	Agent     Agent
	Bus       bus.Bus
	Authority AuthorityClient
	Logger    *zap.Logger
	Metrics   *observability.Metrics

	mu               sync.Mutex
	lastActedTurnNo  uint64
	hasSpokenOnce    bool
	retryCount       int
	lastOwnCommandID string

	cancel context.CancelFunc
}

// Start subscribes to the game's output topic under a consumer group
// scoped to this bot so it receives every event from the latest offset
// (spec §4.F step 1).
func (w *Worker) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	queue := fmt.Sprintf("botworker.%s", w.BotID)
	return w.Bus.Subscribe(runCtx, queue, w.OutputTopic, func(subCtx context.Context, routingKey string, payload []byte) error {
		return w.handleStep(subCtx, payload)
	})
}

func (w *Worker) Stop(ctx context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	_ = w.Agent.Shutdown(ctx)
}

func (w *Worker) handleStep(ctx context.Context, payload []byte) error {
	_ = w.Agent.Update(ctx, json.RawMessage(payload))

	var step types.StepEvent
	if err := json.Unmarshal(payload, &step); err != nil {
		w.Logger.Error("botworker: malformed step event", zap.Error(err))
		return nil
	}

	if step.EventType == types.EventGameFinished {
		w.Stop(ctx)
		return nil
	}
	switch step.EventType {
	case types.EventGameStarted, types.EventStepApplied, types.EventTimeoutApplied:
	default:
		return nil
	}

	game, err := w.Authority.GetGame(ctx, w.GameID)
	if err != nil {
		w.Logger.Warn("botworker: fetch snapshot failed", zap.Error(err))
		return nil
	}
	if game.Status != types.GameRunning || game.CurrentPlayerID != w.PlayerID {
		return nil
	}

	w.mu.Lock()
	if game.TurnNo <= w.lastActedTurnNo {
		w.mu.Unlock()
		return nil
	}
	if game.TurnNo != w.lastActedTurnNo+1 {
		w.retryCount = 0 // turn advanced past a retry window; reset
	}
	retryOfInvalid := step.ResultStatus == types.ResultInvalidCommand &&
		step.Command != nil && step.Command.CommandID == w.lastOwnCommandID &&
		w.retryCount < maxRetriesPerTurn
	w.mu.Unlock()

	cmd := w.decide(ctx, game, step, retryOfInvalid)
	cmdPayload, err := json.Marshal(cmd)
	if err != nil {
		w.Logger.Error("botworker: marshal command", zap.Error(err))
		return nil
	}
	if err := w.Bus.Publish(ctx, w.InputTopic, cmdPayload); err != nil {
		w.Logger.Error("botworker: publish command failed", zap.Error(err))
		return nil
	}

	w.mu.Lock()
	w.lastActedTurnNo = game.TurnNo
	w.lastOwnCommandID = cmd.CommandID
	if retryOfInvalid {
		w.retryCount++
	} else {
		w.retryCount = 0
	}
	if cmd.CommandType == types.CommandSpeak {
		w.hasSpokenOnce = true
	}
	w.mu.Unlock()
	return nil
}

// decide implements spec §4.F step 4's decision tree: skip the agent on
// a same-turn retry of an already-rejected command, fall back to a
// speak on any agent failure or malformed decision, and force a speak
// once per bot lifetime so every bot utters at least one line.
func (w *Worker) decide(ctx context.Context, game rules.GameInstance, step types.StepEvent, retryOfInvalid bool) types.CommandEnvelope {
	base := types.CommandEnvelope{
		CommandID: fmt.Sprintf("bot-%s-%d", w.PlayerID, time.Now().UnixMilli()),
		Source:    types.SourceBot,
		GameID:    w.GameID,
		PlayerID:  w.PlayerID,
		TurnNo:    game.TurnNo,
		SentAt:    time.Now().UTC(),
	}

	if retryOfInvalid {
		return w.fallbackSpeak(base, "repeated illegal action")
	}

	snapshot, err := json.Marshal(game)
	if err != nil {
		return w.fallbackSpeak(base, "snapshot marshal failed")
	}

	w.mu.Lock()
	forceSpeak := !w.hasSpokenOnce
	w.mu.Unlock()

	decision, err := w.Agent.Decide(ctx, DecideRequest{Snapshot: snapshot, ForceSpeak: forceSpeak, RetryOfInvalid: retryOfInvalid})
	if err != nil {
		return w.fallbackSpeak(base, err.Error())
	}

	switch types.CommandType(decision.CommandType) {
	case types.CommandMove, types.CommandShoot, types.CommandShield:
		dir := types.Direction(decision.Direction)
		if !dir.Valid() {
			return w.fallbackSpeak(base, "invalid decision: missing direction")
		}
		base.CommandType = types.CommandType(decision.CommandType)
		base.Direction = dir
		return base
	case types.CommandSpeak:
		if decision.SpeakText == "" {
			return w.fallbackSpeak(base, "invalid decision: missing speak text")
		}
		base.CommandType = types.CommandSpeak
		base.SpeakText = decision.SpeakText
		return base
	default:
		return w.fallbackSpeak(base, "invalid decision: unsupported command type")
	}
}

func (w *Worker) fallbackSpeak(base types.CommandEnvelope, reason string) types.CommandEnvelope {
	text := "bot fail:" + reason
	if len(text) > speakFailPrefixBudget {
		text = text[:speakFailPrefixBudget]
	}
	base.CommandType = types.CommandSpeak
	base.SpeakText = text
	return base
}
