// Package authority is the sole mutator of game state (spec §4.B): one
// GameActor per game_id serializes every StartGame/ApplyCommand/
// FinishGame/RecordRejection call behind a command channel, exactly the
// way the teacher's room.RoomActor serializes command handling for one
// room. GameManager is the teacher's RoomManager generalized to own
// GameActors instead, including its crash-recovery restart path.
package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/observability"
	"github.com/StarHuntingGames/cowboy/internal/rules"
	"github.com/StarHuntingGames/cowboy/internal/telemetry"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

// ApplyResult is what ApplyCommand/StartGame/FinishGame return to the
// command pipeline (spec §4.B).
type ApplyResult struct {
	Accepted    bool              `json:"accepted"`
	Applied     bool              `json:"applied"`
	ConsumeTurn bool              `json:"consume_turn"`
	Reason      string            `json:"reason,omitempty"`
	Game        rules.GameInstance `json:"game"`
}

type commandRequest struct {
	fn   func() (ApplyResult, error)
	resp chan commandResponse
}

type commandResponse struct {
	result ApplyResult
	err    error
}

// GameActor owns one game's authoritative state.
type GameActor struct {
	GameID string

	ctx     context.Context
	onCrash func(gameID string)

	mu   sync.RWMutex
	game rules.GameInstance

	store            *telemetry.Store
	publisher        bus.Bus
	logger           *zap.Logger
	metrics          *observability.Metrics
	snapshotInterval int64

	cmdCh chan commandRequest
}

func newGameActor(loopCtx context.Context, initial rules.GameInstance, st *telemetry.Store, publisher bus.Bus, logger *zap.Logger, metrics *observability.Metrics, snapshotInterval int64, onCrash func(string)) *GameActor {
	ga := &GameActor{
		GameID:           initial.GameID,
		ctx:              loopCtx,
		onCrash:          onCrash,
		game:             initial,
		store:            st,
		publisher:        publisher,
		logger:           logger,
		metrics:          metrics,
		snapshotInterval: snapshotInterval,
		cmdCh:            make(chan commandRequest, 64),
	}
	go ga.loop(loopCtx)
	return ga
}

func (ga *GameActor) loop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			ga.logger.Error("game actor crashed",
				zap.String("game_id", ga.GameID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			if ga.onCrash != nil {
				go ga.onCrash(ga.GameID)
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-ga.cmdCh:
			result, err, fatal := ga.execute(req.fn)
			req.resp <- commandResponse{result: result, err: err}
			if fatal {
				panic(err)
			}
		}
	}
}

func (ga *GameActor) execute(fn func() (ApplyResult, error)) (result ApplyResult, err error, fatal bool) {
	defer func() {
		if r := recover(); r != nil {
			ga.logger.Error("game actor operation panic",
				zap.String("game_id", ga.GameID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("game actor panic: %v", r)
			fatal = true
		}
	}()
	result, err = fn()
	return result, err, false
}

// dispatch serializes fn behind the actor's command channel.
func (ga *GameActor) dispatch(fn func() (ApplyResult, error)) (ApplyResult, error) {
	resp := make(chan commandResponse, 1)
	select {
	case ga.cmdCh <- commandRequest{fn: fn, resp: resp}:
	case <-ga.ctx.Done():
		return ApplyResult{}, fmt.Errorf("game actor stopped")
	}
	select {
	case r := <-resp:
		return r.result, r.err
	case <-ga.ctx.Done():
		return ApplyResult{}, fmt.Errorf("game actor stopped")
	}
}

func (ga *GameActor) snapshotLocked() rules.GameInstance {
	return ga.game.Copy()
}

// StartGame transitions Created -> Running (spec §4.B).
func (ga *GameActor) StartGame(ctx context.Context) (ApplyResult, error) {
	return ga.dispatch(func() (ApplyResult, error) {
		ga.mu.Lock()
		defer ga.mu.Unlock()

		switch ga.game.Status {
		case types.GameRunning:
			return ApplyResult{Accepted: false, Reason: ReasonAlreadyRunning, Game: ga.snapshotLocked()}, nil
		case types.GameFinished:
			return ApplyResult{Accepted: false, Reason: ReasonGameFinished, Game: ga.snapshotLocked()}, nil
		}

		now := time.Now().UTC()
		ga.game.Status = types.GameRunning
		ga.game.StartedAt = &now
		ga.game.TurnStartedAt = &now
		ga.game.TurnNo = 1
		ga.game.RoundNo = 1
		ga.game.CurrentPlayerID = ga.game.State.Players[0].PlayerID
		ga.game.LastStepSeq++

		step := types.StepEvent{
			GameID:       ga.GameID,
			StepSeq:      ga.game.LastStepSeq,
			TurnNo:       ga.game.TurnNo,
			RoundNo:      ga.game.RoundNo,
			EventType:       types.EventGameStarted,
			ResultStatus:    types.ResultApplied,
			CurrentPlayerID: ga.game.CurrentPlayerID,
			GameStatus:      ga.game.Status,
			StateAfter:      ga.game.State.ToWire(),
			CreatedAt:       now,
		}
		if err := ga.persistAndPublish(ctx, step, nil); err != nil {
			return ApplyResult{}, err
		}
		return ApplyResult{Accepted: true, Applied: true, Game: ga.snapshotLocked()}, nil
	})
}

// CommandRequest is what the pipeline passes to ApplyCommand: an
// already-legality-screened command to run through the rules engine.
type CommandRequest struct {
	Command     types.CommandEnvelope
	Speculative bool
}

// ApplyCommand validates turn/player/alive state and, if legal,
// dispatches to the rules engine (spec §4.B). When req.Speculative is
// set and the outcome is a rejection, the rejection is returned without
// allocating a step_seq or publishing anything, so the command pipeline
// can probe legality before deciding whether to rewrite the command
// into a Speak (spec §4.C step 5) without producing two step events for
// what the pipeline ultimately records as one (spec §4.C point 7:
// "exactly one step event").
func (ga *GameActor) ApplyCommand(ctx context.Context, req CommandRequest) (ApplyResult, error) {
	return ga.dispatch(func() (ApplyResult, error) {
		ga.mu.Lock()
		defer ga.mu.Unlock()

		cmd := req.Command

		reject := func(reason string) (ApplyResult, error) {
			result := ApplyResult{Accepted: false, Reason: reason, Game: ga.snapshotLocked()}
			if req.Speculative {
				return result, nil
			}
			return ga.commitLocked(ctx, &cmd, types.EventStepApplied, rejectionResultStatus(reason), result)
		}

		if ga.game.Status != types.GameRunning {
			return reject(ReasonGameNotRunning)
		}
		if cmd.CommandType != types.CommandTimeout && cmd.PlayerID != ga.game.CurrentPlayerID {
			return reject(ReasonInvalidTurnPlayer)
		}
		idx := ga.game.State.IndexOf(cmd.PlayerID)
		if idx == -1 {
			return reject(ReasonInvalidTurnPlayer)
		}
		if cmd.TurnNo != ga.game.TurnNo {
			return reject(ReasonStaleTurnNo)
		}
		if !ga.game.State.Players[idx].Alive {
			return reject(ReasonPlayerDead)
		}

		var applied, consume bool
		var reason string
		switch cmd.CommandType {
		case types.CommandMove:
			applied, consume, reason = rules.ApplyMove(&ga.game.State, idx, cmd.Direction)
		case types.CommandShoot:
			applied, consume, reason = rules.ApplyShoot(&ga.game.State, idx, cmd.Direction)
		case types.CommandShield:
			applied, consume, reason = rules.ApplyShield(&ga.game.State, idx, cmd.Direction)
		case types.CommandSpeak:
			applied, consume, reason = rules.ApplySpeak(cmd.SpeakText)
		case types.CommandTimeout:
			applied, consume, reason = true, true, ""
		default:
			return reject(ReasonUnknownCommandType)
		}

		if !applied && req.Speculative {
			return ApplyResult{Accepted: true, Reason: reason, Game: ga.snapshotLocked()}, nil
		}

		result := ApplyResult{Accepted: true, Applied: applied, ConsumeTurn: consume, Reason: reason}

		eventType := types.EventStepApplied
		resultStatus := types.ResultInvalidCommand
		if applied {
			resultStatus = types.ResultApplied
			if cmd.CommandType == types.CommandTimeout {
				eventType = types.EventTimeoutApplied
				resultStatus = types.ResultTimeoutApplied
			}
		}

		if consume {
			next, wrapped := rules.AdvanceTurn(&ga.game.State, idx)
			ga.game.CurrentPlayerID = ga.game.State.Players[next].PlayerID
			ga.game.TurnNo++
			if wrapped {
				ga.game.RoundNo++
			}
			now := time.Now().UTC()
			ga.game.TurnStartedAt = &now
		}

		return ga.commitLocked(ctx, &cmd, eventType, resultStatus, result)
	})
}

// rejectionResultStatus maps ApplyCommand's pre-rules-engine rejection
// reasons onto their wire result_status (spec §4.C step 3: a
// GAME_NOT_RUNNING rejection carries InvalidTurn; the ground truth's
// main.rs applies the same classification to INVALID_TURN_PLAYER and
// PLAYER_DEAD, and classifies STALE_TURN_NO as IgnoredTimeout since a
// stale turn_no is what a redelivered/late command looks like to the
// authority). Anything else -- unknown command type, or a rules-engine
// content rejection -- stays InvalidCommand.
func rejectionResultStatus(reason string) types.ResultStatus {
	switch reason {
	case ReasonStaleTurnNo:
		return types.ResultIgnoredTimeout
	case ReasonInvalidTurnPlayer, ReasonPlayerDead, ReasonGameNotRunning:
		return types.ResultInvalidTurn
	default:
		return types.ResultInvalidCommand
	}
}

// commitLocked must be called with ga.mu held. It allocates the next
// step_seq, persists the step (with a dedup record keyed by the
// command's command_id when it carries one) and publishes it, filling
// in result.Game from the post-commit snapshot.
func (ga *GameActor) commitLocked(ctx context.Context, cmd *types.CommandEnvelope, eventType types.EventType, status types.ResultStatus, result ApplyResult) (ApplyResult, error) {
	ga.game.LastStepSeq++

	envelope := *cmd
	step := types.StepEvent{
		GameID:          ga.GameID,
		StepSeq:         ga.game.LastStepSeq,
		TurnNo:          ga.game.TurnNo,
		RoundNo:         ga.game.RoundNo,
		EventType:       eventType,
		ResultStatus:    status,
		Command:         &envelope,
		CurrentPlayerID: ga.game.CurrentPlayerID,
		GameStatus:      ga.game.Status,
		StateAfter:      ga.game.State.ToWire(),
		CreatedAt:       time.Now().UTC(),
	}

	var dedup *telemetry.DedupRecord
	if cmd.CommandID != "" {
		dedup = &telemetry.DedupRecord{
			GameID:    ga.GameID,
			CommandID: cmd.CommandID,
			Status:    string(status),
			CreatedAt: step.CreatedAt,
		}
	}
	if err := ga.persistAndPublish(ctx, step, dedup); err != nil {
		return ApplyResult{}, err
	}
	result.Game = ga.snapshotLocked()
	return result, nil
}

// FinishGame marks the game Finished when exactly one player remains
// alive (spec §4.B).
func (ga *GameActor) FinishGame(ctx context.Context, expectedTurnNo *uint64) (ApplyResult, error) {
	return ga.dispatch(func() (ApplyResult, error) {
		ga.mu.Lock()
		defer ga.mu.Unlock()

		if ga.game.Status == types.GameFinished {
			return ApplyResult{Accepted: true, Applied: false, Reason: ReasonAlreadyFinished, Game: ga.snapshotLocked()}, nil
		}
		if expectedTurnNo != nil && *expectedTurnNo != ga.game.TurnNo {
			return ApplyResult{Accepted: false, Reason: ReasonStaleTurnNo, Game: ga.snapshotLocked()}, nil
		}
		if ga.game.State.AliveCount() != 1 {
			return ApplyResult{Accepted: false, Reason: ReasonNotLastPlayerLeft, Game: ga.snapshotLocked()}, nil
		}

		ga.game.Status = types.GameFinished
		ga.game.LastStepSeq++
		step := types.StepEvent{
			GameID:          ga.GameID,
			StepSeq:         ga.game.LastStepSeq,
			TurnNo:          ga.game.TurnNo,
			RoundNo:         ga.game.RoundNo,
			EventType:       types.EventGameFinished,
			ResultStatus:    types.ResultApplied,
			CurrentPlayerID: ga.game.CurrentPlayerID,
			GameStatus:      ga.game.Status,
			StateAfter:      ga.game.State.ToWire(),
			CreatedAt:       time.Now().UTC(),
		}
		if err := ga.persistAndPublish(ctx, step, nil); err != nil {
			return ApplyResult{}, err
		}
		return ApplyResult{Accepted: true, Applied: true, Game: ga.snapshotLocked()}, nil
	})
}

// RecordRejection allocates a fresh step_seq and persists+publishes a
// pipeline-level rejection step (reserved type, duplicate command,
// game-not-running, or a late timeout/command) through the same
// per-game dispatch channel authority's own applies use, so
// last_step_seq stays strictly increasing across *every* step emitted
// for a game, not just the ones that reach the rules engine (spec §3).
// When cmd is non-nil its command_id is recorded as a dedup outcome in
// the same persisted transaction as the step, closing the window
// between the pipeline's dedup check and the step it emits.
func (ga *GameActor) RecordRejection(ctx context.Context, cmd *types.CommandEnvelope, reason string, status types.ResultStatus) (ApplyResult, error) {
	return ga.dispatch(func() (ApplyResult, error) {
		ga.mu.Lock()
		defer ga.mu.Unlock()

		ga.game.LastStepSeq++
		step := types.StepEvent{
			GameID:          ga.GameID,
			StepSeq:         ga.game.LastStepSeq,
			TurnNo:          ga.game.TurnNo,
			RoundNo:         ga.game.RoundNo,
			EventType:       types.EventStepApplied,
			ResultStatus:    status,
			Command:         cmd,
			CurrentPlayerID: ga.game.CurrentPlayerID,
			GameStatus:      ga.game.Status,
			StateAfter:      ga.game.State.ToWire(),
			CreatedAt:       time.Now().UTC(),
		}

		var dedup *telemetry.DedupRecord
		if cmd != nil {
			dedup = &telemetry.DedupRecord{
				GameID:    ga.GameID,
				CommandID: cmd.CommandID,
				Status:    string(status),
				CreatedAt: step.CreatedAt,
			}
		}
		if err := ga.persistAndPublish(ctx, step, dedup); err != nil {
			return ApplyResult{}, err
		}
		return ApplyResult{Accepted: true, Applied: false, Reason: reason, Game: ga.snapshotLocked()}, nil
	})
}

// GetGame returns a read-only copy without going through the command
// channel (spec §4.B: "reads can proceed without blocking mutations").
func (ga *GameActor) GetGame() rules.GameInstance {
	ga.mu.RLock()
	defer ga.mu.RUnlock()
	return ga.snapshotLocked()
}

// persistAndPublish must be called with ga.mu held. It writes the step
// record (with a snapshot every snapshotInterval steps), then publishes
// the step event to the output topic.
func (ga *GameActor) persistAndPublish(ctx context.Context, step types.StepEvent, dedup *telemetry.DedupRecord) error {
	payload, err := json.Marshal(step)
	if err != nil {
		return err
	}
	var commandID string
	if step.Command != nil {
		commandID = step.Command.CommandID
	}
	rec := telemetry.StepRecord{
		GameID:      ga.GameID,
		Seq:         int64(step.StepSeq),
		StepID:      fmt.Sprintf("%s-%d", ga.GameID, step.StepSeq),
		CommandID:   commandID,
		EventType:   string(step.EventType),
		ActorPlayer: ga.game.CurrentPlayerID,
		PayloadJSON: string(payload),
		ServerTime:  step.CreatedAt,
	}

	var snap *telemetry.Snapshot
	if ga.snapshotInterval > 0 && step.StepSeq%uint64(ga.snapshotInterval) == 0 {
		instanceJSON, err := json.Marshal(ga.game)
		if err != nil {
			return err
		}
		snap = &telemetry.Snapshot{
			GameID:    ga.GameID,
			LastSeq:   int64(step.StepSeq),
			StateJSON: string(instanceJSON),
			CreatedAt: step.CreatedAt,
		}
	}

	if ga.store != nil {
		if err := ga.store.AppendStep(ctx, rec, dedup, snap); err != nil {
			return fmt.Errorf("authority: persist step: %w", err)
		}
	}
	if ga.publisher != nil {
		if err := ga.publisher.Publish(ctx, ga.game.OutputTopic, payload); err != nil {
			ga.logger.Error("authority: publish step failed", zap.String("game_id", ga.GameID), zap.Error(err))
		}
	}
	return nil
}
