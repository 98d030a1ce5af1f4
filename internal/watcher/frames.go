// Package watcher exposes the two read surfaces spec §4.G describes for
// any UI or spectator tooling: a point-in-time Snapshot and a push
// Stream of typed frames. Grounded on the teacher's internal/realtime
// (gorilla/websocket session pump) generalized from room-subscriber
// event projection to per-game step-event frame derivation.
package watcher

import (
	"time"

	"github.com/StarHuntingGames/cowboy/internal/rules"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

type FrameType string

const (
	FrameConnected    FrameType = "CONNECTED"
	FrameSnapshot     FrameType = "SNAPSHOT"
	FrameMove         FrameType = "MOVE"
	FrameShoot        FrameType = "SHOOT"
	FrameShield       FrameType = "SHIELD"
	FrameSpeak        FrameType = "SPEAK"
	FrameTimeout      FrameType = "TIMEOUT"
	FrameGameStarted  FrameType = "GAME_STARTED"
	FrameGameFinished FrameType = "GAME_FINISHED"
	FrameStepApplied  FrameType = "STEP_APPLIED"
	FrameError        FrameType = "ERROR"
)

// Frame is the envelope pushed down the stream: a typed event carrying
// the originating step fields plus a freshly-fetched snapshot when one
// is available (spec §4.G).
type Frame struct {
	Type         FrameType              `json:"type"`
	GameID       string                 `json:"game_id"`
	StepSeq      uint64                 `json:"step_seq,omitempty"`
	TurnNo       uint64                 `json:"turn_no,omitempty"`
	RoundNo      uint64                 `json:"round_no,omitempty"`
	ResultStatus types.ResultStatus     `json:"result_status,omitempty"`
	Command      *types.CommandEnvelope `json:"command,omitempty"`
	Snapshot     *rules.GameInstance    `json:"snapshot,omitempty"`
	Error        string                 `json:"error,omitempty"`
	At           time.Time              `json:"at"`
}

// errorFrame reports a failed poll without dropping the connection, so
// a slow/unreachable authority doesn't leave the client staring at a
// silently stalled stream (ground truth: game-watcher-service/src/
// main.rs:245-260's ERROR branch of handle_socket's poll tick).
func errorFrame(gameID string, err error) Frame {
	return Frame{Type: FrameError, GameID: gameID, Error: err.Error(), At: time.Now().UTC()}
}

// frameTypeForStep derives the typed frame spec §4.G calls for from a
// step event's event type and, when present, its command's type.
func frameTypeForStep(step types.StepEvent) FrameType {
	switch step.EventType {
	case types.EventGameStarted:
		return FrameGameStarted
	case types.EventGameFinished:
		return FrameGameFinished
	case types.EventTimeoutApplied:
		return FrameTimeout
	}
	if step.Command == nil {
		return FrameStepApplied
	}
	switch step.Command.CommandType {
	case types.CommandMove:
		return FrameMove
	case types.CommandShoot:
		return FrameShoot
	case types.CommandShield:
		return FrameShield
	case types.CommandSpeak:
		return FrameSpeak
	case types.CommandTimeout:
		return FrameTimeout
	default:
		return FrameStepApplied
	}
}

func frameFromStep(step types.StepEvent, snapshot *rules.GameInstance) Frame {
	return Frame{
		Type:         frameTypeForStep(step),
		GameID:       step.GameID,
		StepSeq:      step.StepSeq,
		TurnNo:       step.TurnNo,
		RoundNo:      step.RoundNo,
		ResultStatus: step.ResultStatus,
		Command:      step.Command,
		Snapshot:     snapshot,
		At:           time.Now().UTC(),
	}
}

// statusTransitionFrame builds the frame for a poll tick the caller has
// already determined is worth pushing -- the first emission, a turn
// advance, or a status change -- classifying a status change into
// GAME_STARTED / GAME_FINISHED and everything else (including a
// turn-only advance) as a plain SNAPSHOT.
func statusTransitionFrame(game rules.GameInstance, prevStatus types.GameStatus, firstEmission bool) *Frame {
	snap := game
	frame := Frame{GameID: game.GameID, TurnNo: game.TurnNo, RoundNo: game.RoundNo, Snapshot: &snap, At: time.Now().UTC()}
	switch {
	case firstEmission:
		frame.Type = FrameSnapshot
	case game.Status == types.GameRunning && prevStatus == types.GameCreated:
		frame.Type = FrameGameStarted
	case game.Status == types.GameFinished:
		frame.Type = FrameGameFinished
	default:
		frame.Type = FrameSnapshot
	}
	return &frame
}
