// Package pipeline is the bus-facing front door for every inbound
// command (spec §4.C): it subscribes to every game's input topic,
// deduplicates by command_id, rejects commands aimed at a game that
// isn't Running, special-cases Timeout, and rewrites a rules-level
// rejection into a Speak so an illegal action still visibly consumes
// the turn. Legal commands are handed to authority.GameManager, which
// remains the sole state mutator and step-event publisher (spec §4.B);
// this package only decides the outcome of messages that never reach
// the rules engine (duplicate/reserved/not-running/late), which
// authority records through RecordRejection, and reads the command-id
// dedup ledger that authority writes. Grounded on the teacher's queue.go consumer
// loop shape (ack on success, log-and-continue on processing error)
// generalized from a single named queue to the per-game topic pattern
// in internal/bus.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/authority"
	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/observability"
	"github.com/StarHuntingGames/cowboy/internal/telemetry"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

// Reasons emitted directly by the pipeline, ahead of calling authority
// (spec §4.C).
const (
	ReasonReservedCommandType = "RESERVED_COMMAND_TYPE"
	ReasonDuplicateCommand    = "DUPLICATE_COMMAND"
	ReasonGameNotRunning      = "GAME_NOT_RUNNING"
	ReasonLateTimeoutIgnored  = "LATE_TIMEOUT_IGNORED"
	ReasonLateCommandIgnored  = "LATE_COMMAND_IGNORED"
)

type Pipeline struct {
	Manager          AuthorityClient
	Bus              bus.Bus
	Store            *telemetry.Store
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	InputTopicPrefix string
	QueueName        string
}

// Start subscribes to every game's input topic under InputTopicPrefix.
func (p *Pipeline) Start(ctx context.Context) error {
	pattern := bus.TopicPattern(p.InputTopicPrefix)
	queue := p.QueueName
	if queue == "" {
		queue = "pipeline." + p.InputTopicPrefix
	}
	return p.Bus.Subscribe(ctx, queue, pattern, p.handleMessage)
}

func (p *Pipeline) handleMessage(ctx context.Context, routingKey string, payload []byte) error {
	var cmd types.CommandEnvelope
	if err := json.Unmarshal(payload, &cmd); err != nil {
		p.Logger.Error("pipeline: malformed command envelope, dropping", zap.String("routing_key", routingKey), zap.Error(err))
		return nil
	}
	_, err := p.ProcessCommand(ctx, cmd)
	return err
}

// ProcessCommand runs cmd through the pipeline's full decision sequence
// (spec §4.C steps 1-5) and returns the terminal ApplyResult, whether it
// came from a pipeline-level rejection, the rules engine, or a
// rewrite-to-speak retry. This is the core both the bus consumer
// (handleMessage) and the synchronous HTTP sibling
// (`POST /internal/v2/games/{id}/commands/process`, ground truth's
// process_command_handler in game-service/src/main.rs:247-290) drive.
func (p *Pipeline) ProcessCommand(ctx context.Context, cmd types.CommandEnvelope) (authority.ApplyResult, error) {
	start := time.Now()
	defer func() {
		if p.Metrics != nil {
			p.Metrics.CommandLatency.WithLabelValues(string(cmd.CommandType)).Observe(float64(time.Since(start).Milliseconds()))
		}
	}()

	if cmd.CommandType == types.CommandGameStarted {
		return p.recordRejection(ctx, cmd, ReasonReservedCommandType, types.ResultInvalidCommand)
	}

	dedup, err := p.Store.GetDedupRecord(ctx, cmd.GameID, cmd.CommandID)
	if err != nil {
		return authority.ApplyResult{}, fmt.Errorf("pipeline: dedup lookup: %w", err)
	}
	if dedup != nil {
		if p.Metrics != nil {
			p.Metrics.DedupHitTotal.Inc()
		}
		return p.recordRejection(ctx, cmd, ReasonDuplicateCommand, types.ResultDuplicateCommand)
	}

	game, err := p.Manager.GetGame(ctx, cmd.GameID)
	if err != nil {
		p.Logger.Warn("pipeline: command for unknown game", zap.String("game_id", cmd.GameID), zap.Error(err))
		return authority.ApplyResult{}, err
	}
	if game.Status != types.GameRunning {
		return p.recordRejection(ctx, cmd, ReasonGameNotRunning, types.ResultInvalidTurn)
	}

	if cmd.CommandType == types.CommandTimeout {
		if cmd.TurnNo < game.TurnNo {
			return p.recordRejection(ctx, cmd, ReasonLateTimeoutIgnored, types.ResultIgnoredTimeout)
		}
		return p.applyAndRecord(ctx, cmd, false)
	}

	if cmd.TurnNo < game.TurnNo {
		return p.recordRejection(ctx, cmd, ReasonLateCommandIgnored, types.ResultIgnoredTimeout)
	}
	return p.applyAndRecord(ctx, cmd, true)
}

// applyAndRecord evaluates cmd against authority without committing a
// step, then either rewrites a content-level rejection into a Speak
// (spec §4.C step 5) or commits the original rejection, so exactly one
// step event reaches the output topic for this command (spec §4.C point
// 7) no matter which branch it takes.
func (p *Pipeline) applyAndRecord(ctx context.Context, cmd types.CommandEnvelope, allowRewrite bool) (authority.ApplyResult, error) {
	result, err := p.Manager.ApplyCommandSpeculative(ctx, cmd)
	if err != nil {
		return authority.ApplyResult{}, fmt.Errorf("pipeline: evaluate command: %w", err)
	}

	if !result.Applied {
		if allowRewrite && !authority.TerminalReasons[result.Reason] {
			rewritten := cmd
			rewritten.CommandType = types.CommandSpeak
			rewritten.Direction = ""
			rewritten.SpeakText = fmt.Sprintf("invalid command: %q", describeCommand(cmd))
			result, err = p.Manager.ApplyCommand(ctx, rewritten)
			if err != nil {
				return authority.ApplyResult{}, fmt.Errorf("pipeline: apply rewritten speak: %w", err)
			}
		} else {
			result, err = p.Manager.ApplyCommand(ctx, cmd)
			if err != nil {
				return authority.ApplyResult{}, fmt.Errorf("pipeline: commit rejection: %w", err)
			}
		}
	}

	if !result.Applied && p.Metrics != nil {
		p.Metrics.CommandRejectTotal.WithLabelValues(result.Reason).Inc()
	}
	return result, nil
}

func describeCommand(cmd types.CommandEnvelope) string {
	if cmd.Direction != "" {
		return fmt.Sprintf("%s %s", cmd.CommandType, cmd.Direction)
	}
	return string(cmd.CommandType)
}

// recordRejection handles the pipeline-level rejections of spec §4.C
// steps 1-4 that never reach authority's rules engine at all (reserved
// type, duplicate command, game-not-running, late timeout/command).
// The step_seq allocation and dedup write happen together on authority,
// through the same per-game actor ApplyCommand uses, so last_step_seq
// stays strictly increasing across every step emitted for the game.
func (p *Pipeline) recordRejection(ctx context.Context, cmd types.CommandEnvelope, reason string, status types.ResultStatus) (authority.ApplyResult, error) {
	envelope := cmd
	result, err := p.Manager.RecordRejection(ctx, cmd.GameID, &envelope, reason, status)
	if err != nil {
		return authority.ApplyResult{}, fmt.Errorf("pipeline: record rejection: %w", err)
	}
	if p.Metrics != nil {
		p.Metrics.CommandRejectTotal.WithLabelValues(reason).Inc()
	}
	return result, nil
}
