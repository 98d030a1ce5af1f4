package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/authority"
	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/telemetry"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

func newTestPipeline(t *testing.T) (*Pipeline, *authority.GameManager, *bus.MemoryBus) {
	t.Helper()
	store := telemetry.NewMemoryStore()
	b := bus.NewMemoryBus()
	prov := bus.NewMemoryProvisioner("game.commands", "game.output")
	mgr := authority.NewGameManager(context.Background(), store, b, prov, nil, zap.NewNop(), nil, 20)
	p := &Pipeline{
		Manager:          mgr,
		Bus:              b,
		Store:            store,
		Logger:           zap.NewNop(),
		InputTopicPrefix: "game.commands",
	}
	return p, mgr, b
}

func startedGame(t *testing.T, mgr *authority.GameManager) authority.CreateGameResult {
	t.Helper()
	created, err := mgr.CreateGame(context.Background(), authority.CreateGameRequest{TurnTimeoutSec: 30, PlayerCount: 4})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := mgr.StartGame(context.Background(), created.Game.GameID); err != nil {
		t.Fatalf("start: %v", err)
	}
	return created
}

func TestPipelineRewritesInvalidMoveToSpeak(t *testing.T) {
	p, mgr, _ := newTestPipeline(t)
	created := startedGame(t, mgr)
	game, _ := mgr.GetGame(context.Background(), created.Game.GameID)

	// Seat A spawns at row 0; moving Up walks off the map -- a
	// content-level rejection the pipeline must rewrite into a Speak.
	cmd := types.CommandEnvelope{
		CommandID:   "cmd-1",
		GameID:      created.Game.GameID,
		PlayerID:    game.CurrentPlayerID,
		CommandType: types.CommandMove,
		Direction:   types.DirectionUp,
		TurnNo:      game.TurnNo,
	}
	payload, _ := json.Marshal(cmd)
	if err := p.handleMessage(context.Background(), "game.commands."+created.Game.GameID+".v1", payload); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}

	after, _ := mgr.GetGame(context.Background(), created.Game.GameID)
	if after.TurnNo != game.TurnNo+1 {
		t.Fatalf("expected turn to advance via rewritten speak, got %d", after.TurnNo)
	}
}

func TestPipelineDropsDuplicateCommand(t *testing.T) {
	p, mgr, b := newTestPipeline(t)
	created := startedGame(t, mgr)
	game, _ := mgr.GetGame(context.Background(), created.Game.GameID)

	cmd := types.CommandEnvelope{
		CommandID:   "cmd-dup",
		GameID:      created.Game.GameID,
		PlayerID:    game.CurrentPlayerID,
		CommandType: types.CommandShield,
		Direction:   types.DirectionUp,
		TurnNo:      game.TurnNo,
	}
	payload, _ := json.Marshal(cmd)
	if err := p.handleMessage(context.Background(), "x", payload); err != nil {
		t.Fatalf("first handle: %v", err)
	}
	afterFirst, _ := mgr.GetGame(context.Background(), created.Game.GameID)

	published := len(b.Published)
	if err := p.handleMessage(context.Background(), "x", payload); err != nil {
		t.Fatalf("second handle: %v", err)
	}
	afterSecond, _ := mgr.GetGame(context.Background(), created.Game.GameID)
	if afterSecond.TurnNo != afterFirst.TurnNo {
		t.Fatalf("expected duplicate command_id to be a no-op, turn changed %d -> %d", afterFirst.TurnNo, afterSecond.TurnNo)
	}
	if len(b.Published) <= published {
		t.Fatalf("expected a duplicate-command step event to be published")
	}
}

func TestPipelineRejectsLateCommand(t *testing.T) {
	p, mgr, _ := newTestPipeline(t)
	created := startedGame(t, mgr)
	game, _ := mgr.GetGame(context.Background(), created.Game.GameID)

	cmd := types.CommandEnvelope{
		CommandID:   "cmd-late",
		GameID:      created.Game.GameID,
		PlayerID:    game.CurrentPlayerID,
		CommandType: types.CommandShield,
		Direction:   types.DirectionUp,
		TurnNo:      game.TurnNo - 1, // turn_no never goes below 1 normally; this simulates staleness
	}
	if game.TurnNo == 0 {
		t.Skip("turn_no underflow guard")
	}
	payload, _ := json.Marshal(cmd)
	if err := p.handleMessage(context.Background(), "x", payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	after, _ := mgr.GetGame(context.Background(), created.Game.GameID)
	if after.TurnNo != game.TurnNo {
		t.Fatalf("expected late command to be ignored without mutation")
	}
}
