package authority

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/rules"
	"github.com/StarHuntingGames/cowboy/internal/telemetry"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

func newTestManager(t *testing.T) *GameManager {
	t.Helper()
	store := telemetry.NewMemoryStore()
	b := bus.NewMemoryBus()
	prov := bus.NewMemoryProvisioner("game.commands", "game.output")
	return NewGameManager(context.Background(), store, b, prov, nil, zap.NewNop(), nil, 20)
}

func TestCreateGameSeedsFourPlayers(t *testing.T) {
	m := newTestManager(t)
	result, err := m.CreateGame(context.Background(), CreateGameRequest{TurnTimeoutSec: 30, PlayerCount: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.SeatPlayerIDs) != 4 {
		t.Fatalf("expected 4 seats, got %d", len(result.SeatPlayerIDs))
	}
	if result.Game.Status != types.GameCreated {
		t.Fatalf("expected CREATED, got %s", result.Game.Status)
	}
}

func TestStartGameThenApplyShieldAdvancesTurn(t *testing.T) {
	m := newTestManager(t)
	created, err := m.CreateGame(context.Background(), CreateGameRequest{TurnTimeoutSec: 30, PlayerCount: 4})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	startResult, err := m.StartGame(context.Background(), created.Game.GameID)
	if err != nil || !startResult.Accepted {
		t.Fatalf("start: result=%+v err=%v", startResult, err)
	}
	if startResult.Game.Status != types.GameRunning {
		t.Fatalf("expected RUNNING, got %s", startResult.Game.Status)
	}

	firstPlayer := startResult.Game.CurrentPlayerID
	cmd := types.CommandEnvelope{
		CommandID:   "c1",
		Source:      types.SourceUser,
		GameID:      created.Game.GameID,
		PlayerID:    firstPlayer,
		CommandType: types.CommandShield,
		Direction:   types.DirectionUp,
		TurnNo:      startResult.Game.TurnNo,
	}
	applyResult, err := m.ApplyCommand(context.Background(), cmd)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !applyResult.Accepted || !applyResult.Applied {
		t.Fatalf("expected shield to apply, got %+v", applyResult)
	}
	if applyResult.Game.TurnNo != startResult.Game.TurnNo+1 {
		t.Fatalf("expected turn to advance, got %d", applyResult.Game.TurnNo)
	}
	if applyResult.Game.CurrentPlayerID == firstPlayer {
		t.Fatalf("expected current player to change")
	}
}

func TestApplyCommandRejectsWrongPlayer(t *testing.T) {
	m := newTestManager(t)
	created, _ := m.CreateGame(context.Background(), CreateGameRequest{TurnTimeoutSec: 30, PlayerCount: 4})
	startResult, _ := m.StartGame(context.Background(), created.Game.GameID)

	var wrongPlayer string
	for _, id := range created.SeatPlayerIDs {
		if id != startResult.Game.CurrentPlayerID {
			wrongPlayer = id
			break
		}
	}
	cmd := types.CommandEnvelope{
		CommandID:   "c2",
		GameID:      created.Game.GameID,
		PlayerID:    wrongPlayer,
		CommandType: types.CommandShield,
		Direction:   types.DirectionUp,
		TurnNo:      startResult.Game.TurnNo,
	}
	result, err := m.ApplyCommand(context.Background(), cmd)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Accepted || result.Reason != ReasonInvalidTurnPlayer {
		t.Fatalf("expected rejection with %s, got %+v", ReasonInvalidTurnPlayer, result)
	}
}

func TestFinishGameRefusesWithMultipleSurvivors(t *testing.T) {
	m := newTestManager(t)
	created, _ := m.CreateGame(context.Background(), CreateGameRequest{TurnTimeoutSec: 30, PlayerCount: 4})
	m.StartGame(context.Background(), created.Game.GameID)

	result, err := m.FinishGame(context.Background(), created.Game.GameID, nil)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if result.Accepted || result.Reason != ReasonNotLastPlayerLeft {
		t.Fatalf("expected %s, got %+v", ReasonNotLastPlayerLeft, result)
	}
}

func TestFinishGameIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	created, _ := m.CreateGame(context.Background(), CreateGameRequest{TurnTimeoutSec: 30, PlayerCount: 1})
	m.StartGame(context.Background(), created.Game.GameID)
	game, _ := m.GetGame(context.Background(), created.Game.GameID)

	first, err := m.FinishGame(context.Background(), created.Game.GameID, &game.TurnNo)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if !first.Accepted || !first.Applied {
		t.Fatalf("expected first finish to apply, got %+v", first)
	}

	second, err := m.FinishGame(context.Background(), created.Game.GameID, nil)
	if err != nil {
		t.Fatalf("second finish: %v", err)
	}
	if !second.Accepted || second.Applied || second.Reason != ReasonAlreadyFinished {
		t.Fatalf("expected idempotent finish to report %s with applied=false, got %+v", ReasonAlreadyFinished, second)
	}
}

func TestGetDefaultMapIsStableAcrossCalls(t *testing.T) {
	m := newTestManager(t)
	first, err := m.GetDefaultMap(context.Background())
	if err != nil {
		t.Fatalf("get default map: %v", err)
	}
	second, err := m.GetDefaultMap(context.Background())
	if err != nil {
		t.Fatalf("get default map: %v", err)
	}
	if first.Rows != second.Rows || first.Cols != second.Cols {
		t.Fatalf("expected same dimensions across calls, got %+v vs %+v", first, second)
	}
	for r := range first.Cells {
		for c := range first.Cells[r] {
			if first.Cells[r][c] != second.Cells[r][c] {
				t.Fatalf("expected the same cached map on repeat calls, cell (%d,%d) differs", r, c)
			}
		}
	}
}

func TestLoadDefaultMapConfigOverridesGeneratedMap(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "map.yaml")
	yamlBody := "rows: 2\ncols: 2\ncells:\n  - [0, 1]\n  - [-1, 2]\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m.LoadDefaultMapConfig(path)

	got, err := m.GetDefaultMap(context.Background())
	if err != nil {
		t.Fatalf("get default map: %v", err)
	}
	if got.Rows != 2 || got.Cols != 2 {
		t.Fatalf("expected 2x2 configured map, got %+v", got)
	}
	if got.Cells[1][0] != -1 || got.Cells[0][1] != 1 {
		t.Fatalf("expected configured cell values to survive, got %+v", got.Cells)
	}
}

func TestLoadDefaultMapConfigIgnoresMissingPath(t *testing.T) {
	m := newTestManager(t)
	m.LoadDefaultMapConfig("")
	m.LoadDefaultMapConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	got, err := m.GetDefaultMap(context.Background())
	if err != nil {
		t.Fatalf("get default map: %v", err)
	}
	if got.Rows != rules.DefaultRows || got.Cols != rules.DefaultCols {
		t.Fatalf("expected fallback to generated default map, got %+v", got)
	}
}
