package watcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/rules"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

type fakeAuthority struct {
	game rules.GameInstance
	err  error
}

func (f *fakeAuthority) GetGame(ctx context.Context, gameID string) (rules.GameInstance, error) {
	return f.game, f.err
}

func TestHandleSnapshotReportsLastStepSeqAsTurnNo(t *testing.T) {
	authority := &fakeAuthority{game: rules.GameInstance{GameID: "g1", TurnNo: 7, Status: types.GameRunning}}
	w := New(authority, bus.NewMemoryBus(), zap.NewNop(), nil, "game.output")

	r := chi.NewRouter()
	w.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/v2/games/g1/snapshot", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body snapshotResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.LastStepSeq != 7 {
		t.Fatalf("expected last_step_seq 7, got %d", body.LastStepSeq)
	}
}

func TestFrameTypeForStepDerivesFromCommand(t *testing.T) {
	cases := []struct {
		step types.StepEvent
		want FrameType
	}{
		{types.StepEvent{EventType: types.EventGameStarted}, FrameGameStarted},
		{types.StepEvent{EventType: types.EventGameFinished}, FrameGameFinished},
		{types.StepEvent{EventType: types.EventTimeoutApplied}, FrameTimeout},
		{types.StepEvent{EventType: types.EventStepApplied, Command: &types.CommandEnvelope{CommandType: types.CommandMove}}, FrameMove},
		{types.StepEvent{EventType: types.EventStepApplied, Command: &types.CommandEnvelope{CommandType: types.CommandSpeak}}, FrameSpeak},
		{types.StepEvent{EventType: types.EventStepApplied}, FrameStepApplied},
	}
	for _, c := range cases {
		if got := frameTypeForStep(c.step); got != c.want {
			t.Errorf("frameTypeForStep(%+v) = %s, want %s", c.step, got, c.want)
		}
	}
}

func TestStatusTransitionFrameFirstEmissionIsSnapshot(t *testing.T) {
	game := rules.GameInstance{GameID: "g1", Status: types.GameRunning, TurnNo: 1}
	frame := statusTransitionFrame(game, "", true)
	if frame == nil || frame.Type != FrameSnapshot {
		t.Fatalf("expected first emission to be a SNAPSHOT frame, got %+v", frame)
	}
}

func TestStatusTransitionFrameDetectsGameFinished(t *testing.T) {
	game := rules.GameInstance{GameID: "g1", Status: types.GameFinished, TurnNo: 9}
	frame := statusTransitionFrame(game, types.GameRunning, false)
	if frame == nil || frame.Type != FrameGameFinished {
		t.Fatalf("expected GAME_FINISHED frame, got %+v", frame)
	}
}

func TestBroadcastStepSkipsWhenNoSessions(t *testing.T) {
	authority := &fakeAuthority{game: rules.GameInstance{GameID: "g1"}}
	w := New(authority, bus.NewMemoryBus(), zap.NewNop(), nil, "game.output")
	w.broadcastStep(context.Background(), types.StepEvent{GameID: "g1", EventType: types.EventStepApplied})
}
