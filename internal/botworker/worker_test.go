package botworker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/rules"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

// fakeAgent records Decide calls and returns a scripted response.
type fakeAgent struct {
	mu       sync.Mutex
	decision DecideResponse
	failNext bool
	updates  int
}

func (a *fakeAgent) Init(ctx context.Context, req InitRequest) error { return nil }

func (a *fakeAgent) Decide(ctx context.Context, req DecideRequest) (DecideResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failNext {
		return DecideResponse{}, errFakeAgent
	}
	return a.decision, nil
}

func (a *fakeAgent) Update(ctx context.Context, step json.RawMessage) error {
	a.mu.Lock()
	a.updates++
	a.mu.Unlock()
	return nil
}

func (a *fakeAgent) Shutdown(ctx context.Context) error { return nil }

type fakeAuthority struct {
	mu   sync.Mutex
	game rules.GameInstance
}

func (f *fakeAuthority) GetGame(ctx context.Context, gameID string) (rules.GameInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.game, nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errFakeAgent = fakeErr("agent exploded")

func testGame(turnNo uint64, currentPlayerID string) rules.GameInstance {
	return rules.GameInstance{
		GameID:          "g1",
		Status:          types.GameRunning,
		TurnNo:          turnNo,
		RoundNo:         1,
		CurrentPlayerID: currentPlayerID,
		State: rules.GameState{
			Map: rules.Map{Rows: 5, Cols: 5, Cells: make([][]int, 5)},
			Players: []rules.Player{
				{PlayerID: "p1", Name: types.SeatA, HP: 3, Alive: true},
			},
		},
	}
}

func newTestWorker(agent Agent, authority AuthorityClient, b bus.Bus) *Worker {
	return &Worker{
		BotID:       "bot-g1-p1",
		PlayerID:    "p1",
		Seat:        types.SeatB,
		GameID:      "g1",
		InputTopic:  "game.commands.g1.v1",
		OutputTopic: "game.output.g1.v1",
		Agent:       agent,
		Bus:         b,
		Authority:   authority,
		Logger:      zap.NewNop(),
	}
}

func TestWorkerPublishesMoveOnItsTurn(t *testing.T) {
	agent := &fakeAgent{decision: DecideResponse{CommandType: "move", Direction: "up"}}
	authority := &fakeAuthority{game: testGame(1, "p1")}
	b := bus.NewMemoryBus()
	w := newTestWorker(agent, authority, b)

	step := types.StepEvent{GameID: "g1", EventType: types.EventGameStarted, TurnNo: 1}
	payload, _ := json.Marshal(step)
	if err := w.handleStep(context.Background(), payload); err != nil {
		t.Fatalf("handleStep: %v", err)
	}

	if len(b.Published) != 1 {
		t.Fatalf("expected one published command, got %d", len(b.Published))
	}
	var cmd types.CommandEnvelope
	if err := json.Unmarshal(b.Published[0].Payload, &cmd); err != nil {
		t.Fatalf("unmarshal published command: %v", err)
	}
	if cmd.CommandType != types.CommandMove || cmd.Direction != types.DirectionUp {
		t.Fatalf("expected a move up command, got %+v", cmd)
	}
}

func TestWorkerFallsBackToSpeakOnAgentFailure(t *testing.T) {
	agent := &fakeAgent{failNext: true}
	authority := &fakeAuthority{game: testGame(1, "p1")}
	b := bus.NewMemoryBus()
	w := newTestWorker(agent, authority, b)

	step := types.StepEvent{GameID: "g1", EventType: types.EventGameStarted, TurnNo: 1}
	payload, _ := json.Marshal(step)
	if err := w.handleStep(context.Background(), payload); err != nil {
		t.Fatalf("handleStep: %v", err)
	}

	var cmd types.CommandEnvelope
	json.Unmarshal(b.Published[0].Payload, &cmd)
	if cmd.CommandType != types.CommandSpeak {
		t.Fatalf("expected a speak fallback, got %s", cmd.CommandType)
	}
}

func TestWorkerIgnoresStepsNotItsTurn(t *testing.T) {
	agent := &fakeAgent{decision: DecideResponse{CommandType: "move", Direction: "up"}}
	authority := &fakeAuthority{game: testGame(1, "someone-else")}
	b := bus.NewMemoryBus()
	w := newTestWorker(agent, authority, b)

	step := types.StepEvent{GameID: "g1", EventType: types.EventGameStarted, TurnNo: 1}
	payload, _ := json.Marshal(step)
	if err := w.handleStep(context.Background(), payload); err != nil {
		t.Fatalf("handleStep: %v", err)
	}
	if len(b.Published) != 0 {
		t.Fatalf("expected no published command when it is not this bot's turn")
	}
}
