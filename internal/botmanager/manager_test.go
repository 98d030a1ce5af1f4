package botmanager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/telemetry"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

func newFakeBotWorkerHost(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/internal/v3/bots", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bot_id":"bot-test-1"}`))
	})
	mux.HandleFunc("/internal/v3/bots/bot-test-1/teach-game", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/internal/v3/bots/bot-test-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return httptest.NewServer(mux)
}

func newTestManager(t *testing.T, hostURL string) (*Manager, *bus.MemoryBus) {
	registry := NewHostRegistry([]Host{{ID: "host-1", BaseURL: hostURL, Capacity: 10}})
	b := bus.NewMemoryBus()
	store := telemetry.NewMemoryStore()
	return NewManager(registry, b, store, zap.NewNop(), nil, "game.output"), b
}

func TestAssignDefaultBindsBCDAndLeavesAHuman(t *testing.T) {
	srv := newFakeBotWorkerHost(t)
	defer srv.Close()
	m, _ := newTestManager(t, srv.URL)

	seats := map[types.PlayerName]string{
		types.SeatA: "p-a",
		types.SeatB: "p-b",
		types.SeatC: "p-c",
		types.SeatD: "p-d",
	}
	if err := m.AssignDefault(context.Background(), "game-1", seats, nil); err != nil {
		t.Fatalf("AssignDefault: %v", err)
	}

	bindings, err := m.Store.ListBotBindings(context.Background(), "game-1")
	if err != nil {
		t.Fatalf("ListBotBindings: %v", err)
	}
	if len(bindings) != 3 {
		t.Fatalf("expected 3 bot bindings (B,C,D), got %d", len(bindings))
	}
	for _, b := range bindings {
		if b.Seat == string(types.SeatA) {
			t.Fatalf("seat A should never be bound to a bot")
		}
		if b.BotID == "" || b.HostID != "host-1" {
			t.Fatalf("binding missing bot_id/host_id: %+v", b)
		}
	}
}

func TestBindBotIsIdempotentWithoutForceRecreate(t *testing.T) {
	srv := newFakeBotWorkerHost(t)
	defer srv.Close()
	m, _ := newTestManager(t, srv.URL)

	ctx := context.Background()
	if err := m.BindBot(ctx, "game-1", "p-b", "B", "", false); err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if err := m.BindBot(ctx, "game-1", "p-b", "B", "", false); err != nil {
		t.Fatalf("second bind: %v", err)
	}
	bindings, _ := m.Store.ListBotBindings(ctx, "game-1")
	if len(bindings) != 1 {
		t.Fatalf("expected exactly one binding after idempotent rebind, got %d", len(bindings))
	}
}

func TestStopBotsClearsAllBindings(t *testing.T) {
	srv := newFakeBotWorkerHost(t)
	defer srv.Close()
	m, _ := newTestManager(t, srv.URL)

	ctx := context.Background()
	if err := m.BindBot(ctx, "game-1", "p-b", "B", "", false); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := m.StopBots(ctx, "game-1"); err != nil {
		t.Fatalf("StopBots: %v", err)
	}
	bindings, _ := m.Store.ListBotBindings(ctx, "game-1")
	if len(bindings) != 0 {
		t.Fatalf("expected no bindings after StopBots, got %d", len(bindings))
	}
}

func TestAssignRejectsOverlappingHumanAndBotSeats(t *testing.T) {
	srv := newFakeBotWorkerHost(t)
	defer srv.Close()
	m, _ := newTestManager(t, srv.URL)

	seats := map[types.PlayerName]string{types.SeatA: "p-a", types.SeatB: "p-b"}
	err := m.Assign(context.Background(), "game-1", seats, []types.PlayerName{types.SeatA}, []types.PlayerName{types.SeatA})
	if err == nil {
		t.Fatalf("expected error for overlapping human/bot seat assignment")
	}
}
