package turntimer

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/authority"
	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/telemetry"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

func TestTimerFiresTimeoutAfterExpiry(t *testing.T) {
	store := telemetry.NewMemoryStore()
	b := bus.NewMemoryBus()
	prov := bus.NewMemoryProvisioner("game.commands", "game.output")
	mgr := authority.NewGameManager(context.Background(), store, b, prov, nil, zap.NewNop(), nil, 20)

	created, err := mgr.CreateGame(context.Background(), authority.CreateGameRequest{TurnTimeoutSec: 1, PlayerCount: 4})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	timer := New(mgr, b, zap.NewNop(), nil, "game.output")
	if err := timer.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	var seenTimeout bool
	done := make(chan struct{})
	b.Subscribe(context.Background(), "test.input.watch", bus.TopicPattern("game.commands"), func(ctx context.Context, routingKey string, payload []byte) error {
		seenTimeout = true
		close(done)
		return nil
	})

	if _, err := mgr.StartGame(context.Background(), created.Game.GameID); err != nil {
		t.Fatalf("start game: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("expected a timeout command to be published")
	}
	if !seenTimeout {
		t.Fatalf("expected to observe the synthetic timeout command")
	}
}
