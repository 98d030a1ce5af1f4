package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/StarHuntingGames/cowboy/internal/authority"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

func TestHandleProcessCommandAppliesSynchronously(t *testing.T) {
	p, mgr, _ := newTestPipeline(t)
	created := startedGame(t, mgr)
	game, _ := mgr.GetGame(context.Background(), created.Game.GameID)

	r := chi.NewRouter()
	p.RegisterRoutes(r)

	body, _ := json.Marshal(submitCommandRequestBody{
		CommandID:   "cmd-sync-1",
		PlayerID:    game.CurrentPlayerID,
		CommandType: types.CommandShield,
		Direction:   types.DirectionUp,
		TurnNo:      game.TurnNo,
	})
	req := httptest.NewRequest(http.MethodPost, "/internal/v2/games/"+created.Game.GameID+"/commands/process", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result authority.ApplyResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Accepted || !result.Applied {
		t.Fatalf("expected applied result, got %+v", result)
	}
}
