package webingress

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

func newTestIngress() (*Ingress, *bus.MemoryBus) {
	b := bus.NewMemoryBus()
	return &Ingress{Bus: b, InputTopicPrefix: "game.commands"}, b
}

func TestSubmitCommandPublishesEnvelope(t *testing.T) {
	i, b := newTestIngress()
	r := chi.NewRouter()
	i.RegisterRoutes(r)

	body, _ := json.Marshal(submitCommandRequestBody{
		CommandID:   "cmd-1",
		PlayerID:    "p1",
		CommandType: types.CommandMove,
		Direction:   types.DirectionUp,
		TurnNo:      1,
	})
	req := httptest.NewRequest(http.MethodPost, "/v2/games/g1/commands", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp submitCommandResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Accepted || resp.CommandID != "cmd-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(b.Published) != 1 {
		t.Fatalf("expected one published message, got %d", len(b.Published))
	}
}

func TestSubmitCommandRejectsReservedType(t *testing.T) {
	i, _ := newTestIngress()
	r := chi.NewRouter()
	i.RegisterRoutes(r)

	body, _ := json.Marshal(submitCommandRequestBody{CommandID: "cmd-2", CommandType: types.CommandTimeout})
	req := httptest.NewRequest(http.MethodPost, "/v2/games/g1/commands", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitCommandRequiresDirectionForMove(t *testing.T) {
	i, _ := newTestIngress()
	r := chi.NewRouter()
	i.RegisterRoutes(r)

	body, _ := json.Marshal(submitCommandRequestBody{CommandID: "cmd-3", CommandType: types.CommandMove})
	req := httptest.NewRequest(http.MethodPost, "/v2/games/g1/commands", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
