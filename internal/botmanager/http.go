package botmanager

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/StarHuntingGames/cowboy/internal/apperr"
	"github.com/StarHuntingGames/cowboy/internal/httpcommon"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

// RegisterRoutes mounts the bot manager's operator/authority-facing
// surface (spec §4.E: "called by authority and operators").
func (m *Manager) RegisterRoutes(r chi.Router) {
	r.Route("/internal/v3/games/{game_id}", func(r chi.Router) {
		r.Post("/assignments/default", m.handleAssignDefault)
		r.Post("/assignments", m.handleAssign)
		r.Get("/assignments", m.handleGetAssignments)
		r.Post("/bindings", m.handleBindBot)
		r.Post("/bots/stop", m.handleStopBots)
	})
}

type assignDefaultRequestBody struct {
	SeatPlayerIDs map[types.PlayerName]string `json:"seat_player_ids"`
	BotSeats      []types.PlayerName          `json:"bot_seats,omitempty"`
}

// handleAssignDefault godoc
// @Summary Assign default bot seats for a game (seat A human, rest bots)
// @Tags BotManager
// @Accept json
// @Param game_id path string true "game id"
// @Param request body assignDefaultRequestBody true "seat player ids"
// @Success 200 {object} map[string]string
// @Router /internal/v3/games/{game_id}/assignments/default [post]
func (m *Manager) handleAssignDefault(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	var body assignDefaultRequestBody
	if err := httpcommon.DecodeJSON(r, &body); err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	if err := m.AssignDefault(r.Context(), gameID, body.SeatPlayerIDs, body.BotSeats); err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	httpcommon.WriteJSON(w, map[string]string{"status": "assigned"})
}

type assignRequestBody struct {
	SeatPlayerIDs map[types.PlayerName]string `json:"seat_player_ids"`
	HumanSeats    []types.PlayerName          `json:"human_seats"`
	BotSeats      []types.PlayerName          `json:"bot_seats"`
}

// handleAssign godoc
// @Summary Explicit human/bot seat split for a game
// @Tags BotManager
// @Accept json
// @Param game_id path string true "game id"
// @Param request body assignRequestBody true "explicit seat split"
// @Success 200 {object} map[string]string
// @Router /internal/v3/games/{game_id}/assignments [post]
func (m *Manager) handleAssign(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	var body assignRequestBody
	if err := httpcommon.DecodeJSON(r, &body); err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	if err := m.Assign(r.Context(), gameID, body.SeatPlayerIDs, body.HumanSeats, body.BotSeats); err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	httpcommon.WriteJSON(w, map[string]string{"status": "assigned"})
}

// handleGetAssignments godoc
// @Summary List current bot bindings for a game
// @Tags BotManager
// @Produce json
// @Param game_id path string true "game id"
// @Success 200 {array} telemetry.BotBinding
// @Router /internal/v3/games/{game_id}/assignments [get]
func (m *Manager) handleGetAssignments(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	bindings, err := m.Store.ListBotBindings(r.Context(), gameID)
	if err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	httpcommon.WriteJSON(w, bindings)
}

type bindBotRequestBody struct {
	PlayerID      string `json:"player_id"`
	Seat          string `json:"seat"`
	BotID         string `json:"bot_id,omitempty"`
	ForceRecreate bool   `json:"force_recreate,omitempty"`
}

// handleBindBot godoc
// @Summary Attach or replace a bot for one seat
// @Tags BotManager
// @Accept json
// @Param game_id path string true "game id"
// @Param request body bindBotRequestBody true "bind request"
// @Success 200 {object} map[string]string
// @Router /internal/v3/games/{game_id}/bindings [post]
func (m *Manager) handleBindBot(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	var body bindBotRequestBody
	if err := httpcommon.DecodeJSON(r, &body); err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	if body.PlayerID == "" || body.Seat == "" {
		httpcommon.WriteError(w, apperr.New(apperr.BadRequest, "player_id and seat are required"))
		return
	}
	if err := m.BindBot(r.Context(), gameID, body.PlayerID, body.Seat, body.BotID, body.ForceRecreate); err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	httpcommon.WriteJSON(w, map[string]string{"status": "bound"})
}

// handleStopBots godoc
// @Summary Tear down every bot binding for a game
// @Tags BotManager
// @Param game_id path string true "game id"
// @Success 200 {object} map[string]string
// @Router /internal/v3/games/{game_id}/bots/stop [post]
func (m *Manager) handleStopBots(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	if err := m.StopBots(r.Context(), gameID); err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	httpcommon.WriteJSON(w, map[string]string{"status": "stopped"})
}
