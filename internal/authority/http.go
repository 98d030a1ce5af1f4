// Package authority HTTP surface, grounded on the teacher's
// internal/api handlers (decode-validate-call-manager-encode), minus
// the JWT auth middleware the teacher wraps /v1/rooms in -- cowboy has
// no user-account surface (spec Non-goals; see SPEC_FULL.md).
package authority

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/StarHuntingGames/cowboy/internal/apperr"
	"github.com/StarHuntingGames/cowboy/internal/httpcommon"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

// RegisterRoutes mounts the /v2/games surface onto r.
func (m *GameManager) RegisterRoutes(r chi.Router) {
	r.Get("/v2/maps/default", m.handleGetDefaultMap)
	r.Route("/v2/games", func(r chi.Router) {
		r.Post("/", m.handleCreateGame)
		r.Get("/{game_id}", m.handleGetGame)
		r.Post("/{game_id}/start", m.handleStartGame)
		r.Post("/{game_id}/finish", m.handleFinishGame)
	})
	r.Route("/internal/v2/games", func(r chi.Router) {
		r.Post("/{game_id}/commands/apply", m.handleApplyCommand)
		r.Post("/{game_id}/commands/evaluate", m.handleApplyCommandSpeculative)
		r.Post("/{game_id}/steps/reject", m.handleRecordRejection)
		r.Post("/{game_id}/finish", m.handleFinishGame)
	})
}

type createGameRequestBody struct {
	TurnTimeoutSec int                `json:"turn_timeout_sec"`
	PlayerCount    int                `json:"player_count"`
	BotSeats       []types.PlayerName `json:"bot_seats,omitempty"`
}

type createGameResponseBody struct {
	GameID        string                        `json:"game_id"`
	Status        types.GameStatus              `json:"status"`
	InputTopic    string                        `json:"input_topic"`
	OutputTopic   string                        `json:"output_topic"`
	SeatPlayerIDs map[types.PlayerName]string   `json:"seat_player_ids"`
}

// handleCreateGame godoc
// @Summary Create a game
// @Description Seeds a new game's map and players and provisions its bus topics
// @Tags Games
// @Accept json
// @Produce json
// @Param request body createGameRequestBody true "creation params"
// @Success 200 {object} createGameResponseBody
// @Failure 400 {object} map[string]string
// @Router /v2/games [post]
func (m *GameManager) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var body createGameRequestBody
	if err := httpcommon.DecodeJSON(r, &body); err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	result, err := m.CreateGame(r.Context(), CreateGameRequest{
		TurnTimeoutSec: body.TurnTimeoutSec,
		BotSeats:       body.BotSeats,
		PlayerCount:    body.PlayerCount,
	})
	if err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	httpcommon.WriteJSON(w, createGameResponseBody{
		GameID:        result.Game.GameID,
		Status:        result.Game.Status,
		InputTopic:    result.Game.InputTopic,
		OutputTopic:   result.Game.OutputTopic,
		SeatPlayerIDs: result.SeatPlayerIDs,
	})
}

// handleGetGame godoc
// @Summary Fetch a game's authoritative snapshot
// @Tags Games
// @Produce json
// @Param game_id path string true "game id"
// @Success 200 {object} rules.GameInstance
// @Router /v2/games/{game_id} [get]
func (m *GameManager) handleGetGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	game, err := m.GetGame(r.Context(), gameID)
	if err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	httpcommon.WriteJSON(w, game)
}

// handleGetDefaultMap godoc
// @Summary Fetch the default map new games get without a custom map
// @Tags Games
// @Produce json
// @Success 200 {object} rules.Map
// @Router /v2/maps/default [get]
func (m *GameManager) handleGetDefaultMap(w http.ResponseWriter, r *http.Request) {
	gameMap, err := m.GetDefaultMap(r.Context())
	if err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	httpcommon.WriteJSON(w, gameMap)
}

// handleStartGame godoc
// @Summary Start a created game
// @Tags Games
// @Produce json
// @Param game_id path string true "game id"
// @Success 200 {object} ApplyResult
// @Router /v2/games/{game_id}/start [post]
func (m *GameManager) handleStartGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	result, err := m.StartGame(r.Context(), gameID)
	if err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	if !result.Accepted {
		httpcommon.WriteError(w, apperr.New(apperr.Conflict, result.Reason))
		return
	}
	httpcommon.WriteJSON(w, result)
}

type finishGameRequestBody struct {
	ExpectedTurnNo *uint64 `json:"expected_turn_no,omitempty"`
}

// handleFinishGame godoc
// @Summary Finish a game once one player remains
// @Tags Games
// @Accept json
// @Produce json
// @Param game_id path string true "game id"
// @Param request body finishGameRequestBody false "optional expected turn number"
// @Success 200 {object} ApplyResult
// @Router /v2/games/{game_id}/finish [post]
func (m *GameManager) handleFinishGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	var body finishGameRequestBody
	if r.ContentLength > 0 {
		if err := httpcommon.DecodeJSON(r, &body); err != nil {
			httpcommon.WriteError(w, err)
			return
		}
	}
	result, err := m.FinishGame(r.Context(), gameID, body.ExpectedTurnNo)
	if err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	if !result.Accepted {
		httpcommon.WriteError(w, apperr.New(apperr.Conflict, result.Reason))
		return
	}
	httpcommon.WriteJSON(w, result)
}

// handleApplyCommand godoc
// @Summary Apply one command to a running game (internal, called by the command pipeline)
// @Tags Internal
// @Accept json
// @Produce json
// @Param game_id path string true "game id"
// @Param request body types.CommandEnvelope true "command envelope"
// @Success 200 {object} ApplyResult
// @Router /internal/v2/games/{game_id}/commands/apply [post]
func (m *GameManager) handleApplyCommand(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	var cmd types.CommandEnvelope
	if err := httpcommon.DecodeJSON(r, &cmd); err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	cmd.GameID = gameID
	result, err := m.ApplyCommand(r.Context(), cmd)
	if err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	httpcommon.WriteJSON(w, result)
}

// handleApplyCommandSpeculative godoc
// @Summary Evaluate a command without committing a rejection step (internal, called by the command pipeline)
// @Tags Internal
// @Accept json
// @Produce json
// @Param game_id path string true "game id"
// @Param request body types.CommandEnvelope true "command envelope"
// @Success 200 {object} ApplyResult
// @Router /internal/v2/games/{game_id}/commands/evaluate [post]
func (m *GameManager) handleApplyCommandSpeculative(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	var cmd types.CommandEnvelope
	if err := httpcommon.DecodeJSON(r, &cmd); err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	cmd.GameID = gameID
	result, err := m.ApplyCommandSpeculative(r.Context(), cmd)
	if err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	httpcommon.WriteJSON(w, result)
}

type recordRejectionRequestBody struct {
	Command *types.CommandEnvelope `json:"command,omitempty"`
	Reason  string                 `json:"reason"`
	Status  types.ResultStatus     `json:"status"`
}

// handleRecordRejection godoc
// @Summary Record a pipeline-level rejection step (internal, called by the command pipeline)
// @Tags Internal
// @Accept json
// @Produce json
// @Param game_id path string true "game id"
// @Param request body recordRejectionRequestBody true "rejection"
// @Success 200 {object} ApplyResult
// @Router /internal/v2/games/{game_id}/steps/reject [post]
func (m *GameManager) handleRecordRejection(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	var body recordRejectionRequestBody
	if err := httpcommon.DecodeJSON(r, &body); err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	result, err := m.RecordRejection(r.Context(), gameID, body.Command, body.Reason, body.Status)
	if err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	httpcommon.WriteJSON(w, result)
}
