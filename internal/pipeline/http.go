package pipeline

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/StarHuntingGames/cowboy/internal/httpcommon"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

// RegisterRoutes mounts the pipeline's synchronous HTTP sibling of its
// bus consumer (spec §6: "POST /internal/v2/games/{id}/commands/process
// (synchronous sibling of the bus path)"), grounded on the ground
// truth's process_command_handler (game-service/src/main.rs:247-290).
func (p *Pipeline) RegisterRoutes(r chi.Router) {
	r.Route("/internal/v2/games/{game_id}", func(r chi.Router) {
		r.Post("/commands/process", p.handleProcessCommand)
	})
}

// submitCommandRequestBody mirrors cowboy-common's SubmitCommandRequest:
// the same shape web ingress accepts from a player client, just routed
// straight through the pipeline instead of onto the bus.
type submitCommandRequestBody struct {
	CommandID    string            `json:"command_id"`
	PlayerID     string            `json:"player_id"`
	CommandType  types.CommandType `json:"command_type"`
	Direction    types.Direction   `json:"direction,omitempty"`
	SpeakText    string            `json:"speak_text,omitempty"`
	TurnNo       uint64            `json:"turn_no"`
	ClientSentAt time.Time         `json:"client_sent_at"`
}

// handleProcessCommand godoc
// @Summary Run one command through the pipeline synchronously
// @Description Bypasses the bus for callers (tests, tooling) that need the terminal result inline
// @Tags Pipeline
// @Accept json
// @Produce json
// @Param game_id path string true "game id"
// @Param request body submitCommandRequestBody true "command"
// @Success 200 {object} authority.ApplyResult
// @Router /internal/v2/games/{game_id}/commands/process [post]
func (p *Pipeline) handleProcessCommand(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	var body submitCommandRequestBody
	if err := httpcommon.DecodeJSON(r, &body); err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	if body.CommandID == "" {
		body.CommandID = uuid.NewString()
	}
	sentAt := body.ClientSentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	cmd := types.CommandEnvelope{
		CommandID:   body.CommandID,
		Source:      types.SourceUser,
		GameID:      gameID,
		PlayerID:    body.PlayerID,
		CommandType: body.CommandType,
		Direction:   body.Direction,
		SpeakText:   body.SpeakText,
		TurnNo:      body.TurnNo,
		SentAt:      sentAt,
	}

	result, err := p.ProcessCommand(r.Context(), cmd)
	if err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	httpcommon.WriteJSON(w, result)
}
