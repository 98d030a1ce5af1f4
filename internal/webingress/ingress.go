// Package webingress is the player-facing front door spec §6 calls "Web
// ingress": it validates a SubmitCommandRequest and publishes it as a
// CommandEnvelope onto the game's input topic, the same shape the
// command pipeline consumes from every other source. Grounded on the
// ground truth's web-service (submit_command_handler,
// web-service/src/main.rs:155-221), adapted onto internal/bus instead
// of a raw Kafka producer so it shares the per-game topic mesh every
// other cowboy component uses.
package webingress

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/StarHuntingGames/cowboy/internal/apperr"
	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/httpcommon"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

// Ingress publishes validated player commands onto the bus.
type Ingress struct {
	Bus              bus.Bus
	InputTopicPrefix string
}

func (i *Ingress) RegisterRoutes(r chi.Router) {
	r.Post("/v2/games/{game_id}/commands", i.handleSubmitCommand)
}

type submitCommandRequestBody struct {
	CommandID    string            `json:"command_id"`
	PlayerID     string            `json:"player_id"`
	CommandType  types.CommandType `json:"command_type"`
	Direction    types.Direction   `json:"direction,omitempty"`
	SpeakText    string            `json:"speak_text,omitempty"`
	TurnNo       uint64            `json:"turn_no"`
	ClientSentAt time.Time         `json:"client_sent_at"`
}

type submitCommandResponseBody struct {
	Accepted  bool      `json:"accepted"`
	CommandID string    `json:"command_id"`
	QueuedAt  time.Time `json:"queued_at"`
}

// handleSubmitCommand godoc
// @Summary Submit a player command
// @Description Validates the request and publishes it onto the game's input topic
// @Tags Ingress
// @Accept json
// @Produce json
// @Param game_id path string true "game id"
// @Param request body submitCommandRequestBody true "command"
// @Success 200 {object} submitCommandResponseBody
// @Failure 400 {object} map[string]string
// @Router /v2/games/{game_id}/commands [post]
func (i *Ingress) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	var body submitCommandRequestBody
	if err := httpcommon.DecodeJSON(r, &body); err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	if err := validateUserCommand(body); err != nil {
		httpcommon.WriteError(w, err)
		return
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

	if err := i.publish(r.Context(), cmd); err != nil {
		httpcommon.WriteError(w, apperr.Wrap(apperr.Dependency, err, "publish command"))
		return
	}

	httpcommon.WriteJSON(w, submitCommandResponseBody{
		Accepted:  true,
		CommandID: cmd.CommandID,
		QueuedAt:  time.Now().UTC(),
	})
}

func (i *Ingress) publish(ctx context.Context, cmd types.CommandEnvelope) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	topic, _ := bus.TopicNames(i.InputTopicPrefix, "", cmd.GameID)
	return i.Bus.Publish(ctx, topic, payload)
}

// validateUserCommand mirrors the ground truth's validate_user_command
// (web-service/src/main.rs:187-221): command_id is required, a
// player can't submit the system-reserved Timeout/GameStarted types,
// move/shield/shoot need a direction, and speak needs non-blank text.
func validateUserCommand(body submitCommandRequestBody) error {
	if strings.TrimSpace(body.CommandID) == "" {
		return apperr.New(apperr.BadRequest, "command_id is required")
	}
	if body.CommandType == types.CommandTimeout || body.CommandType == types.CommandGameStarted {
		return apperr.New(apperr.BadRequest, "command_type timeout/game_started is reserved for system services")
	}
	switch body.CommandType {
	case types.CommandMove, types.CommandShield, types.CommandShoot:
		if body.Direction == "" {
			return apperr.New(apperr.BadRequest, "direction is required for move/shield/shoot commands")
		}
	case types.CommandSpeak:
		if strings.TrimSpace(body.SpeakText) == "" {
			return apperr.New(apperr.BadRequest, "speak_text is required for speak commands")
		}
	}
	return nil
}
