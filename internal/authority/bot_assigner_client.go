package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/StarHuntingGames/cowboy/internal/types"
)

// HTTPBotAssigner calls a remote bot-manager service's default
// assignment endpoint instead of invoking it in-process, for a
// deployment where authority and the bot manager are separate
// binaries (spec §4.E: "called by authority and operators").
type HTTPBotAssigner struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPBotAssigner(baseURL string) *HTTPBotAssigner {
	return &HTTPBotAssigner{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type assignDefaultRequestBody struct {
	SeatPlayerIDs map[types.PlayerName]string `json:"seat_player_ids"`
	BotSeats      []types.PlayerName          `json:"bot_seats,omitempty"`
}

func (a *HTTPBotAssigner) AssignDefault(ctx context.Context, gameID string, seatPlayerIDs map[types.PlayerName]string, botSeats []types.PlayerName) error {
	body, err := json.Marshal(assignDefaultRequestBody{SeatPlayerIDs: seatPlayerIDs, BotSeats: botSeats})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/internal/v3/games/%s/assignments/default", a.BaseURL, gameID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("authority: bot manager assign default: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authority: bot manager assign default: status %d", resp.StatusCode)
	}
	return nil
}
