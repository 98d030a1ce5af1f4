package turntimer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/StarHuntingGames/cowboy/internal/rules"
)

// AuthorityClient is the timer's view of game-authority: a read-only
// snapshot lookup. *authority.GameManager satisfies this directly for
// in-process/tests; HTTPAuthorityClient satisfies it when the timer
// runs as its own process (spec §6) -- the timer never mutates a
// game itself, it only re-publishes a Timeout command onto the input
// topic for the pipeline/authority to apply.
type AuthorityClient interface {
	GetGame(ctx context.Context, gameID string) (rules.GameInstance, error)
}

// HTTPAuthorityClient calls a remote authority service's public
// snapshot endpoint.
type HTTPAuthorityClient struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPAuthorityClient(baseURL string) *HTTPAuthorityClient {
	return &HTTPAuthorityClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPAuthorityClient) GetGame(ctx context.Context, gameID string) (rules.GameInstance, error) {
	url := fmt.Sprintf("%s/v2/games/%s", c.BaseURL, gameID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return rules.GameInstance{}, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return rules.GameInstance{}, fmt.Errorf("turntimer: authority get game: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return rules.GameInstance{}, fmt.Errorf("turntimer: authority get game: status %d", resp.StatusCode)
	}
	var game rules.GameInstance
	if err := json.NewDecoder(resp.Body).Decode(&game); err != nil {
		return rules.GameInstance{}, fmt.Errorf("turntimer: decode game: %w", err)
	}
	return game, nil
}
