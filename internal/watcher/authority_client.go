package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/StarHuntingGames/cowboy/internal/rules"
)

// HTTPAuthorityClient calls a remote authority service's public
// snapshot endpoint, for a deployment where the watcher runs apart
// from authority (spec §6). The watcher never mutates state, so this
// is its only dependency on authority.
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
		return rules.GameInstance{}, fmt.Errorf("watcher: authority get game: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return rules.GameInstance{}, fmt.Errorf("watcher: authority get game: status %d", resp.StatusCode)
	}
	var game rules.GameInstance
	if err := json.NewDecoder(resp.Body).Decode(&game); err != nil {
		return rules.GameInstance{}, fmt.Errorf("watcher: decode game: %w", err)
	}
	return game, nil
}
