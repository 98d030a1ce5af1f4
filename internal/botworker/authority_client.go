package botworker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/StarHuntingGames/cowboy/internal/rules"
)

// HTTPAuthorityClient implements AuthorityClient against the authority
// service's public HTTP surface (spec §6: GET /v2/games/{id}), the way
// the teacher's agent/llm.Client hits a remote JSON API over a bounded
// http.Client.
type HTTPAuthorityClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPAuthorityClient(baseURL string, timeout time.Duration) *HTTPAuthorityClient {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HTTPAuthorityClient{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

func (c *HTTPAuthorityClient) GetGame(ctx context.Context, gameID string) (rules.GameInstance, error) {
	var game rules.GameInstance
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/games/"+gameID, nil)
	if err != nil {
		return game, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return game, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return game, fmt.Errorf("botworker: get game %s: authority returned %d", gameID, resp.StatusCode)
	}
	return game, json.NewDecoder(resp.Body).Decode(&game)
}
