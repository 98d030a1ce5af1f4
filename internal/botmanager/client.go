// Package botmanager assigns seats to bot-worker hosts and keeps each
// bot's memory in sync with the game it plays in (spec §4.E). HostClient
// is the thin HTTP wrapper the teacher's llm.Client models: a
// timeout-bounded http.Client hitting one bot-worker host's control
// surface (Create/TeachGame/Update/Delete, spec §4.F).
package botmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type HostClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHostClient(baseURL string, timeout time.Duration) *HostClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HostClient{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

type CreateBotRequest struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	Seat     string `json:"seat"`
}

type CreateBotResponse struct {
	BotID string `json:"bot_id"`
}

func (c *HostClient) Create(ctx context.Context, req CreateBotRequest) (CreateBotResponse, error) {
	var resp CreateBotResponse
	err := c.postJSON(ctx, "/internal/v3/bots", req, &resp)
	return resp, err
}

type TeachGameRequest struct {
	BotID           string `json:"bot_id"`
	GameID          string `json:"game_id"`
	GameGuideVersion string `json:"game_guide_version"`
}

func (c *HostClient) TeachGame(ctx context.Context, req TeachGameRequest) error {
	return c.postJSON(ctx, fmt.Sprintf("/internal/v3/bots/%s/teach-game", req.BotID), req, nil)
}

func (c *HostClient) Delete(ctx context.Context, botID string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/internal/v3/bots/"+botID, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("botmanager: delete bot %s: host returned %d", botID, resp.StatusCode)
	}
	return nil
}

func (c *HostClient) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("botmanager: %s: host returned %d", path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
