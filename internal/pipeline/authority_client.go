package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/StarHuntingGames/cowboy/internal/authority"
	"github.com/StarHuntingGames/cowboy/internal/rules"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

// AuthorityClient is the pipeline's view of the game-authority service:
// just enough to look up a game and submit a command for it to mutate
// and publish. *authority.GameManager satisfies this directly for
// in-process/tests; HTTPAuthorityClient satisfies it for a
// pipeline process running apart from authority (spec §6).
type AuthorityClient interface {
	GetGame(ctx context.Context, gameID string) (rules.GameInstance, error)
	ApplyCommand(ctx context.Context, cmd types.CommandEnvelope) (authority.ApplyResult, error)
	ApplyCommandSpeculative(ctx context.Context, cmd types.CommandEnvelope) (authority.ApplyResult, error)
	RecordRejection(ctx context.Context, gameID string, cmd *types.CommandEnvelope, reason string, status types.ResultStatus) (authority.ApplyResult, error)
}

var _ AuthorityClient = (*authority.GameManager)(nil)

// HTTPAuthorityClient calls a remote authority service's internal
// surface instead of mutating game state in-process. Used when
// authority and the command pipeline are deployed as separate
// binaries so only one process ever owns a game's actor state.
type HTTPAuthorityClient struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPAuthorityClient builds a client against baseURL (e.g.
// "http://authority:8080").
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
		return rules.GameInstance{}, fmt.Errorf("pipeline: authority get game: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return rules.GameInstance{}, fmt.Errorf("pipeline: authority get game: status %d", resp.StatusCode)
	}
	var game rules.GameInstance
	if err := json.NewDecoder(resp.Body).Decode(&game); err != nil {
		return rules.GameInstance{}, fmt.Errorf("pipeline: decode game: %w", err)
	}
	return game, nil
}

func (c *HTTPAuthorityClient) ApplyCommand(ctx context.Context, cmd types.CommandEnvelope) (authority.ApplyResult, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return authority.ApplyResult{}, err
	}
	url := fmt.Sprintf("%s/internal/v2/games/%s/commands/apply", c.BaseURL, cmd.GameID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return authority.ApplyResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return authority.ApplyResult{}, fmt.Errorf("pipeline: authority apply command: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return authority.ApplyResult{}, fmt.Errorf("pipeline: authority apply command: status %d", resp.StatusCode)
	}
	var result authority.ApplyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return authority.ApplyResult{}, fmt.Errorf("pipeline: decode apply result: %w", err)
	}
	return result, nil
}

func (c *HTTPAuthorityClient) ApplyCommandSpeculative(ctx context.Context, cmd types.CommandEnvelope) (authority.ApplyResult, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return authority.ApplyResult{}, err
	}
	url := fmt.Sprintf("%s/internal/v2/games/%s/commands/evaluate", c.BaseURL, cmd.GameID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return authority.ApplyResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return authority.ApplyResult{}, fmt.Errorf("pipeline: authority evaluate command: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return authority.ApplyResult{}, fmt.Errorf("pipeline: authority evaluate command: status %d", resp.StatusCode)
	}
	var result authority.ApplyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return authority.ApplyResult{}, fmt.Errorf("pipeline: decode evaluate result: %w", err)
	}
	return result, nil
}

type recordRejectionBody struct {
	Command *types.CommandEnvelope `json:"command,omitempty"`
	Reason  string                 `json:"reason"`
	Status  types.ResultStatus     `json:"status"`
}

func (c *HTTPAuthorityClient) RecordRejection(ctx context.Context, gameID string, cmd *types.CommandEnvelope, reason string, status types.ResultStatus) (authority.ApplyResult, error) {
	body, err := json.Marshal(recordRejectionBody{Command: cmd, Reason: reason, Status: status})
	if err != nil {
		return authority.ApplyResult{}, err
	}
	url := fmt.Sprintf("%s/internal/v2/games/%s/steps/reject", c.BaseURL, gameID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return authority.ApplyResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return authority.ApplyResult{}, fmt.Errorf("pipeline: authority record rejection: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return authority.ApplyResult{}, fmt.Errorf("pipeline: authority record rejection: status %d", resp.StatusCode)
	}
	var result authority.ApplyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return authority.ApplyResult{}, fmt.Errorf("pipeline: decode record rejection result: %w", err)
	}
	return result, nil
}
