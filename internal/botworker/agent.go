// Package botworker runs the bot-worker host process (spec §4.F): for
// every bound seat it spawns a worker loop that watches a game's output
// topic and asks an external decision agent for a command on that bot's
// turn. AgentClient is the HTTP leg of that contract, grounded on the
// teacher's agent/llm.Client (a timeout-bounded http.Client hitting a
// JSON chat API) generalized from "call an LLM provider" to "call
// whatever local decision process this bot spawned".
package botworker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"

	"golang.org/x/time/rate"
)

type AgentConfig struct {
	Command        string
	Args           []string
	DecideTimeout  time.Duration
	UpdateTimeout  time.Duration
	HealthTimeout  time.Duration
	RateLimitPerSec float64
}

// Agent wraps one child decision-process subprocess bound to
// localhost:<ephemeral> and the HTTP contract described in spec §4.F:
// /init, /decide, /update, /shutdown. Any other type with the same
// Init/Decide/Update/Shutdown methods can stand in for the subprocess.
type Agent interface {
	Init(ctx context.Context, req InitRequest) error
	Decide(ctx context.Context, req DecideRequest) (DecideResponse, error)
	Update(ctx context.Context, step json.RawMessage) error
	Shutdown(ctx context.Context) error
}

type InitRequest struct {
	BotID            string `json:"bot_id"`
	PlayerID         string `json:"player_id"`
	Seat             string `json:"seat"`
	GameID           string `json:"game_id"`
	LLMProfile       string `json:"llm_profile,omitempty"`
	GameGuideVersion string `json:"game_guide_version,omitempty"`
}

type DecideRequest struct {
	Snapshot       json.RawMessage `json:"snapshot"`
	ForceSpeak     bool            `json:"force_speak"`
	RetryOfInvalid bool            `json:"retry_of_invalid"`
}

type DecideResponse struct {
	CommandType string `json:"command_type"`
	Direction   string `json:"direction,omitempty"`
	SpeakText   string `json:"speak_text,omitempty"`
}

// SubprocessAgent spawns the decision process and speaks the HTTP
// contract to it over loopback.
type SubprocessAgent struct {
	cfg        AgentConfig
	cmd        *exec.Cmd
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSubprocessAgent starts the child process and waits for its health
// endpoint, per spec §4.F step 3. The caller supplies the port the
// child was told to bind via cfg.Args (the OS-ephemeral-port contract
// lives in the child; this host only waits for it to answer).
func NewSubprocessAgent(ctx context.Context, cfg AgentConfig, baseURL string) (*SubprocessAgent, error) {
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("botworker: spawn decision agent: %w", err)
	}

	limit := cfg.RateLimitPerSec
	if limit <= 0 {
		limit = 5
	}
	a := &SubprocessAgent{
		cfg:        cfg,
		cmd:        cmd,
		baseURL:    baseURL,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(limit), 1),
	}

	healthTimeout := cfg.HealthTimeout
	if healthTimeout == 0 {
		healthTimeout = 5 * time.Second
	}
	deadline := time.Now().Add(healthTimeout)
	for {
		healthCtx, cancel := context.WithTimeout(ctx, time.Second)
		err := a.get(healthCtx, "/health", nil)
		cancel()
		if err == nil {
			return a, nil
		}
		if time.Now().After(deadline) {
			_ = cmd.Process.Kill()
			return nil, fmt.Errorf("botworker: decision agent never became healthy: %w", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (a *SubprocessAgent) Init(ctx context.Context, req InitRequest) error {
	return a.postJSON(ctx, "/init", req, nil)
}

func (a *SubprocessAgent) Decide(ctx context.Context, req DecideRequest) (DecideResponse, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return DecideResponse{}, fmt.Errorf("botworker: decide rate limit: %w", err)
	}
	timeout := a.cfg.DecideTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	decideCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resp DecideResponse
	err := a.postJSON(decideCtx, "/decide", req, &resp)
	return resp, err
}

func (a *SubprocessAgent) Update(ctx context.Context, step json.RawMessage) error {
	timeout := a.cfg.UpdateTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	updateCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return a.postJSON(updateCtx, "/update", step, nil)
}

func (a *SubprocessAgent) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = a.postJSON(shutdownCtx, "/shutdown", struct{}{}, nil)
	if a.cmd != nil && a.cmd.Process != nil {
		_ = a.cmd.Process.Kill()
	}
	return nil
}

func (a *SubprocessAgent) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("agent returned %d", resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (a *SubprocessAgent) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("agent returned %d on %s", resp.StatusCode, path)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
