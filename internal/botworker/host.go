package botworker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/apperr"
	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/httpcommon"
	"github.com/StarHuntingGames/cowboy/internal/observability"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

// Host is the bot-worker host process (spec §4.F/§6): it exposes the
// Create/TeachGame/Update/Delete contract botmanager.HostClient calls
// and owns the Worker goroutine for every bot it has created.
type Host struct {
	Bus             bus.Bus
	Authority       AuthorityClient
	Logger          *zap.Logger
	Metrics         *observability.Metrics
	AgentCommand    string
	AgentArgs       []string
	AgentRateLimitPerSec float64
	AgentDecideTimeout   time.Duration
	AgentHealthTimeout   time.Duration
	InputTopicFn    func(gameID string) string
	OutputTopicFn   func(gameID string) string

	mu      sync.Mutex
	workers map[string]*boundWorker
}

type boundWorker struct {
	worker *Worker
	agent  Agent
	cancel context.CancelFunc
}

type botState string

const (
	botCreated botState = "CREATED"
	botReady   botState = "READY"
)

func NewHost(b bus.Bus, authority AuthorityClient, logger *zap.Logger, metrics *observability.Metrics, agentCommand string, agentArgs []string, inputTopicFn, outputTopicFn func(string) string) *Host {
	return &Host{
		Bus:           b,
		Authority:     authority,
		Logger:        logger,
		Metrics:       metrics,
		AgentCommand:  agentCommand,
		AgentArgs:     agentArgs,
		InputTopicFn:  inputTopicFn,
		OutputTopicFn: outputTopicFn,
		workers:       make(map[string]*boundWorker),
	}
}

// RegisterRoutes mounts spec §6's internal bot-worker-host surface.
func (h *Host) RegisterRoutes(r chi.Router) {
	r.Route("/internal/v3/bots", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/{bot_id}", h.handleGet)
		r.Delete("/{bot_id}", h.handleDelete)
		r.Post("/{bot_id}/teach-game", h.handleTeachGame)
		r.Post("/{bot_id}/update", h.handleUpdate)
	})
}

type createBotRequest struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	Seat     string `json:"seat"`
}

type botResponse struct {
	BotID    string   `json:"bot_id"`
	GameID   string   `json:"game_id"`
	PlayerID string   `json:"player_id"`
	Seat     string   `json:"seat"`
	State    botState `json:"state"`
}

// handleCreate records config for a new bot (spec §4.F: "Create records
// config"); the worker loop and agent subprocess only start once
// TeachGame transitions it to Ready.
func (h *Host) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createBotRequest
	if err := httpcommon.DecodeJSON(r, &body); err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	if body.GameID == "" || body.PlayerID == "" || body.Seat == "" {
		httpcommon.WriteError(w, apperr.New(apperr.BadRequest, "game_id, player_id and seat are required"))
		return
	}

	botID := fmt.Sprintf("bot-%s-%s", body.GameID, body.PlayerID)
	worker := &Worker{
		BotID:       botID,
		PlayerID:    body.PlayerID,
		Seat:        types.PlayerName(body.Seat),
		GameID:      body.GameID,
		InputTopic:  h.InputTopicFn(body.GameID),
		OutputTopic: h.OutputTopicFn(body.GameID),
		Bus:         h.Bus,
		Authority:   h.Authority,
		Logger:      h.Logger,
		Metrics:     h.Metrics,
	}

	h.mu.Lock()
	if _, exists := h.workers[botID]; exists {
		h.mu.Unlock()
		httpcommon.WriteError(w, apperr.New(apperr.Conflict, "bot already exists"))
		return
	}
	h.workers[botID] = &boundWorker{worker: worker}
	h.mu.Unlock()

	httpcommon.WriteJSON(w, botResponse{BotID: botID, GameID: body.GameID, PlayerID: body.PlayerID, Seat: body.Seat, State: botCreated})
}

func (h *Host) handleGet(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "bot_id")
	h.mu.Lock()
	bound, ok := h.workers[botID]
	h.mu.Unlock()
	if !ok {
		httpcommon.WriteError(w, apperr.New(apperr.NotFound, "unknown bot_id"))
		return
	}
	state := botCreated
	if bound.agent != nil {
		state = botReady
	}
	httpcommon.WriteJSON(w, botResponse{BotID: botID, GameID: bound.worker.GameID, PlayerID: bound.worker.PlayerID, Seat: string(bound.worker.Seat), State: state})
}

type teachGameRequest struct {
	GameID           string `json:"game_id"`
	GameGuideVersion string `json:"game_guide_version"`
}

// handleTeachGame loads the game guide into the agent and starts the
// worker loop, transitioning Created -> Ready (spec §4.F step 3).
func (h *Host) handleTeachGame(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "bot_id")
	var body teachGameRequest
	if err := httpcommon.DecodeJSON(r, &body); err != nil {
		httpcommon.WriteError(w, err)
		return
	}

	h.mu.Lock()
	bound, ok := h.workers[botID]
	h.mu.Unlock()
	if !ok {
		httpcommon.WriteError(w, apperr.New(apperr.NotFound, "unknown bot_id"))
		return
	}

	ctx := r.Context()
	// The subprocess reports its real ephemeral port over stdout in a
	// full deployment; tests inject an Agent directly and never reach here.
	agentBaseURL := "http://127.0.0.1:0"
	agent, err := NewSubprocessAgent(ctx, AgentConfig{
		Command:         h.AgentCommand,
		Args:            h.AgentArgs,
		DecideTimeout:   h.AgentDecideTimeout,
		HealthTimeout:   h.AgentHealthTimeout,
		RateLimitPerSec: h.AgentRateLimitPerSec,
	}, agentBaseURL)
	if err != nil {
		httpcommon.WriteError(w, apperr.Wrap(apperr.Dependency, err, "start decision agent"))
		return
	}
	if err := agent.Init(ctx, InitRequest{BotID: botID, PlayerID: bound.worker.PlayerID, Seat: string(bound.worker.Seat), GameID: bound.worker.GameID, GameGuideVersion: body.GameGuideVersion}); err != nil {
		httpcommon.WriteError(w, apperr.Wrap(apperr.Dependency, err, "init decision agent"))
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	bound.worker.Agent = agent
	h.mu.Lock()
	bound.agent = agent
	bound.cancel = cancel
	h.mu.Unlock()

	go func() {
		if err := bound.worker.Start(runCtx); err != nil {
			h.Logger.Error("botworker: worker loop exited", zap.String("bot_id", botID), zap.Error(err))
		}
	}()

	httpcommon.WriteJSON(w, botResponse{BotID: botID, GameID: bound.worker.GameID, PlayerID: bound.worker.PlayerID, Seat: string(bound.worker.Seat), State: botReady})
}

// handleUpdate forwards a fire-and-forget step event to the bound
// bot's agent so it can refresh its memory (spec §4.F step 5). This
// mirrors the per-game forwarder's push from botmanager; it is kept as
// a direct endpoint too since a worker not yet subscribed (mid-teach)
// can still be caught up this way.
func (h *Host) handleUpdate(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "bot_id")
	h.mu.Lock()
	bound, ok := h.workers[botID]
	h.mu.Unlock()
	if !ok {
		httpcommon.WriteError(w, apperr.New(apperr.NotFound, "unknown bot_id"))
		return
	}
	if bound.agent == nil {
		httpcommon.WriteJSON(w, map[string]string{"status": "not_ready"})
		return
	}
	body, err := httpcommon.ReadRawBody(r)
	if err != nil {
		httpcommon.WriteError(w, err)
		return
	}
	_ = bound.agent.Update(r.Context(), body)
	httpcommon.WriteJSON(w, map[string]string{"status": "accepted"})
}

func (h *Host) handleDelete(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "bot_id")
	h.mu.Lock()
	bound, ok := h.workers[botID]
	if ok {
		delete(h.workers, botID)
	}
	h.mu.Unlock()
	if !ok {
		httpcommon.WriteError(w, apperr.New(apperr.NotFound, "unknown bot_id"))
		return
	}
	if bound.cancel != nil {
		bound.cancel()
	}
	if bound.agent != nil {
		_ = bound.agent.Shutdown(r.Context())
	}
	w.WriteHeader(http.StatusNoContent)
}
