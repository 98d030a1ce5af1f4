package botmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/apperr"
	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/observability"
	"github.com/StarHuntingGames/cowboy/internal/telemetry"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

const gameGuideVersion = "v1"

// Manager implements authority.BotAssigner and the rest of spec §4.E's
// operator-facing surface, grounded on the teacher's bot.Manager
// (per-room slice of *Bot) generalized into per-host HTTP bindings
// instead of in-process bot objects.
type Manager struct {
	Hosts   *HostRegistry
	Bus     bus.Bus
	Store   *telemetry.Store
	Logger  *zap.Logger
	Metrics *observability.Metrics

	OutputTopicPrefix string

	clientsMu sync.Mutex
	clients   map[string]*HostClient

	forwardersMu sync.Mutex
	forwarders   map[string]context.CancelFunc
}

func NewManager(hosts *HostRegistry, b bus.Bus, store *telemetry.Store, logger *zap.Logger, metrics *observability.Metrics, outputTopicPrefix string) *Manager {
	return &Manager{
		Hosts:             hosts,
		Bus:               b,
		Store:             store,
		Logger:            logger,
		Metrics:           metrics,
		OutputTopicPrefix: outputTopicPrefix,
		clients:           make(map[string]*HostClient),
		forwarders:        make(map[string]context.CancelFunc),
	}
}

func (m *Manager) client(host Host) *HostClient {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	if c, ok := m.clients[host.ID]; ok {
		return c
	}
	c := NewHostClient(host.BaseURL, 10*time.Second)
	m.clients[host.ID] = c
	return c
}

// AssignDefault implements authority.BotAssigner: seat A is human, the
// rest are bots, unless the caller supplied an explicit bot seat list.
func (m *Manager) AssignDefault(ctx context.Context, gameID string, seatPlayerIDs map[types.PlayerName]string, botSeats []types.PlayerName) error {
	if len(botSeats) == 0 {
		for _, seat := range types.SeatOrder {
			if seat == types.SeatA {
				continue
			}
			if _, ok := seatPlayerIDs[seat]; ok {
				botSeats = append(botSeats, seat)
			}
		}
	}
	return m.bindSeats(ctx, gameID, seatPlayerIDs, botSeats, "")
}

// Assign implements the explicit human/bot split operation. humanSeats
// and botSeats must be disjoint and every seat must exist in the game.
func (m *Manager) Assign(ctx context.Context, gameID string, seatPlayerIDs map[types.PlayerName]string, humanSeats, botSeats []types.PlayerName) error {
	seen := make(map[types.PlayerName]bool)
	for _, s := range humanSeats {
		if _, ok := seatPlayerIDs[s]; !ok {
			return apperr.New(apperr.BadRequest, fmt.Sprintf("seat %s is not in this game", s))
		}
		seen[s] = true
	}
	for _, s := range botSeats {
		if seen[s] {
			return apperr.New(apperr.BadRequest, "a seat cannot be both human and bot")
		}
		if _, ok := seatPlayerIDs[s]; !ok {
			return apperr.New(apperr.BadRequest, fmt.Sprintf("seat %s is not in this game", s))
		}
	}
	return m.bindSeats(ctx, gameID, seatPlayerIDs, botSeats, "")
}

func (m *Manager) bindSeats(ctx context.Context, gameID string, seatPlayerIDs map[types.PlayerName]string, botSeats []types.PlayerName, forceRecreateHostID string) error {
	for _, seat := range botSeats {
		playerID, ok := seatPlayerIDs[seat]
		if !ok {
			continue
		}
		if err := m.BindBot(ctx, gameID, playerID, string(seat), "", false); err != nil {
			return err
		}
	}
	return nil
}

// BindBot attaches or replaces a bot for one seat (spec §4.E).
func (m *Manager) BindBot(ctx context.Context, gameID, playerID, seat, requestedBotID string, forceRecreate bool) error {
	existing, err := m.existingBinding(ctx, gameID, playerID)
	if err != nil {
		return err
	}

	preferred := ""
	if existing != nil {
		preferred = existing.HostID
		if forceRecreate {
			if err := m.teardownBinding(ctx, *existing); err != nil {
				m.Logger.Warn("botmanager: failed to tear down prior binding", zap.Error(err))
			}
			existing = nil
		}
	}
	if existing != nil && !forceRecreate {
		return nil // already bound, nothing to do
	}

	host, overloaded, err := m.Hosts.Select(preferred)
	if err != nil {
		return apperr.Wrap(apperr.Dependency, err, "select bot-worker host")
	}
	if overloaded {
		m.Logger.Warn("botmanager: every bot-worker host is at capacity, overcommitting",
			zap.String("host_id", host.ID), zap.String("game_id", gameID))
	}

	client := m.client(host)
	created, err := client.Create(ctx, CreateBotRequest{GameID: gameID, PlayerID: playerID, Seat: seat})
	if err != nil {
		return apperr.Wrap(apperr.Dependency, err, "create bot")
	}
	if err := client.TeachGame(ctx, TeachGameRequest{BotID: created.BotID, GameID: gameID, GameGuideVersion: gameGuideVersion}); err != nil {
		return apperr.Wrap(apperr.Dependency, err, "teach bot the game guide")
	}
	m.Hosts.Acquire(host.ID)

	binding := telemetry.BotBinding{
		GameID:           gameID,
		PlayerID:         playerID,
		Seat:             seat,
		BotID:            created.BotID,
		HostID:           host.ID,
		GameGuideVersion: gameGuideVersion,
		BotStatus:        "READY",
		AssignedAt:       time.Now().UTC(),
	}
	if err := m.Store.SaveBotBinding(ctx, binding); err != nil {
		return apperr.Wrap(apperr.Internal, err, "persist bot binding")
	}
	m.ensureForwarder(gameID)
	return nil
}

func (m *Manager) existingBinding(ctx context.Context, gameID, playerID string) (*telemetry.BotBinding, error) {
	bindings, err := m.Store.ListBotBindings(ctx, gameID)
	if err != nil {
		return nil, err
	}
	for _, b := range bindings {
		if b.PlayerID == playerID {
			cp := b
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Manager) teardownBinding(ctx context.Context, b telemetry.BotBinding) error {
	host, ok := m.Hosts.Get(b.HostID)
	if !ok {
		return nil
	}
	if err := m.client(host).Delete(ctx, b.BotID); err != nil {
		return err
	}
	m.Hosts.Release(b.HostID)
	return nil
}

// StopBots tears down every bot binding for a game (spec §4.E).
func (m *Manager) StopBots(ctx context.Context, gameID string) error {
	bindings, err := m.Store.ListBotBindings(ctx, gameID)
	if err != nil {
		return err
	}
	for _, b := range bindings {
		if err := m.teardownBinding(ctx, b); err != nil {
			m.Logger.Warn("botmanager: failed to tear down binding", zap.String("game_id", gameID), zap.Error(err))
		}
	}
	if err := m.Store.DeleteBotBindings(ctx, gameID); err != nil {
		return err
	}
	m.stopForwarder(gameID)
	return nil
}

// StartControlConsumer subscribes to every game's output topic and
// reacts to GameStarted/GameFinished (spec §4.E).
func (m *Manager) StartControlConsumer(ctx context.Context) error {
	pattern := bus.TopicPattern(m.OutputTopicPrefix)
	return m.Bus.Subscribe(ctx, "botmanager.control."+m.OutputTopicPrefix, pattern, func(subCtx context.Context, routingKey string, payload []byte) error {
		var step types.StepEvent
		if err := json.Unmarshal(payload, &step); err != nil {
			return nil
		}
		switch step.EventType {
		case types.EventGameStarted:
			return m.handleGameStarted(ctx, step)
		case types.EventGameFinished:
			return m.StopBots(ctx, step.GameID)
		}
		return nil
	})
}

// handleGameStarted is the ground truth's on_game_started
// (bot-manager-service/src/main.rs:1745-1770): start forwarding step
// events, auto-assign default bots if the game somehow reached Running
// without ever going through CreateGame's assignment, and stamp every
// binding for the game with its new lifecycle status.
func (m *Manager) handleGameStarted(ctx context.Context, step types.StepEvent) error {
	m.ensureForwarder(step.GameID)

	bindings, err := m.Store.ListBotBindings(ctx, step.GameID)
	if err != nil {
		return err
	}
	if len(bindings) == 0 {
		seatPlayerIDs := make(map[types.PlayerName]string, len(step.StateAfter.Players))
		for _, p := range step.StateAfter.Players {
			seatPlayerIDs[types.PlayerName(p.PlayerName)] = p.PlayerID
		}
		if err := m.AssignDefault(ctx, step.GameID, seatPlayerIDs, nil); err != nil {
			m.Logger.Warn("botmanager: auto-assign default bots on game start failed",
				zap.String("game_id", step.GameID), zap.Error(err))
		}
	}

	if err := m.Store.UpdateBotBindingsGameStatus(ctx, step.GameID, string(types.GameRunning)); err != nil {
		m.Logger.Warn("botmanager: failed to stamp bot binding game status",
			zap.String("game_id", step.GameID), zap.Error(err))
	}
	return nil
}

// ensureForwarder spawns the per-game forward consumer on first use,
// fanning every step event to each bound bot worker's /update endpoint
// (spec §4.E) so bots keep their memory current.
func (m *Manager) ensureForwarder(gameID string) {
	m.forwardersMu.Lock()
	defer m.forwardersMu.Unlock()
	if _, ok := m.forwarders[gameID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.forwarders[gameID] = cancel
	go m.runForwarder(ctx, gameID)
}

func (m *Manager) stopForwarder(gameID string) {
	m.forwardersMu.Lock()
	defer m.forwardersMu.Unlock()
	if cancel, ok := m.forwarders[gameID]; ok {
		cancel()
		delete(m.forwarders, gameID)
	}
}

func (m *Manager) runForwarder(ctx context.Context, gameID string) {
	topic := fmt.Sprintf("%s.%s.v1", m.OutputTopicPrefix, gameID)
	err := m.Bus.Subscribe(ctx, "botmanager.forward."+gameID, topic, func(subCtx context.Context, routingKey string, payload []byte) error {
		var step types.StepEvent
		if err := json.Unmarshal(payload, &step); err != nil {
			return nil
		}
		bindings, err := m.Store.ListBotBindings(subCtx, gameID)
		if err != nil {
			return err
		}
		for _, b := range bindings {
			host, ok := m.Hosts.Get(b.HostID)
			if !ok {
				continue
			}
			go func(host Host, botID string) {
				updCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = m.client(host).postJSON(updCtx, "/internal/v3/bots/"+botID+"/update", step, nil)
			}(host, b.BotID)
		}
		if step.EventType == types.EventGameFinished {
			m.stopForwarder(gameID)
		}
		return nil
	})
	if err != nil {
		m.Logger.Error("botmanager: forward consumer failed to start", zap.String("game_id", gameID), zap.Error(err))
	}
}
