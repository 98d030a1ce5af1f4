package authority

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	yaml "go.yaml.in/yaml/v3"

	"github.com/StarHuntingGames/cowboy/internal/apperr"
	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/observability"
	"github.com/StarHuntingGames/cowboy/internal/rules"
	"github.com/StarHuntingGames/cowboy/internal/telemetry"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

// BotAssigner is the seam authority.CreateGame calls into after seeding
// players, implemented by internal/botmanager and recorded here only as
// an interface to keep the two services decoupled (spec §9: dynamic
// dispatch as an injected interface).
type BotAssigner interface {
	AssignDefault(ctx context.Context, gameID string, seatPlayerIDs map[types.PlayerName]string, botSeats []types.PlayerName) error
}

// NoopBotAssigner assigns nothing; NewGameManager falls back to it when
// it is given no BotAssigner.
type NoopBotAssigner struct{}

func (NoopBotAssigner) AssignDefault(ctx context.Context, gameID string, seatPlayerIDs map[types.PlayerName]string, botSeats []types.PlayerName) error {
	return nil
}

type GameManager struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	actors map[string]*GameActor

	store            *telemetry.Store
	publisher        bus.Bus
	provisioner      bus.Provisioner
	botAssigner      BotAssigner
	logger           *zap.Logger
	metrics          *observability.Metrics
	snapshotInterval int64
	rand             rules.Rand

	defaultMapMu sync.Mutex
	defaultMap   *rules.Map
}

func NewGameManager(ctx context.Context, st *telemetry.Store, publisher bus.Bus, provisioner bus.Provisioner, botAssigner BotAssigner, logger *zap.Logger, metrics *observability.Metrics, snapshotInterval int64) *GameManager {
	if ctx == nil {
		ctx = context.Background()
	}
	if botAssigner == nil {
		botAssigner = NoopBotAssigner{}
	}
	actorCtx, cancel := context.WithCancel(ctx)
	return &GameManager{
		ctx:              actorCtx,
		cancel:           cancel,
		actors:           make(map[string]*GameActor),
		store:            st,
		publisher:        publisher,
		provisioner:      provisioner,
		botAssigner:      botAssigner,
		logger:           logger,
		metrics:          metrics,
		snapshotInterval: snapshotInterval,
		rand:             rules.CryptoRand{},
	}
}

func (m *GameManager) Close() { m.cancel() }

// CreateGameRequest carries CreateGame's parameters (spec §4.B).
type CreateGameRequest struct {
	TurnTimeoutSec int
	CustomMap      *rules.Map
	BotSeats       []types.PlayerName
	PlayerCount    int
}

type CreateGameResult struct {
	Game          rules.GameInstance
	SeatPlayerIDs map[types.PlayerName]string
}

func (m *GameManager) CreateGame(ctx context.Context, req CreateGameRequest) (CreateGameResult, error) {
	if req.PlayerCount < 1 || req.PlayerCount > 4 {
		return CreateGameResult{}, apperr.New(apperr.BadRequest, "player_count must be between 1 and 4")
	}
	timeout := req.TurnTimeoutSec
	if timeout < 1 {
		timeout = 1
	}

	gameID := uuid.NewString()
	inputTopic, outputTopic, err := m.provisioner.CreateGameTopics(ctx, gameID)
	if err != nil {
		return CreateGameResult{}, apperr.Wrap(apperr.Dependency, err, "provision game topics")
	}

	seats := types.SeatOrder[:req.PlayerCount]
	seatIDs := make(map[types.PlayerName]string, len(seats))
	for _, seat := range seats {
		seatIDs[seat] = uuid.NewString()
	}

	var gameMap rules.Map
	mapSource := types.MapDefault
	if req.CustomMap != nil {
		gameMap = req.CustomMap.Copy()
		mapSource = types.MapCustom
	} else {
		gameMap, err = m.GetDefaultMap(ctx)
		if err != nil {
			_ = m.provisioner.DeleteGameTopics(ctx, gameID)
			return CreateGameResult{}, err
		}
	}
	players := rules.SeedPlayers(seats, seatIDs, gameMap.Rows, gameMap.Cols, 10)

	instance := rules.GameInstance{
		GameID:         gameID,
		Status:         types.GameCreated,
		MapSource:      mapSource,
		TurnTimeoutSec: timeout,
		CreatedAt:      time.Now().UTC(),
		InputTopic:     inputTopic,
		OutputTopic:    outputTopic,
		State:          rules.GameState{Map: gameMap, Players: players},
	}
	instance.CurrentPlayerID = players[0].PlayerID

	if err := m.botAssigner.AssignDefault(ctx, gameID, seatIDs, req.BotSeats); err != nil {
		_ = m.provisioner.DeleteGameTopics(ctx, gameID)
		return CreateGameResult{}, apperr.Wrap(apperr.Dependency, err, "assign bots")
	}

	m.mu.Lock()
	m.actors[gameID] = newGameActor(m.ctx, instance, m.store, m.publisher, m.logger, m.metrics, m.snapshotInterval, m.handleActorCrash)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.ActiveGames.Inc()
	}

	return CreateGameResult{Game: instance, SeatPlayerIDs: seatIDs}, nil
}

// GetDefaultMap returns the map new games get when CreateGame isn't
// given a CustomMap (spec §6's `GET /v2/maps/default`), generating it
// once and reusing the same instance afterwards rather than a fresh
// random map per call, matching the ground truth's
// get_default_map_handler (game-manager-service/src/main.rs:503-514).
func (m *GameManager) GetDefaultMap(ctx context.Context) (rules.Map, error) {
	m.defaultMapMu.Lock()
	defer m.defaultMapMu.Unlock()
	if m.defaultMap == nil {
		generated := rules.GenerateDefaultMap(rules.DefaultRows, rules.DefaultCols, m.rand)
		m.defaultMap = &generated
	}
	return m.defaultMap.Copy(), nil
}

// LoadDefaultMapConfig seeds the default map from a YAML file instead of
// generating one at first use, mirroring the ground truth's
// load_default_map_config/DEFAULT_MAP_CONFIG_PATH (game-manager-service/
// src/main.rs:444-469): a missing env var is silent, a missing or
// unparseable file is logged and otherwise ignored, falling back to the
// generated map on first GetDefaultMap call as before.
func (m *GameManager) LoadDefaultMapConfig(path string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		m.logger.Warn("authority: failed to read default map config file", zap.String("path", path), zap.Error(err))
		return
	}
	if strings.TrimSpace(string(raw)) == "" {
		m.logger.Warn("authority: default map config file is empty", zap.String("path", path))
		return
	}
	var configured rules.Map
	if err := yaml.Unmarshal(raw, &configured); err != nil {
		m.logger.Warn("authority: failed to parse default map config yaml", zap.String("path", path), zap.Error(err))
		return
	}
	m.defaultMapMu.Lock()
	defer m.defaultMapMu.Unlock()
	m.defaultMap = &configured
	m.logger.Info("authority: loaded default map from YAML config", zap.Int("rows", configured.Rows), zap.Int("cols", configured.Cols))
}

func (m *GameManager) getActor(gameID string) (*GameActor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ga, ok := m.actors[gameID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "game not found")
	}
	return ga, nil
}

func (m *GameManager) StartGame(ctx context.Context, gameID string) (ApplyResult, error) {
	ga, err := m.getActor(gameID)
	if err != nil {
		return ApplyResult{}, err
	}
	return ga.StartGame(ctx)
}

func (m *GameManager) ApplyCommand(ctx context.Context, cmd types.CommandEnvelope) (ApplyResult, error) {
	return m.applyCommand(ctx, cmd, false)
}

// ApplyCommandSpeculative evaluates cmd against the rules engine without
// committing a step when the outcome is a rejection, letting the
// command pipeline decide whether to rewrite the command into a Speak
// before anything is persisted or published (spec §4.C step 5).
func (m *GameManager) ApplyCommandSpeculative(ctx context.Context, cmd types.CommandEnvelope) (ApplyResult, error) {
	return m.applyCommand(ctx, cmd, true)
}

func (m *GameManager) applyCommand(ctx context.Context, cmd types.CommandEnvelope, speculative bool) (ApplyResult, error) {
	ga, err := m.getActor(cmd.GameID)
	if err != nil {
		return ApplyResult{}, err
	}
	result, err := ga.ApplyCommand(ctx, CommandRequest{Command: cmd, Speculative: speculative})
	if err == nil && result.Accepted && result.Applied && result.Game.State.AliveCount() == 1 && result.Game.Status == types.GameRunning {
		turnNo := result.Game.TurnNo
		finishResult, finishErr := ga.FinishGame(ctx, &turnNo)
		if finishErr == nil {
			result.Game = finishResult.Game
		}
	}
	return result, err
}

func (m *GameManager) FinishGame(ctx context.Context, gameID string, expectedTurnNo *uint64) (ApplyResult, error) {
	ga, err := m.getActor(gameID)
	if err != nil {
		return ApplyResult{}, err
	}
	result, applyErr := ga.FinishGame(ctx, expectedTurnNo)
	if applyErr == nil && result.Accepted && result.Applied {
		if dErr := m.provisioner.DeleteGameTopics(ctx, gameID); dErr != nil {
			m.logger.Error("authority: delete game topics failed", zap.String("game_id", gameID), zap.Error(dErr))
		}
		if m.metrics != nil {
			m.metrics.ActiveGames.Dec()
		}
	}
	return result, applyErr
}

// RecordRejection is the command pipeline's seam for steps it decides
// without ever reaching the rules engine (spec §4.C steps 1-4): it goes
// through the same per-game actor as ApplyCommand so step_seq
// allocation is linearizable across both paths.
func (m *GameManager) RecordRejection(ctx context.Context, gameID string, cmd *types.CommandEnvelope, reason string, status types.ResultStatus) (ApplyResult, error) {
	ga, err := m.getActor(gameID)
	if err != nil {
		return ApplyResult{}, err
	}
	return ga.RecordRejection(ctx, cmd, reason, status)
}

func (m *GameManager) GetGame(ctx context.Context, gameID string) (rules.GameInstance, error) {
	ga, err := m.getActor(gameID)
	if err != nil {
		return rules.GameInstance{}, err
	}
	return ga.GetGame(), nil
}

// handleActorCrash reloads a game's state from its latest snapshot plus
// any step records recorded after it, mirroring the teacher's
// RoomManager.handleActorCrash restart path.
func (m *GameManager) handleActorCrash(gameID string) {
	reloadCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	instance, err := m.reloadInstance(reloadCtx, gameID)
	if err != nil {
		m.logger.Error("authority: failed to reload game after crash", zap.String("game_id", gameID), zap.Error(err))
		return
	}

	m.mu.Lock()
	m.actors[gameID] = newGameActor(m.ctx, instance, m.store, m.publisher, m.logger, m.metrics, m.snapshotInterval, m.handleActorCrash)
	m.mu.Unlock()
	m.logger.Warn("authority: game actor restarted", zap.String("game_id", gameID))
}

func (m *GameManager) reloadInstance(ctx context.Context, gameID string) (rules.GameInstance, error) {
	snap, err := m.store.GetLatestSnapshot(ctx, gameID)
	if err != nil {
		return rules.GameInstance{}, err
	}
	var instance rules.GameInstance
	var afterSeq int64
	if snap != nil {
		if err := json.Unmarshal([]byte(snap.StateJSON), &instance); err != nil {
			return rules.GameInstance{}, err
		}
		afterSeq = snap.LastSeq
	}

	steps, err := m.store.LoadStepsAfter(ctx, gameID, afterSeq, 0)
	if err != nil {
		return rules.GameInstance{}, err
	}
	if len(steps) > 0 {
		last := steps[len(steps)-1]
		var step types.StepEvent
		if err := json.Unmarshal([]byte(last.PayloadJSON), &step); err != nil {
			return rules.GameInstance{}, err
		}
		instance.TurnNo = step.TurnNo
		instance.RoundNo = step.RoundNo
		instance.LastStepSeq = step.StepSeq
		instance.CurrentPlayerID = step.CurrentPlayerID
		instance.Status = step.GameStatus
		instance.State.Map.Cells = step.StateAfter.Map.Cells
		instance.State.Players = make([]rules.Player, len(step.StateAfter.Players))
		for i, p := range step.StateAfter.Players {
			instance.State.Players[i] = rules.Player{
				PlayerID:        p.PlayerID,
				Name:            types.PlayerName(p.PlayerName),
				HP:              p.HP,
				Row:             p.Row,
				Col:             p.Col,
				ShieldDirection: types.Direction(p.Shield),
				Alive:           p.Alive,
			}
		}
	}
	return instance, nil
}
