package watcher

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/apperr"
	"github.com/StarHuntingGames/cowboy/internal/bus"
	"github.com/StarHuntingGames/cowboy/internal/httpcommon"
	"github.com/StarHuntingGames/cowboy/internal/observability"
	"github.com/StarHuntingGames/cowboy/internal/rules"
	"github.com/StarHuntingGames/cowboy/internal/types"
)

const snapshotPollInterval = 800 * time.Millisecond

// AuthorityClient is the read-only slice of the authority surface the
// watcher needs.
type AuthorityClient interface {
	GetGame(ctx context.Context, gameID string) (rules.GameInstance, error)
}

// Watcher implements spec §4.G: a Snapshot read and a push Stream,
// fed by a single background consumer subscribed to every game's
// output topic (grounded on the teacher's RoomManager-wide event bus,
// generalized from per-room actors to a wildcard bus subscription).
type Watcher struct {
	Authority         AuthorityClient
	Bus               bus.Bus
	Logger            *zap.Logger
	Metrics           *observability.Metrics
	OutputTopicPrefix string

	mu       sync.Mutex
	sessions map[string][]*session // game_id -> active stream sessions
}

func New(authority AuthorityClient, b bus.Bus, logger *zap.Logger, metrics *observability.Metrics, outputTopicPrefix string) *Watcher {
	return &Watcher{
		Authority:         authority,
		Bus:               b,
		Logger:            logger,
		Metrics:           metrics,
		OutputTopicPrefix: outputTopicPrefix,
		sessions:          make(map[string][]*session),
	}
}

// RegisterRoutes mounts spec §6's watcher surface.
func (w *Watcher) RegisterRoutes(r chi.Router) {
	r.Get("/v2/games/{game_id}/snapshot", w.handleSnapshot)
	r.Get("/v2/games/{game_id}/stream", w.handleStream)
}

type snapshotResponse struct {
	rules.GameInstance
	LastStepSeq uint64 `json:"last_step_seq"`
}

// handleSnapshot reports last_step_seq as turn_no (spec §4.G: "watchers
// treat turns as the visible cursor").
func (w *Watcher) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	game, err := w.Authority.GetGame(r.Context(), gameID)
	if err != nil {
		httpcommon.WriteError(rw, err)
		return
	}
	httpcommon.WriteJSON(rw, snapshotResponse{GameInstance: game, LastStepSeq: game.TurnNo})
}

// StartConsumer subscribes to every game's output topic and fans typed
// frames to every stream session watching that game (spec §4.G).
func (w *Watcher) StartConsumer(ctx context.Context) error {
	pattern := bus.TopicPattern(w.OutputTopicPrefix)
	return w.Bus.Subscribe(ctx, "watcher."+w.OutputTopicPrefix, pattern, func(subCtx context.Context, routingKey string, payload []byte) error {
		var step types.StepEvent
		if err := json.Unmarshal(payload, &step); err != nil {
			w.Logger.Error("watcher: malformed step event", zap.Error(err))
			return nil
		}
		w.broadcastStep(subCtx, step)
		return nil
	})
}

func (w *Watcher) broadcastStep(ctx context.Context, step types.StepEvent) {
	w.mu.Lock()
	sessions := append([]*session(nil), w.sessions[step.GameID]...)
	w.mu.Unlock()
	if len(sessions) == 0 {
		return
	}

	var snapshot *rules.GameInstance
	if game, err := w.Authority.GetGame(ctx, step.GameID); err == nil {
		snapshot = &game
	}
	frame := frameFromStep(step, snapshot)
	for _, s := range sessions {
		s.push(frame)
	}
}

func (w *Watcher) addSession(gameID string, s *session) {
	w.mu.Lock()
	w.sessions[gameID] = append(w.sessions[gameID], s)
	w.mu.Unlock()
	if w.Metrics != nil {
		w.Metrics.WatcherStreams.Inc()
	}
}

func (w *Watcher) removeSession(gameID string, s *session) {
	w.mu.Lock()
	list := w.sessions[gameID]
	for i, existing := range list {
		if existing == s {
			w.sessions[gameID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	w.mu.Unlock()
	if w.Metrics != nil {
		w.Metrics.WatcherStreams.Dec()
	}
}

func (w *Watcher) fetchSnapshot(ctx context.Context, gameID string) (rules.GameInstance, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return w.Authority.GetGame(timeoutCtx, gameID)
}

var errUnknownGame = apperr.New(apperr.NotFound, "unknown game_id")
