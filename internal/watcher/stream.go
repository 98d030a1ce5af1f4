package watcher

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/StarHuntingGames/cowboy/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// session is one open watcher stream connection: a write pump fed by
// the background consumer (push(frame)) and an independent poll loop
// that re-fetches the snapshot on a fixed cadence, grounded on the
// teacher's realtime.Session send-channel pattern.
type session struct {
	gameID string
	conn   *websocket.Conn
	send   chan Frame
	logger *zap.Logger
}

func (s *session) push(f Frame) {
	select {
	case s.send <- f:
	default: // slow consumer: drop rather than block the broadcaster
	}
}

func (w *Watcher) handleStream(rw http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	if _, err := w.Authority.GetGame(r.Context(), gameID); err != nil {
		httpWriteStreamError(rw, err)
		return
	}

	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.Logger.Warn("watcher: websocket upgrade failed", zap.Error(err))
		return
	}

	sess := &session{gameID: gameID, conn: conn, send: make(chan Frame, 64), logger: w.Logger}
	w.addSession(gameID, sess)
	defer w.removeSession(gameID, sess)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go sess.discardIncoming(cancel)

	sess.push(Frame{Type: FrameConnected, GameID: gameID, At: time.Now().UTC()})
	go w.pollSnapshots(ctx, sess)

	sess.writePump(ctx)
}

// discardIncoming drains and ignores client messages; this stream is
// server push only but must read to notice the peer closing.
func (s *session) discardIncoming(cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer s.conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-s.send:
			if !ok {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pollSnapshots fetches the snapshot every snapshotPollInterval (0.8s)
// and pushes a frame whenever this is the first emission, the turn
// advanced, or the status changed: SNAPSHOT, or GAME_STARTED /
// GAME_FINISHED for those status changes (see statusTransitionFrame).
func (w *Watcher) pollSnapshots(ctx context.Context, s *session) {
	ticker := time.NewTicker(snapshotPollInterval)
	defer ticker.Stop()

	var lastTurnNo uint64
	var lastStatus types.GameStatus
	first := true

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			game, err := w.fetchSnapshot(ctx, s.gameID)
			if err != nil {
				s.push(errorFrame(s.gameID, err))
				continue
			}
			if !first && game.TurnNo == lastTurnNo && game.Status == lastStatus {
				continue
			}
			if frame := statusTransitionFrame(game, lastStatus, first); frame != nil {
				s.push(*frame)
			}
			lastTurnNo, lastStatus, first = game.TurnNo, game.Status, false
		}
	}
}

func httpWriteStreamError(rw http.ResponseWriter, err error) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusNotFound)
	json.NewEncoder(rw).Encode(map[string]string{"error": err.Error()})
}
