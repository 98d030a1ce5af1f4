package telemetry

import (
	"context"
	"database/sql"
)

func (s *Store) GetDedupRecord(ctx context.Context, gameID, commandID string) (*DedupRecord, error) {
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if r, ok := s.dedups[dedupKey(gameID, commandID)]; ok {
			cp := r
			return &cp, nil
		}
		return nil, nil
	}
	row := s.DB.QueryRowContext(ctx, `SELECT game_id,command_id,status,result_json,created_at FROM commands_dedup WHERE game_id=? AND command_id=?`, gameID, commandID)
	var r DedupRecord
	if err := row.Scan(&r.GameID, &r.CommandID, &r.Status, &r.ResultJSON, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) SaveDedupRecord(ctx context.Context, tx *sql.Tx, r DedupRecord) error {
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.dedups[dedupKey(r.GameID, r.CommandID)] = r
		return nil
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO commands_dedup (game_id,command_id,status,result_json,created_at) VALUES (?,?,?,?,?) ON DUPLICATE KEY UPDATE status=VALUES(status),result_json=VALUES(result_json)`,
		r.GameID, r.CommandID, r.Status, r.ResultJSON, r.CreatedAt)
	return err
}

func (s *Store) GetLatestSnapshot(ctx context.Context, gameID string) (*Snapshot, error) {
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if snap, ok := s.snapshots[gameID]; ok {
			cp := snap
			return &cp, nil
		}
		return nil, nil
	}
	row := s.DB.QueryRowContext(ctx, `SELECT game_id,last_seq,state_json,created_at FROM snapshots WHERE game_id=? ORDER BY last_seq DESC LIMIT 1`, gameID)
	var snap Snapshot
	if err := row.Scan(&snap.GameID, &snap.LastSeq, &snap.StateJSON, &snap.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, tx *sql.Tx, snap Snapshot) error {
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.snapshots[snap.GameID] = snap
		return nil
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO snapshots (game_id,last_seq,state_json,created_at) VALUES (?,?,?,?)`, snap.GameID, snap.LastSeq, snap.StateJSON, snap.CreatedAt)
	return err
}

func (s *Store) LoadStepsAfter(ctx context.Context, gameID string, afterSeq int64, limit int) ([]StepRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var out []StepRecord
		for _, rec := range s.steps[gameID] {
			if rec.Seq > afterSeq {
				out = append(out, rec)
				if len(out) >= limit {
					break
				}
			}
		}
		return out, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT game_id,seq,step_id,command_id,event_type,actor_player,payload_json,server_ts FROM step_records WHERE game_id=? AND seq>? ORDER BY seq ASC LIMIT ?`, gameID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StepRecord
	for rows.Next() {
		var r StepRecord
		if err := rows.Scan(&r.GameID, &r.Seq, &r.StepID, &r.CommandID, &r.EventType, &r.ActorPlayer, &r.PayloadJSON, &r.ServerTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AppendStep persists one step record plus its dedup outcome, and an
// optional snapshot, atomically (spec's supplemented crash-recovery
// feature). Mirrors the teacher's AppendEvents.
func (s *Store) AppendStep(ctx context.Context, rec StepRecord, dedup *DedupRecord, snap *Snapshot) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if s.MemoryMode {
			s.mu.Lock()
			s.steps[rec.GameID] = append(s.steps[rec.GameID], rec)
			s.mu.Unlock()
		} else if _, err := tx.ExecContext(ctx, `INSERT INTO step_records (game_id,seq,step_id,command_id,event_type,actor_player,payload_json,server_ts) VALUES (?,?,?,?,?,?,?,?)`,
			rec.GameID, rec.Seq, rec.StepID, rec.CommandID, rec.EventType, rec.ActorPlayer, rec.PayloadJSON, rec.ServerTime); err != nil {
			return err
		}
		if dedup != nil {
			if err := s.SaveDedupRecord(ctx, tx, *dedup); err != nil {
				return err
			}
		}
		if snap != nil {
			if err := s.SaveSnapshot(ctx, tx, *snap); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) SaveBotBinding(ctx context.Context, b BotBinding) error {
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		existing := s.botBindings[b.GameID]
		for i, e := range existing {
			if e.PlayerID == b.PlayerID {
				existing[i] = b
				return nil
			}
		}
		s.botBindings[b.GameID] = append(existing, b)
		return nil
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO bot_bindings (game_id,player_id,seat,bot_id,host_id,game_guide_version,bot_status,game_status,assigned_at) VALUES (?,?,?,?,?,?,?,?,?)
		ON DUPLICATE KEY UPDATE bot_id=VALUES(bot_id),host_id=VALUES(host_id),game_guide_version=VALUES(game_guide_version),bot_status=VALUES(bot_status),game_status=VALUES(game_status),assigned_at=VALUES(assigned_at)`,
		b.GameID, b.PlayerID, b.Seat, b.BotID, b.HostID, b.GameGuideVersion, b.BotStatus, b.GameStatus, b.AssignedAt)
	return err
}

func (s *Store) ListBotBindings(ctx context.Context, gameID string) ([]BotBinding, error) {
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		out := make([]BotBinding, len(s.botBindings[gameID]))
		copy(out, s.botBindings[gameID])
		return out, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT game_id,player_id,seat,bot_id,host_id,game_guide_version,bot_status,game_status,assigned_at FROM bot_bindings WHERE game_id=?`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BotBinding
	for rows.Next() {
		var b BotBinding
		if err := rows.Scan(&b.GameID, &b.PlayerID, &b.Seat, &b.BotID, &b.HostID, &b.GameGuideVersion, &b.BotStatus, &b.GameStatus, &b.AssignedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateBotBindingsGameStatus stamps every bot binding for a game with
// the game's current lifecycle status (ground truth:
// update_assignment_game_state in bot-manager-service/src/main.rs),
// e.g. on GameStarted so a bot-worker host can tell a binding belongs
// to a live game without a separate lookup.
func (s *Store) UpdateBotBindingsGameStatus(ctx context.Context, gameID, gameStatus string) error {
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		bindings := s.botBindings[gameID]
		for i := range bindings {
			bindings[i].GameStatus = gameStatus
		}
		return nil
	}
	_, err := s.DB.ExecContext(ctx, `UPDATE bot_bindings SET game_status=? WHERE game_id=?`, gameStatus, gameID)
	return err
}

func (s *Store) DeleteBotBindings(ctx context.Context, gameID string) error {
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.botBindings, gameID)
		return nil
	}
	_, err := s.DB.ExecContext(ctx, `DELETE FROM bot_bindings WHERE game_id=?`, gameID)
	return err
}
