package telemetry

import "time"

// StepRecord is the durable record of one applied step event, keyed
// (game_id, seq), mirroring the teacher's StoredEvent (store/models.go).
type StepRecord struct {
	GameID       string
	Seq          int64
	StepID       string
	CommandID    string
	EventType    string
	ActorPlayer  string
	PayloadJSON  string
	ServerTime   time.Time
}

// DedupRecord records the outcome of a previously processed command_id
// so a redelivered message from the bus is answered without reapplying
// it (spec §4.C). Mirrors the teacher's DedupRecord.
type DedupRecord struct {
	GameID      string
	CommandID   string
	Status      string
	ResultJSON  string
	CreatedAt   time.Time
}

// Snapshot is a periodic full-state checkpoint used for crash recovery
// (spec's supplemented snapshot-interval feature), mirroring the
// teacher's Snapshot.
type Snapshot struct {
	GameID    string
	LastSeq   int64
	StateJSON string
	CreatedAt time.Time
}

// BotBinding records which player seat in which game is bot-controlled,
// which bot-worker host currently owns it, and the bot's own identity
// and lifecycle state on that host (spec §3: "(game_id, player_id) ->
// bot_id, bot_worker_host, game_guide_version, bot_status"). GameStatus
// mirrors the owning game's current lifecycle state onto the binding so
// a bot-worker host inspecting one binding can tell whether the game it
// belongs to is still running without a separate lookup.
type BotBinding struct {
	GameID           string    `json:"game_id"`
	PlayerID         string    `json:"player_id"`
	Seat             string    `json:"seat"`
	BotID            string    `json:"bot_id"`
	HostID           string    `json:"bot_worker_host"`
	GameGuideVersion string    `json:"game_guide_version"`
	BotStatus        string    `json:"bot_status"`
	GameStatus       string    `json:"game_status"`
	AssignedAt       time.Time `json:"assigned_at"`
}
