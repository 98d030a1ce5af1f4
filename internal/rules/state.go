// Package rules implements the pure, I/O-free combat rules described in
// spec §4.A: movement, the perpendicular laser sweep, shields,
// destructible walls, turn advance and the win check. Nothing in this
// package touches a lock, a clock (beyond reading fields already on the
// state) or the network — it is exercised entirely through plain
// function calls, mirroring how the teacher's internal/engine keeps
// HandleCommand/Reduce free of any transport or storage concern.
package rules

import (
	"time"

	"github.com/StarHuntingGames/cowboy/internal/types"
)

// Cell values for Map.Cells.
const (
	CellEmpty       = 0
	CellIndestruct  = -1
	CellWallHP1     = 1
	CellWallHP2     = 2
)

type Map struct {
	Rows  int     `json:"rows"`
	Cols  int     `json:"cols"`
	Cells [][]int `json:"cells"`
}

func (m Map) InBounds(row, col int) bool {
	return row >= 0 && row < m.Rows && col >= 0 && col < m.Cols
}

func (m Map) Copy() Map {
	cells := make([][]int, len(m.Cells))
	for i, row := range m.Cells {
		cells[i] = append([]int(nil), row...)
	}
	return Map{Rows: m.Rows, Cols: m.Cols, Cells: cells}
}

type Player struct {
	PlayerID        string          `json:"player_id"`
	Name            types.PlayerName `json:"name"`
	HP              int             `json:"hp"`
	Row             int             `json:"row"`
	Col             int             `json:"col"`
	ShieldDirection types.Direction `json:"shield_direction"`
	Alive           bool            `json:"alive"`
}

// GameState is the Map plus the seat-ordered player list (spec §3).
type GameState struct {
	Map     Map      `json:"map"`
	Players []Player `json:"players"`
}

func (s GameState) Copy() GameState {
	players := append([]Player(nil), s.Players...)
	return GameState{Map: s.Map.Copy(), Players: players}
}

// IndexOf returns the seat index for a player id, or -1.
func (s GameState) IndexOf(playerID string) int {
	for i, p := range s.Players {
		if p.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// AliveCount returns the number of players with Alive == true.
func (s GameState) AliveCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Alive {
			n++
		}
	}
	return n
}

// SoleSurvivor returns the index of the single alive player, or -1 if
// the count of alive players isn't exactly one.
func (s GameState) SoleSurvivor() int {
	idx, count := -1, 0
	for i, p := range s.Players {
		if p.Alive {
			idx = i
			count++
		}
	}
	if count != 1 {
		return -1
	}
	return idx
}

func (s GameState) ToWire() types.StateAfter {
	cells := make([][]int, len(s.Map.Cells))
	for i, row := range s.Map.Cells {
		cells[i] = append([]int(nil), row...)
	}
	players := make([]types.PlayerState, len(s.Players))
	for i, p := range s.Players {
		players[i] = types.PlayerState{
			PlayerName: string(p.Name),
			PlayerID:   p.PlayerID,
			HP:         p.HP,
			Row:        p.Row,
			Col:        p.Col,
			Shield:     string(p.ShieldDirection),
			Alive:      p.Alive,
		}
	}
	return types.StateAfter{
		Map:     types.CellState{Rows: s.Map.Rows, Cols: s.Map.Cols, Cells: cells},
		Players: players,
	}
}

// GameInstance is the authoritative per-game record (spec §3). Game
// authority is its sole mutator; every other component only ever holds
// a copy returned from GetGame or derived from a StepEvent.
type GameInstance struct {
	GameID          string          `json:"game_id"`
	Status          types.GameStatus `json:"status"`
	MapSource       types.MapSource `json:"map_source"`
	TurnTimeoutSec  int             `json:"turn_timeout_sec"`
	TurnNo          uint64          `json:"turn_no"`
	RoundNo         uint64          `json:"round_no"`
	CurrentPlayerID string          `json:"current_player_id"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	TurnStartedAt   *time.Time      `json:"turn_started_at,omitempty"`
	LastStepSeq     uint64          `json:"last_step_seq"`
	InputTopic      string          `json:"input_topic"`
	OutputTopic     string          `json:"output_topic"`
	State           GameState       `json:"state"`
}

func (g GameInstance) Copy() GameInstance {
	cp := g
	cp.State = g.State.Copy()
	if g.StartedAt != nil {
		t := *g.StartedAt
		cp.StartedAt = &t
	}
	if g.TurnStartedAt != nil {
		t := *g.TurnStartedAt
		cp.TurnStartedAt = &t
	}
	return cp
}

func (g GameInstance) CurrentIndex() int {
	return g.State.IndexOf(g.CurrentPlayerID)
}
