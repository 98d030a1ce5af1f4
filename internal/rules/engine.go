package rules

import (
	"strings"

	"github.com/StarHuntingGames/cowboy/internal/types"
)

// Rejection reasons, spec §7.
const (
	ReasonMoveOutOfBounds       = "MOVE_OUT_OF_BOUNDS"
	ReasonMoveBlockedByBlock    = "MOVE_BLOCKED_BY_BLOCK"
	ReasonMoveBlockedByPlayer   = "MOVE_BLOCKED_BY_PLAYER"
	ReasonCannotShootOwnShield  = "CANNOT_SHOOT_THROUGH_OWN_SHIELD"
	ReasonShootBlockedByEdge    = "SHOOT_BLOCKED_BY_EDGE"
	ReasonShootBlockedByBlock   = "SHOOT_BLOCKED_BY_BLOCK"
	ReasonShootBlockedByPlayer  = "SHOOT_BLOCKED_BY_PLAYER"
	ReasonMissingDirection      = "MISSING_DIRECTION"
	ReasonMissingSpeakText      = "MISSING_SPEAK_TEXT"
)

var deltas = map[types.Direction][2]int{
	types.DirectionUp:    {-1, 0},
	types.DirectionDown:  {1, 0},
	types.DirectionLeft:  {0, -1},
	types.DirectionRight: {0, 1},
}

// ApplyMove advances player idx one cell in dir (spec §4.A).
func ApplyMove(s *GameState, idx int, dir types.Direction) (applied, consumeTurn bool, reason string) {
	d, ok := deltas[dir]
	if !ok {
		return false, false, ReasonMissingDirection
	}
	p := s.Players[idx]
	row, col := p.Row+d[0], p.Col+d[1]
	if !s.Map.InBounds(row, col) {
		return false, false, ReasonMoveOutOfBounds
	}
	if s.Map.Cells[row][col] != CellEmpty {
		return false, false, ReasonMoveBlockedByBlock
	}
	for i, other := range s.Players {
		if i != idx && other.Alive && other.Row == row && other.Col == col {
			return false, false, ReasonMoveBlockedByPlayer
		}
	}
	s.Players[idx].Row = row
	s.Players[idx].Col = col
	return true, true, ""
}

// ApplyShield sets the player's shield direction (spec §4.A); any valid
// direction is applied, a missing or unknown one is rejected with
// MISSING_DIRECTION.
func ApplyShield(s *GameState, idx int, dir types.Direction) (applied, consumeTurn bool, reason string) {
	if !dir.Valid() {
		return false, false, ReasonMissingDirection
	}
	s.Players[idx].ShieldDirection = dir
	return true, true, ""
}

// ApplySpeak records a speak action; applied iff text is non-empty after
// trimming (spec §4.A). The rules engine doesn't store chat history --
// the caller's step event carries the text.
func ApplySpeak(text string) (applied, consumeTurn bool, reason string) {
	if strings.TrimSpace(text) == "" {
		return false, false, ReasonMissingSpeakText
	}
	return true, true, ""
}

// ApplyShoot fires from player idx in dir, sweeping the two perpendicular
// directions from the entry cell (spec §4.A).
func ApplyShoot(s *GameState, idx int, dir types.Direction) (applied, consumeTurn bool, reason string) {
	d, ok := deltas[dir]
	if !ok {
		return false, false, ReasonMissingDirection
	}
	shooter := s.Players[idx]
	if dir == shooter.ShieldDirection {
		return false, false, ReasonCannotShootOwnShield
	}
	entryRow, entryCol := shooter.Row+d[0], shooter.Col+d[1]
	if !s.Map.InBounds(entryRow, entryCol) {
		return false, false, ReasonShootBlockedByEdge
	}
	if s.Map.Cells[entryRow][entryCol] != CellEmpty {
		return false, false, ReasonShootBlockedByBlock
	}
	if occupantIndex(s, entryRow, entryCol) != -1 {
		return false, false, ReasonShootBlockedByPlayer
	}

	for _, sweepDir := range dir.Perpendiculars() {
		sweep(s, entryRow, entryCol, sweepDir)
	}
	return true, true, ""
}

func occupantIndex(s *GameState, row, col int) int {
	for i, p := range s.Players {
		if p.Alive && p.Row == row && p.Col == col {
			return i
		}
	}
	return -1
}

// sweep walks from (row, col) outward in dir and stops at the first
// player or non-empty cell it meets: a player or a destructible wall
// takes 1 damage, an indestructible wall absorbs the beam unharmed.
func sweep(s *GameState, row, col int, dir types.Direction) {
	d := deltas[dir]
	r, c := row+d[0], col+d[1]
	for s.Map.InBounds(r, c) {
		if idx := occupantIndex(s, r, c); idx != -1 {
			damagePlayer(s, idx, dir)
			return
		}
		switch cell := s.Map.Cells[r][c]; cell {
		case CellEmpty:
			r, c = r+d[0], c+d[1]
			continue
		case CellIndestruct:
			return
		default: // positive HP wall
			s.Map.Cells[r][c] = cell - 1
			return
		}
	}
}

// damagePlayer deals 1 hp of damage to player idx unless their shield
// faces the incoming sweep (spec §4.A: shield_direction equals the
// opposite of the sweep direction at impact).
func damagePlayer(s *GameState, idx int, sweepDir types.Direction) {
	p := &s.Players[idx]
	if p.ShieldDirection == sweepDir.Opposite() {
		return
	}
	p.HP--
	if p.HP <= 0 {
		p.HP = 0
		p.Alive = false
	}
}

// AdvanceTurn walks the seat order starting after fromIdx, picking the
// next alive player. wrapped is true when the new index is <= fromIdx,
// meaning turn order wrapped past the first-in-order alive player and
// the caller should increment round_no (spec §4.A).
func AdvanceTurn(s *GameState, fromIdx int) (nextIdx int, wrapped bool) {
	n := len(s.Players)
	for i := 1; i <= n; i++ {
		candidate := (fromIdx + i) % n
		if s.Players[candidate].Alive {
			return candidate, candidate <= fromIdx
		}
	}
	return fromIdx, false
}
