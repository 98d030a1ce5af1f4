package rules

import (
	"testing"

	"github.com/StarHuntingGames/cowboy/internal/types"
)

func fourPlayerState(rows, cols int) GameState {
	m := EmptyMap(rows, cols)
	ids := map[types.PlayerName]string{
		types.SeatA: "p-a", types.SeatB: "p-b", types.SeatC: "p-c", types.SeatD: "p-d",
	}
	players := SeedPlayers(types.SeatOrder, ids, rows, cols, 10)
	return GameState{Map: m, Players: players}
}

func TestSelfShieldBlocksOwnShot(t *testing.T) {
	s := fourPlayerState(5, 5)
	s.Players[0].ShieldDirection = types.DirectionUp
	applied, consume, reason := ApplyShoot(&s, 0, types.DirectionUp)
	if applied || consume {
		t.Fatalf("expected shot blocked by own shield")
	}
	if reason != ReasonCannotShootOwnShield {
		t.Fatalf("expected %s, got %s", ReasonCannotShootOwnShield, reason)
	}
}

func TestShootDownSweepsPerpendicularNoDamage(t *testing.T) {
	s := fourPlayerState(5, 5)
	s.Players[0].ShieldDirection = types.DirectionUp
	applied, consume, reason := ApplyShoot(&s, 0, types.DirectionDown)
	if !applied || !consume || reason != "" {
		t.Fatalf("expected applied shot, got applied=%v reason=%s", applied, reason)
	}
	if s.Players[2].HP != 10 {
		t.Fatalf("expected player C unaffected, hp=%d", s.Players[2].HP)
	}
}

func TestShootDamagesPerpendicularPlayer(t *testing.T) {
	s := fourPlayerState(5, 5)
	// A at (0,2). Put B directly to the right of the entry cell (1,2) -> (1,3).
	s.Players[1].Row, s.Players[1].Col = 1, 3
	applied, _, _ := ApplyShoot(&s, 0, types.DirectionDown)
	if !applied {
		t.Fatalf("expected shot applied")
	}
	if s.Players[1].HP != 9 {
		t.Fatalf("expected B to take 1 damage, hp=%d", s.Players[1].HP)
	}
}

func TestShootBlockedByEdge(t *testing.T) {
	s := fourPlayerState(5, 5)
	// A spawns at row 0; shooting Up walks off the map.
	applied, consume, reason := ApplyShoot(&s, 0, types.DirectionUp)
	if applied || consume {
		t.Fatalf("expected shot rejected at edge")
	}
	if reason != ReasonShootBlockedByEdge {
		t.Fatalf("expected %s, got %s", ReasonShootBlockedByEdge, reason)
	}
}

func TestShootStopsAtIndestructibleWithoutDamage(t *testing.T) {
	s := fourPlayerState(5, 5)
	s.Players[1].Row, s.Players[1].Col = 1, 4
	s.Map.Cells[1][3] = CellIndestruct
	ApplyShoot(&s, 0, types.DirectionDown)
	if s.Players[1].HP != 10 {
		t.Fatalf("expected indestructible wall to absorb the beam, hp=%d", s.Players[1].HP)
	}
}

func TestShootDamagesWallAndDecaysToEmpty(t *testing.T) {
	s := fourPlayerState(5, 5)
	s.Map.Cells[1][1] = CellWallHP1
	ApplyShoot(&s, 0, types.DirectionDown)
	if s.Map.Cells[1][1] != CellEmpty {
		t.Fatalf("expected hp1 wall destroyed, got %d", s.Map.Cells[1][1])
	}
}

func TestShieldBlocksOppositeSweep(t *testing.T) {
	s := fourPlayerState(5, 5)
	// B sits to the left of the entry cell; the sweep toward B travels Left.
	s.Players[1].Row, s.Players[1].Col = 1, 1
	s.Players[1].ShieldDirection = types.DirectionRight // opposite of Left
	ApplyShoot(&s, 0, types.DirectionDown)
	if s.Players[1].HP != 10 {
		t.Fatalf("expected shield to block the hit, hp=%d", s.Players[1].HP)
	}
}

func TestApplySpeakRequiresNonEmptyText(t *testing.T) {
	applied, consume, reason := ApplySpeak("   ")
	if applied || consume {
		t.Fatalf("expected whitespace-only speak to be rejected")
	}
	if reason != ReasonMissingSpeakText {
		t.Fatalf("expected %s, got %s", ReasonMissingSpeakText, reason)
	}
	applied, consume, _ = ApplySpeak("hello")
	if !applied || !consume {
		t.Fatalf("expected speak with text to apply and consume the turn")
	}
}

func TestApplyMoveBlockedByPlayer(t *testing.T) {
	s := fourPlayerState(5, 5)
	s.Players[1].Row, s.Players[1].Col = 1, 2 // directly below A
	applied, _, reason := ApplyMove(&s, 0, types.DirectionDown)
	if applied || reason != ReasonMoveBlockedByPlayer {
		t.Fatalf("expected move blocked by player, got applied=%v reason=%s", applied, reason)
	}
}

func TestAdvanceTurnWrapsAndSkipsDead(t *testing.T) {
	s := fourPlayerState(5, 5)
	s.Players[1].Alive = false // B dead
	next, wrapped := AdvanceTurn(&s, 0) // from A
	if next != 2 {
		t.Fatalf("expected to skip dead B and land on C (idx 2), got %d", next)
	}
	if wrapped {
		t.Fatalf("did not expect wrap yet")
	}
	next, wrapped = AdvanceTurn(&s, 3) // from D wraps back to A
	if next != 0 || !wrapped {
		t.Fatalf("expected wrap back to A, got idx=%d wrapped=%v", next, wrapped)
	}
}

func TestSoleSurvivor(t *testing.T) {
	s := fourPlayerState(5, 5)
	for i := 1; i < 4; i++ {
		s.Players[i].Alive = false
	}
	if idx := s.SoleSurvivor(); idx != 0 {
		t.Fatalf("expected sole survivor idx 0, got %d", idx)
	}
}

type fixedRand struct{ seq []int; i int }

func (f *fixedRand) Intn(n int) int {
	v := f.seq[f.i%len(f.seq)]
	f.i++
	if v >= n {
		v = 0
	}
	return v
}

func TestGenerateDefaultMapForcesSpawnCellsEmpty(t *testing.T) {
	rnd := &fixedRand{seq: []int{99, 50, 10, 0}} // 99 draws an indestructible cell, the rest draw empty cells
	m := GenerateDefaultMap(DefaultRows, DefaultCols, rnd)
	for _, seat := range types.SeatOrder {
		row, col := SpawnSeat(seat, DefaultRows, DefaultCols)
		if m.Cells[row][col] != CellEmpty {
			t.Fatalf("expected spawn cell for %s to be empty, got %d", seat, m.Cells[row][col])
		}
	}
}
