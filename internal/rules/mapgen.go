package rules

import (
	"crypto/rand"
	"math/big"

	"github.com/StarHuntingGames/cowboy/internal/types"
)

const (
	DefaultRows = 9
	DefaultCols = 9
)

// SpawnSeat returns the mid-edge spawn cell for a seat on an r x c grid
// (spec §4.B: A top, B left, C bottom, D right).
func SpawnSeat(name types.PlayerName, rows, cols int) (row, col int) {
	midRow, midCol := rows/2, cols/2
	switch name {
	case types.SeatA:
		return 0, midCol
	case types.SeatB:
		return midRow, 0
	case types.SeatC:
		return rows - 1, midCol
	case types.SeatD:
		return midRow, cols - 1
	default:
		return midRow, midCol
	}
}

// GenerateDefaultMap produces a random rows x cols map whose spawn
// cells (the four mid-edge seats) are always forced empty, regardless
// of how many players actually join (spec §8: "given a fixed random
// seed, produces a map whose spawn-cells are empty" -- this
// implementation draws from crypto/rand rather than a seeded PRNG, so
// determinism for tests is achieved by supplying a Rand that always
// returns a fixed sequence; see engine_test.go).
func GenerateDefaultMap(rows, cols int, rnd Rand) Map {
	cells := make([][]int, rows)
	for r := 0; r < rows; r++ {
		cells[r] = make([]int, cols)
		for c := 0; c < cols; c++ {
			cells[r][c] = randomCell(rnd)
		}
	}
	for _, seat := range types.SeatOrder {
		row, col := SpawnSeat(seat, rows, cols)
		cells[row][col] = CellEmpty
	}
	return Map{Rows: rows, Cols: cols, Cells: cells}
}

// Rand abstracts the random source so map generation can be driven
// deterministically in tests without reaching for a global PRNG seed.
type Rand interface {
	Intn(n int) int
}

// CryptoRand is the production Rand, backed by crypto/rand the same
// way the teacher's bot package derives its decision randomness
// (internal/bot/bot.go randomChance/randomInt).
type CryptoRand struct{}

func (CryptoRand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// randomCell picks a cell value weighted toward empty space: roughly
// 70% empty, 15% HP1 wall, 10% HP2 wall, 5% indestructible.
func randomCell(rnd Rand) int {
	switch n := rnd.Intn(100); {
	case n < 70:
		return CellEmpty
	case n < 85:
		return CellWallHP1
	case n < 95:
		return CellWallHP2
	default:
		return CellIndestruct
	}
}

// EmptyMap returns an all-empty rows x cols map, used for custom or
// fixture maps and by tests.
func EmptyMap(rows, cols int) Map {
	cells := make([][]int, rows)
	for r := range cells {
		cells[r] = make([]int, cols)
	}
	return Map{Rows: rows, Cols: cols, Cells: cells}
}

// SeedPlayers places one Player per requested seat at its spawn cell,
// full hp, no shield, alive.
func SeedPlayers(seats []types.PlayerName, ids map[types.PlayerName]string, rows, cols int, startHP int) []Player {
	players := make([]Player, 0, len(seats))
	for _, seat := range seats {
		row, col := SpawnSeat(seat, rows, cols)
		players = append(players, Player{
			PlayerID: ids[seat],
			Name:     seat,
			HP:       startHP,
			Row:      row,
			Col:      col,
			Alive:    true,
		})
	}
	return players
}
