package entity

import (
	"fmt"
	"time"

	"github.com/playcaro/caro-backend/internal/apperror"
)

const (
	PlayerX = "X"
	PlayerO = "O"

	EmptyCell = ""

	DefaultBoardSize = 15

	// winRun is the contiguous run length that wins the game.
	winRun = 5
)

// Move result values returned by Board.MakeMove.
const (
	ResultContinue = "continue"
	ResultWin      = "win"
	ResultDraw     = "draw"
)

// Move is one accepted placement. Moves are append-only: once recorded they
// are never rewritten for the lifetime of the board instance.
type Move struct {
	X      int       `json:"x"`
	Y      int       `json:"y"`
	Player string    `json:"player"`
	At     time.Time `json:"at"`
}

// Board holds the caro grid and the pure turn-taking rules. It knows nothing
// about rooms, connections or clocks.
type Board struct {
	Size     int        `json:"size"`
	Cells    [][]string `json:"cells"`
	Turn     string     `json:"player_turn"`
	Moves    []Move     `json:"moves"`
	Winner   string     `json:"winner,omitempty"`
	GameOver bool       `json:"game_over"`
}

func NewBoard(size int) *Board {
	if size <= 0 {
		size = DefaultBoardSize
	}

	board := &Board{Size: size}
	board.Reset()

	return board
}

// Reset reinitializes the grid, history, winner and game-over flag. The size
// is kept.
func (that *Board) Reset() {
	cells := make([][]string, that.Size)
	for y := range cells {
		cells[y] = make([]string, that.Size)
	}

	that.Cells = cells
	that.Turn = PlayerX
	that.Moves = nil
	that.Winner = EmptyCell
	that.GameOver = false
}

// MakeMove places player's stone at (x, y). On rejection the board is left
// completely unchanged.
func (that *Board) MakeMove(x, y int, player string) (string, error) {
	if that.GameOver {
		return "", apperror.ErrGameFinished
	}

	if x < 0 || x >= that.Size || y < 0 || y >= that.Size {
		return "", fmt.Errorf("%w: (%d, %d)", apperror.ErrInvalidCell, x, y)
	}

	if that.Cells[y][x] != EmptyCell {
		return "", apperror.ErrCellOccupied
	}

	if player != that.Turn {
		return "", apperror.ErrNotYourTurn
	}

	that.Cells[y][x] = player
	that.Moves = append(that.Moves, Move{X: x, Y: y, Player: player, At: time.Now()})

	if that.isWinningMove(x, y, player) {
		that.Winner = player
		that.GameOver = true
		return ResultWin, nil
	}

	if that.isFull() {
		that.GameOver = true
		return ResultDraw, nil
	}

	that.Turn = ToggleMark(player)

	return ResultContinue, nil
}

// isWinningMove scans the four axis pairs through (x, y): for each axis it
// counts contiguous same-player cells outward in both directions plus the
// stone just placed; a run of five or more wins.
func (that *Board) isWinningMove(x, y int, player string) bool {
	directions := [4][2]int{
		{1, 0},  // horizontal
		{0, 1},  // vertical
		{1, 1},  // diagonal down-right
		{1, -1}, // diagonal up-right
	}

	for _, dir := range directions {
		count := 1

		count += that.countRun(x, y, dir[0], dir[1], player)
		count += that.countRun(x, y, -dir[0], -dir[1], player)

		if count >= winRun {
			return true
		}
	}

	return false
}

func (that *Board) countRun(x, y, dx, dy int, player string) int {
	count := 0

	for i := 1; i < winRun; i++ {
		nx, ny := x+dx*i, y+dy*i
		if nx < 0 || nx >= that.Size || ny < 0 || ny >= that.Size {
			break
		}

		if that.Cells[ny][nx] != player {
			break
		}

		count++
	}

	return count
}

func (that *Board) isFull() bool {
	for _, row := range that.Cells {
		for _, cell := range row {
			if cell == EmptyCell {
				return false
			}
		}
	}

	return true
}

// ToggleMark returns the opposing mark.
func ToggleMark(mark string) string {
	if mark == PlayerX {
		return PlayerO
	}
	return PlayerX
}
