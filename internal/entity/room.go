package entity

import (
	"time"
)

const (
	StatusWaiting  = "waiting"
	StatusPlaying  = "playing"
	StatusFinished = "finished"
)

// Role says how a connection participates in a room. Membership is an
// explicit value, never inferred from which list happens to hold the id.
type Role int

const (
	RoleNone Role = iota
	RolePlayer
	RoleSpectator
)

// Room is one match's container: up to two seated players in slot order,
// an optional password, a board and a spectator set. Slot 0 always plays X
// and moves first; slot 1 plays O.
type Room struct {
	ID        string
	Password  string
	TimeLimit time.Duration

	// Players holds connection ids in slot order, length 0 to 2.
	Players    []int64
	Spectators map[int64]struct{}

	Status string
	Board  *Board

	// TurnDeadline is set if and only if Status is playing.
	TurnDeadline time.Time
}

func NewRoom(id string, password string, timeLimit time.Duration, boardSize int) *Room {
	return &Room{
		ID:         id,
		Password:   password,
		TimeLimit:  timeLimit,
		Spectators: make(map[int64]struct{}),
		Status:     StatusWaiting,
		Board:      NewBoard(boardSize),
	}
}

// RoleOf resolves a connection's membership. The second value is the seat
// slot, meaningful only for RolePlayer.
func (that *Room) RoleOf(connID int64) (Role, int) {
	for slot, id := range that.Players {
		if id == connID {
			return RolePlayer, slot
		}
	}

	if _, ok := that.Spectators[connID]; ok {
		return RoleSpectator, 0
	}

	return RoleNone, 0
}

// MarkOf returns the symbol assigned to a seat slot.
func MarkOf(slot int) string {
	if slot == 0 {
		return PlayerX
	}
	return PlayerO
}

// Opponent returns the connection id of the other seated player, or false
// when the seat is empty.
func (that *Room) Opponent(connID int64) (int64, bool) {
	for _, id := range that.Players {
		if id != connID {
			return id, true
		}
	}
	return 0, false
}

func (that *Room) IsFull() bool {
	return len(that.Players) >= 2
}

func (that *Room) IsPlaying() bool {
	return that.Status == StatusPlaying
}

func (that *Room) IsWaiting() bool {
	return that.Status == StatusWaiting
}

// Remaining reports the time left on the turn clock, clamped at zero.
func (that *Room) Remaining(now time.Time) time.Duration {
	if !that.IsPlaying() || that.TurnDeadline.IsZero() {
		return 0
	}

	left := that.TurnDeadline.Sub(now)
	if left < 0 {
		return 0
	}

	return left
}
