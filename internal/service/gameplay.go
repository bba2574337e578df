package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/playcaro/caro-backend/internal/apperror"
	"github.com/playcaro/caro-backend/internal/entity"
	"github.com/playcaro/caro-backend/internal/protocol"
	"github.com/playcaro/caro-backend/internal/repository"
)

// Score deltas applied at settlement. Policy constants, not invariants.
const (
	scoreWinBonus    = 10
	scoreLossPenalty = -5
	scoreDrawBonus   = 2
)

// Director referees gameplay inside rooms: turn ownership, the per-turn
// clock, surrender, rematch and score settlement. It shares the room
// table lock with the RoomManager; all pushes happen outside it.
type Director struct {
	logger   *slog.Logger
	rooms    *RoomManager
	sessions *Registry
	users    repository.UserRepository
	push     pusher

	sweepInterval     time.Duration
	inactivityTimeout time.Duration
}

func NewDirector(logger *slog.Logger, rooms *RoomManager, sessions *Registry, users repository.UserRepository, push pusher, sweepInterval, inactivityTimeout time.Duration) *Director {
	return &Director{
		logger:            logger.With("component", "director"),
		rooms:             rooms,
		sessions:          sessions,
		users:             users,
		push:              push,
		sweepInterval:     sweepInterval,
		inactivityTimeout: inactivityTimeout,
	}
}

// Move places a stone for the requesting connection. The board itself
// cross-checks turn ownership, so a stale or spoofed request can never
// move out of turn.
func (that *Director) Move(ctx context.Context, connID int64, roomID string, x, y int) error {
	that.rooms.mu.Lock()

	room, ok := that.rooms.rooms[roomID]
	if !ok {
		that.rooms.mu.Unlock()
		return apperror.ErrRoomNotFound
	}

	role, slot := room.RoleOf(connID)
	if role != entity.RolePlayer {
		that.rooms.mu.Unlock()
		return apperror.ErrNotSeated
	}

	if !room.IsPlaying() {
		that.rooms.mu.Unlock()
		if room.Status == entity.StatusFinished {
			return apperror.ErrGameFinished
		}
		return apperror.ErrGameIsNotStarted
	}

	mark := entity.MarkOf(slot)

	result, err := room.Board.MakeMove(x, y, mark)
	if err != nil {
		that.rooms.mu.Unlock()
		return fmt.Errorf("move rejected: %w", err)
	}

	room.TurnDeadline = time.Now().Add(room.TimeLimit)

	opponent, _ := room.Opponent(connID)
	watchers := spectatorIDs(room)
	members := append(append([]int64(nil), room.Players...), watchers...)
	remaining := int(room.TimeLimit / time.Second)

	var done settlement
	settled := false

	switch result {
	case entity.ResultWin:
		done = that.settleLocked(room, connID, fmt.Sprintf("GAME OVER! Winner: %s", that.sessions.Label(connID)))
		settled = true
	case entity.ResultDraw:
		done = that.settleLocked(room, 0, "GAME OVER! It's a draw")
		settled = true
	}
	that.rooms.mu.Unlock()

	moveMsg := protocol.NewOpponentMove(x, y, that.sessions.Label(connID), mark)
	if opponent != 0 {
		that.push.Push(opponent, moveMsg)
	}
	that.push.PushAll(watchers, moveMsg)

	if settled {
		that.finish(ctx, done)
		return nil
	}

	that.push.PushAll(members, protocol.NewSyncTimer(roomID, remaining))

	return nil
}

// Surrender is an immediate forfeit by the requester; the opponent wins.
func (that *Director) Surrender(ctx context.Context, connID int64, roomID string) error {
	that.rooms.mu.Lock()

	room, ok := that.rooms.rooms[roomID]
	if !ok {
		that.rooms.mu.Unlock()
		return apperror.ErrRoomNotFound
	}

	role, _ := room.RoleOf(connID)
	if role != entity.RolePlayer {
		that.rooms.mu.Unlock()
		return apperror.ErrNotSeated
	}

	if !room.IsPlaying() {
		that.rooms.mu.Unlock()
		if room.Status == entity.StatusFinished {
			return apperror.ErrGameFinished
		}
		return apperror.ErrGameIsNotStarted
	}

	opponent, ok := room.Opponent(connID)
	if !ok {
		that.rooms.mu.Unlock()
		return apperror.ErrOpponentGone
	}

	done := that.settleLocked(room, opponent,
		fmt.Sprintf("%s surrendered! Winner: %s", that.sessions.Label(connID), that.sessions.Label(opponent)))
	that.rooms.mu.Unlock()

	that.logger.Info("player surrendered", "room_id", roomID, "conn_id", connID)
	that.finish(ctx, done)

	return nil
}

// PlayAgain restarts a match in place. The occupants swap symbols for
// fairness: whoever played O now plays X and moves first. Fails when the
// opponent has already left.
func (that *Director) PlayAgain(connID int64, roomID string) error {
	that.rooms.mu.Lock()

	room, ok := that.rooms.rooms[roomID]
	if !ok {
		that.rooms.mu.Unlock()
		return apperror.ErrRoomNotFound
	}

	role, _ := room.RoleOf(connID)
	if role != entity.RolePlayer {
		that.rooms.mu.Unlock()
		return apperror.ErrNotSeated
	}

	if len(room.Players) != 2 {
		that.rooms.mu.Unlock()
		return apperror.ErrOpponentGone
	}

	room.Players[0], room.Players[1] = room.Players[1], room.Players[0]
	room.Board.Reset()
	room.Status = entity.StatusPlaying
	room.TurnDeadline = time.Now().Add(room.TimeLimit + turnUIBuffer)

	players := append([]int64(nil), room.Players...)
	timeLimitSecs := int(room.TimeLimit / time.Second)
	that.rooms.mu.Unlock()

	that.rooms.announceSeating(roomID, players, timeLimitSecs)
	that.push.PushAll(players, protocol.NewSyncTimer(roomID, timeLimitSecs))

	that.logger.Info("room restarted", "room_id", roomID)

	return nil
}

// Chat relays a room-scoped message to everyone else in the room.
func (that *Director) Chat(connID int64, roomID, message string) error {
	that.rooms.mu.Lock()

	room, ok := that.rooms.rooms[roomID]
	if !ok {
		that.rooms.mu.Unlock()
		return apperror.ErrRoomNotFound
	}

	role, _ := room.RoleOf(connID)
	if role == entity.RoleNone {
		that.rooms.mu.Unlock()
		return apperror.ErrNotInRoom
	}

	var recipients []int64
	for _, id := range room.Players {
		if id != connID {
			recipients = append(recipients, id)
		}
	}
	for id := range room.Spectators {
		if id != connID {
			recipients = append(recipients, id)
		}
	}
	that.rooms.mu.Unlock()

	that.push.PushAll(recipients, protocol.NewChat(that.sessions.Label(connID), message))

	return nil
}

// RunSweeps drives the two periodic sweeps at a fixed interval until the
// context is cancelled: connection liveness and per-room turn deadlines.
func (that *Director) RunSweeps(ctx context.Context) {
	ticker := time.NewTicker(that.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			that.sweepLiveness(now)
			that.sweepDeadlines(ctx, now)
		}
	}
}

// sweepLiveness force-disconnects connections with no activity inside the
// threshold. Closing the connection terminates its read loop, which runs
// the normal leave-room cleanup path.
func (that *Director) sweepLiveness(now time.Time) {
	for _, connID := range that.sessions.Stale(now, that.inactivityTimeout) {
		that.logger.Info("closing inactive connection", "conn_id", connID)
		that.push.CloseConn(connID)
	}
}

// sweepDeadlines forfeits every playing room whose turn deadline passed
// without a move. The forfeit is authoritative: whatever countdown the
// client shows, the player to move loses here.
func (that *Director) sweepDeadlines(ctx context.Context, now time.Time) {
	that.rooms.mu.Lock()

	var settlements []settlement
	for _, room := range that.rooms.rooms {
		if !room.IsPlaying() || room.TurnDeadline.IsZero() || now.Before(room.TurnDeadline) {
			continue
		}

		moverSlot := 0
		if room.Board.Turn == entity.PlayerO {
			moverSlot = 1
		}

		if moverSlot >= len(room.Players) {
			continue
		}

		loser := room.Players[moverSlot]
		winner, ok := room.Opponent(loser)
		if !ok {
			continue
		}

		settlements = append(settlements, that.settleLocked(room, winner,
			fmt.Sprintf("%s ran out of time! Winner: %s", that.sessions.Label(loser), that.sessions.Label(winner))))
	}
	that.rooms.mu.Unlock()

	for _, done := range settlements {
		that.logger.Info("turn deadline expired", "room_id", done.roomID)
		that.finish(ctx, done)
	}
}

// settlement carries everything needed to notify and persist a finished
// game after the room lock is released.
type settlement struct {
	roomID     string
	players    []int64
	spectators []int64
	winnerConn int64 // 0 means draw
	message    string
}

// settleLocked marks the room finished. Caller holds the room table lock.
func (that *Director) settleLocked(room *entity.Room, winnerConn int64, message string) settlement {
	room.Status = entity.StatusFinished
	room.TurnDeadline = time.Time{}

	return settlement{
		roomID:     room.ID,
		players:    append([]int64(nil), room.Players...),
		spectators: spectatorIDs(room),
		winnerConn: winnerConn,
		message:    message,
	}
}

// finish broadcasts the terminal summary and applies the symmetric score
// delta through the profile store.
func (that *Director) finish(ctx context.Context, done settlement) {
	log := that.logger.With("method", "finish", "room_id", done.roomID)

	winnerLabel := "Draw"
	if done.winnerConn != 0 {
		winnerLabel = that.sessions.Label(done.winnerConn)
	}

	gameOver := protocol.NewGameOver(done.message, winnerLabel)
	that.push.PushAll(done.players, gameOver)
	that.push.PushAll(done.spectators, gameOver)

	for _, connID := range done.players {
		session, ok := that.sessions.Snapshot(connID)
		if !ok || !session.LoggedIn() {
			continue
		}

		delta, outcome := scoreDrawBonus, entity.OutcomeDraw
		if done.winnerConn != 0 {
			if connID == done.winnerConn {
				delta, outcome = scoreWinBonus, entity.OutcomeWin
			} else {
				delta, outcome = scoreLossPenalty, entity.OutcomeLoss
			}
		}

		if err := that.users.AdjustScore(ctx, session.UserID, delta, outcome); err != nil {
			log.Error("failed to adjust score", "user_id", session.UserID, "error", err)
			continue
		}

		profile, err := that.users.GetProfile(ctx, session.UserID)
		if err != nil {
			log.Error("failed to refresh profile", "user_id", session.UserID, "error", err)
			continue
		}

		that.sessions.SetScore(connID, profile.Score)
	}

	that.rooms.BroadcastOnlinePlayers()
	that.rooms.BroadcastRoomList()

	log.Info("game settled", "winner", winnerLabel)
}

func spectatorIDs(room *entity.Room) []int64 {
	ids := make([]int64, 0, len(room.Spectators))
	for id := range room.Spectators {
		ids = append(ids, id)
	}

	return ids
}
