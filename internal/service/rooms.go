package service

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/playcaro/caro-backend/internal/apperror"
	"github.com/playcaro/caro-backend/internal/entity"
	"github.com/playcaro/caro-backend/internal/protocol"
)

// turnUIBuffer pads the first deadline of a game so clients have time to
// render the board before the clock visibly starts.
const turnUIBuffer = 2 * time.Second

// RoomManager owns the room table. Every room-mutating operation is
// serialized by one coarse lock over the table, so two joins can never
// double-fill a room and a quick-match scan can never race a create.
// Notifications always go out after the lock is released.
type RoomManager struct {
	logger   *slog.Logger
	sessions *Registry
	push     pusher

	boardSize        int
	defaultTimeLimit time.Duration

	mu    sync.Mutex
	rooms map[string]*entity.Room
	seq   int64
}

func NewRoomManager(logger *slog.Logger, sessions *Registry, push pusher, boardSize int, defaultTimeLimit time.Duration) *RoomManager {
	return &RoomManager{
		logger:           logger.With("component", "rooms"),
		sessions:         sessions,
		push:             push,
		boardSize:        boardSize,
		defaultTimeLimit: defaultTimeLimit,
		rooms:            make(map[string]*entity.Room),
	}
}

// CreateRoom allocates a new room with the requester seated at slot 0 (X).
// A connection already seated or spectating anywhere must leave first.
func (that *RoomManager) CreateRoom(connID int64, password string, timeLimitSecs int) (string, error) {
	timeLimit := time.Duration(timeLimitSecs) * time.Second
	if timeLimit <= 0 {
		timeLimit = that.defaultTimeLimit
	}

	that.mu.Lock()
	if that.memberRoomLocked(connID) != nil {
		that.mu.Unlock()
		return "", apperror.ErrAlreadyInRoom
	}

	room := that.createLocked(connID, password, timeLimit)
	that.mu.Unlock()

	that.sessions.SetRoom(connID, room.ID)
	that.push.Push(connID, protocol.NewRoomCreated(room.ID))
	that.BroadcastRoomList()
	that.BroadcastOnlinePlayers()

	that.logger.Info("room created", "room_id", room.ID, "conn_id", connID)

	return room.ID, nil
}

// JoinRoom seats the requester at slot 1 (O) and starts the game.
func (that *RoomManager) JoinRoom(connID int64, roomID, password string) error {
	that.mu.Lock()
	room, err := that.joinLocked(connID, roomID, password)
	if err != nil {
		that.mu.Unlock()
		return err
	}

	players := append([]int64(nil), room.Players...)
	timeLimitSecs := int(room.TimeLimit / time.Second)
	that.mu.Unlock()

	that.sessions.SetRoom(connID, roomID)
	that.announceSeating(roomID, players, timeLimitSecs)
	that.BroadcastRoomList()
	that.BroadcastOnlinePlayers()

	that.logger.Info("player joined", "room_id", roomID, "conn_id", connID)

	return nil
}

// QuickMatch joins the first waiting single-occupant room without a
// password, or creates one with default settings. The scan and the
// resulting join or create happen under the same lock.
func (that *RoomManager) QuickMatch(connID int64) error {
	that.mu.Lock()

	if that.memberRoomLocked(connID) != nil {
		that.mu.Unlock()
		return apperror.ErrAlreadyInRoom
	}

	var matched *entity.Room
	for _, room := range that.rooms {
		if room.IsWaiting() && len(room.Players) == 1 && room.Password == "" {
			matched = room
			break
		}
	}

	if matched == nil {
		room := that.createLocked(connID, "", that.defaultTimeLimit)
		that.mu.Unlock()

		that.sessions.SetRoom(connID, room.ID)
		that.push.Push(connID, protocol.NewRoomCreated(room.ID))
		that.BroadcastRoomList()
		that.BroadcastOnlinePlayers()

		that.logger.Info("quick match created room", "room_id", room.ID, "conn_id", connID)

		return nil
	}

	room, err := that.joinLocked(connID, matched.ID, "")
	if err != nil {
		that.mu.Unlock()
		return err
	}

	players := append([]int64(nil), room.Players...)
	timeLimitSecs := int(room.TimeLimit / time.Second)
	roomID := room.ID
	that.mu.Unlock()

	that.sessions.SetRoom(connID, roomID)
	that.announceSeating(roomID, players, timeLimitSecs)
	that.BroadcastRoomList()
	that.BroadcastOnlinePlayers()

	that.logger.Info("quick match joined room", "room_id", roomID, "conn_id", connID)

	return nil
}

// ViewMatch registers the connection as a spectator (idempotent) and pushes
// a full snapshot of the match.
func (that *RoomManager) ViewMatch(connID int64, roomID string) error {
	that.mu.Lock()

	room, ok := that.rooms[roomID]
	if !ok {
		that.mu.Unlock()
		return apperror.ErrRoomNotFound
	}

	// re-viewing the same room is idempotent; any other membership blocks
	if current := that.memberRoomLocked(connID); current != nil {
		role, _ := current.RoleOf(connID)
		if current.ID != roomID || role == entity.RolePlayer {
			that.mu.Unlock()
			return apperror.ErrAlreadyInRoom
		}
	}

	room.Spectators[connID] = struct{}{}

	players := append([]int64(nil), room.Players...)
	status := room.Status
	timeLimitSecs := int(room.TimeLimit / time.Second)
	remaining := int(room.Remaining(time.Now()) / time.Second)
	size := room.Board.Size

	moves := make([]protocol.BoardMove, 0, len(room.Board.Moves))
	for _, move := range room.Board.Moves {
		moves = append(moves, protocol.BoardMove{X: move.X, Y: move.Y, Symbol: move.Player})
	}
	that.mu.Unlock()

	that.sessions.SetRoom(connID, roomID)

	labels := that.labels(players)
	that.push.Push(connID, protocol.NewViewMatchInfo(roomID, labels, status, timeLimitSecs))
	that.push.Push(connID, protocol.NewBoardState(roomID, size, moves))
	that.push.Push(connID, protocol.NewSyncTimer(roomID, remaining))

	return nil
}

// LeaveRoom removes the connection from the player slots or the spectator
// set. A room that loses one of two seated players reverts to waiting with
// a fresh board; a room whose player set empties is deleted outright.
func (that *RoomManager) LeaveRoom(connID int64, roomID string) error {
	that.mu.Lock()

	room, ok := that.rooms[roomID]
	if !ok {
		that.mu.Unlock()
		return apperror.ErrRoomNotFound
	}

	role, slot := room.RoleOf(connID)

	var remaining int64
	switch role {
	case entity.RoleNone:
		that.mu.Unlock()
		return apperror.ErrNotInRoom

	case entity.RoleSpectator:
		delete(room.Spectators, connID)
		that.mu.Unlock()

		that.sessions.SetRoom(connID, "")

		return nil

	case entity.RolePlayer:
		room.Players = append(room.Players[:slot], room.Players[slot+1:]...)

		if len(room.Players) == 0 {
			delete(that.rooms, roomID)
			that.logger.Info("room removed", "room_id", roomID)
		} else {
			remaining = room.Players[0]
			room.Board.Reset()
			room.Status = entity.StatusWaiting
			room.TurnDeadline = time.Time{}
		}
	}
	that.mu.Unlock()

	that.sessions.SetRoom(connID, "")

	if remaining != 0 {
		label := that.sessions.Label(connID)
		that.push.Push(remaining, protocol.NewOpponentLeft(fmt.Sprintf("%s left the room", label)))
	}

	that.BroadcastRoomList()
	that.BroadcastOnlinePlayers()

	return nil
}

// Summaries lists every room for the lobby.
func (that *RoomManager) Summaries() []protocol.RoomSummary {
	that.mu.Lock()

	type row struct {
		id          string
		status      string
		players     []int64
		hasPassword bool
	}

	rows := make([]row, 0, len(that.rooms))
	for _, room := range that.rooms {
		rows = append(rows, row{
			id:          room.ID,
			status:      room.Status,
			players:     append([]int64(nil), room.Players...),
			hasPassword: room.Password != "",
		})
	}
	that.mu.Unlock()

	summaries := make([]protocol.RoomSummary, 0, len(rows))
	for _, r := range rows {
		labels := that.labels(r.players)

		summaries = append(summaries, protocol.RoomSummary{
			ID:          r.id,
			Count:       len(r.players),
			Status:      r.status,
			Players:     labels,
			MatchText:   matchText(labels),
			HasPassword: r.hasPassword,
		})
	}

	return summaries
}

// BroadcastRoomList pushes a refreshed room list to every lobby connection.
func (that *RoomManager) BroadcastRoomList() {
	ids := that.sessions.LobbyConnIDs()
	if len(ids) == 0 {
		return
	}

	that.push.PushAll(ids, protocol.NewRoomList(that.Summaries()))
}

// BroadcastOnlinePlayers pushes the online player list to the lobby.
func (that *RoomManager) BroadcastOnlinePlayers() {
	ids := that.sessions.LobbyConnIDs()
	if len(ids) == 0 {
		return
	}

	that.push.PushAll(ids, protocol.NewOnlinePlayers(that.sessions.OnlinePlayers()))
}

// memberRoomLocked finds the room the connection already belongs to, seat or
// spectator. The room table is the authority here, not the session's RoomID,
// so a stale session can never sneak a second membership in. Caller holds
// the table lock.
func (that *RoomManager) memberRoomLocked(connID int64) *entity.Room {
	for _, room := range that.rooms {
		if role, _ := room.RoleOf(connID); role != entity.RoleNone {
			return room
		}
	}

	return nil
}

func (that *RoomManager) createLocked(connID int64, password string, timeLimit time.Duration) *entity.Room {
	that.seq++
	roomID := fmt.Sprintf("room_%d", that.seq)

	room := entity.NewRoom(roomID, password, timeLimit, that.boardSize)
	room.Players = append(room.Players, connID)
	that.rooms[roomID] = room

	return room
}

func (that *RoomManager) joinLocked(connID int64, roomID, password string) (*entity.Room, error) {
	if that.memberRoomLocked(connID) != nil {
		return nil, apperror.ErrAlreadyInRoom
	}

	room, ok := that.rooms[roomID]
	if !ok {
		return nil, apperror.ErrRoomNotFound
	}

	if room.IsFull() {
		return nil, apperror.ErrRoomFull
	}

	if room.Password != "" && room.Password != password {
		return nil, apperror.ErrWrongPassword
	}

	room.Players = append(room.Players, connID)
	room.Status = entity.StatusPlaying
	room.TurnDeadline = time.Now().Add(room.TimeLimit + turnUIBuffer)

	return room, nil
}

// announceSeating tells both seated players who they face and which symbol
// each was assigned.
func (that *RoomManager) announceSeating(roomID string, players []int64, timeLimitSecs int) {
	labels := that.labels(players)

	for slot, connID := range players {
		that.push.Push(connID, protocol.NewRoomJoined(roomID, labels, entity.MarkOf(slot), timeLimitSecs))
	}
}

func (that *RoomManager) labels(players []int64) []string {
	labels := make([]string, 0, len(players))
	for _, id := range players {
		labels = append(labels, that.sessions.Label(id))
	}

	return labels
}

func matchText(labels []string) string {
	switch len(labels) {
	case 0:
		return "waiting for players..."
	case 1:
		return labels[0] + " vs ..."
	default:
		return strings.Join(labels, " vs ")
	}
}
