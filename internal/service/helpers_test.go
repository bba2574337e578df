package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/playcaro/caro-backend/internal/apperror"
	"github.com/playcaro/caro-backend/internal/entity"
	"github.com/playcaro/caro-backend/internal/repository"
)

// fakePusher records every envelope handed to it, keyed by connection id.
type fakePusher struct {
	mu     sync.Mutex
	sent   map[int64][]any
	closed []int64
}

func newFakePusher() *fakePusher {
	return &fakePusher{sent: make(map[int64][]any)}
}

func (that *fakePusher) Push(id int64, env any) {
	that.mu.Lock()
	that.sent[id] = append(that.sent[id], env)
	that.mu.Unlock()
}

func (that *fakePusher) PushAll(ids []int64, env any) {
	for _, id := range ids {
		that.Push(id, env)
	}
}

func (that *fakePusher) CloseConn(id int64) {
	that.mu.Lock()
	that.closed = append(that.closed, id)
	that.mu.Unlock()
}

func (that *fakePusher) envelopes(id int64) []any {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]any(nil), that.sent[id]...)
}

func (that *fakePusher) closedConns() []int64 {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]int64(nil), that.closed...)
}

// lastOfType returns the most recent envelope for which pick returns true.
func (that *fakePusher) lastOfType(id int64, pick func(env any) bool) (any, bool) {
	envs := that.envelopes(id)
	for i := len(envs) - 1; i >= 0; i-- {
		if pick(envs[i]) {
			return envs[i], true
		}
	}

	return nil, false
}

type fakeAccount struct {
	entity.User
	password string
}

// fakeUsers is an in-memory profile store for service tests.
type fakeUsers struct {
	mu    sync.Mutex
	seq   int64
	byID  map[int64]*fakeAccount
	names map[string]*fakeAccount
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byID:  make(map[int64]*fakeAccount),
		names: make(map[string]*fakeAccount),
	}
}

func (that *fakeUsers) Authenticate(_ context.Context, username, password string) (*entity.User, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	account, ok := that.names[username]
	if !ok || account.password != password {
		return nil, apperror.ErrBadCredentials
	}

	user := account.User

	return &user, nil
}

func (that *fakeUsers) Register(_ context.Context, username, password, displayName string) (*entity.User, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.names[username]; ok {
		return nil, apperror.ErrUsernameTaken
	}

	if displayName == "" {
		displayName = username
	}

	that.seq++
	account := &fakeAccount{
		User: entity.User{
			ID:          that.seq,
			Username:    username,
			DisplayName: displayName,
			Score:       1000,
		},
		password: password,
	}

	that.byID[account.ID] = account
	that.names[username] = account

	user := account.User

	return &user, nil
}

func (that *fakeUsers) GetProfile(_ context.Context, id int64) (*entity.User, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	account, ok := that.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	user := account.User

	return &user, nil
}

func (that *fakeUsers) UpdateProfile(_ context.Context, id int64, displayName, newPassword string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	account, ok := that.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}

	account.DisplayName = displayName
	if newPassword != "" {
		account.password = newPassword
	}

	return nil
}

func (that *fakeUsers) AdjustScore(_ context.Context, id int64, delta int, outcome string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	account, ok := that.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}

	account.Score += delta
	if account.Score < 0 {
		account.Score = 0
	}

	account.TotalGames++
	switch outcome {
	case entity.OutcomeWin:
		account.Wins++
	case entity.OutcomeLoss:
		account.Losses++
	case entity.OutcomeDraw:
		account.Draws++
	}

	return nil
}

// testStack wires the services together the way the application does, with
// the fakes standing in for transport and storage.
type testStack struct {
	users    *fakeUsers
	push     *fakePusher
	sessions *Registry
	rooms    *RoomManager
	director *Director
}

func newTestStack() *testStack {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := newFakeUsers()
	push := newFakePusher()
	sessions := NewRegistry(logger, users)
	rooms := NewRoomManager(logger, sessions, push, entity.DefaultBoardSize, 30*time.Second)
	director := NewDirector(logger, rooms, sessions, users, push, time.Second, 15*time.Second)

	return &testStack{
		users:    users,
		push:     push,
		sessions: sessions,
		rooms:    rooms,
		director: director,
	}
}

// connect attaches a connection and registers a fresh account on it.
func (that *testStack) connect(connID int64, username string) {
	that.sessions.Attach(connID)
	if _, err := that.sessions.Register(context.Background(), connID, username, "secret", username); err != nil {
		panic(err)
	}
}

// seatTwo creates a room for a and seats b, returning the room id.
func (that *testStack) seatTwo(a, b int64) string {
	roomID, err := that.rooms.CreateRoom(a, "", 30)
	if err != nil {
		panic(err)
	}

	if err := that.rooms.JoinRoom(b, roomID, ""); err != nil {
		panic(err)
	}

	return roomID
}

func (that *testStack) room(roomID string) *entity.Room {
	that.rooms.mu.Lock()
	defer that.rooms.mu.Unlock()

	return that.rooms.rooms[roomID]
}
