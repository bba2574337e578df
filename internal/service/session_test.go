package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playcaro/caro-backend/internal/apperror"
)

func TestRegistry_Login(t *testing.T) {
	t.Run("valid credentials cache the identity", func(t *testing.T) {
		// Given: an existing account and a fresh connection
		stack := newTestStack()
		_, err := stack.users.Register(context.Background(), "alice", "secret", "Alice")
		require.NoError(t, err)

		stack.sessions.Attach(1)

		// When: the connection logs in
		user, err := stack.sessions.Login(context.Background(), 1, "alice", "secret")
		require.NoError(t, err)
		assert.Equal(t, "Alice", user.DisplayName)
		assert.Equal(t, 1000, user.Score)

		// Then: the session carries the identity
		session, ok := stack.sessions.Snapshot(1)
		require.True(t, ok)
		assert.True(t, session.LoggedIn())
		assert.Equal(t, "alice", session.Username)
		assert.Equal(t, "Alice", session.DisplayName)
		assert.Equal(t, 1000, session.Score)
	})

	t.Run("bad password leaves the session anonymous", func(t *testing.T) {
		stack := newTestStack()
		_, err := stack.users.Register(context.Background(), "alice", "secret", "Alice")
		require.NoError(t, err)

		stack.sessions.Attach(1)

		_, err = stack.sessions.Login(context.Background(), 1, "alice", "nope")

		assert.ErrorIs(t, err, apperror.ErrBadCredentials)

		session, ok := stack.sessions.Snapshot(1)
		require.True(t, ok)
		assert.False(t, session.LoggedIn())
	})

	t.Run("unknown username is never auto-registered", func(t *testing.T) {
		stack := newTestStack()
		stack.sessions.Attach(1)

		_, err := stack.sessions.Login(context.Background(), 1, "nobody", "whatever")

		assert.ErrorIs(t, err, apperror.ErrBadCredentials)

		_, err = stack.users.Authenticate(context.Background(), "nobody", "whatever")
		assert.ErrorIs(t, err, apperror.ErrBadCredentials)
	})
}

func TestRegistry_Register(t *testing.T) {
	t.Run("register logs the connection in", func(t *testing.T) {
		stack := newTestStack()
		stack.sessions.Attach(1)

		user, err := stack.sessions.Register(context.Background(), 1, "alice", "secret", "Alice")
		require.NoError(t, err)
		assert.Equal(t, 1000, user.Score)

		session, ok := stack.sessions.Snapshot(1)
		require.True(t, ok)
		assert.True(t, session.LoggedIn())
	})

	t.Run("taken username", func(t *testing.T) {
		stack := newTestStack()
		stack.sessions.Attach(1)
		stack.sessions.Attach(2)

		_, err := stack.sessions.Register(context.Background(), 1, "alice", "secret", "Alice")
		require.NoError(t, err)

		_, err = stack.sessions.Register(context.Background(), 2, "alice", "other", "Imposter")

		assert.ErrorIs(t, err, apperror.ErrUsernameTaken)
	})
}

func TestRegistry_EditProfile(t *testing.T) {
	newLoggedIn := func(t *testing.T) *testStack {
		t.Helper()
		stack := newTestStack()
		stack.connect(1, "alice")
		return stack
	}

	t.Run("requires login", func(t *testing.T) {
		stack := newTestStack()
		stack.sessions.Attach(1)

		_, err := stack.sessions.EditProfile(context.Background(), 1, "New Name", "", "")

		assert.ErrorIs(t, err, apperror.ErrNotLoggedIn)
	})

	t.Run("display name must not be empty", func(t *testing.T) {
		stack := newLoggedIn(t)

		_, err := stack.sessions.EditProfile(context.Background(), 1, "", "", "")

		assert.ErrorIs(t, err, apperror.ErrEmptyDisplayName)
	})

	t.Run("new password needs the old one", func(t *testing.T) {
		stack := newLoggedIn(t)

		_, err := stack.sessions.EditProfile(context.Background(), 1, "alice", "", "newpass")

		assert.ErrorIs(t, err, apperror.ErrOldPasswordRequired)
	})

	t.Run("wrong old password is rejected", func(t *testing.T) {
		stack := newLoggedIn(t)

		_, err := stack.sessions.EditProfile(context.Background(), 1, "alice", "wrong", "newpass")

		assert.ErrorIs(t, err, apperror.ErrBadCredentials)
	})

	t.Run("successful update refreshes the cached name", func(t *testing.T) {
		stack := newLoggedIn(t)

		name, err := stack.sessions.EditProfile(context.Background(), 1, "Queen Alice", "secret", "newpass")
		require.NoError(t, err)
		assert.Equal(t, "Queen Alice", name)

		session, ok := stack.sessions.Snapshot(1)
		require.True(t, ok)
		assert.Equal(t, "Queen Alice", session.DisplayName)

		// the new password works, the old one no longer does
		_, err = stack.users.Authenticate(context.Background(), "alice", "newpass")
		assert.NoError(t, err)
		_, err = stack.users.Authenticate(context.Background(), "alice", "secret")
		assert.ErrorIs(t, err, apperror.ErrBadCredentials)
	})
}

func TestRegistry_DetachAndSnapshot(t *testing.T) {
	stack := newTestStack()
	stack.connect(1, "alice")

	session, ok := stack.sessions.Detach(1)
	require.True(t, ok)
	assert.Equal(t, "alice", session.Username)

	_, ok = stack.sessions.Snapshot(1)
	assert.False(t, ok)

	_, ok = stack.sessions.Detach(1)
	assert.False(t, ok)
}

func TestRegistry_Stale(t *testing.T) {
	// Given: one connection idle past the threshold
	stack := newTestStack()
	stack.sessions.Attach(1)
	stack.sessions.Attach(2)

	stack.sessions.mu.Lock()
	stack.sessions.sessions[1].LastSeen = time.Now().Add(-time.Minute)
	stack.sessions.mu.Unlock()

	stale := stack.sessions.Stale(time.Now(), 15*time.Second)
	assert.Equal(t, []int64{1}, stale)

	// When: the idle connection shows activity again
	stack.sessions.Touch(1)

	// Then: nothing is stale anymore
	assert.Empty(t, stack.sessions.Stale(time.Now(), 15*time.Second))
}

func TestRegistry_LobbyAndOnlineLists(t *testing.T) {
	// Given: a logged-in lobby dweller, a player in a room and an anonymous
	// connection
	stack := newTestStack()
	stack.connect(1, "alice")
	stack.connect(2, "bob")
	stack.sessions.Attach(3)

	stack.sessions.SetRoom(2, "room_1")

	t.Run("lobby holds only logged-in roomless connections", func(t *testing.T) {
		assert.Equal(t, []int64{1}, stack.sessions.LobbyConnIDs())
	})

	t.Run("online players lists every logged-in connection", func(t *testing.T) {
		players := stack.sessions.OnlinePlayers()

		require.Len(t, players, 2)
		names := []string{players[0].Username, players[1].Username}
		assert.ElementsMatch(t, []string{"alice", "bob"}, names)
	})

	t.Run("labels", func(t *testing.T) {
		assert.Equal(t, "alice", stack.sessions.Label(1))
		assert.Equal(t, "unknown", stack.sessions.Label(3))
		assert.Equal(t, "unknown", stack.sessions.Label(99))
	})
}
