package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playcaro/caro-backend/internal/apperror"
	"github.com/playcaro/caro-backend/internal/entity"
	"github.com/playcaro/caro-backend/internal/protocol"
)

func TestDirector_Move(t *testing.T) {
	t.Run("accepted move reaches opponent and restarts the clock", func(t *testing.T) {
		// Given: a running match, alice (X) to move
		stack := newTestStack()
		stack.connect(1, "alice")
		stack.connect(2, "bob")
		roomID := stack.seatTwo(1, 2)

		before := stack.room(roomID).TurnDeadline

		// When: alice places a stone
		require.NoError(t, stack.director.Move(context.Background(), 1, roomID, 7, 7))

		// Then: bob sees the move
		move, ok := stack.push.lastOfType(2, func(env any) bool {
			_, ok := env.(protocol.OpponentMove)
			return ok
		})
		require.True(t, ok)
		assert.Equal(t, 7, move.(protocol.OpponentMove).X)
		assert.Equal(t, 7, move.(protocol.OpponentMove).Y)
		assert.Equal(t, entity.PlayerX, move.(protocol.OpponentMove).Symbol)
		assert.Equal(t, "alice", move.(protocol.OpponentMove).Player)

		// and the turn passed with a fresh deadline
		room := stack.room(roomID)
		assert.Equal(t, entity.PlayerO, room.Board.Turn)
		assert.NotEqual(t, before, room.TurnDeadline)

		_, ok = stack.push.lastOfType(1, func(env any) bool {
			_, ok := env.(protocol.SyncTimer)
			return ok
		})
		assert.True(t, ok)
	})

	t.Run("spectator cannot move", func(t *testing.T) {
		stack := newTestStack()
		stack.connect(1, "alice")
		stack.connect(2, "bob")
		stack.connect(3, "carol")
		roomID := stack.seatTwo(1, 2)
		require.NoError(t, stack.rooms.ViewMatch(3, roomID))

		err := stack.director.Move(context.Background(), 3, roomID, 0, 0)

		assert.ErrorIs(t, err, apperror.ErrNotSeated)
	})

	t.Run("no move before the second player arrives", func(t *testing.T) {
		stack := newTestStack()
		stack.connect(1, "alice")

		roomID, err := stack.rooms.CreateRoom(1, "", 30)
		require.NoError(t, err)

		err = stack.director.Move(context.Background(), 1, roomID, 0, 0)

		assert.ErrorIs(t, err, apperror.ErrGameIsNotStarted)
	})

	t.Run("out-of-turn move is rejected", func(t *testing.T) {
		stack := newTestStack()
		stack.connect(1, "alice")
		stack.connect(2, "bob")
		roomID := stack.seatTwo(1, 2)

		// bob plays O and X has not moved yet
		err := stack.director.Move(context.Background(), 2, roomID, 0, 0)

		assert.ErrorIs(t, err, apperror.ErrNotYourTurn)
	})
}

func TestDirector_WinSettlesScores(t *testing.T) {
	// Given: a running match
	stack := newTestStack()
	stack.connect(1, "alice")
	stack.connect(2, "bob")
	roomID := stack.seatTwo(1, 2)

	ctx := context.Background()

	// When: alice builds a row of five while bob answers elsewhere
	for x := 0; x < 4; x++ {
		require.NoError(t, stack.director.Move(ctx, 1, roomID, x, 0))
		require.NoError(t, stack.director.Move(ctx, 2, roomID, x, 1))
	}
	require.NoError(t, stack.director.Move(ctx, 1, roomID, 4, 0))

	// Then: the game is settled for everyone
	for _, connID := range []int64{1, 2} {
		over, ok := stack.push.lastOfType(connID, func(env any) bool {
			_, ok := env.(protocol.GameOver)
			return ok
		})
		require.True(t, ok)
		assert.Equal(t, "alice", over.(protocol.GameOver).Winner)
	}

	room := stack.room(roomID)
	assert.Equal(t, entity.StatusFinished, room.Status)
	assert.True(t, room.TurnDeadline.IsZero())

	// and the symmetric score delta was applied and cached
	winner, err := stack.users.GetProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1010, winner.Score)
	assert.Equal(t, 1, winner.Wins)
	assert.Equal(t, 1, winner.TotalGames)

	loser, err := stack.users.GetProfile(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 995, loser.Score)
	assert.Equal(t, 1, loser.Losses)

	session, ok := stack.sessions.Snapshot(1)
	require.True(t, ok)
	assert.Equal(t, 1010, session.Score)

	// no stone lands after the game is over
	err = stack.director.Move(ctx, 2, roomID, 10, 10)
	assert.ErrorIs(t, err, apperror.ErrGameFinished)
}

func TestDirector_Surrender(t *testing.T) {
	t.Run("opponent wins immediately", func(t *testing.T) {
		stack := newTestStack()
		stack.connect(1, "alice")
		stack.connect(2, "bob")
		roomID := stack.seatTwo(1, 2)

		require.NoError(t, stack.director.Surrender(context.Background(), 1, roomID))

		over, ok := stack.push.lastOfType(2, func(env any) bool {
			_, ok := env.(protocol.GameOver)
			return ok
		})
		require.True(t, ok)
		assert.Equal(t, "bob", over.(protocol.GameOver).Winner)
		assert.Contains(t, over.(protocol.GameOver).Message, "alice surrendered")

		winner, err := stack.users.GetProfile(context.Background(), 2)
		require.NoError(t, err)
		assert.Equal(t, 1010, winner.Score)

		assert.Equal(t, entity.StatusFinished, stack.room(roomID).Status)
	})

	t.Run("no second surrender once the game is over", func(t *testing.T) {
		stack := newTestStack()
		stack.connect(1, "alice")
		stack.connect(2, "bob")
		roomID := stack.seatTwo(1, 2)

		require.NoError(t, stack.director.Surrender(context.Background(), 1, roomID))

		err := stack.director.Surrender(context.Background(), 2, roomID)

		assert.ErrorIs(t, err, apperror.ErrGameFinished)
	})

	t.Run("surrender needs a running game", func(t *testing.T) {
		stack := newTestStack()
		stack.connect(1, "alice")

		roomID, err := stack.rooms.CreateRoom(1, "", 30)
		require.NoError(t, err)

		err = stack.director.Surrender(context.Background(), 1, roomID)

		assert.ErrorIs(t, err, apperror.ErrGameIsNotStarted)
	})
}

func TestDirector_PlayAgain(t *testing.T) {
	t.Run("rematch swaps symbols and restarts", func(t *testing.T) {
		// Given: a finished match where alice held X
		stack := newTestStack()
		stack.connect(1, "alice")
		stack.connect(2, "bob")
		roomID := stack.seatTwo(1, 2)
		require.NoError(t, stack.director.Surrender(context.Background(), 2, roomID))

		// When: a rematch is requested
		require.NoError(t, stack.director.PlayAgain(1, roomID))

		// Then: bob now sits at slot 0 holding X, fresh board, clock running
		room := stack.room(roomID)
		assert.Equal(t, []int64{2, 1}, room.Players)
		assert.Equal(t, entity.StatusPlaying, room.Status)
		assert.Empty(t, room.Board.Moves)
		assert.False(t, room.TurnDeadline.IsZero())

		joined, ok := stack.push.lastOfType(2, func(env any) bool {
			_, ok := env.(protocol.RoomJoined)
			return ok
		})
		require.True(t, ok)
		assert.Equal(t, entity.PlayerX, joined.(protocol.RoomJoined).PlayerSymbol)

		// and the former X now moves second
		err := stack.director.Move(context.Background(), 1, roomID, 0, 0)
		assert.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.NoError(t, stack.director.Move(context.Background(), 2, roomID, 0, 0))
	})

	t.Run("no rematch once the opponent left", func(t *testing.T) {
		stack := newTestStack()
		stack.connect(1, "alice")
		stack.connect(2, "bob")
		roomID := stack.seatTwo(1, 2)
		require.NoError(t, stack.rooms.LeaveRoom(2, roomID))

		err := stack.director.PlayAgain(1, roomID)

		assert.ErrorIs(t, err, apperror.ErrOpponentGone)
	})
}

func TestDirector_Chat(t *testing.T) {
	// Given: a match with a spectator
	stack := newTestStack()
	stack.connect(1, "alice")
	stack.connect(2, "bob")
	stack.connect(3, "carol")
	roomID := stack.seatTwo(1, 2)
	require.NoError(t, stack.rooms.ViewMatch(3, roomID))

	// When: alice says something
	require.NoError(t, stack.director.Chat(1, roomID, "good luck"))

	// Then: everyone but the sender hears it
	for _, connID := range []int64{2, 3} {
		chat, ok := stack.push.lastOfType(connID, func(env any) bool {
			_, ok := env.(protocol.Chat)
			return ok
		})
		require.True(t, ok)
		assert.Equal(t, "alice", chat.(protocol.Chat).Sender)
		assert.Equal(t, "good luck", chat.(protocol.Chat).Message)
	}

	_, ok := stack.push.lastOfType(1, func(env any) bool {
		_, ok := env.(protocol.Chat)
		return ok
	})
	assert.False(t, ok)

	// outsiders cannot post
	stack.connect(4, "dave")
	err := stack.director.Chat(4, roomID, "hi")
	assert.ErrorIs(t, err, apperror.ErrNotInRoom)
}

func TestDirector_DeadlineForfeit(t *testing.T) {
	// Given: a running match where alice (X) sits on an expired clock
	stack := newTestStack()
	stack.connect(1, "alice")
	stack.connect(2, "bob")
	roomID := stack.seatTwo(1, 2)

	stack.rooms.mu.Lock()
	stack.rooms.rooms[roomID].TurnDeadline = time.Now().Add(-time.Second)
	stack.rooms.mu.Unlock()

	// When: the deadline sweep runs
	stack.director.sweepDeadlines(context.Background(), time.Now())

	// Then: the player to move forfeits and the opponent takes the win
	room := stack.room(roomID)
	assert.Equal(t, entity.StatusFinished, room.Status)

	over, ok := stack.push.lastOfType(1, func(env any) bool {
		_, ok := env.(protocol.GameOver)
		return ok
	})
	require.True(t, ok)
	assert.Equal(t, "bob", over.(protocol.GameOver).Winner)
	assert.Contains(t, over.(protocol.GameOver).Message, "alice ran out of time")

	winner, err := stack.users.GetProfile(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1010, winner.Score)

	loser, err := stack.users.GetProfile(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 995, loser.Score)

	// a late move bounces off the finished game
	err = stack.director.Move(context.Background(), 1, roomID, 0, 0)
	assert.ErrorIs(t, err, apperror.ErrGameFinished)
}

func TestDirector_DeadlineSweepIgnoresHealthyRooms(t *testing.T) {
	stack := newTestStack()
	stack.connect(1, "alice")
	stack.connect(2, "bob")
	roomID := stack.seatTwo(1, 2)

	stack.director.sweepDeadlines(context.Background(), time.Now())

	assert.Equal(t, entity.StatusPlaying, stack.room(roomID).Status)
}

func TestDirector_LivenessSweep(t *testing.T) {
	// Given: one silent connection and one chatty one
	stack := newTestStack()
	stack.connect(1, "alice")
	stack.connect(2, "bob")

	stack.sessions.mu.Lock()
	stack.sessions.sessions[1].LastSeen = time.Now().Add(-time.Minute)
	stack.sessions.mu.Unlock()

	// When: the liveness sweep runs
	stack.director.sweepLiveness(time.Now())

	// Then: only the silent connection is forced out
	assert.Equal(t, []int64{1}, stack.push.closedConns())
}
