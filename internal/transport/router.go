package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/playcaro/caro-backend/internal/apperror"
	"github.com/playcaro/caro-backend/internal/dispatch"
	"github.com/playcaro/caro-backend/internal/protocol"
	"github.com/playcaro/caro-backend/internal/service"
)

// Router turns decoded envelopes into service calls. Both the TCP stream
// transport and the websocket transport feed it; it is the single place
// that knows the full set of inbound envelope types.
type Router struct {
	logger   *slog.Logger
	sessions *service.Registry
	rooms    *service.RoomManager
	director *service.Director
	table    *dispatch.Table
}

func NewRouter(logger *slog.Logger, sessions *service.Registry, rooms *service.RoomManager, director *service.Director, table *dispatch.Table) *Router {
	return &Router{
		logger:   logger.With("component", "router"),
		sessions: sessions,
		rooms:    rooms,
		director: director,
		table:    table,
	}
}

// HandleConnect registers a fresh session for a newly attached connection.
func (that *Router) HandleConnect(connID int64) {
	that.sessions.Attach(connID)
	that.logger.Info("connection attached", "conn_id", connID)
}

// HandleDisconnect runs the cleanup path shared by explicit closes, read
// failures and liveness kicks: leave the room if any, then drop the
// session. A disconnect during play is an immediate room exit.
func (that *Router) HandleDisconnect(connID int64) {
	if session, ok := that.sessions.Snapshot(connID); ok && session.RoomID != "" {
		if err := that.rooms.LeaveRoom(connID, session.RoomID); err != nil {
			that.logger.Debug("disconnect room cleanup", "conn_id", connID, "error", err)
		}
	}

	that.sessions.Detach(connID)
	that.rooms.BroadcastOnlinePlayers()
	that.logger.Info("connection detached", "conn_id", connID)
}

// HandleEnvelope processes one framed envelope. Malformed payloads are
// dropped with a log line; a panic while handling is caught here so one
// bad request can never take the connection or the server down.
func (that *Router) HandleEnvelope(ctx context.Context, connID int64, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			that.logger.Error("panic while handling envelope", "conn_id", connID, "panic", r)
		}
	}()

	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		that.logger.Debug("dropping malformed envelope", "conn_id", connID, "error", err)
		return
	}

	that.sessions.Touch(connID)

	if err := that.route(ctx, connID, &env); err != nil {
		if msg := apperror.UserMessage(err); msg != "" {
			that.table.Push(connID, protocol.NewError(msg))
			return
		}

		that.logger.Error("failed to handle envelope", "conn_id", connID, "type", env.Type, "error", err)
	}
}

func (that *Router) route(ctx context.Context, connID int64, env *protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeLogin:
		return that.handleLogin(ctx, connID, env)

	case protocol.TypeRegister:
		return that.handleRegister(ctx, connID, env)

	case protocol.TypeEditProfile:
		return that.handleEditProfile(ctx, connID, env)

	case protocol.TypeGetOnlinePlayers:
		that.table.Push(connID, protocol.NewOnlinePlayers(that.sessions.OnlinePlayers()))
		return nil

	case protocol.TypeCreateRoom:
		if err := that.requireLogin(connID); err != nil {
			return err
		}
		_, err := that.rooms.CreateRoom(connID, env.Password, env.TimeLimit)
		return err

	case protocol.TypeJoinRoom:
		if err := that.requireLogin(connID); err != nil {
			return err
		}
		return that.rooms.JoinRoom(connID, env.RoomID, env.Password)

	case protocol.TypeQuickMatch:
		if err := that.requireLogin(connID); err != nil {
			return err
		}
		return that.rooms.QuickMatch(connID)

	case protocol.TypeGetRooms:
		that.table.Push(connID, protocol.NewRoomList(that.rooms.Summaries()))
		return nil

	case protocol.TypeViewMatch:
		if err := that.requireLogin(connID); err != nil {
			return err
		}
		return that.rooms.ViewMatch(connID, env.RoomID)

	case protocol.TypeLeaveRoom:
		return that.rooms.LeaveRoom(connID, env.RoomID)

	case protocol.TypeMove:
		return that.director.Move(ctx, connID, env.RoomID, env.X, env.Y)

	case protocol.TypeSurrender:
		return that.director.Surrender(ctx, connID, env.RoomID)

	case protocol.TypePlayAgain:
		return that.director.PlayAgain(connID, env.RoomID)

	case protocol.TypeChat:
		return that.director.Chat(connID, env.RoomID, env.Message)

	case protocol.TypePing:
		// heartbeats just refresh activity, which Touch already did
		that.table.Push(connID, protocol.NewPong())
		return nil

	default:
		that.logger.Debug("dropping unknown envelope type", "conn_id", connID, "type", env.Type)
		return nil
	}
}

func (that *Router) handleLogin(ctx context.Context, connID int64, env *protocol.Envelope) error {
	user, err := that.sessions.Login(ctx, connID, env.Username, env.Password)
	if err != nil {
		return err
	}

	greeting := fmt.Sprintf("Welcome back, %s! (Score: %d)", user.Username, user.Score)
	that.afterLogin(connID, greeting, user.DisplayName)

	that.logger.Info("player logged in", "conn_id", connID, "username", user.Username)

	return nil
}

func (that *Router) handleRegister(ctx context.Context, connID int64, env *protocol.Envelope) error {
	user, err := that.sessions.Register(ctx, connID, env.Username, env.Password, env.DisplayName)
	if err != nil {
		return err
	}

	that.afterLogin(connID, "Account created & logged in!", user.DisplayName)

	that.logger.Info("player registered", "conn_id", connID, "username", user.Username)

	return nil
}

func (that *Router) handleEditProfile(ctx context.Context, connID int64, env *protocol.Envelope) error {
	displayName, err := that.sessions.EditProfile(ctx, connID, env.DisplayName, env.OldPassword, env.NewPassword)
	if err != nil {
		return err
	}

	that.table.Push(connID, protocol.NewProfileUpdated(displayName))
	that.rooms.BroadcastOnlinePlayers()

	return nil
}

// afterLogin sends the greeting plus the lobby snapshot to the fresh
// identity, and refreshes the online list for everyone else.
func (that *Router) afterLogin(connID int64, greeting, displayName string) {
	that.table.Push(connID, protocol.NewLoginSuccess(greeting, displayName))
	that.table.Push(connID, protocol.NewRoomList(that.rooms.Summaries()))
	that.rooms.BroadcastOnlinePlayers()
}

func (that *Router) requireLogin(connID int64) error {
	session, ok := that.sessions.Snapshot(connID)
	if !ok || !session.LoggedIn() {
		return apperror.ErrNotLoggedIn
	}

	return nil
}
