package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playcaro/caro-backend/internal/apperror"
	"github.com/playcaro/caro-backend/internal/entity"
	"github.com/playcaro/caro-backend/internal/protocol"
	"github.com/playcaro/caro-backend/internal/repository"
)

// pusher is the outbound half the services need: best-effort delivery to
// one or many connections, plus forced close for the liveness sweep.
type pusher interface {
	Push(id int64, env any)
	PushAll(ids []int64, env any)
	CloseConn(id int64)
}

// Session is the per-connection state: liveness stamp plus the cached
// identity once the connection logs in.
type Session struct {
	ConnID   int64
	LastSeen time.Time

	// identity fields, zero until login or register succeeds
	UserID      int64
	Username    string
	DisplayName string
	Score       int

	// RoomID is set while the connection is seated or spectating.
	RoomID string
}

func (that *Session) LoggedIn() bool {
	return that.UserID != 0
}

// Registry maps connection ids to sessions and fronts the profile store for
// authentication. The sessions map is guarded by one lock; the lock is never
// held across a profile store call or a network send.
type Registry struct {
	logger *slog.Logger
	users  repository.UserRepository

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewRegistry(logger *slog.Logger, users repository.UserRepository) *Registry {
	return &Registry{
		logger:   logger.With("component", "sessions"),
		users:    users,
		sessions: make(map[int64]*Session),
	}
}

// Attach registers a fresh, unauthenticated session for a connection.
func (that *Registry) Attach(connID int64) {
	that.mu.Lock()
	that.sessions[connID] = &Session{ConnID: connID, LastSeen: time.Now()}
	that.mu.Unlock()
}

// Detach removes the session and returns a copy of its final state, or
// false if the connection was unknown.
func (that *Registry) Detach(connID int64) (Session, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	session, ok := that.sessions[connID]
	if !ok {
		return Session{}, false
	}

	delete(that.sessions, connID)

	return *session, true
}

// Snapshot returns a copy of the connection's session.
func (that *Registry) Snapshot(connID int64) (Session, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	session, ok := that.sessions[connID]
	if !ok {
		return Session{}, false
	}

	return *session, true
}

// Touch stamps last-seen time. Called for every received envelope; this is
// the sole liveness mechanism.
func (that *Registry) Touch(connID int64) {
	that.mu.Lock()
	if session, ok := that.sessions[connID]; ok {
		session.LastSeen = time.Now()
	}
	that.mu.Unlock()
}

// Stale returns the connections whose last activity is older than the
// threshold. The caller force-disconnects them.
func (that *Registry) Stale(now time.Time, threshold time.Duration) []int64 {
	that.mu.Lock()
	defer that.mu.Unlock()

	var stale []int64
	for id, session := range that.sessions {
		if now.Sub(session.LastSeen) > threshold {
			stale = append(stale, id)
		}
	}

	return stale
}

// Login authenticates against the profile store and caches the identity on
// success. There is no automatic registration fallback.
func (that *Registry) Login(ctx context.Context, connID int64, username, password string) (*entity.User, error) {
	user, err := that.users.Authenticate(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	that.cacheIdentity(connID, user)

	return user, nil
}

// Register creates a new profile and immediately logs the identity in.
func (that *Registry) Register(ctx context.Context, connID int64, username, password, displayName string) (*entity.User, error) {
	user, err := that.users.Register(ctx, username, password, displayName)
	if err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}

	that.cacheIdentity(connID, user)

	return user, nil
}

// EditProfile updates the display name and, optionally, the password. A
// password change requires re-verifying the old password first.
func (that *Registry) EditProfile(ctx context.Context, connID int64, displayName, oldPassword, newPassword string) (string, error) {
	session, ok := that.Snapshot(connID)
	if !ok || !session.LoggedIn() {
		return "", apperror.ErrNotLoggedIn
	}

	if displayName == "" {
		return "", apperror.ErrEmptyDisplayName
	}

	if newPassword != "" {
		if oldPassword == "" {
			return "", apperror.ErrOldPasswordRequired
		}

		if _, err := that.users.Authenticate(ctx, session.Username, oldPassword); err != nil {
			return "", fmt.Errorf("failed to verify old password: %w", err)
		}
	}

	if err := that.users.UpdateProfile(ctx, session.UserID, displayName, newPassword); err != nil {
		return "", fmt.Errorf("failed to update profile: %w", err)
	}

	that.mu.Lock()
	if live, ok := that.sessions[connID]; ok {
		live.DisplayName = displayName
	}
	that.mu.Unlock()

	return displayName, nil
}

// SetRoom records which room the connection currently belongs to; empty
// means lobby.
func (that *Registry) SetRoom(connID int64, roomID string) {
	that.mu.Lock()
	if session, ok := that.sessions[connID]; ok {
		session.RoomID = roomID
	}
	that.mu.Unlock()
}

// SetScore refreshes the cached score after settlement.
func (that *Registry) SetScore(connID int64, score int) {
	that.mu.Lock()
	if session, ok := that.sessions[connID]; ok {
		session.Score = score
	}
	that.mu.Unlock()
}

// Label returns the name shown for a connection in announcements.
func (that *Registry) Label(connID int64) string {
	that.mu.Lock()
	defer that.mu.Unlock()

	if session, ok := that.sessions[connID]; ok && session.LoggedIn() {
		return session.DisplayName
	}

	return "unknown"
}

// OnlinePlayers lists every logged-in connection's public summary.
func (that *Registry) OnlinePlayers() []protocol.PlayerSummary {
	that.mu.Lock()
	defer that.mu.Unlock()

	players := make([]protocol.PlayerSummary, 0, len(that.sessions))
	for _, session := range that.sessions {
		if !session.LoggedIn() {
			continue
		}

		players = append(players, protocol.PlayerSummary{
			UserID:      session.UserID,
			Username:    session.Username,
			DisplayName: session.DisplayName,
			Score:       session.Score,
		})
	}

	return players
}

// LobbyConnIDs returns the logged-in connections currently outside any
// room; lobby refreshes go only to them.
func (that *Registry) LobbyConnIDs() []int64 {
	that.mu.Lock()
	defer that.mu.Unlock()

	var ids []int64
	for id, session := range that.sessions {
		if session.LoggedIn() && session.RoomID == "" {
			ids = append(ids, id)
		}
	}

	return ids
}

func (that *Registry) cacheIdentity(connID int64, user *entity.User) {
	that.mu.Lock()
	defer that.mu.Unlock()

	session, ok := that.sessions[connID]
	if !ok {
		return
	}

	session.UserID = user.ID
	session.Username = user.Username
	session.DisplayName = user.DisplayName
	session.Score = user.Score
}
