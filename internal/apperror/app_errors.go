package apperror

import "errors"

var (
	// auth errors
	ErrBadCredentials = errors.New("invalid username or password")
	ErrUsernameTaken  = errors.New("username already taken")
	ErrNotLoggedIn    = errors.New("login required")

	// validation errors
	ErrRoomNotFound        = errors.New("room not found")
	ErrWrongPassword       = errors.New("wrong room password")
	ErrInvalidCell         = errors.New("cell is out of range")
	ErrCellOccupied        = errors.New("cell is already occupied")
	ErrEmptyDisplayName    = errors.New("display name must not be empty")
	ErrOldPasswordRequired = errors.New("old password required to set a new one")

	// state conflict errors
	ErrRoomFull         = errors.New("room is full")
	ErrAlreadyInRoom    = errors.New("you are already in a room")
	ErrNotYourTurn      = errors.New("it's not your turn")
	ErrGameFinished     = errors.New("game is already finished")
	ErrGameIsNotStarted = errors.New("game is not started")
	ErrNotSeated        = errors.New("you are not seated in this room")
	ErrNotInRoom        = errors.New("you are not in this room")
	ErrOpponentGone     = errors.New("opponent has left the room")
)

var userFacing = []error{
	ErrBadCredentials,
	ErrUsernameTaken,
	ErrNotLoggedIn,
	ErrRoomNotFound,
	ErrWrongPassword,
	ErrInvalidCell,
	ErrCellOccupied,
	ErrEmptyDisplayName,
	ErrOldPasswordRequired,
	ErrRoomFull,
	ErrAlreadyInRoom,
	ErrNotYourTurn,
	ErrGameFinished,
	ErrGameIsNotStarted,
	ErrNotSeated,
	ErrNotInRoom,
	ErrOpponentGone,
}

// IsUserFacing reports whether err should be answered with an ERROR envelope
// rather than only logged. Anything outside this set is an internal failure:
// logged, swallowed, connection stays open.
func IsUserFacing(err error) bool {
	return UserMessage(err) != ""
}

// UserMessage returns the bare sentinel text for a user-facing error, so
// wrapping context never leaks onto the wire. Empty for internal errors.
func UserMessage(err error) string {
	for _, sentinel := range userFacing {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return ""
}
