package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/playcaro/caro-backend/internal/entity"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository is the profile store the session and gameplay services call
// into: authentication, profile data and score persistence.
type UserRepository interface {
	Authenticate(ctx context.Context, username, password string) (*entity.User, error)
	Register(ctx context.Context, username, password, displayName string) (*entity.User, error)
	GetProfile(ctx context.Context, id int64) (*entity.User, error)
	UpdateProfile(ctx context.Context, id int64, displayName, newPassword string) error
	// AdjustScore applies a score delta and records the outcome against the
	// profile's win/loss/draw totals. Score never drops below zero.
	AdjustScore(ctx context.Context, id int64, delta int, outcome string) error
}

// hashPassword digests a password for storage and comparison.
func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
