package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/playcaro/caro-backend/internal/apperror"
	"github.com/playcaro/caro-backend/internal/entity"
)

const (
	userKeyPrefix = "user:id:"
	nameKeyPrefix = "user:name:"
	userSeqKey    = "user:seq"

	initialScore = 1000
)

// storedUser is the redis record: the public profile plus the password
// digest, which stays inside this package.
type storedUser struct {
	entity.User
	PasswordHash string `json:"password_hash"`
}

type redisUsers struct {
	client *redis.Client
}

func NewRedisUserRepository(client *redis.Client) UserRepository {
	return &redisUsers{client: client}
}

func (that *redisUsers) Authenticate(ctx context.Context, username, password string) (*entity.User, error) {
	stored, err := that.getByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, apperror.ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}

	if stored.PasswordHash != hashPassword(password) {
		return nil, apperror.ErrBadCredentials
	}

	return &stored.User, nil
}

func (that *redisUsers) Register(ctx context.Context, username, password, displayName string) (*entity.User, error) {
	if _, err := that.getByUsername(ctx, username); err == nil {
		return nil, apperror.ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	id, err := that.client.Incr(ctx, userSeqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate user id: %w", err)
	}

	if displayName == "" {
		displayName = username
	}

	stored := &storedUser{
		User: entity.User{
			ID:          id,
			Username:    username,
			DisplayName: displayName,
			Score:       initialScore,
		},
		PasswordHash: hashPassword(password),
	}

	if err = that.save(ctx, stored); err != nil {
		return nil, err
	}

	if err = that.client.Set(ctx, nameKeyPrefix+username, strconv.FormatInt(id, 10), 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to index username: %w", err)
	}

	return &stored.User, nil
}

func (that *redisUsers) GetProfile(ctx context.Context, id int64) (*entity.User, error) {
	stored, err := that.getByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return &stored.User, nil
}

func (that *redisUsers) UpdateProfile(ctx context.Context, id int64, displayName, newPassword string) error {
	stored, err := that.getByID(ctx, id)
	if err != nil {
		return err
	}

	if displayName != "" {
		stored.DisplayName = displayName
	}

	if newPassword != "" {
		stored.PasswordHash = hashPassword(newPassword)
	}

	return that.save(ctx, stored)
}

func (that *redisUsers) AdjustScore(ctx context.Context, id int64, delta int, outcome string) error {
	stored, err := that.getByID(ctx, id)
	if err != nil {
		return err
	}

	stored.Score += delta
	if stored.Score < 0 {
		stored.Score = 0
	}

	stored.TotalGames++
	switch outcome {
	case entity.OutcomeWin:
		stored.Wins++
	case entity.OutcomeLoss:
		stored.Losses++
	case entity.OutcomeDraw:
		stored.Draws++
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}

	return that.save(ctx, stored)
}

func (that *redisUsers) getByID(ctx context.Context, id int64) (*storedUser, error) {
	response, err := that.client.Get(ctx, userKeyPrefix+strconv.FormatInt(id, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	var stored storedUser
	if err = json.Unmarshal([]byte(response), &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return &stored, nil
}

func (that *redisUsers) getByUsername(ctx context.Context, username string) (*storedUser, error) {
	response, err := that.client.Get(ctx, nameKeyPrefix+username).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve username: %w", err)
	}

	id, err := strconv.ParseInt(response, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt username index: %w", err)
	}

	return that.getByID(ctx, id)
}

func (that *redisUsers) save(ctx context.Context, stored *storedUser) error {
	userJSON, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	key := userKeyPrefix + strconv.FormatInt(stored.ID, 10)
	if err = that.client.Set(ctx, key, userJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to set user: %w", err)
	}

	return nil
}
