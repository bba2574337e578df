package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/playcaro/caro-backend/internal/apperror"
	"github.com/playcaro/caro-backend/internal/entity"
)

type sqliteUsers struct {
	conn *sql.DB
}

func NewSQLiteUserRepository(conn *sql.DB) UserRepository {
	return &sqliteUsers{conn: conn}
}

func (that *sqliteUsers) Authenticate(ctx context.Context, username, password string) (*entity.User, error) {
	query := `SELECT id, username, display_name, score, total_games, wins, losses, draws
		FROM users WHERE username = ? AND password_hash = ?`

	user, err := that.scanUser(that.conn.QueryRowContext(ctx, query, username, hashPassword(password)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("can't authenticate user: %w", err)
	}

	if _, err = that.conn.ExecContext(ctx,
		`UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = ?`, user.ID); err != nil {
		return nil, fmt.Errorf("can't stamp last login: %w", err)
	}

	return user, nil
}

func (that *sqliteUsers) Register(ctx context.Context, username, password, displayName string) (*entity.User, error) {
	var existing int64
	err := that.conn.QueryRowContext(ctx,
		`SELECT id FROM users WHERE username = ?`, username).Scan(&existing)
	if err == nil {
		return nil, apperror.ErrUsernameTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("can't check username: %w", err)
	}

	if displayName == "" {
		displayName = username
	}

	result, err := that.conn.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, display_name) VALUES (?, ?, ?)`,
		username, hashPassword(password), displayName)
	if err != nil {
		return nil, fmt.Errorf("can't insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("can't read inserted id: %w", err)
	}

	return that.GetProfile(ctx, id)
}

func (that *sqliteUsers) GetProfile(ctx context.Context, id int64) (*entity.User, error) {
	query := `SELECT id, username, display_name, score, total_games, wins, losses, draws
		FROM users WHERE id = ?`

	user, err := that.scanUser(that.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("can't find user: %w", err)
	}

	return user, nil
}

func (that *sqliteUsers) UpdateProfile(ctx context.Context, id int64, displayName, newPassword string) error {
	if displayName != "" {
		if _, err := that.conn.ExecContext(ctx,
			`UPDATE users SET display_name = ? WHERE id = ?`, displayName, id); err != nil {
			return fmt.Errorf("can't update display name: %w", err)
		}
	}

	if newPassword != "" {
		if _, err := that.conn.ExecContext(ctx,
			`UPDATE users SET password_hash = ? WHERE id = ?`, hashPassword(newPassword), id); err != nil {
			return fmt.Errorf("can't update password: %w", err)
		}
	}

	return nil
}

func (that *sqliteUsers) AdjustScore(ctx context.Context, id int64, delta int, outcome string) error {
	column, ok := outcomeColumn(outcome)
	if !ok {
		return fmt.Errorf("unknown outcome %q", outcome)
	}

	query := fmt.Sprintf(`UPDATE users
		SET score = MAX(score + ?, 0),
		    total_games = total_games + 1,
		    %s = %s + 1
		WHERE id = ?`, column, column)

	if _, err := that.conn.ExecContext(ctx, query, delta, id); err != nil {
		return fmt.Errorf("can't adjust score: %w", err)
	}

	return nil
}

func outcomeColumn(outcome string) (string, bool) {
	switch outcome {
	case entity.OutcomeWin:
		return "wins", true
	case entity.OutcomeLoss:
		return "losses", true
	case entity.OutcomeDraw:
		return "draws", true
	default:
		return "", false
	}
}

func (that *sqliteUsers) scanUser(row *sql.Row) (*entity.User, error) {
	var user entity.User
	var displayName sql.NullString

	err := row.Scan(&user.ID, &user.Username, &displayName, &user.Score,
		&user.TotalGames, &user.Wins, &user.Losses, &user.Draws)
	if err != nil {
		return nil, err
	}

	user.DisplayName = displayName.String
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}

	return &user, nil
}
