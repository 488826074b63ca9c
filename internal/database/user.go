// internal/database/user.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/auth"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/models"
)

// ErrUsernameTaken is returned when registering an existing username.
var ErrUsernameTaken = errors.New("username already taken")

// ErrInvalidCredentials covers both unknown usernames and wrong passwords so
// login failures do not reveal which part was wrong.
var ErrInvalidCredentials = errors.New("invalid username or password")

// CreateUser hashes the password and inserts a new identity row. Returns the
// new user's id.
func (db *DB) CreateUser(ctx context.Context, username, password string) (string, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("check username: %w", err)
	}
	if exists {
		return "", ErrUsernameTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	id := uuid.NewString()
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO users (id, username, password) VALUES ($1, $2, $3)`, id, username, hash)
	if err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	db.log.WithField("userId", id).Info("registered new user")
	return id, nil
}

// AuthenticateUser verifies a username/password pair and returns the user id.
func (db *DB) AuthenticateUser(ctx context.Context, username, password string) (string, error) {
	var id, hash string
	err := db.Pool.QueryRow(ctx,
		`SELECT id, password FROM users WHERE username = $1`, username).Scan(&id, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("query user: %w", err)
	}

	ok, err := auth.VerifyPassword(password, hash)
	if err != nil {
		return "", fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return "", ErrInvalidCredentials
	}
	return id, nil
}

// GetUser loads one identity row by id.
func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	u := &models.User{}
	err := db.Pool.QueryRow(ctx,
		`SELECT id, username, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}
