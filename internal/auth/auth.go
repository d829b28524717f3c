// Package auth implements the credential store consumed by the chat plane.
// Outcomes are reported as an (ok, reason) pair so that bad credentials are
// a rejection for the client, never a protocol fault.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"partyline/internal/store"
)

// MaxUsernameLen bounds account names in bytes.
const MaxUsernameLen = 50

// Service verifies and creates username/password accounts. One instance is
// constructed at startup and injected into every consumer.
type Service struct {
	store *store.Store
}

// NewService creates a credential service backed by the given store.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Register creates a new account. The second return value is a
// human-readable reason meant to be surfaced to the client as-is.
func (s *Service) Register(ctx context.Context, username, password string) (bool, string) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > MaxUsernameLen {
		return false, "invalid username"
	}
	if password == "" {
		return false, "password must not be empty"
	}

	if _, err := s.store.UserByName(ctx, username); err == nil {
		return false, "user already exists"
	} else if !errors.Is(err, store.ErrUserNotFound) {
		slog.Error("register lookup failed", "username", username, "err", err)
		return false, "account storage unavailable"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("hash password", "err", err)
		return false, "account storage unavailable"
	}
	if err := s.store.CreateUser(ctx, username, string(hash)); err != nil {
		slog.Error("create user", "username", username, "err", err)
		return false, "user already exists"
	}

	slog.Info("user registered", "username", username)
	return true, "registered"
}

// Authenticate verifies an existing account and records the login time.
func (s *Service) Authenticate(ctx context.Context, username, password string) (bool, string) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, "invalid username or password"
	}

	u, err := s.store.UserByName(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			slog.Error("authenticate lookup failed", "username", username, "err", err)
		}
		return false, "invalid username or password"
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return false, "invalid username or password"
	}

	if err := s.store.TouchLastLogin(ctx, u.ID); err != nil {
		// Login still succeeds; the timestamp is best-effort.
		slog.Warn("record last login", "username", username, "err", err)
	}

	slog.Info("user authenticated", "username", username)
	return true, "login ok"
}
