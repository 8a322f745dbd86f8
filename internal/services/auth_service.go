package services

import (
	"context"
	"log/slog"
	"strings"

	"khata/internal/auth"
	"khata/internal/core"
	"khata/internal/storage"
)

const minPasswordLength = 6

type AuthService struct {
	repo   *storage.Repository
	tokens *auth.Tokens
}

func NewAuthService(repo *storage.Repository, tokens *auth.Tokens) *AuthService {
	return &AuthService{repo: repo, tokens: tokens}
}

// Login checks credentials and issues an access token. Unknown emails,
// inactive users and wrong passwords all yield the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	var user core.User
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		user, err = q.UserByEmail(ctx, email)
		return err
	})
	if core.IsNotFound(err) {
		return "", auth.ErrBadCredentials
	}
	if err != nil {
		return "", err
	}
	if !user.IsActive || !auth.CheckPassword(user.HashedPassword, password) {
		slog.WarnContext(ctx, "Login rejected", "email", user.Email)
		return "", auth.ErrBadCredentials
	}
	return s.tokens.Issue(user.Email)
}

// Authenticate resolves a bearer token to an active user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (core.User, error) {
	email, err := s.tokens.Verify(token)
	if err != nil {
		return core.User{}, err
	}
	var user core.User
	err = s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		user, err = q.UserByEmail(ctx, email)
		return err
	})
	if core.IsNotFound(err) {
		return core.User{}, auth.ErrBadCredentials
	}
	if err != nil {
		return core.User{}, err
	}
	if !user.IsActive {
		return core.User{}, auth.ErrBadCredentials
	}
	return user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, user core.User, current, next string) error {
	if !auth.CheckPassword(user.HashedPassword, current) {
		return core.Invalid("current_password", "is incorrect")
	}
	if len(next) < minPasswordLength {
		return core.Invalid("new_password", "must be at least %d characters", minPasswordLength)
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		return q.UpdateUserPassword(ctx, user.ID, hash)
	}); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Password changed", "user_id", user.ID)
	return nil
}

// EnsureAdmin creates the configured administrator when it does not exist
// yet. An existing account is left untouched.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil
	}
	return s.repo.InTx(ctx, func(q *storage.Queries) error {
		_, err := q.UserByEmail(ctx, email)
		if err == nil {
			return nil
		}
		if !core.IsNotFound(err) {
			return err
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		u, err := q.CreateUser(ctx, core.User{
			Email:          email,
			HashedPassword: hash,
			FullName:       "Administrator",
			IsActive:       true,
			IsAdmin:        true,
		})
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "Admin user created", "user_id", u.ID, "email", u.Email)
		return nil
	})
}
