package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"khata/internal/core"
)

const userColumns = `id, email, hashed_password, full_name, is_active, is_admin, created_at`

func scanUser(row rowScanner) (core.User, error) {
	var (
		u       core.User
		created dbTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.FullName, &u.IsActive, &u.IsAdmin, &created); err != nil {
		return core.User{}, err
	}
	u.CreatedAt = created.Time
	return u, nil
}

// CreateUser stores a user with an already hashed password.
func (q *Queries) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	id, err := q.insert(ctx, `
		INSERT INTO users (email, hashed_password, full_name, is_active, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		email, u.HashedPassword, u.FullName, u.IsActive, u.IsAdmin, now())
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, core.Conflict("user", 0, fmt.Sprintf("email %q already registered", email))
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return q.getUser(ctx, `id = ?`, id)
}

// UserByEmail looks a user up by case-insensitive email.
func (q *Queries) UserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := q.getUser(ctx, `email = ?`, strings.ToLower(strings.TrimSpace(email)))
	if core.IsNotFound(err) {
		return core.User{}, &core.NotFoundError{Entity: "user"}
	}
	return u, err
}

func (q *Queries) getUser(ctx context.Context, cond string, arg any) (core.User, error) {
	u, err := scanUser(q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		id, _ := arg.(int64)
		return core.User{}, core.NotFound("user", id)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (q *Queries) UpdateUserPassword(ctx context.Context, id int64, hashed string) error {
	ok, err := q.execOne(ctx, `UPDATE users SET hashed_password = ?, updated_at = ? WHERE id = ?`, hashed, now(), id)
	if err != nil {
		return fmt.Errorf("update password for user %d: %w", id, err)
	}
	if !ok {
		return core.NotFound("user", id)
	}
	return nil
}

func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	n, err := q.count(ctx, `SELECT COUNT(*) FROM users`)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
