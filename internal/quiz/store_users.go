package quiz

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetUser resolves a user by id or username (dev tokens carry usernames as
// the subject). Satisfies UserDirectory; the password hash stays in the
// database.
func (s *SQLStore) GetUser(ctx context.Context, id string) (User, error) {
	var (
		u         User
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id,username,full_name,email,role,time_zone,created_at
		 FROM users WHERE id=$1 OR username=$1`, id).
		Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.Role, &u.TimeZone, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return u, nil
}
