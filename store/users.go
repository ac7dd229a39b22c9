package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/c360/biostream/errors"
)

// UpsertUser creates or updates a user keyed by alias. Name and email are
// only overwritten when provided.
func (s *Store) UpsertUser(ctx context.Context, alias string, name, email *string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (alias, name, email)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (alias)
		 DO UPDATE SET
			name = COALESCE(EXCLUDED.name, users.name),
			email = COALESCE(EXCLUDED.email, users.email),
			updated_at = NOW()
		 RETURNING id, alias, name, email, created_at, updated_at`,
		alias, name, email,
	).Scan(&u.ID, &u.Alias, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "UpsertUser", "upsert user")
	}
	return &u, nil
}

// UserByAlias fetches one user.
func (s *Store) UserByAlias(ctx context.Context, alias string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, alias, name, email, created_at, updated_at
		 FROM users WHERE alias = $1`,
		alias,
	).Scan(&u.ID, &u.Alias, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.WrapInvalid(errors.ErrNotFound, "Store", "UserByAlias", "find user")
		}
		return nil, errors.Wrap(err, "Store", "UserByAlias", "query user")
	}
	return &u, nil
}

// Users lists every user with aggregate measurement counts, newest first.
func (s *Store) Users(ctx context.Context) ([]UserSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT
			u.id, u.alias, u.name, u.email, u.created_at, u.updated_at,
			COUNT(DISTINCT m.id), MAX(m.created_at)
		 FROM users u
		 LEFT JOIN measurements m ON u.id = m.user_id
		 GROUP BY u.id
		 ORDER BY u.created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "Users", "query users")
	}
	defer rows.Close()

	var out []UserSummary
	for rows.Next() {
		var u UserSummary
		err := rows.Scan(
			&u.ID, &u.Alias, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt,
			&u.TotalMeasurements, &u.LastMeasurementDate,
		)
		if err != nil {
			return nil, errors.Wrap(err, "Store", "Users", "scan row")
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
