// Package user manages user accounts and their persistence.
//
// Users are created and refreshed as a side effect of signing in; the
// identity provider's stable subject id is the primary key. Accounts are
// never deleted by this service.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// User represents a signed-in account as reported by the identity provider.
type User struct {
	ID        string    `json:"id"` // provider subject id
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("user not found")

// Repository handles all user database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert inserts the user or, when the subject id is already known, overwrites
// email, name, and picture with whatever the provider reported on this login.
func (r *Repository) Upsert(ctx context.Context, id, email, name, picture string) (*User, error) {
	u := &User{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (id, email, name, picture)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET email = EXCLUDED.email, name = EXCLUDED.name, picture = EXCLUDED.picture
		 RETURNING id, email, name, picture, created_at`,
		id, email, name, picture,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user %q: %w", id, err)
	}
	return u, nil
}

// GetByID fetches a user by their provider subject id.
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	u := &User{}
	err := r.db.QueryRow(ctx,
		`SELECT id, email, name, picture, created_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}
