package postgres

import (
	"context"
	"errors"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// CreateUser inserts a new user row.
func (r *UserRepo) CreateUser(ctx context.Context, u *model.UserRecord) error {
	const q = `INSERT INTO users (user_id, friendship_token) VALUES ($1, $2)`
	_, err := r.db.Pool.Exec(ctx, q, u.UserID, []byte(u.FriendshipToken))
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetUser selects a user by ID.
func (r *UserRepo) GetUser(ctx context.Context, id uuid.UUID) (*model.UserRecord, error) {
	const q = `SELECT user_id, friendship_token, created_at FROM users WHERE user_id=$1`
	var (
		u   model.UserRecord
		tok []byte
	)
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&u.UserID, &tok, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	u.FriendshipToken = model.FriendshipToken(tok)
	return &u, nil
}

// UserIDByFriendshipToken resolves a friendship token to a user ID.
func (r *UserRepo) UserIDByFriendshipToken(ctx context.Context, token model.FriendshipToken) (uuid.UUID, error) {
	const q = `SELECT user_id FROM users WHERE friendship_token=$1`
	var id uuid.UUID
	if err := r.db.Pool.QueryRow(ctx, q, []byte(token)).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, errs.ErrNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}

// ClientIDs lists client IDs of a user in a stable order.
func (r *UserRepo) ClientIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT client_id FROM client_records WHERE user_id=$1 ORDER BY client_id`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
