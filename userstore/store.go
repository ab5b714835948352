package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vinovest/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/MrEthical07/authcore"
)

const userColumns = `id, email, username, name, password_hash, verified, provider, created_at`

type userRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Username     string    `db:"username"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	Verified     bool      `db:"verified"`
	Provider     string    `db:"provider"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r userRow) user() authcore.User {
	return authcore.User{
		ID:           r.ID,
		Email:        r.Email,
		Username:     r.Username,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
		Verified:     r.Verified,
		Provider:     r.Provider,
		CreatedAt:    r.CreatedAt,
	}
}

// Store implements authcore.UserStore on a sqlx database opened by [Open].
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ authcore.UserStore = (*Store)(nil)

func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) GetByUsername(ctx context.Context, username string) (authcore.User, error) {
	return s.getOne(ctx, "username = ?", username)
}

func (s *Store) GetByEmail(ctx context.Context, email string) (authcore.User, error) {
	return s.getOne(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) GetByID(ctx context.Context, userID string) (authcore.User, error) {
	return s.getOne(ctx, "id = ?", userID)
}

func (s *Store) getOne(ctx context.Context, where string, arg any) (authcore.User, error) {
	var row userRow
	query := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + where)
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authcore.User{}, authcore.ErrUserNotFound
		}
		return authcore.User{}, fmt.Errorf("db error: %w", err)
	}
	return row.user(), nil
}

// Create inserts user. A missing ID or CreatedAt is filled in. Duplicate
// emails or usernames return authcore.ErrUserExists.
func (s *Store) Create(ctx context.Context, user authcore.User) (authcore.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	query := s.db.Rebind(`INSERT INTO users
		(id, email, username, name, password_hash, verified, provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Username, user.Name, user.PasswordHash,
		user.Verified, user.Provider, user.CreatedAt, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.User{}, authcore.ErrUserExists
		}
		return authcore.User{}, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (s *Store) MarkVerified(ctx context.Context, userID string) error {
	return s.update(ctx, `verified = ?`, true, userID)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	return s.update(ctx, `password_hash = ?`, passwordHash, userID)
}

func (s *Store) update(ctx context.Context, set string, value any, userID string) error {
	query := s.db.Rebind(`UPDATE users SET ` + set + `, updated_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, value, s.now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
