package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/go-sql-driver/mysql"
)

// UserRepository defines the data access contract for the users table.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type UserRepository interface {
	// FindByUsername returns the user with exactly this username, or
	// ErrUserNotFound.
	FindByUsername(ctx context.Context, username string) (*User, error)

	// FindByID returns the user with this id, or ErrUserNotFound.
	FindByID(ctx context.Context, id int64) (*User, error)

	// Create inserts a user and returns its server-assigned id. It returns
	// ErrDuplicateUsername if the username is already stored, including
	// when a concurrent Create won the race.
	Create(ctx context.Context, username, passwordHash string) (int64, error)

	// UpdatePasswordHash replaces the stored hash, or returns ErrUserNotFound.
	UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error
}

// erDupEntry is the MySQL/MariaDB error number for a unique key violation.
const erDupEntry = 1062

// mariaRepository implements UserRepository with hand-written MariaDB queries.
type mariaRepository struct {
	db *sql.DB
}

// NewUserRepository creates a user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &mariaRepository{db: db}
}

// FindByUsername retrieves a user by username. The column uses a binary
// collation, so the match is exact and case-sensitive.
func (r *mariaRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT id, username, hash FROM users WHERE username = ?`

	user := &User{}
	err := r.db.QueryRowContext(ctx, query, username).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by username: %w", err)
	}
	return user, nil
}

// FindByID retrieves a user by id.
func (r *mariaRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT id, username, hash FROM users WHERE id = ?`

	user := &User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return user, nil
}

// Create inserts a new user row. Uniqueness is decided by the
// uq_users_username index inside the INSERT itself.
func (r *mariaRepository) Create(ctx context.Context, username, passwordHash string) (int64, error) {
	query := `INSERT INTO users (username, hash) VALUES (?, ?)`

	result, err := r.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		if isDuplicateEntry(err) {
			return 0, ErrDuplicateUsername
		}
		return 0, fmt.Errorf("inserting user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted user id: %w", err)
	}
	return id, nil
}

// UpdatePasswordHash sets a new password hash for a user.
func (r *mariaRepository) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	query := `UPDATE users SET hash = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, passwordHash, id)
	if err != nil {
		return fmt.Errorf("updating password hash: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		// MariaDB reports 0 affected rows when the new value equals the old
		// one, so confirm the row is really gone before calling it missing.
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// isDuplicateEntry reports whether err is a unique key violation.
func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == erDupEntry
}

// memoryRepository is an in-process UserRepository used for DB_DRIVER=memory
// and in tests. A single mutex makes check-and-insert atomic.
type memoryRepository struct {
	mu     sync.RWMutex
	byID   map[int64]*User
	byName map[string]int64
	nextID int64
}

// NewMemoryUserRepository creates an empty in-process user repository.
func NewMemoryUserRepository() UserRepository {
	return &memoryRepository{
		byID:   make(map[int64]*User),
		byName: make(map[string]int64),
	}
}

func (r *memoryRepository) FindByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *r.byID[id]
	return &u, nil
}

func (r *memoryRepository) FindByID(_ context.Context, id int64) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *user
	return &u, nil
}

func (r *memoryRepository) Create(_ context.Context, username, passwordHash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byName[username]; taken {
		return 0, ErrDuplicateUsername
	}
	r.nextID++
	r.byID[r.nextID] = &User{ID: r.nextID, Username: username, PasswordHash: passwordHash}
	r.byName[username] = r.nextID
	return r.nextID, nil
}

func (r *memoryRepository) UpdatePasswordHash(_ context.Context, id int64, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}
