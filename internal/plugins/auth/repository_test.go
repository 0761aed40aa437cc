package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewUserRepository(db), mock
}

func TestMariaRepository_FindByUsername(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT id, username, hash FROM users WHERE username = ?`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "hash"}).AddRow(1, "alice", "h1"))

	user, err := repo.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, &User{ID: 1, Username: "alice", PasswordHash: "h1"}, user)
}

func TestMariaRepository_FindByUsernameMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT id, username, hash FROM users WHERE username = ?`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "hash"}))

	_, err := repo.FindByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMariaRepository_FindByIDError(t *testing.T) {
	repo, mock := newMockRepo(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery(`SELECT id, username, hash FROM users WHERE id = ?`).
		WithArgs(int64(4)).
		WillReturnError(boom)

	_, err := repo.FindByID(context.Background(), 4)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

func TestMariaRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`INSERT INTO users (username, hash) VALUES (?, ?)`).
		WithArgs("alice", "h1").
		WillReturnResult(sqlmock.NewResult(12, 1))

	id, err := repo.Create(context.Background(), "alice", "h1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
}

func TestMariaRepository_CreateDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`INSERT INTO users (username, hash) VALUES (?, ?)`).
		WithArgs("alice", "h1").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'alice' for key 'uq_users_username'"})

	_, err := repo.Create(context.Background(), "alice", "h1")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestMariaRepository_CreateOtherMySQLError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`INSERT INTO users (username, hash) VALUES (?, ?)`).
		WithArgs("alice", "h1").
		WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table 'keystone.users' doesn't exist"})

	_, err := repo.Create(context.Background(), "alice", "h1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateUsername)
}

func TestMariaRepository_UpdatePasswordHash(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`UPDATE users SET hash = ? WHERE id = ?`).
		WithArgs("h2", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.UpdatePasswordHash(context.Background(), 1, "h2"))
}

func TestMariaRepository_UpdatePasswordHashUnchangedRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`UPDATE users SET hash = ? WHERE id = ?`).
		WithArgs("h1", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id, username, hash FROM users WHERE id = ?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "hash"}).AddRow(1, "alice", "h1"))

	assert.NoError(t, repo.UpdatePasswordHash(context.Background(), 1, "h1"))
}

func TestMariaRepository_UpdatePasswordHashMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`UPDATE users SET hash = ? WHERE id = ?`).
		WithArgs("h2", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id, username, hash FROM users WHERE id = ?`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "hash"}))

	assert.ErrorIs(t, repo.UpdatePasswordHash(context.Background(), 9, "h2"), ErrUserNotFound)
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	id, err := repo.Create(ctx, "alice", "h1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = repo.Create(ctx, "alice", "h2")
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = repo.FindByUsername(ctx, "Alice")
	assert.ErrorIs(t, err, ErrUserNotFound, "usernames match exactly")

	user, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	user.PasswordHash = "mutated"

	require.NoError(t, repo.UpdatePasswordHash(ctx, id, "h3"))
	got, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "h3", got.PasswordHash, "callers get copies, updates go through the repo")

	assert.ErrorIs(t, repo.UpdatePasswordHash(ctx, 99, "h"), ErrUserNotFound)
}
