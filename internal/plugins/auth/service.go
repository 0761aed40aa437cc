package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/keyxmakerx/keystone/internal/apperror"
)

// AuthService handles authentication business logic. Validation failures
// come back as apperror validation errors carrying the exact message the
// form should flash; anything else is an internal error.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*User, error)
	Login(ctx context.Context, input LoginInput) (*User, error)
	ChangePassword(ctx context.Context, userID int64, input ChangePasswordInput) error
	CurrentUser(ctx context.Context, userID int64) (*User, error)
}

// EventRecorder receives one call per auth attempt. action is "register",
// "login", or "change_password"; outcome is "success", "rejected", or "error".
type EventRecorder interface {
	RecordAuthEvent(action, outcome string)
}

// NopRecorder discards auth events.
type NopRecorder struct{}

// RecordAuthEvent implements EventRecorder.
func (NopRecorder) RecordAuthEvent(string, string) {}

// Auth event outcome labels.
const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// authService implements AuthService.
type authService struct {
	repo     UserRepository
	hasher   PasswordHasher
	recorder EventRecorder

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new auth service. recorder may be nil.
func NewAuthService(repo UserRepository, hasher PasswordHasher, recorder EventRecorder) AuthService {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &authService{
		repo:     repo,
		hasher:   hasher,
		recorder: recorder,
	}
}

// Register creates a new account. Checks run in a fixed order and the first
// failure wins. It does not log the new user in.
func (s *authService) Register(ctx context.Context, input RegisterInput) (*User, error) {
	user, err := s.register(ctx, input)
	s.record("register", err)
	return user, err
}

func (s *authService) register(ctx context.Context, input RegisterInput) (*User, error) {
	switch {
	case input.Username == "":
		return nil, apperror.NewValidation(msgProvideUsername)
	case input.Password == "":
		return nil, apperror.NewValidation(msgProvidePassword)
	case input.Confirmation == "":
		return nil, apperror.NewValidation(msgConfirmPassword)
	}

	_, err := s.repo.FindByUsername(ctx, input.Username)
	if err == nil {
		return nil, apperror.NewValidation(msgUsernameTaken)
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, apperror.NewInternal(fmt.Errorf("checking username: %w", err))
	}

	if input.Password != input.Confirmation {
		return nil, apperror.NewValidation(msgPasswordsMustMatch)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	id, err := s.repo.Create(ctx, input.Username, hash)
	if errors.Is(err, ErrDuplicateUsername) {
		// Lost a race with a concurrent registration of the same name.
		return nil, apperror.NewValidation(msgUsernameTaken)
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user registered",
		slog.Int64("user_id", id),
		slog.String("username", input.Username),
	)

	return &User{ID: id, Username: input.Username, PasswordHash: hash}, nil
}

// Login authenticates a user by username and password. An unknown username
// and a wrong password produce the same message.
func (s *authService) Login(ctx context.Context, input LoginInput) (*User, error) {
	user, err := s.login(ctx, input)
	s.record("login", err)
	return user, err
}

func (s *authService) login(ctx context.Context, input LoginInput) (*User, error) {
	switch {
	case input.Username == "":
		return nil, apperror.NewValidation(msgProvideUsername)
	case input.Password == "":
		return nil, apperror.NewValidation(msgProvidePassword)
	}

	user, err := s.repo.FindByUsername(ctx, input.Username)
	if errors.Is(err, ErrUserNotFound) {
		// Burn the same hashing time as a real check.
		_, _ = s.hasher.Verify(input.Password, s.dummy())
		return nil, apperror.NewValidation(msgInvalidCredentials)
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	ok, err := s.hasher.Verify(input.Password, user.PasswordHash)
	if err != nil {
		slog.Warn("stored password hash is unreadable",
			slog.Int64("user_id", user.ID),
			slog.Any("error", err),
		)
	}
	if !ok {
		return nil, apperror.NewValidation(msgInvalidCredentials)
	}

	s.upgradeHash(ctx, user, input.Password)

	slog.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// upgradeHash re-hashes a verified password stored in an older scheme.
// Failure is logged and the login still succeeds.
func (s *authService) upgradeHash(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.repo.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		slog.Warn("failed to upgrade password hash",
			slog.Int64("user_id", user.ID),
			slog.Any("error", err),
		)
		return
	}
	user.PasswordHash = hash
	slog.Info("upgraded password hash", slog.Int64("user_id", user.ID))
}

// ChangePassword replaces the password of an authenticated user after
// checking the old one.
func (s *authService) ChangePassword(ctx context.Context, userID int64, input ChangePasswordInput) error {
	err := s.changePassword(ctx, userID, input)
	s.record("change_password", err)
	return err
}

func (s *authService) changePassword(ctx context.Context, userID int64, input ChangePasswordInput) error {
	switch {
	case input.OldPassword == "":
		return apperror.NewValidation(msgProvideOldPassword)
	case input.NewPassword == "":
		return apperror.NewValidation(msgProvideNewPassword)
	case input.Confirmation == "":
		return apperror.NewValidation(msgConfirmNewPassword)
	case input.NewPassword != input.Confirmation:
		return apperror.NewValidation(msgPasswordsMustMatch)
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		// The guard only lets sessions with a user id through, so a missing
		// row here means the account vanished underneath the session.
		return apperror.NewInternal(fmt.Errorf("finding user %d: %w", userID, err))
	}

	ok, err := s.hasher.Verify(input.OldPassword, user.PasswordHash)
	if err != nil {
		slog.Warn("stored password hash is unreadable",
			slog.Int64("user_id", user.ID),
			slog.Any("error", err),
		)
	}
	if !ok {
		return apperror.NewValidation(msgIncorrectOldPassword)
	}

	hash, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}
	if err := s.repo.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return apperror.NewInternal(fmt.Errorf("updating password: %w", err))
	}

	slog.Info("password changed", slog.Int64("user_id", user.ID))
	return nil
}

// CurrentUser loads the user a session points at.
func (s *authService) CurrentUser(ctx context.Context, userID int64) (*User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding user %d: %w", userID, err))
	}
	return user, nil
}

// dummy returns a hash in the current scheme used to keep unknown-user
// logins as slow as real ones.
func (s *authService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("keystone-timing-equalizer")
		if err != nil {
			slog.Error("failed to prepare dummy hash", slog.Any("error", err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *authService) record(action string, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeError
		if _, ok := apperror.ValidationMessage(err); ok {
			outcome = outcomeRejected
		}
	}
	s.recorder.RecordAuthEvent(action, outcome)
}
