// Package auth handles user registration, login, logout, and password change
// for Keystone. Credentials live in the users table; the authenticated user
// id lives in the server-side session (see internal/session).
package auth

import "errors"

// User represents a registered user. The username is immutable and stored
// exactly as submitted; PasswordHash is never the plaintext password.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // Never expose in JSON responses.
}

// Repository sentinel errors. Services translate these into apperror types.
var (
	// ErrUserNotFound is returned when no user matches a lookup or update.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateUsername is returned by Create when the username is taken.
	// It is enforced by the store itself, not by a prior read.
	ErrDuplicateUsername = errors.New("username already exists")
)

// --- Request DTOs (bound from HTTP forms) ---

// RegisterRequest holds the data submitted by the registration form.
type RegisterRequest struct {
	Username     string `form:"username"`
	Password     string `form:"password"`
	Confirmation string `form:"confirmation"`
}

// LoginRequest holds the data submitted by the login form.
type LoginRequest struct {
	Username string `form:"username"`
	Password string `form:"password"`
}

// ChangePasswordRequest holds the data submitted by the change-password form.
type ChangePasswordRequest struct {
	OldPassword  string `form:"old_password"`
	NewPassword  string `form:"new_password"`
	Confirmation string `form:"confirmation"`
}

// --- Service Input DTOs (passed from handler to service) ---

// RegisterInput is the input for creating a new user.
type RegisterInput struct {
	Username     string
	Password     string
	Confirmation string
}

// LoginInput is the input for authenticating a user.
type LoginInput struct {
	Username string
	Password string
}

// ChangePasswordInput is the input for replacing the current user's password.
type ChangePasswordInput struct {
	OldPassword  string
	NewPassword  string
	Confirmation string
}

// User-facing validation messages. Each form attempt shows at most one.
const (
	msgProvideUsername      = "Please provide a username."
	msgProvidePassword      = "Please provide a password."
	msgConfirmPassword      = "Please confirm your password."
	msgUsernameTaken        = "Username is already in use."
	msgPasswordsMustMatch   = "Passwords need to match."
	msgInvalidCredentials   = "Invalid username and/or password."
	msgProvideOldPassword   = "Please provide your old password."
	msgProvideNewPassword   = "Please provide a new password."
	msgConfirmNewPassword   = "Please confirm your new password."
	msgIncorrectOldPassword = "Incorrect old password."
)
