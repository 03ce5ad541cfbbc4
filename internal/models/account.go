package models

import (
	"strings"
	"time"
)

type Account struct {
	ID           string      `json:"id"`
	Email        string      `json:"email" validate:"required,email"`
	PasswordHash string      `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
	Reset        *ResetEntry `json:"-"`
}

// ResetEntry is the pending password reset for one account. Only the SHA-256
// digest of the issued token is kept.
type ResetEntry struct {
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at now.
func (e *ResetEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// NormalizeEmail returns the canonical account identifier for email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type SignupResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Email       string `json:"email"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required"`
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MeResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ResetNotice carries an issued reset token to the delivery channel.
type ResetNotice struct {
	Email     string    `json:"email"`
	Token     string    `json:"-"`
	Link      string    `json:"reset_url"`
	ExpiresAt time.Time `json:"expires_at"`
}
