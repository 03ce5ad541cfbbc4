package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"resetd/internal/config"
	"resetd/internal/interfaces"
	"resetd/internal/models"
	"resetd/internal/reset"
	"resetd/internal/security"
)

const (
	msgResetRequested = "If the email exists, a reset link was sent."
	msgResetDone      = "Password reset successful."

	errInvalidToken       = "Invalid or expired token."
	errPasswordPolicy     = "New password must be at least 8 characters."
	errPasswordTooLong    = "New password must be at most 72 bytes."
	errResetFailed        = "Failed to reset password."
	errInvalidCredentials = "Invalid credentials."
)

// AccountService is the account and reset-token logic behind the auth routes.
type AccountService interface {
	Register(ctx context.Context, email, password string) (*models.Account, error)
	Authenticate(ctx context.Context, email, password string) (*models.Account, error)
	IssueReset(ctx context.Context, email string) error
	RedeemReset(ctx context.Context, email, token, newPassword string) error
	ChangePassword(ctx context.Context, email, current, newPassword string) error
}

type AuthHandler struct {
	accounts AccountService
	cfg      *config.Config
	v        *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

func NewAuthHandler(accounts AccountService, cfg *config.Config, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		cfg:      cfg,
		v:        newValidator(),
		log:      log,
		now:      time.Now,
	}
}

func (h *AuthHandler) logger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.log
}

// @Tags Auth
// @Summary Create an account
// @Accept json
// @Produce json
// @Param body body models.SignupRequest true "Signup request"
// @Success 201 {object} models.SignupResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /auth/signup [post]
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if err := h.v.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if passwordTooLong(req.Password) {
		writeJSONError(w, http.StatusBadRequest, "password must be at most 72 bytes.")
		return
	}

	acct, err := h.accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, interfaces.ErrAccountExists) {
			writeJSONError(w, http.StatusConflict, "Account already exists.")
			return
		}
		if errors.Is(err, security.ErrPasswordTooLong) {
			writeJSONError(w, http.StatusBadRequest, "password must be at most 72 bytes.")
			return
		}
		h.logger(r).Error().Err(err).Msg("signup failed")
		writeJSONError(w, http.StatusInternalServerError, "Failed to create account.")
		return
	}

	writeJSON(w, http.StatusCreated, models.SignupResponse{
		ID:        acct.ID,
		Email:     acct.Email,
		CreatedAt: acct.CreatedAt,
	})
}

// @Tags Auth
// @Summary Log in
// @Accept json
// @Produce json
// @Param body body models.LoginRequest true "Login request"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if err := h.v.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	acct, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, reset.ErrInvalidCredentials) {
			writeJSONError(w, http.StatusUnauthorized, errInvalidCredentials)
			return
		}
		h.logger(r).Error().Err(err).Msg("login failed")
		writeJSONError(w, http.StatusInternalServerError, "Failed to login.")
		return
	}

	expiresIn := h.cfg.JWTExpiresInSeconds
	if expiresIn <= 0 {
		expiresIn = 86400
	}

	now := h.now().UTC()
	claims := jwt.MapClaims{
		"sub":   acct.ID,
		"email": acct.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Duration(expiresIn) * time.Second).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.cfg.JWTSecret))
	if err != nil {
		h.logger(r).Error().Err(err).Msg("sign access token")
		writeJSONError(w, http.StatusInternalServerError, "Failed to login.")
		return
	}

	writeJSON(w, http.StatusOK, models.LoginResponse{
		AccessToken: signed,
		ExpiresIn:   expiresIn,
		Email:       acct.Email,
	})
}

// ForgotPassword always answers with the same acknowledgment, whether or not
// the email belongs to an account.
//
// @Tags Auth
// @Summary Request a password reset link
// @Accept json
// @Produce json
// @Param body body models.ForgotPasswordRequest true "Forgot password request"
// @Success 200 {object} models.MessageResponse
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Email != "" {
		if err := h.accounts.IssueReset(r.Context(), req.Email); err != nil {
			h.logger(r).Error().Err(err).Msg("issue reset failed")
		}
	}
	writeJSONMessage(w, http.StatusOK, msgResetRequested)
}

// @Tags Auth
// @Summary Reset a password with an emailed token
// @Accept json
// @Produce json
// @Param body body models.ResetPasswordRequest true "Reset password request"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, errInvalidToken)
		return
	}
	if err := h.v.Struct(req); err != nil {
		field, tag := failedField(err)
		switch {
		case field == "newPassword" && tag == "max":
			writeJSONError(w, http.StatusBadRequest, errPasswordTooLong)
		case field == "newPassword":
			writeJSONError(w, http.StatusBadRequest, errPasswordPolicy)
		default:
			writeJSONError(w, http.StatusBadRequest, errInvalidToken)
		}
		return
	}
	if passwordTooLong(req.NewPassword) {
		writeJSONError(w, http.StatusBadRequest, errPasswordTooLong)
		return
	}

	err := h.accounts.RedeemReset(r.Context(), req.Email, req.Token, req.NewPassword)
	switch {
	case err == nil:
		writeJSONMessage(w, http.StatusOK, msgResetDone)
	case errors.Is(err, reset.ErrInvalidOrExpired):
		writeJSONError(w, http.StatusBadRequest, errInvalidToken)
	case errors.Is(err, security.ErrPasswordTooLong):
		writeJSONError(w, http.StatusBadRequest, errPasswordTooLong)
	default:
		h.logger(r).Error().Err(err).Msg("redeem reset failed")
		writeJSONError(w, http.StatusInternalServerError, errResetFailed)
	}
}
