package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"resetd/internal/middleware"
	"resetd/internal/models"
	"resetd/internal/reset"
	"resetd/internal/security"
)

// @Tags Account
// @Summary Current account
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.MeResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, email, ok := middleware.Subject(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized.")
		return
	}
	writeJSON(w, http.StatusOK, models.MeResponse{ID: id, Email: email})
}

// @Tags Account
// @Summary Change password
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body models.ChangePasswordRequest true "Change password request"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /auth/me/password [put]
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	_, email, ok := middleware.Subject(r.Context())
	if !ok || email == "" {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized.")
		return
	}

	var req models.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if err := h.v.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if passwordTooLong(req.NewPassword) {
		writeJSONError(w, http.StatusBadRequest, "new_password must be at most 72 bytes.")
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), email, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, reset.ErrInvalidCredentials) {
			writeJSONError(w, http.StatusUnauthorized, "Current password is incorrect.")
			return
		}
		if errors.Is(err, security.ErrPasswordTooLong) {
			writeJSONError(w, http.StatusBadRequest, "new_password must be at most 72 bytes.")
			return
		}
		h.logger(r).Error().Err(err).Msg("change password failed")
		writeJSONError(w, http.StatusInternalServerError, "Failed to change password.")
		return
	}

	writeJSONMessage(w, http.StatusOK, "Password updated.")
}
