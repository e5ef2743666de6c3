package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"projectflow/internal/domain"
	"projectflow/internal/service"
)

const resetRequestedMessage = "If an account exists with this email, a password reset link will be sent."

// UserHandler mantiene dependencias para endpoints de usuarios.
type UserHandler struct {
	logger *zap.Logger
	auth   *service.AuthService
}

// NewUserHandler crea una instancia de UserHandler con dependencias necesarias.
func NewUserHandler(logger *zap.Logger, auth *service.AuthService) *UserHandler {
	useJSONFieldNames()
	return &UserHandler{logger: logger, auth: auth}
}

// RequestPasswordReset maneja POST /users/password-reset.
func (h *UserHandler) RequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.auth.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, nil, resetRequestedMessage)
}

// ConfirmPasswordReset maneja POST /users/password-reset/confirm.
func (h *UserHandler) ConfirmPasswordReset(c *gin.Context) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.auth.ConfirmPasswordReset(c.Request.Context(), req.Token, req.Password); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, nil, "Password reset successful")
}

// ChangePassword maneja PUT /users/me/password.
func (h *UserHandler) ChangePassword(c *gin.Context) {
	identity, ok := GetIdentity(c)
	if !ok {
		respondError(c, h.logger, service.ErrNoTokenProvided)
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword" binding:"required"`
		NewPassword     string `json:"newPassword" binding:"required"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.auth.ChangePassword(c.Request.Context(), identity.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, nil, "Password updated successfully")
}

// Deactivate maneja POST /users/me/deactivate.
func (h *UserHandler) Deactivate(c *gin.Context) {
	identity, ok := GetIdentity(c)
	if !ok {
		respondError(c, h.logger, service.ErrNoTokenProvided)
		return
	}
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.auth.DeactivateAccount(c.Request.Context(), identity.UserID, req.Password); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, nil, "Account deactivated successfully")
}

// GetProfile maneja GET /users/me.
func (h *UserHandler) GetProfile(c *gin.Context) {
	identity, ok := GetIdentity(c)
	if !ok {
		respondError(c, h.logger, service.ErrNoTokenProvided)
		return
	}
	user, err := h.auth.Profile(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, user, "")
}

// UpdateProfile maneja PUT /users/me.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	identity, ok := GetIdentity(c)
	if !ok {
		respondError(c, h.logger, service.ErrNoTokenProvided)
		return
	}
	var req struct {
		FirstName *string `json:"firstName" binding:"omitempty,max=100"`
		LastName  *string `json:"lastName" binding:"omitempty,max=100"`
		Phone     *string `json:"phone" binding:"omitempty,max=32"`
		Timezone  *string `json:"timezone" binding:"omitempty,max=64"`
		Language  *string `json:"language" binding:"omitempty,max=16"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	user, err := h.auth.UpdateProfile(c.Request.Context(), identity.UserID, domain.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Timezone:  req.Timezone,
		Language:  req.Language,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, user, "Profile updated successfully")
}
