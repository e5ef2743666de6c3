package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"projectflow/internal/service"
)

// AuthHandler expone registro, login y el ciclo de vida del refresh token.
type AuthHandler struct {
	logger *zap.Logger
	auth   *service.AuthService
}

func NewAuthHandler(logger *zap.Logger, auth *service.AuthService) *AuthHandler {
	useJSONFieldNames()
	return &AuthHandler{logger: logger, auth: auth}
}

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email     string `json:"email" binding:"required"`
		Password  string `json:"password" binding:"required"`
		FirstName string `json:"firstName" binding:"required,max=100"`
		LastName  string `json:"lastName" binding:"required,max=100"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	_, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusCreated, nil, "Registration successful. Please check your email for verification.")
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, res, "Login successful")
}

// RefreshToken maneja POST /auth/refresh-token.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	identity, ok := GetIdentity(c)
	if !ok {
		respondError(c, h.logger, service.ErrNoTokenProvided)
		return
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	tokens, err := h.auth.Refresh(c.Request.Context(), identity, req.RefreshToken)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"tokens": tokens}, "Token refreshed")
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	identity, ok := GetIdentity(c)
	if !ok {
		respondError(c, h.logger, service.ErrNoTokenProvided)
		return
	}
	if err := h.auth.Logout(c.Request.Context(), identity.UserID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, nil, "Logged out successfully")
}
