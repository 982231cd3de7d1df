package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/inkwell/internal/apperrors"
	"github.com/MarcoPoloResearchLab/inkwell/internal/auth"
	"github.com/MarcoPoloResearchLab/inkwell/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type profileRequestPayload struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "inkwell api is running",
		"version": h.version,
	})
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request users.Credentials
	if !h.bindJSON(c, &request) {
		return
	}
	account, err := h.usersService.Register(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondWithSession(c, http.StatusCreated, account)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request users.LoginAttempt
	if !h.bindJSON(c, &request) {
		return
	}
	account, err := h.usersService.Authenticate(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondWithSession(c, http.StatusOK, account)
}

func (h *httpHandler) handleAdminLogin(c *gin.Context) {
	var request users.LoginAttempt
	if !h.bindJSON(c, &request) {
		return
	}
	account, err := h.usersService.AuthenticateAdmin(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondWithSession(c, http.StatusOK, account)
}

func (h *httpHandler) respondWithSession(c *gin.Context, status int, account users.User) {
	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), auth.Principal{
		UserID:         account.UserID,
		Username:       account.Username,
		Role:           string(account.Role),
		SessionVersion: account.SessionVersion,
	})
	if err != nil {
		h.logger.Error("failed to issue session token", zap.String("user_id", account.UserID), zap.Error(err))
		h.respondError(c, apperrors.New(opIssueSession, reasonTokenIssueFailed, err))
		return
	}
	c.JSON(status, authResponsePayload{
		User:      newUserPayload(account),
		Token:     token,
		TokenType: tokenTypeBearer,
		ExpiresIn: expiresIn,
	})
}

// handleLogout revokes every session of the caller, the presented one included.
func (h *httpHandler) handleLogout(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	if err := h.usersService.RevokeSessions(c.Request.Context(), userID.String()); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCurrentUser(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	account, err := h.usersService.GetUser(c.Request.Context(), userID.String())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserPayload(account))
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	var request profileRequestPayload
	if !h.bindJSON(c, &request) {
		return
	}
	account, err := h.usersService.UpdateProfile(c.Request.Context(), userID.String(), users.ProfileUpdate{
		Username: request.Username,
		Password: request.Password,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserPayload(account))
}
