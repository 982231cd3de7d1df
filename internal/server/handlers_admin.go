package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/inkwell/internal/users"
	"github.com/gin-gonic/gin"
)

type passwordRequestPayload struct {
	Password string `json:"password"`
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	summaries, err := h.usersService.ListUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]adminUserPayload, 0, len(summaries))
	for _, summary := range summaries {
		payload = append(payload, newAdminUserPayload(summary))
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleAdminCreateUser(c *gin.Context) {
	var request users.Credentials
	if !h.bindJSON(c, &request) {
		return
	}
	account, err := h.usersService.CreateUser(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newAdminUserPayload(users.Summary{User: account}))
}

func (h *httpHandler) handleAdminUpdatePassword(c *gin.Context) {
	var request passwordRequestPayload
	if !h.bindJSON(c, &request) {
		return
	}
	if err := h.usersService.UpdatePassword(c.Request.Context(), strings.TrimSpace(c.Param("id")), request.Password); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleAdminDeleteUser(c *gin.Context) {
	if err := h.usersService.DeleteUser(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
