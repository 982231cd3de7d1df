package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleCreateShare(c *gin.Context) {
	userID, noteID, ok := h.noteRequest(c)
	if !ok {
		return
	}
	outcome, err := h.notesService.CreateShare(c.Request.Context(), userID, noteID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	status := http.StatusOK
	if outcome.Created {
		status = http.StatusCreated
	}
	c.JSON(status, sharePayload{
		NoteID:     outcome.Share.NoteID,
		ShareToken: outcome.Share.ShareToken,
		Created:    outcome.Created,
	})
}

func (h *httpHandler) handleDeleteShare(c *gin.Context) {
	userID, noteID, ok := h.noteRequest(c)
	if !ok {
		return
	}
	if err := h.notesService.DeleteShare(c.Request.Context(), userID, noteID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleGetSharedNote(c *gin.Context) {
	view, err := h.notesService.GetSharedNote(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSharedNotePayload(view))
}

func (h *httpHandler) handleImportShare(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	note, err := h.notesService.ImportShare(c.Request.Context(), userID, c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newNotePayload(note))
}
