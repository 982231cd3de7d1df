package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/inkwell/internal/notes"
	"github.com/gin-gonic/gin"
)

type createNoteRequestPayload struct {
	Title    string         `json:"title"`
	Blocks   notes.Pages    `json:"blocks"`
	Comments notes.Comments `json:"comments"`
	Date     string         `json:"date"`
}

// updateNoteRequestPayload is a partial update; content is derived and ignored.
type updateNoteRequestPayload struct {
	Title    *string         `json:"title"`
	Blocks   *notes.Pages    `json:"blocks"`
	Comments *notes.Comments `json:"comments"`
}

// insertQuoteRequestPayload places a quote at the last known cursor. The
// position is used only when page, block and cursor are all present.
type insertQuoteRequestPayload struct {
	PageIndex   *int   `json:"page_index"`
	BlockIndex  *int   `json:"block_index"`
	CursorPos   *int   `json:"cursor_pos"`
	FocusedPage int    `json:"focused_page"`
	Content     string `json:"content"`
	Color       string `json:"color"`
}

type editQuoteRequestPayload struct {
	Content string `json:"content"`
	Color   string `json:"color"`
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	list, err := h.notesService.ListNotes(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNoteListPayload(list))
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	var request createNoteRequestPayload
	if !h.bindJSON(c, &request) {
		return
	}
	note, err := h.notesService.CreateNote(c.Request.Context(), userID, notes.NoteDraft{
		Title:    request.Title,
		Pages:    request.Blocks,
		Comments: request.Comments,
		Date:     request.Date,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newNotePayload(note))
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	userID, noteID, ok := h.noteRequest(c)
	if !ok {
		return
	}
	note, err := h.notesService.GetNote(c.Request.Context(), userID, noteID)
	h.respondWithNote(c, note, err)
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	userID, noteID, ok := h.noteRequest(c)
	if !ok {
		return
	}
	var request updateNoteRequestPayload
	if !h.bindJSON(c, &request) {
		return
	}
	note, err := h.notesService.UpdateNote(c.Request.Context(), userID, noteID, notes.NotePatch{
		Title:    request.Title,
		Pages:    request.Blocks,
		Comments: request.Comments,
	})
	h.respondWithNote(c, note, err)
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	userID, noteID, ok := h.noteRequest(c)
	if !ok {
		return
	}
	if err := h.notesService.DeleteNote(c.Request.Context(), userID, noteID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleNoteWords(c *gin.Context) {
	userID, noteID, ok := h.noteRequest(c)
	if !ok {
		return
	}
	annotated, err := h.notesService.AnnotateNote(c.Request.Context(), userID, noteID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNoteWordsPayload(annotated))
}

func (h *httpHandler) handleAddPage(c *gin.Context) {
	userID, noteID, ok := h.noteRequest(c)
	if !ok {
		return
	}
	note, err := h.notesService.AddPage(c.Request.Context(), userID, noteID)
	h.respondWithNote(c, note, err)
}

func (h *httpHandler) handleDeletePage(c *gin.Context) {
	userID, noteID, ok := h.noteRequest(c)
	if !ok {
		return
	}
	pageIndex, ok := h.indexParam(c, "page")
	if !ok {
		return
	}
	note, err := h.notesService.DeletePage(c.Request.Context(), userID, noteID, pageIndex)
	h.respondWithNote(c, note, err)
}

func (h *httpHandler) handleInsertQuote(c *gin.Context) {
	userID, noteID, ok := h.noteRequest(c)
	if !ok {
		return
	}
	var request insertQuoteRequestPayload
	if !h.bindJSON(c, &request) {
		return
	}
	insertion := notes.QuoteInsertion{
		FocusedPage: request.FocusedPage,
		Content:     request.Content,
		Color:       request.Color,
	}
	if request.PageIndex != nil && request.BlockIndex != nil && request.CursorPos != nil {
		insertion.Position = &notes.InsertPosition{
			Page:   *request.PageIndex,
			Block:  *request.BlockIndex,
			Cursor: *request.CursorPos,
		}
	}
	note, err := h.notesService.InsertQuote(c.Request.Context(), userID, noteID, insertion)
	h.respondWithNote(c, note, err)
}

func (h *httpHandler) handleEditQuote(c *gin.Context) {
	userID, noteID, ok := h.noteRequest(c)
	if !ok {
		return
	}
	pageIndex, ok := h.indexParam(c, "page")
	if !ok {
		return
	}
	blockIndex, ok := h.indexParam(c, "block")
	if !ok {
		return
	}
	var request editQuoteRequestPayload
	if !h.bindJSON(c, &request) {
		return
	}
	note, err := h.notesService.EditQuote(c.Request.Context(), userID, noteID, pageIndex, blockIndex, request.Content, request.Color)
	h.respondWithNote(c, note, err)
}

func (h *httpHandler) handleDeleteQuote(c *gin.Context) {
	userID, noteID, ok := h.noteRequest(c)
	if !ok {
		return
	}
	pageIndex, ok := h.indexParam(c, "page")
	if !ok {
		return
	}
	blockIndex, ok := h.indexParam(c, "block")
	if !ok {
		return
	}
	note, err := h.notesService.DeleteQuote(c.Request.Context(), userID, noteID, pageIndex, blockIndex)
	h.respondWithNote(c, note, err)
}

func (h *httpHandler) handleSetComment(c *gin.Context) {
	userID, noteID, ok := h.noteRequest(c)
	if !ok {
		return
	}
	key, ok := h.wordKeyParam(c)
	if !ok {
		return
	}
	var request notes.Comment
	if !h.bindJSON(c, &request) {
		return
	}
	note, err := h.notesService.SetComment(c.Request.Context(), userID, noteID, key, request)
	h.respondWithNote(c, note, err)
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	userID, noteID, ok := h.noteRequest(c)
	if !ok {
		return
	}
	key, ok := h.wordKeyParam(c)
	if !ok {
		return
	}
	note, err := h.notesService.DeleteComment(c.Request.Context(), userID, noteID, key)
	h.respondWithNote(c, note, err)
}

func (h *httpHandler) wordKeyParam(c *gin.Context) (notes.WordKey, bool) {
	key, err := notes.ParseWordKey(c.Param("key"))
	if err != nil {
		h.respondError(c, invalidRequest(reasonInvalidWordKey, "%v", err))
		return notes.WordKey{}, false
	}
	return key, true
}

func (h *httpHandler) respondWithNote(c *gin.Context, note notes.Note, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNotePayload(note))
}
