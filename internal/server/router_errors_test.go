package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/inkwell/internal/apperrors"
	"github.com/MarcoPoloResearchLab/inkwell/internal/notes"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func TestRespondErrorMapsKindsToStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	testCases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{name: "unauthorized", err: apperrors.Wrap(apperrors.ErrUnauthorized, "bad login"), status: http.StatusUnauthorized, kind: "unauthorized"},
		{name: "forbidden", err: apperrors.Wrap(apperrors.ErrForbidden, "nope"), status: http.StatusForbidden, kind: "forbidden"},
		{name: "not found", err: apperrors.Wrap(apperrors.ErrNotFound, "missing"), status: http.StatusNotFound, kind: "not_found"},
		{name: "conflict", err: apperrors.Wrap(apperrors.ErrConflict, "taken"), status: http.StatusConflict, kind: "conflict"},
		{name: "invalid input", err: apperrors.Wrap(apperrors.ErrInvalidInput, "bad"), status: http.StatusUnprocessableEntity, kind: "invalid_input"},
		{name: "invalid operation", err: apperrors.Wrap(apperrors.ErrInvalidOperation, "last page"), status: http.StatusBadRequest, kind: "invalid_operation"},
		{name: "internal", err: errors.New("disk on fire"), status: http.StatusInternalServerError, kind: "internal_error"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			ctx, _ := gin.CreateTestContext(recorder)
			handler := &httpHandler{logger: zap.NewNop()}

			handler.respondError(ctx, testCase.err)

			if recorder.Code != testCase.status {
				t.Fatalf("expected status %d, got %d", testCase.status, recorder.Code)
			}
			var payload map[string]string
			if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if payload["error"] != testCase.kind {
				t.Fatalf("expected kind %q, got %q", testCase.kind, payload["error"])
			}
			_, hasMessage := payload["message"]
			if testCase.status == http.StatusInternalServerError && hasMessage {
				t.Fatalf("internal errors must not expose details: %v", payload)
			}
			if testCase.status != http.StatusInternalServerError && !hasMessage {
				t.Fatalf("expected a message for %s", testCase.name)
			}
		})
	}
}

func TestHandleListNotesReportsServiceErrorCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Set(userIDContextKey, "user-1")
	ctx.Request = httptest.NewRequest(http.MethodGet, "/notes", http.NoBody)

	handler := &httpHandler{
		notesService: &notes.Service{},
		logger:       zap.NewNop(),
	}

	handler.handleListNotes(ctx)

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected internal server error, got %d", recorder.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["code"] != "notes.list_notes.missing_database" {
		t.Fatalf("unexpected error code %q", payload["code"])
	}
}

func TestHandleCreateNoteRejectsUnknownBlockType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Set(userIDContextKey, "user-1")

	body := `{"title":"t","blocks":[[{"type":"image","content":"x"}]]}`
	request := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	ctx.Request = request

	handler := &httpHandler{
		notesService: &notes.Service{},
		logger:       zap.NewNop(),
	}

	handler.handleCreateNote(ctx)

	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"code":"request.invalid_json"`) {
		t.Fatalf("unexpected body %s", recorder.Body.String())
	}
}

func TestHandleDeletePageRejectsNonNumericIndex(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Set(userIDContextKey, "user-1")
	ctx.Request = httptest.NewRequest(http.MethodDelete, "/notes/note-1/pages/first", http.NoBody)
	ctx.Params = gin.Params{{Key: "id", Value: "note-1"}, {Key: "page", Value: "first"}}

	handler := &httpHandler{
		notesService: &notes.Service{},
		logger:       zap.NewNop(),
	}

	handler.handleDeletePage(ctx)

	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"code":"request.invalid_index"`) {
		t.Fatalf("unexpected body %s", recorder.Body.String())
	}
}

func TestHandleSetCommentRejectsMalformedKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Set(userIDContextKey, "user-1")
	ctx.Request = httptest.NewRequest(http.MethodPut, "/notes/note-1/comments/0-0", strings.NewReader(`{"color":"#fff"}`))
	ctx.Params = gin.Params{{Key: "id", Value: "note-1"}, {Key: "key", Value: "0-0"}}

	handler := &httpHandler{
		notesService: &notes.Service{},
		logger:       zap.NewNop(),
	}

	handler.handleSetComment(ctx)

	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"code":"request.invalid_word_key"`) {
		t.Fatalf("unexpected body %s", recorder.Body.String())
	}
}
