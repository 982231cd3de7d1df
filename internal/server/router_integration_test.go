package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/auth"
	"github.com/MarcoPoloResearchLab/inkwell/internal/database"
	"github.com/MarcoPoloResearchLab/inkwell/internal/notes"
	"github.com/MarcoPoloResearchLab/inkwell/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	handler http.Handler
	users   *users.Service
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "inkwell.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("database handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	usersService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: notes.NewUUIDProvider(),
		Hasher:     hasher,
	})
	if err != nil {
		t.Fatalf("users service: %v", err)
	}
	tokens, err := notes.NewRandomTokenGenerator(notes.DefaultShareTokenLength)
	if err != nil {
		t.Fatalf("token generator: %v", err)
	}
	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:       db,
		IDProvider:     notes.NewUUIDProvider(),
		TokenGenerator: tokens,
		Directory:      usersService,
	})
	if err != nil {
		t.Fatalf("notes service: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("integration-secret"),
		Issuer:        "inkwell-api",
		Audience:      "inkwell-web",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager:   issuer,
		NotesService:   notesService,
		UsersService:   usersService,
		AllowedOrigins: []string{"*"},
		Version:        "test",
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return testServer{handler: handler, users: usersService}
}

func (s testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s testServer) expect(t *testing.T, method, path, token string, body any, status int, target any) {
	t.Helper()
	recorder := s.do(t, method, path, token, body)
	if recorder.Code != status {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, status, recorder.Code, recorder.Body.String())
	}
	if target != nil {
		if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}

func (s testServer) register(t *testing.T, username string) authResponsePayload {
	t.Helper()
	var session authResponsePayload
	s.expect(t, http.MethodPost, "/register", "", map[string]string{"username": username, "password": username + "-password"}, http.StatusCreated, &session)
	if session.Token == "" || session.TokenType != "Bearer" || session.User.Role != "user" {
		t.Fatalf("unexpected session %#v", session)
	}
	return session
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)
	var payload map[string]string
	server.expect(t, http.MethodGet, "/", "", nil, http.StatusOK, &payload)
	if payload["status"] != "ok" || payload["version"] != "test" {
		t.Fatalf("unexpected health payload %v", payload)
	}
}

func TestAccountEndpoints(t *testing.T) {
	server := newTestServer(t)
	alice := server.register(t, "alice")

	var failure map[string]string
	server.expect(t, http.MethodPost, "/register", "", map[string]string{"username": "alice", "password": "another-password"}, http.StatusConflict, &failure)
	if failure["error"] != "conflict" {
		t.Fatalf("unexpected failure %v", failure)
	}
	server.expect(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "wrong"}, http.StatusUnauthorized, nil)

	var login authResponsePayload
	server.expect(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "alice-password"}, http.StatusOK, &login)
	if login.User.ID != alice.User.ID {
		t.Fatalf("login resolved the wrong account")
	}

	var current userPayload
	server.expect(t, http.MethodGet, "/user", login.Token, nil, http.StatusOK, &current)
	if current.Username != "alice" {
		t.Fatalf("unexpected current user %#v", current)
	}

	var renamed userPayload
	server.expect(t, http.MethodPut, "/profile", login.Token, map[string]string{"username": "alicia"}, http.StatusOK, &renamed)
	if renamed.Username != "alicia" {
		t.Fatalf("unexpected profile %#v", renamed)
	}
	server.expect(t, http.MethodPut, "/profile", login.Token, map[string]string{}, http.StatusUnprocessableEntity, nil)
	server.expect(t, http.MethodGet, "/user", "", nil, http.StatusUnauthorized, nil)
}

func TestNoteEditingEndpoints(t *testing.T) {
	server := newTestServer(t)
	token := server.register(t, "alice").Token

	server.expect(t, http.MethodPost, "/notes", "", map[string]any{"title": "x"}, http.StatusUnauthorized, nil)

	var created notePayload
	server.expect(t, http.MethodPost, "/notes", token, map[string]any{
		"title":   "Test",
		"content": "ignored",
		"blocks":  [][]map[string]string{{{"type": "text", "content": "Hello world"}}},
	}, http.StatusCreated, &created)
	if created.Content != "Hello world" || created.Date == "" || created.Comments == nil {
		t.Fatalf("unexpected created note %#v", created)
	}
	notePath := "/notes/" + created.ID

	var quoted notePayload
	server.expect(t, http.MethodPost, notePath+"/quotes", token, map[string]any{
		"page_index":   0,
		"block_index":  0,
		"cursor_pos":   5,
		"focused_page": 0,
		"content":      "Q",
		"color":        "#ff0000",
	}, http.StatusOK, &quoted)
	if len(quoted.Blocks[0]) != 3 || !quoted.Blocks[0][1].IsQuote() || quoted.Blocks[0][0].Content != "Hello" {
		t.Fatalf("unexpected blocks after quote insertion %#v", quoted.Blocks)
	}

	var recolored notePayload
	server.expect(t, http.MethodPut, notePath+"/pages/0/blocks/1/quote", token, map[string]string{"content": "Q2", "color": "#00ff00"}, http.StatusOK, &recolored)
	if recolored.Blocks[0][1].Content != "Q2" || recolored.Blocks[0][1].Color != "#00ff00" {
		t.Fatalf("unexpected edited quote %#v", recolored.Blocks[0][1])
	}
	server.expect(t, http.MethodPut, notePath+"/pages/0/blocks/0/quote", token, map[string]string{"content": "x", "color": "#000"}, http.StatusUnprocessableEntity, nil)

	var commented notePayload
	server.expect(t, http.MethodPut, notePath+"/comments/0-0-0", token, map[string]string{"title": "c", "content": "note", "color": "#fff"}, http.StatusOK, &commented)
	if _, ok := commented.Comments[notes.WordKey{}]; !ok {
		t.Fatalf("expected comment at 0-0-0, got %#v", commented.Comments)
	}

	var words noteWordsPayload
	server.expect(t, http.MethodGet, notePath+"/words", token, nil, http.StatusOK, &words)
	if len(words.Pages) != 1 || len(words.Pages[0][0].Tokens) == 0 || words.Pages[0][0].Tokens[0].Comment == nil {
		t.Fatalf("expected annotated first word, got %#v", words.Pages)
	}

	var withoutComment notePayload
	server.expect(t, http.MethodDelete, notePath+"/comments/0-0-0", token, nil, http.StatusOK, &withoutComment)
	if len(withoutComment.Comments) != 0 {
		t.Fatalf("expected comment removal, got %#v", withoutComment.Comments)
	}

	var failure map[string]string
	server.expect(t, http.MethodDelete, notePath+"/pages/0", token, nil, http.StatusBadRequest, &failure)
	if failure["error"] != "invalid_operation" {
		t.Fatalf("expected last page deletion to be refused, got %v", failure)
	}

	var twoPages notePayload
	server.expect(t, http.MethodPost, notePath+"/pages", token, nil, http.StatusOK, &twoPages)
	if len(twoPages.Blocks) != 2 {
		t.Fatalf("expected two pages, got %d", len(twoPages.Blocks))
	}
	var onePage notePayload
	server.expect(t, http.MethodDelete, notePath+"/pages/0", token, nil, http.StatusOK, &onePage)
	if len(onePage.Blocks) != 1 || onePage.Content != "" {
		t.Fatalf("unexpected note after page deletion %#v", onePage)
	}
	server.expect(t, http.MethodDelete, notePath+"/pages/4", token, nil, http.StatusUnprocessableEntity, nil)

	title := "Renamed"
	var updated notePayload
	server.expect(t, http.MethodPut, notePath, token, map[string]any{"title": title}, http.StatusOK, &updated)
	if updated.Title != title || len(updated.Blocks) != 1 {
		t.Fatalf("unexpected partial update %#v", updated)
	}

	var list []notePayload
	server.expect(t, http.MethodGet, "/notes", token, nil, http.StatusOK, &list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("unexpected list %#v", list)
	}

	server.expect(t, http.MethodDelete, notePath, token, nil, http.StatusNoContent, nil)
	server.expect(t, http.MethodGet, notePath, token, nil, http.StatusNotFound, nil)
}

func TestShareAndImportEndpoints(t *testing.T) {
	server := newTestServer(t)
	aliceToken := server.register(t, "alice").Token
	bobToken := server.register(t, "bob").Token

	var created notePayload
	server.expect(t, http.MethodPost, "/notes", aliceToken, map[string]any{
		"title":  "Shared",
		"blocks": [][]map[string]string{{{"type": "text", "content": "Hello there"}}},
	}, http.StatusCreated, &created)
	notePath := "/notes/" + created.ID

	server.expect(t, http.MethodGet, notePath, bobToken, nil, http.StatusNotFound, nil)
	server.expect(t, http.MethodPost, notePath+"/share", bobToken, nil, http.StatusNotFound, nil)

	var share sharePayload
	server.expect(t, http.MethodPost, notePath+"/share", aliceToken, nil, http.StatusCreated, &share)
	if len(share.ShareToken) != notes.DefaultShareTokenLength || !share.Created {
		t.Fatalf("unexpected share %#v", share)
	}
	var again sharePayload
	server.expect(t, http.MethodPost, notePath+"/share", aliceToken, nil, http.StatusOK, &again)
	if again.ShareToken != share.ShareToken || again.Created {
		t.Fatalf("expected the existing token, got %#v", again)
	}

	var view sharedNotePayload
	server.expect(t, http.MethodGet, "/shared/"+share.ShareToken, "", nil, http.StatusOK, &view)
	if view.SharedBy != "alice" || view.Note.Title != "Shared" || len(view.SharedAt) != len("2006/01/02") {
		t.Fatalf("unexpected shared view %#v", view)
	}

	var imported notePayload
	server.expect(t, http.MethodPost, "/shared/"+share.ShareToken+"/import", bobToken, nil, http.StatusCreated, &imported)
	if imported.ID == created.ID || imported.Title != "Shared" || imported.Content != "Hello there" {
		t.Fatalf("unexpected imported note %#v", imported)
	}

	var failure map[string]string
	server.expect(t, http.MethodPost, "/shared/"+share.ShareToken+"/import", aliceToken, nil, http.StatusBadRequest, &failure)
	if failure["code"] != "notes.import_share.self_import" {
		t.Fatalf("unexpected self import failure %v", failure)
	}

	var bobNotes []notePayload
	server.expect(t, http.MethodGet, "/notes", bobToken, nil, http.StatusOK, &bobNotes)
	if len(bobNotes) != 1 || bobNotes[0].ID != imported.ID {
		t.Fatalf("unexpected notes for bob %#v", bobNotes)
	}

	server.expect(t, http.MethodDelete, notePath+"/share", aliceToken, nil, http.StatusNoContent, nil)
	server.expect(t, http.MethodGet, "/shared/"+share.ShareToken, "", nil, http.StatusNotFound, nil)
	server.expect(t, http.MethodGet, "/shared/unknown-token", "", nil, http.StatusNotFound, nil)
}

func TestAdminEndpoints(t *testing.T) {
	server := newTestServer(t)
	if _, err := server.users.EnsureBootstrapAdmin(context.Background(), "admin", "admin-password"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	carol := server.register(t, "carol")

	server.expect(t, http.MethodGet, "/admin/users", "", nil, http.StatusUnauthorized, nil)
	server.expect(t, http.MethodGet, "/admin/users", carol.Token, nil, http.StatusForbidden, nil)
	server.expect(t, http.MethodPost, "/admin/login", "", map[string]string{"username": "carol", "password": "carol-password"}, http.StatusForbidden, nil)

	var admin authResponsePayload
	server.expect(t, http.MethodPost, "/admin/login", "", map[string]string{"username": "admin", "password": "admin-password"}, http.StatusOK, &admin)
	if admin.User.Role != "admin" {
		t.Fatalf("unexpected admin session %#v", admin)
	}

	var created adminUserPayload
	server.expect(t, http.MethodPost, "/admin/users", admin.Token, map[string]string{"username": "dave", "password": "dave-password"}, http.StatusCreated, &created)
	if created.Role != "user" || created.Password != "******" {
		t.Fatalf("unexpected created account %#v", created)
	}

	var listing []adminUserPayload
	server.expect(t, http.MethodGet, "/admin/users", admin.Token, nil, http.StatusOK, &listing)
	if len(listing) != 3 {
		t.Fatalf("expected three accounts, got %d", len(listing))
	}
	for _, entry := range listing {
		if entry.Password != "******" || entry.JoinDate == "" {
			t.Fatalf("unexpected listing entry %#v", entry)
		}
	}

	server.expect(t, http.MethodPut, "/admin/users/"+carol.User.ID+"/password", admin.Token, map[string]string{"password": "fresh-password"}, http.StatusNoContent, nil)
	server.expect(t, http.MethodPost, "/login", "", map[string]string{"username": "carol", "password": "fresh-password"}, http.StatusOK, nil)

	server.expect(t, http.MethodDelete, "/admin/users/"+admin.User.ID, admin.Token, nil, http.StatusForbidden, nil)
	server.expect(t, http.MethodDelete, "/admin/users/"+carol.User.ID, admin.Token, nil, http.StatusNoContent, nil)
	server.expect(t, http.MethodDelete, "/admin/users/"+carol.User.ID, admin.Token, nil, http.StatusNotFound, nil)
}

func TestSessionsEndWithAccountDeletion(t *testing.T) {
	server := newTestServer(t)
	ghost := server.register(t, "ghost")

	if err := server.users.DeleteUser(context.Background(), ghost.User.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	var failure map[string]string
	server.expect(t, http.MethodPost, "/notes", ghost.Token, map[string]any{"title": "after delete"}, http.StatusUnauthorized, &failure)
	if failure["code"] != "request.invalid_session" {
		t.Fatalf("unexpected failure %v", failure)
	}
	server.expect(t, http.MethodPost, "/shared/any-token/import", ghost.Token, nil, http.StatusUnauthorized, nil)
}

func TestLogoutRevokesSessions(t *testing.T) {
	server := newTestServer(t)
	first := server.register(t, "alice")

	var second authResponsePayload
	server.expect(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "alice-password"}, http.StatusOK, &second)

	server.expect(t, http.MethodPost, "/logout", "", nil, http.StatusUnauthorized, nil)
	server.expect(t, http.MethodPost, "/logout", second.Token, nil, http.StatusNoContent, nil)
	server.expect(t, http.MethodGet, "/user", second.Token, nil, http.StatusUnauthorized, nil)
	server.expect(t, http.MethodGet, "/notes", first.Token, nil, http.StatusUnauthorized, nil)

	var fresh authResponsePayload
	server.expect(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "alice-password"}, http.StatusOK, &fresh)
	server.expect(t, http.MethodGet, "/user", fresh.Token, nil, http.StatusOK, nil)
}

func TestAdminPasswordResetRevokesSessions(t *testing.T) {
	server := newTestServer(t)
	if _, err := server.users.EnsureBootstrapAdmin(context.Background(), "admin", "admin-password"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	carol := server.register(t, "carol")

	var admin authResponsePayload
	server.expect(t, http.MethodPost, "/admin/login", "", map[string]string{"username": "admin", "password": "admin-password"}, http.StatusOK, &admin)
	server.expect(t, http.MethodGet, "/notes", carol.Token, nil, http.StatusOK, nil)
	server.expect(t, http.MethodPut, "/admin/users/"+carol.User.ID+"/password", admin.Token, map[string]string{"password": "fresh-password"}, http.StatusNoContent, nil)
	server.expect(t, http.MethodGet, "/notes", carol.Token, nil, http.StatusUnauthorized, nil)
	server.expect(t, http.MethodGet, "/admin/users", admin.Token, nil, http.StatusOK, nil)
}
