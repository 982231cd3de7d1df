package notes

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, time.March, 9, 12, 0, 0, 0, time.UTC)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

type staticTokenGenerator struct {
	tokens []string
	index  int
}

func (g *staticTokenGenerator) NewToken() (string, error) {
	if g.index >= len(g.tokens) {
		return "", errors.New("exhausted tokens")
	}
	token := g.tokens[g.index]
	g.index++
	return token, nil
}

type stubDirectory map[string]string

func (d stubDirectory) Username(_ context.Context, userID string) (string, error) {
	username, ok := d[userID]
	if !ok {
		return "", fmt.Errorf("unknown user %s", userID)
	}
	return username, nil
}

type testServiceOptions struct {
	ids    []string
	tokens TokenGenerator
}

func newTestService(t *testing.T, options testServiceOptions) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:inkwell_notes_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Note{}, &SharedNote{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	tokens := options.tokens
	if tokens == nil {
		tokens, err = NewRandomTokenGenerator(DefaultShareTokenLength)
		if err != nil {
			t.Fatalf("failed to construct token generator: %v", err)
		}
	}

	service, err := NewService(ServiceConfig{
		Database:       db,
		Clock:          func() time.Time { return testNow },
		IDProvider:     &staticIDGenerator{ids: options.ids},
		TokenGenerator: tokens,
		Directory:      stubDirectory{"user-a": "alice", "user-b": "bob"},
	})
	if err != nil {
		t.Fatalf("failed to construct notes service: %v", err)
	}
	return service, db
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustNoteID(t *testing.T, value string) NoteID {
	t.Helper()
	id, err := NewNoteID(value)
	if err != nil {
		t.Fatalf("unexpected note id error: %v", err)
	}
	return id
}

func mustCreateNote(t *testing.T, service *Service, owner UserID, title string, pages Pages) Note {
	t.Helper()
	note, err := service.CreateNote(context.Background(), owner, NoteDraft{Title: title, Pages: pages})
	if err != nil {
		t.Fatalf("failed to create note: %v", err)
	}
	return note
}
