package server

import (
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/notes"
	"github.com/MarcoPoloResearchLab/inkwell/internal/users"
)

const (
	displayDateLayout = "2006/01/02"
	maskedPassword    = "******"
	tokenTypeBearer   = "Bearer"
)

type userPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type authResponsePayload struct {
	User      userPayload `json:"user"`
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	ExpiresIn int64       `json:"expires_in"`
}

type notePayload struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Content          string         `json:"content"`
	Blocks           notes.Pages    `json:"blocks"`
	Date             string         `json:"date"`
	Comments         notes.Comments `json:"comments"`
	CreatedAtSeconds int64          `json:"created_at_s"`
	UpdatedAtSeconds int64          `json:"updated_at_s"`
}

type orphanedCommentPayload struct {
	Key     string        `json:"key"`
	Comment notes.Comment `json:"comment"`
}

type noteWordsPayload struct {
	ID               string                   `json:"id"`
	Title            string                   `json:"title"`
	Pages            [][]notes.AnnotatedBlock `json:"pages"`
	OrphanedComments []orphanedCommentPayload `json:"orphaned_comments"`
}

type sharePayload struct {
	NoteID     string `json:"note_id"`
	ShareToken string `json:"share_token"`
	Created    bool   `json:"created"`
}

type sharedNotePayload struct {
	Note     notePayload `json:"note"`
	SharedBy string      `json:"shared_by"`
	SharedAt string      `json:"shared_at"`
}

type adminUserPayload struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	NotesCount int64  `json:"notesCount"`
	JoinDate   string `json:"joinDate"`
	Role       string `json:"role"`
}

func newUserPayload(account users.User) userPayload {
	return userPayload{ID: account.UserID, Username: account.Username, Role: string(account.Role)}
}

func newNotePayload(note notes.Note) notePayload {
	return notePayload{
		ID:               note.NoteID,
		Title:            note.Title,
		Content:          note.Content,
		Blocks:           note.Pages,
		Date:             note.Date,
		Comments:         note.Comments.Normalized(),
		CreatedAtSeconds: note.CreatedAtSeconds,
		UpdatedAtSeconds: note.UpdatedAtSeconds,
	}
}

func newNoteListPayload(list []notes.Note) []notePayload {
	payload := make([]notePayload, 0, len(list))
	for _, note := range list {
		payload = append(payload, newNotePayload(note))
	}
	return payload
}

func newNoteWordsPayload(annotated notes.AnnotatedNote) noteWordsPayload {
	orphaned := make([]orphanedCommentPayload, 0, len(annotated.Orphaned))
	for _, key := range annotated.Orphaned {
		orphaned = append(orphaned, orphanedCommentPayload{Key: key.String(), Comment: annotated.Note.Comments[key]})
	}
	return noteWordsPayload{
		ID:               annotated.Note.NoteID,
		Title:            annotated.Note.Title,
		Pages:            annotated.Pages,
		OrphanedComments: orphaned,
	}
}

func newSharedNotePayload(view notes.SharedNoteView) sharedNotePayload {
	return sharedNotePayload{
		Note:     newNotePayload(view.Note),
		SharedBy: view.SharedBy,
		SharedAt: displayDate(view.SharedAtSeconds),
	}
}

func newAdminUserPayload(summary users.Summary) adminUserPayload {
	return adminUserPayload{
		ID:         summary.User.UserID,
		Username:   summary.User.Username,
		Password:   maskedPassword,
		NotesCount: summary.NotesCount,
		JoinDate:   displayDate(summary.User.CreatedAtSeconds),
		Role:       string(summary.User.Role),
	}
}

func displayDate(seconds int64) string {
	return time.Unix(seconds, 0).UTC().Format(displayDateLayout)
}
